package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shortsfactory/internal/config"
	"shortsfactory/internal/daemon"
	"shortsfactory/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a media file or a text idea",
	}

	var clip bool
	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Queue a local video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			kind := queue.SourceRawMedia
			if clip {
				kind = queue.SourcePreCutClip
			}
			return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
				job, created, err := api.AddFile(cmd.Context(), path, kind)
				if err != nil {
					return err
				}
				printAdded(cmd, job, created)
				return nil
			})
		},
	}
	fileCmd.Flags().BoolVar(&clip, "clip", false, "Treat the file as an already cut clip")

	ideaCmd := &cobra.Command{
		Use:   "idea <text...>",
		Short: "Queue a text idea",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idea := strings.Join(args, " ")
			return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
				job, created, err := api.AddIdea(cmd.Context(), idea)
				if err != nil {
					return err
				}
				printAdded(cmd, job, created)
				return nil
			})
		},
	}

	addCmd.AddCommand(fileCmd, ideaCmd)
	return addCmd
}

func printAdded(cmd *cobra.Command, job *daemon.JobView, created bool) {
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (%s)\n", job.ID, job.Title)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Already queued as job %s (%s)\n", job.ID, formatStateLabel(job.State))
}
