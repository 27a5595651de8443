package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shortsfactory/internal/daemon"
)

type decisionFunc func(ctx context.Context, api jobsAPI, id, reviewer, note string) (*daemon.JobView, error)

func newReviewCommands(ctx *commandContext) []*cobra.Command {
	approve := newDecisionCommand(ctx, "approve", "Approve a rendered short for publishing",
		func(c context.Context, api jobsAPI, id, reviewer, note string) (*daemon.JobView, error) {
			return api.Approve(c, id, reviewer, note)
		})
	reject := newDecisionCommand(ctx, "reject", "Reject a rendered short",
		func(c context.Context, api jobsAPI, id, reviewer, note string) (*daemon.JobView, error) {
			return api.Reject(c, id, reviewer, note)
		})

	reprocess := &cobra.Command{
		Use:   "reprocess <job-id>",
		Short: "Send a reviewed or failed job back through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
				job, err := api.Reprocess(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued for reprocessing (%s)\n", job.ID, formatStateLabel(job.State))
				return nil
			})
		},
	}
	return []*cobra.Command{approve, reject, reprocess}
}

func newDecisionCommand(ctx *commandContext, verb, short string, decide decisionFunc) *cobra.Command {
	var reviewer, note string
	cmd := &cobra.Command{
		Use:   verb + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who := strings.TrimSpace(reviewer)
			if who == "" {
				who = strings.TrimSpace(os.Getenv("USER"))
			}
			return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
				job, err := decide(cmd.Context(), api, args[0], who, note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s (by %s)\n", job.ID, formatStateLabel(job.State), job.Review.Reviewer)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reviewer, "reviewer", "r", "", "Reviewer name (defaults to $USER)")
	cmd.Flags().StringVarP(&note, "note", "n", "", "Optional note stored with the decision")
	return cmd
}
