package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shortsfactory/internal/queue"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var stateFlags []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStates(stateFlags)
			if err != nil {
				return err
			}
			return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
				jobs, err := api.List(cmd.Context(), states)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Kind", "State", "Attempts", "Updated"},
					buildJobRows(jobs),
					4,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&stateFlags, "state", "s", nil, "Only show jobs in these states (repeatable or comma separated)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
				job, err := api.Show(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				for _, line := range jobDetailLines(job) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <job-id>",
		Short: "Show the activity log of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
				entries, err := api.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Time", "Action", "Transition", "Result", "Details"},
					buildHistoryRows(entries),
				))
				return nil
			})
		},
	}
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List jobs awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
				jobs, err := api.Pending(cmd.Context())
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing awaiting review")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{job.ID, job.Title, job.Artifacts.Final})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Title", "Final video"}, rows))
				return nil
			})
		},
	}
}

func printCounts(cmd *cobra.Command, counts map[queue.State]int) {
	rows := buildStateRows(counts)
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"State", "Count"}, rows, 1))
}

func parseStates(values []string) ([]queue.State, error) {
	var states []queue.State
	for _, raw := range values {
		for value := range strings.SplitSeq(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			state, ok := queue.ParseState(value)
			if !ok {
				return nil, fmt.Errorf("unknown state %q", value)
			}
			states = append(states, state)
		}
	}
	return states, nil
}
