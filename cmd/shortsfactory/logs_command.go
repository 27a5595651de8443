package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"shortsfactory/internal/logging"
	"shortsfactory/internal/logs"
)

const followWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		jobID  string
		stage  string
		level  string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			minLevel, err := logs.ParseLevel(level)
			if err != nil {
				return err
			}
			if lines < 0 {
				return errors.New("--lines must not be negative")
			}

			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			opts := logs.TailOptions{
				Offset: -1,
				Limit:  lines,
				Filter: logs.Filter{JobID: jobID, Stage: stage, MinLevel: minLevel},
			}
			out := cmd.OutOrStdout()
			emit := func(records []logs.Record) {
				for _, rec := range records {
					if raw {
						fmt.Fprintln(out, rec.Raw)
					} else {
						fmt.Fprintln(out, logs.Format(rec))
					}
				}
			}

			runCtx := cmd.Context()
			for {
				result, err := logs.Tail(runCtx, path, opts)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				emit(result.Records)
				if !follow {
					if len(result.Records) == 0 && opts.Offset < 0 {
						fmt.Fprintln(out, "No log records")
					}
					return nil
				}
				opts.Offset = result.Offset
				opts.Follow = true
				opts.Wait = followWait
				if runCtx.Err() != nil {
					return nil
				}
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of records to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new records")
	cmd.Flags().StringVar(&jobID, "job", "", "Only records for this job ID")
	cmd.Flags().StringVar(&stage, "stage", "", "Only records for this stage (e.g. CUTTING)")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the JSON lines as written")
	return cmd
}
