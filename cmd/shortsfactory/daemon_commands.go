package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"shortsfactory/internal/daemon"
	"shortsfactory/internal/daemonctl"
	"shortsfactory/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the shortsfactory daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, ctx.configFlagValue(), 10*time.Second)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the shortsfactory daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			cfg, _ := ctx.ensureConfig()
			result, err := daemonctl.Stop(cmd.Context(), cfg, client, 30*time.Second)
			stdout := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrUnavailable) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.Forced {
				fmt.Fprintf(stdout, "Daemon (pid %d) did not exit in time and was killed\n", result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil && !errors.Is(err, daemonctl.ErrUnavailable) {
				return err
			}
			if statusJSON {
				if status == nil {
					return writeJSON(cmd, map[string]any{"running": false})
				}
				return writeJSON(cmd, status)
			}
			if status == nil {
				return printOfflineStatus(cmd, ctx)
			}
			printDaemonStatus(cmd, status)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status document")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func printDaemonStatus(cmd *cobra.Command, status *daemon.Status) {
	p := newStatusPrinter(cmd.OutOrStdout())
	p.section("Daemon")
	p.line("Daemon", okOr(status.Running, statusWarn), fmt.Sprintf("running=%s pid=%d", yesNo(status.Running), status.PID))
	p.line("Inbox watcher", okOr(status.WatcherRunning, statusWarn), yesNo(status.WatcherRunning))
	p.line("Database", statusInfo, status.DatabasePath)
	if status.Workflow.LastError != "" {
		p.line("Last error", statusError, status.Workflow.LastError)
	}

	fmt.Fprintln(cmd.OutOrStdout())
	p.section("Providers")
	for _, h := range status.Workflow.ProviderHealth {
		p.line(h.Name, okOr(h.Ready, statusError), h.Detail)
	}

	fmt.Fprintln(cmd.OutOrStdout())
	p.section("Publishing")
	if !status.Workflow.PublishEnabled {
		p.line("Publishing", statusWarn, "disabled")
	} else {
		th := status.Workflow.Throttle
		p.line("Published today", statusInfo, fmt.Sprintf("%d of %d", th.Count, th.MaxPerDay))
		if !th.NextEarliest.IsZero() {
			p.line("Next eligible", statusInfo, th.NextEarliest.Local().Format(time.DateTime))
		}
	}

	fmt.Fprintln(cmd.OutOrStdout())
	printCounts(cmd, status.Workflow.Counts)
}

func printOfflineStatus(cmd *cobra.Command, ctx *commandContext) error {
	p := newStatusPrinter(cmd.OutOrStdout())
	p.section("Daemon")
	p.line("Daemon", statusWarn, "not running (start it with `shortsfactory start`)")
	fmt.Fprintln(cmd.OutOrStdout())
	return ctx.withJobs(cmd.Context(), func(api jobsAPI) error {
		counts, err := api.Counts(cmd.Context())
		if err != nil {
			return err
		}
		printCounts(cmd, counts)
		return nil
	})
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:    "daemon",
		Short:  "Run the shortsfactory daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{})
		},
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{Once: once})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Scan the inbox, run every stage once and exit")
	return cmd
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
