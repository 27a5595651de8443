package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shortsfactory/internal/deps"
	"shortsfactory/internal/preflight"
	"shortsfactory/internal/queue"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check directories, external tools, publish target and the job database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := newStatusPrinter(cmd.OutOrStdout())

			p.section("Preflight")
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				p.line(r.Name, okOr(r.Passed, statusError), r.Detail)
			}

			fmt.Fprintln(cmd.OutOrStdout())
			p.section("Tools")
			for _, status := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				if !status.Available {
					p.line(status.Name, statusError, status.Detail)
					continue
				}
				version, err := deps.Version(cmd.Context(), status.Path)
				if err != nil {
					p.line(status.Name, statusWarn, err.Error())
					continue
				}
				p.line(status.Name, statusOK, version)
			}

			fmt.Fprintln(cmd.OutOrStdout())
			p.section("Database")
			store, err := queue.Open(cfg)
			if err != nil {
				p.line("Database", statusError, err.Error())
				return fmt.Errorf("health check failed")
			}
			defer store.Close()
			db, err := store.CheckHealth(cmd.Context())
			if err != nil {
				p.line("Database", statusError, err.Error())
				return fmt.Errorf("health check failed")
			}
			p.line("Path", statusInfo, db.DBPath)
			p.line("Schema version", statusInfo, fmt.Sprintf("%d", db.SchemaVersion))
			p.line("Integrity", okOr(db.IntegrityCheck, statusError), yesNo(db.IntegrityCheck))
			if len(db.MissingTables) > 0 {
				p.line("Missing tables", statusError, fmt.Sprint(db.MissingTables))
			}
			p.line("Jobs", statusInfo, fmt.Sprintf("%d jobs, %d log entries", db.TotalJobs, db.TotalEntries))

			if failed := preflight.Failed(results); len(failed) > 0 || !db.IntegrityCheck {
				return fmt.Errorf("health check found %d failing checks", len(failed))
			}
			return nil
		},
	}
}
