package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"mediasync/internal/deps"
	"mediasync/internal/store"
	"mediasync/internal/tasks"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of sources, servers, and task activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStores(func(entities *store.Store, registry *tasks.Registry) error {
				sources, err := entities.ListSources(cmd.Context())
				if err != nil {
					return err
				}
				servers, err := entities.ListMediaServers(cmd.Context())
				if err != nil {
					return err
				}
				stats, err := registry.Stats(cmd.Context())
				if err != nil {
					return err
				}

				failed := 0
				for _, source := range sources {
					if source.HasFailed {
						failed++
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "State database:  %s\n", filepath.Join(cfg.Paths.StateDir, "entities.db"))
				fmt.Fprintf(out, "Download root:   %s\n", cfg.Paths.DownloadDir)
				fmt.Fprintf(out, "Sources:         %d (%d failed)\n", len(sources), failed)
				fmt.Fprintf(out, "Media servers:   %d\n", len(servers))
				fmt.Fprintln(out)

				rows := [][]string{
					{"pending", strconv.Itoa(stats[tasks.StatusPending])},
					{"running", strconv.Itoa(stats[tasks.StatusRunning])},
					{"succeeded", strconv.Itoa(stats[tasks.StatusSucceeded])},
					{"failed", strconv.Itoa(stats[tasks.StatusFailed])},
					{"cancelled", strconv.Itoa(stats[tasks.StatusCancelled])},
				}
				writeTable(out, []string{"Tasks", "Count"}, rows, []columnAlignment{alignLeft, alignRight})

				fmt.Fprintln(out)
				for _, status := range deps.CheckBinaries(deps.Defaults()) {
					state := "missing"
					if status.Available {
						state = "ok"
					} else if status.Optional {
						state = "missing (optional)"
					}
					fmt.Fprintf(out, "%-8s %s\n", status.Name+":", state)
				}
				return nil
			})
		},
	}
}
