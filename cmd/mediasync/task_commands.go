package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediasync/internal/store"
	"mediasync/internal/tasks"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect the background task registry",
	}

	taskCmd.AddCommand(newTaskListCommand(ctx))
	taskCmd.AddCommand(newTaskStatsCommand(ctx))
	taskCmd.AddCommand(newTaskCancelCommand(ctx))

	return taskCmd
}

func parseTaskStatus(value string) (tasks.Status, error) {
	switch tasks.Status(value) {
	case tasks.StatusPending, tasks.StatusRunning, tasks.StatusSucceeded, tasks.StatusFailed, tasks.StatusCancelled:
		return tasks.Status(value), nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("unknown task status %q", value)
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseTaskStatus(statusFlag)
			if err != nil {
				return err
			}
			return ctx.withStores(func(_ *store.Store, registry *tasks.Registry) error {
				items, err := registry.List(cmd.Context(), status)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(items))
				for _, task := range items {
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						string(task.Kind),
						task.TargetID.String(),
						strconv.Itoa(task.Priority),
						string(task.Status),
						fmt.Sprintf("%d/%d", task.Attempts, task.MaxAttempts),
						task.RunAt.Format("2006-01-02 15:04:05"),
					})
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"ID", "Kind", "Target", "Priority", "Status", "Attempts", "Run At"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (pending, running, succeeded, failed, cancelled)")
	return cmd
}

func newTaskStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(_ *store.Store, registry *tasks.Registry) error {
				stats, err := registry.Stats(cmd.Context())
				if err != nil {
					return err
				}
				order := []tasks.Status{
					tasks.StatusPending,
					tasks.StatusRunning,
					tasks.StatusSucceeded,
					tasks.StatusFailed,
					tasks.StatusCancelled,
				}
				rows := make([][]string, 0, len(order))
				for _, status := range order {
					rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight})
				return nil
			})
		},
	}
}

func newTaskCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <target-id>",
		Short: "Cancel all pending tasks for a target entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse target id: %w", err)
			}
			return ctx.withStores(func(_ *store.Store, registry *tasks.Registry) error {
				cancelled, err := registry.CancelByTarget(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d pending task(s) for %s\n", cancelled, id)
				return nil
			})
		},
	}
}
