package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediasync/internal/store"
	"mediasync/internal/tasks"
)

func newServerCommand(ctx *commandContext) *cobra.Command {
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Manage media server registrations",
	}

	serverCmd.AddCommand(newServerAddCommand(ctx))
	serverCmd.AddCommand(newServerListCommand(ctx))
	serverCmd.AddCommand(newServerRemoveCommand(ctx))

	return serverCmd
}

func newServerAddCommand(ctx *commandContext) *cobra.Command {
	var serverType, serverURL, token string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a media server to rescan after deletions",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := store.ParseServerType(serverType)
			if !ok {
				return fmt.Errorf("unknown server type %q (expected plex or jellyfin)", serverType)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				server := &store.MediaServer{Type: parsed, URL: serverURL, Token: token}
				if err := entities.SaveMediaServer(cmd.Context(), server); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s server registered as %s\n", server.Type, server.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&serverType, "type", "", "Server type (plex, jellyfin)")
	cmd.Flags().StringVar(&serverURL, "url", "", "Server base URL")
	cmd.Flags().StringVar(&token, "token", "", "API token")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newServerListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered media servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				servers, err := entities.ListMediaServers(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(servers))
				for _, server := range servers {
					rows = append(rows, []string{
						server.ID.String(),
						string(server.Type),
						server.URL,
					})
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"ID", "Type", "URL"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft})
				return nil
			})
		},
	}
}

func newServerRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a media server registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse server id: %w", err)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				deleted, err := entities.DeleteMediaServer(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("server %s not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Server %s removed\n", id)
				return nil
			})
		},
	}
}
