package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediasync/internal/store"
	"mediasync/internal/tasks"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect and manage media items",
	}

	mediaCmd.AddCommand(newMediaListCommand(ctx))
	mediaCmd.AddCommand(newMediaShowCommand(ctx))
	mediaCmd.AddCommand(newMediaSkipCommand(ctx, true))
	mediaCmd.AddCommand(newMediaSkipCommand(ctx, false))
	mediaCmd.AddCommand(newMediaRemoveCommand(ctx))

	return mediaCmd
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List media items for a source",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(sourceID)
			if err != nil {
				return fmt.Errorf("parse source id: %w", err)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				items, err := entities.ListMediaBySource(cmd.Context(), id)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(items))
				for _, media := range items {
					rows = append(rows, []string{
						media.ID.String(),
						media.Key,
						media.Title,
						strconv.Itoa(media.Duration),
						yesNo(media.Skip),
						yesNo(media.Downloaded),
					})
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"ID", "Key", "Title", "Duration", "Skip", "Downloaded"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "Source ID to list media for")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newMediaShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one media item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse media id: %w", err)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				media, err := entities.GetMedia(cmd.Context(), id)
				if err != nil {
					return err
				}
				if media == nil {
					return fmt.Errorf("media %s not found", id)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Title:         %s\n", media.Title)
				fmt.Fprintf(out, "URL:           %s\n", media.URL())
				fmt.Fprintf(out, "Source:        %s\n", media.SourceID)
				fmt.Fprintf(out, "Duration:      %ds\n", media.Duration)
				if media.Published != nil {
					fmt.Fprintf(out, "Published:     %s\n", media.Published.Format("2006-01-02"))
				}
				fmt.Fprintf(out, "Has metadata:  %s\n", yesNo(media.HasMetadata()))
				fmt.Fprintf(out, "Skip:          %s (manual: %s)\n", yesNo(media.Skip), yesNo(media.ManualSkip))
				fmt.Fprintf(out, "Can download:  %s\n", yesNo(media.CanDownload))
				fmt.Fprintf(out, "Downloaded:    %s\n", yesNo(media.Downloaded))
				fmt.Fprintf(out, "Media file:    %s\n", media.MediaFile)
				fmt.Fprintf(out, "Thumb file:    %s\n", media.ThumbFile)
				return nil
			})
		},
	}
}

func newMediaSkipCommand(ctx *commandContext, skip bool) *cobra.Command {
	use, short := "skip <id>", "Manually exclude a media item from downloading"
	if !skip {
		use, short = "unskip <id>", "Clear a manual skip so the item is reconsidered"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse media id: %w", err)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				media, err := entities.GetMedia(cmd.Context(), id)
				if err != nil {
					return err
				}
				if media == nil {
					return fmt.Errorf("media %s not found", id)
				}
				media.ManualSkip = skip
				media.Skip = skip
				if _, err := entities.SaveMedia(cmd.Context(), media); err != nil {
					return err
				}
				if skip {
					fmt.Fprintf(cmd.OutOrStdout(), "Media %s marked skipped\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Media %s unskipped\n", id)
				}
				return nil
			})
		},
	}
}

func newMediaRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a media item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse media id: %w", err)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				media, err := entities.GetMedia(cmd.Context(), id)
				if err != nil {
					return err
				}
				if media == nil {
					return fmt.Errorf("media %s not found", id)
				}
				if err := entities.DeleteMedia(cmd.Context(), media); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Media %s removed\n", id)
				return nil
			})
		},
	}
}
