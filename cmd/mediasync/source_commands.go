package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediasync/internal/store"
	"mediasync/internal/tasks"
	"mediasync/internal/textutil"
)

type sourceFlags struct {
	name              string
	key               string
	sourceType        string
	directory         string
	indexSchedule     int
	downloadMedia     bool
	copyChannelImages bool
	deleteFilesOnDisk bool
	filterText        string
	downloadCapDays   int
	minDuration       int
	maxDuration       int
	resolution        string
	videoCodec        string
	audioCodec        string
	fallback          string
	avatarURL         string
	bannerURL         string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Display name for the source")
	cmd.Flags().StringVar(&f.key, "key", "", "Channel ID, channel name, or playlist ID")
	cmd.Flags().StringVar(&f.sourceType, "type", string(store.SourceTypeChannelID), "Source type (channel, channel-id, playlist)")
	cmd.Flags().StringVar(&f.directory, "directory", "", "Directory under the download root")
	cmd.Flags().IntVar(&f.indexSchedule, "index-schedule", 86400, "Seconds between index runs (0 disables)")
	cmd.Flags().BoolVar(&f.downloadMedia, "download", true, "Download matched media")
	cmd.Flags().BoolVar(&f.copyChannelImages, "copy-images", false, "Copy channel avatar and banner")
	cmd.Flags().BoolVar(&f.deleteFilesOnDisk, "delete-files", false, "Remove files from disk when items are deleted")
	cmd.Flags().StringVar(&f.filterText, "filter", "", "Regex a title must match to be kept")
	cmd.Flags().IntVar(&f.downloadCapDays, "cap-days", 0, "Skip items older than this many days (0 = unlimited)")
	cmd.Flags().IntVar(&f.minDuration, "min-duration", 0, "Minimum duration in seconds (0 = no bound)")
	cmd.Flags().IntVar(&f.maxDuration, "max-duration", 0, "Maximum duration in seconds (0 = no bound)")
	cmd.Flags().StringVar(&f.resolution, "resolution", "1080p", "Preferred video resolution")
	cmd.Flags().StringVar(&f.videoCodec, "video-codec", "", "Preferred video codec")
	cmd.Flags().StringVar(&f.audioCodec, "audio-codec", "", "Preferred audio codec")
	cmd.Flags().StringVar(&f.fallback, "fallback", "next-best", "Format fallback policy (fail, next-best)")
	cmd.Flags().StringVar(&f.avatarURL, "avatar-url", "", "Channel avatar image URL")
	cmd.Flags().StringVar(&f.bannerURL, "banner-url", "", "Channel banner image URL")
}

func (f *sourceFlags) apply(cmd *cobra.Command, source *store.Source) error {
	if cmd.Flags().Changed("type") {
		parsed, ok := store.ParseSourceType(f.sourceType)
		if !ok {
			return fmt.Errorf("unknown source type %q", f.sourceType)
		}
		source.Type = parsed
	}
	if cmd.Flags().Changed("name") {
		source.Name = f.name
	}
	if cmd.Flags().Changed("key") {
		source.Key = f.key
	}
	if cmd.Flags().Changed("directory") {
		source.Directory = f.directory
	}
	if cmd.Flags().Changed("index-schedule") {
		source.IndexSchedule = f.indexSchedule
	}
	if cmd.Flags().Changed("download") {
		source.DownloadMedia = f.downloadMedia
	}
	if cmd.Flags().Changed("copy-images") {
		source.CopyChannelImages = f.copyChannelImages
	}
	if cmd.Flags().Changed("delete-files") {
		source.DeleteFilesOnDisk = f.deleteFilesOnDisk
	}
	if cmd.Flags().Changed("filter") {
		source.FilterText = f.filterText
	}
	if cmd.Flags().Changed("cap-days") {
		source.DownloadCapDays = f.downloadCapDays
	}
	if cmd.Flags().Changed("min-duration") {
		source.MinDuration = f.minDuration
	}
	if cmd.Flags().Changed("max-duration") {
		source.MaxDuration = f.maxDuration
	}
	if cmd.Flags().Changed("resolution") {
		source.Resolution = f.resolution
	}
	if cmd.Flags().Changed("video-codec") {
		source.VideoCodec = f.videoCodec
	}
	if cmd.Flags().Changed("audio-codec") {
		source.AudioCodec = f.audioCodec
	}
	if cmd.Flags().Changed("fallback") {
		source.Fallback = f.fallback
	}
	if cmd.Flags().Changed("avatar-url") {
		source.AvatarURL = f.avatarURL
	}
	if cmd.Flags().Changed("banner-url") {
		source.BannerURL = f.bannerURL
	}
	return nil
}

func newSourceCommand(ctx *commandContext) *cobra.Command {
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Manage upstream sources",
	}

	sourceCmd.AddCommand(newSourceAddCommand(ctx))
	sourceCmd.AddCommand(newSourceListCommand(ctx))
	sourceCmd.AddCommand(newSourceShowCommand(ctx))
	sourceCmd.AddCommand(newSourceUpdateCommand(ctx))
	sourceCmd.AddCommand(newSourceRemoveCommand(ctx))

	return sourceCmd
}

func newSourceAddCommand(ctx *commandContext) *cobra.Command {
	flags := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				source := &store.Source{
					Type:          store.SourceTypeChannelID,
					IndexSchedule: 86400,
					DownloadMedia: true,
					Resolution:    "1080p",
					Fallback:      "next-best",
				}
				if err := flags.apply(cmd, source); err != nil {
					return err
				}
				if source.Name == "" || source.Key == "" {
					return fmt.Errorf("--name and --key are required")
				}
				if source.Directory == "" {
					source.Directory = source.Name
				}
				source.Directory = textutil.SanitizeFileName(source.Directory)
				if _, err := entities.SaveSource(cmd.Context(), source); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %s registered as %s\n", source.Name, source.ID)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newSourceListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				sources, err := entities.ListSources(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(sources))
				for _, source := range sources {
					rows = append(rows, []string{
						source.ID.String(),
						source.Name,
						string(source.Type),
						strconv.Itoa(source.IndexSchedule),
						yesNo(source.DownloadMedia),
						yesNo(source.HasFailed),
					})
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"ID", "Name", "Type", "Schedule", "Download", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
				return nil
			})
		},
	}
}

func newSourceShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one source in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse source id: %w", err)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				source, err := entities.GetSource(cmd.Context(), id)
				if err != nil {
					return err
				}
				if source == nil {
					return fmt.Errorf("source %s not found", id)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Name:            %s\n", source.Name)
				fmt.Fprintf(out, "URL:             %s\n", source.URL())
				fmt.Fprintf(out, "Type:            %s\n", source.Type)
				fmt.Fprintf(out, "Directory:       %s\n", source.Directory)
				fmt.Fprintf(out, "Index schedule:  %ds\n", source.IndexSchedule)
				fmt.Fprintf(out, "Download media:  %s\n", yesNo(source.DownloadMedia))
				fmt.Fprintf(out, "Copy images:     %s\n", yesNo(source.CopyChannelImages))
				fmt.Fprintf(out, "Delete files:    %s\n", yesNo(source.DeleteFilesOnDisk))
				fmt.Fprintf(out, "Filter:          %s\n", source.FilterText)
				fmt.Fprintf(out, "Resolution:      %s (%s)\n", source.Resolution, source.Fallback)
				fmt.Fprintf(out, "Has failed:      %s\n", yesNo(source.HasFailed))
				return nil
			})
		},
	}
}

func newSourceUpdateCommand(ctx *commandContext) *cobra.Command {
	flags := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update source settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse source id: %w", err)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				source, err := entities.GetSource(cmd.Context(), id)
				if err != nil {
					return err
				}
				if source == nil {
					return fmt.Errorf("source %s not found", id)
				}
				if err := flags.apply(cmd, source); err != nil {
					return err
				}
				if _, err := entities.SaveSource(cmd.Context(), source); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %s updated\n", source.ID)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newSourceRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a source and all of its media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse source id: %w", err)
			}
			return ctx.withStores(func(entities *store.Store, _ *tasks.Registry) error {
				source, err := entities.GetSource(cmd.Context(), id)
				if err != nil {
					return err
				}
				if source == nil {
					return fmt.Errorf("source %s not found", id)
				}
				if err := entities.DeleteSource(cmd.Context(), source); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %s removed\n", id)
				return nil
			})
		},
	}
}
