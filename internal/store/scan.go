package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sourceColumns = `id, name, source_key, source_type, directory, index_schedule,
    download_media, copy_channel_images, delete_files_on_disk, filter_text,
    download_cap_days, min_duration, max_duration, resolution, video_codec,
    audio_codec, fallback, avatar_url, banner_url, has_failed, created_at, updated_at`

const mediaColumns = `id, source_id, media_key, title, published, duration,
    metadata_json, skip, manual_skip, can_download, downloaded, media_file,
    thumb_file, created_at, updated_at`

const serverColumns = `id, server_type, url, token, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(scanner rowScanner) (*Source, error) {
	var (
		source     Source
		id         string
		sourceType string
		filterText sql.NullString
		resolution sql.NullString
		videoCodec sql.NullString
		audioCodec sql.NullString
		fallback   sql.NullString
		avatarURL  sql.NullString
		bannerURL  sql.NullString
		createdAt  string
		updatedAt  string
		downloads  int
		copyImages int
		deleteDisk int
		hasFailed  int
	)

	err := scanner.Scan(
		&id, &source.Name, &source.Key, &sourceType, &source.Directory,
		&source.IndexSchedule, &downloads, &copyImages, &deleteDisk,
		&filterText, &source.DownloadCapDays, &source.MinDuration,
		&source.MaxDuration, &resolution, &videoCodec, &audioCodec,
		&fallback, &avatarURL, &bannerURL, &hasFailed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	source.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse source id: %w", err)
	}
	source.Type = SourceType(sourceType)
	source.DownloadMedia = downloads != 0
	source.CopyChannelImages = copyImages != 0
	source.DeleteFilesOnDisk = deleteDisk != 0
	source.HasFailed = hasFailed != 0
	source.FilterText = filterText.String
	source.Resolution = resolution.String
	source.VideoCodec = videoCodec.String
	source.AudioCodec = audioCodec.String
	source.Fallback = fallback.String
	source.AvatarURL = avatarURL.String
	source.BannerURL = bannerURL.String
	source.CreatedAt = parseTimeString(createdAt)
	source.UpdatedAt = parseTimeString(updatedAt)
	return &source, nil
}

func scanMedia(scanner rowScanner) (*Media, error) {
	var (
		media       Media
		id          string
		sourceID    string
		title       sql.NullString
		published   sql.NullString
		metadata    sql.NullString
		mediaFile   sql.NullString
		thumbFile   sql.NullString
		createdAt   string
		updatedAt   string
		skip        int
		manualSkip  int
		canDownload int
		downloaded  int
	)

	err := scanner.Scan(
		&id, &sourceID, &media.Key, &title, &published, &media.Duration,
		&metadata, &skip, &manualSkip, &canDownload, &downloaded,
		&mediaFile, &thumbFile, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	media.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse media id: %w", err)
	}
	media.SourceID, err = uuid.Parse(sourceID)
	if err != nil {
		return nil, fmt.Errorf("parse media source id: %w", err)
	}
	media.Title = title.String
	media.MetadataJSON = metadata.String
	media.MediaFile = mediaFile.String
	media.ThumbFile = thumbFile.String
	media.Skip = skip != 0
	media.ManualSkip = manualSkip != 0
	media.CanDownload = canDownload != 0
	media.Downloaded = downloaded != 0
	if published.Valid && published.String != "" {
		ts := parseTimeString(published.String)
		media.Published = &ts
	}
	media.CreatedAt = parseTimeString(createdAt)
	media.UpdatedAt = parseTimeString(updatedAt)
	return &media, nil
}

func scanServer(scanner rowScanner) (*MediaServer, error) {
	var (
		server     MediaServer
		id         string
		serverType string
		token      sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := scanner.Scan(&id, &serverType, &server.URL, &token, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	server.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse media server id: %w", err)
	}
	server.Type = ServerType(serverType)
	server.Token = token.String
	server.CreatedAt = parseTimeString(createdAt)
	server.UpdatedAt = parseTimeString(updatedAt)
	return &server, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
