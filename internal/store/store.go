package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mediasync/internal/config"
)

// Store manages entity persistence backed by SQLite and dispatches lifecycle
// hooks around mutations.
type Store struct {
	db   *sql.DB
	path string

	sourceHooks SourceHooks
	mediaHooks  MediaHooks
}

// Open initializes or connects to the entity database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "entities.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the entity database location.
func (s *Store) Path() string {
	return s.path
}

// SaveSource inserts or updates a source and dispatches lifecycle hooks.
// The BeforeUpdate hook runs only when a persisted row already exists, before
// the new values are committed. AfterSave runs after the commit with the
// created flag. Returns whether the row was created.
func (s *Store) SaveSource(ctx context.Context, source *Source) (bool, error) {
	if source == nil {
		return false, errors.New("source is nil")
	}
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}

	old, err := s.GetSource(ctx, source.ID)
	if err != nil {
		return false, err
	}
	created := old == nil

	if !created && s.sourceHooks.BeforeUpdate != nil {
		if err := s.sourceHooks.BeforeUpdate(ctx, old, source); err != nil {
			return false, fmt.Errorf("source before-update hook: %w", err)
		}
	}

	now := time.Now().UTC()
	source.UpdatedAt = now
	if created {
		source.CreatedAt = now
		_, err = s.db.ExecContext(
			ctx,
			`INSERT INTO sources (
                id, name, source_key, source_type, directory, index_schedule,
                download_media, copy_channel_images, delete_files_on_disk,
                filter_text, download_cap_days, min_duration, max_duration,
                resolution, video_codec, audio_codec, fallback,
                avatar_url, banner_url, has_failed, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			source.ID.String(),
			source.Name,
			source.Key,
			string(source.Type),
			source.Directory,
			source.IndexSchedule,
			boolToInt(source.DownloadMedia),
			boolToInt(source.CopyChannelImages),
			boolToInt(source.DeleteFilesOnDisk),
			nullableString(source.FilterText),
			source.DownloadCapDays,
			source.MinDuration,
			source.MaxDuration,
			nullableString(source.Resolution),
			nullableString(source.VideoCodec),
			nullableString(source.AudioCodec),
			nullableString(source.Fallback),
			nullableString(source.AvatarURL),
			nullableString(source.BannerURL),
			boolToInt(source.HasFailed),
			now.Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return false, fmt.Errorf("insert source: %w", err)
		}
	} else {
		source.CreatedAt = old.CreatedAt
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE sources
             SET name = ?, source_key = ?, source_type = ?, directory = ?,
                 index_schedule = ?, download_media = ?, copy_channel_images = ?,
                 delete_files_on_disk = ?, filter_text = ?, download_cap_days = ?,
                 min_duration = ?, max_duration = ?, resolution = ?,
                 video_codec = ?, audio_codec = ?, fallback = ?,
                 avatar_url = ?, banner_url = ?, has_failed = ?, updated_at = ?
             WHERE id = ?`,
			source.Name,
			source.Key,
			string(source.Type),
			source.Directory,
			source.IndexSchedule,
			boolToInt(source.DownloadMedia),
			boolToInt(source.CopyChannelImages),
			boolToInt(source.DeleteFilesOnDisk),
			nullableString(source.FilterText),
			source.DownloadCapDays,
			source.MinDuration,
			source.MaxDuration,
			nullableString(source.Resolution),
			nullableString(source.VideoCodec),
			nullableString(source.AudioCodec),
			nullableString(source.Fallback),
			nullableString(source.AvatarURL),
			nullableString(source.BannerURL),
			boolToInt(source.HasFailed),
			now.Format(time.RFC3339Nano),
			source.ID.String(),
		)
		if err != nil {
			return false, fmt.Errorf("update source: %w", err)
		}
	}

	if s.sourceHooks.AfterSave != nil {
		if err := s.sourceHooks.AfterSave(ctx, source, created); err != nil {
			return created, fmt.Errorf("source after-save hook: %w", err)
		}
	}
	return created, nil
}

// GetSource fetches a source by identifier. Returns nil when missing.
func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id.String())
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return source, nil
}

// ListSources returns all sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// DeleteSource removes a source, dispatching before/after-delete hooks.
func (s *Store) DeleteSource(ctx context.Context, source *Source) error {
	if source == nil {
		return errors.New("source is nil")
	}
	if s.sourceHooks.BeforeDelete != nil {
		if err := s.sourceHooks.BeforeDelete(ctx, source); err != nil {
			return fmt.Errorf("source before-delete hook: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, source.ID.String()); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if s.sourceHooks.AfterDelete != nil {
		if err := s.sourceHooks.AfterDelete(ctx, source); err != nil {
			return fmt.Errorf("source after-delete hook: %w", err)
		}
	}
	return nil
}

// SaveMedia inserts or updates a media item and dispatches the after-save
// hook. Returns whether the row was created.
func (s *Store) SaveMedia(ctx context.Context, media *Media) (bool, error) {
	if media == nil {
		return false, errors.New("media is nil")
	}
	if media.ID == uuid.Nil {
		media.ID = uuid.New()
	}

	old, err := s.GetMedia(ctx, media.ID)
	if err != nil {
		return false, err
	}
	created := old == nil

	now := time.Now().UTC()
	media.UpdatedAt = now
	if created {
		media.CreatedAt = now
		_, err = s.db.ExecContext(
			ctx,
			`INSERT INTO media (
                id, source_id, media_key, title, published, duration,
                metadata_json, skip, manual_skip, can_download, downloaded,
                media_file, thumb_file, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			media.ID.String(),
			media.SourceID.String(),
			media.Key,
			nullableString(media.Title),
			nullableTime(media.Published),
			media.Duration,
			nullableString(media.MetadataJSON),
			boolToInt(media.Skip),
			boolToInt(media.ManualSkip),
			boolToInt(media.CanDownload),
			boolToInt(media.Downloaded),
			nullableString(media.MediaFile),
			nullableString(media.ThumbFile),
			now.Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return false, fmt.Errorf("insert media: %w", err)
		}
	} else {
		media.CreatedAt = old.CreatedAt
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE media
             SET source_id = ?, media_key = ?, title = ?, published = ?,
                 duration = ?, metadata_json = ?, skip = ?, manual_skip = ?,
                 can_download = ?, downloaded = ?, media_file = ?, thumb_file = ?,
                 updated_at = ?
             WHERE id = ?`,
			media.SourceID.String(),
			media.Key,
			nullableString(media.Title),
			nullableTime(media.Published),
			media.Duration,
			nullableString(media.MetadataJSON),
			boolToInt(media.Skip),
			boolToInt(media.ManualSkip),
			boolToInt(media.CanDownload),
			boolToInt(media.Downloaded),
			nullableString(media.MediaFile),
			nullableString(media.ThumbFile),
			now.Format(time.RFC3339Nano),
			media.ID.String(),
		)
		if err != nil {
			return false, fmt.Errorf("update media: %w", err)
		}
	}

	if s.mediaHooks.AfterSave != nil {
		if err := s.mediaHooks.AfterSave(ctx, media, created); err != nil {
			return created, fmt.Errorf("media after-save hook: %w", err)
		}
	}
	return created, nil
}

// UpdateMediaDerived persists the derived columns of a media item without
// dispatching lifecycle hooks. This is the suppression contract for the
// reconciler's corrective write: the after-save rule may call this exactly
// once per run without re-entering itself. Only derived and normalized fields
// are written.
func (s *Store) UpdateMediaDerived(ctx context.Context, media *Media) error {
	if media == nil {
		return errors.New("media is nil")
	}
	now := time.Now().UTC()
	media.UpdatedAt = now
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE media
         SET skip = ?, can_download = ?, downloaded = ?, media_file = ?,
             thumb_file = ?, updated_at = ?
         WHERE id = ?`,
		boolToInt(media.Skip),
		boolToInt(media.CanDownload),
		boolToInt(media.Downloaded),
		nullableString(media.MediaFile),
		nullableString(media.ThumbFile),
		now.Format(time.RFC3339Nano),
		media.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update media derived fields: %w", err)
	}
	return nil
}

// GetMedia fetches a media item by identifier. Returns nil when missing.
func (s *Store) GetMedia(ctx context.Context, id uuid.UUID) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id.String())
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return media, nil
}

// GetMediaByKey fetches a media item by its upstream key within a source.
func (s *Store) GetMediaByKey(ctx context.Context, sourceID uuid.UUID, key string) (*Media, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+mediaColumns+` FROM media WHERE source_id = ? AND media_key = ?`,
		sourceID.String(), key,
	)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media by key: %w", err)
	}
	return media, nil
}

// ListMediaBySource returns a source's media ordered by creation time.
func (s *Store) ListMediaBySource(ctx context.Context, sourceID uuid.UUID) ([]*Media, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+mediaColumns+` FROM media WHERE source_id = ? ORDER BY created_at, id`,
		sourceID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var items []*Media
	for rows.Next() {
		media, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, media)
	}
	return items, rows.Err()
}

// DeleteMedia removes a media item, dispatching before/after-delete hooks.
func (s *Store) DeleteMedia(ctx context.Context, media *Media) error {
	if media == nil {
		return errors.New("media is nil")
	}
	if s.mediaHooks.BeforeDelete != nil {
		if err := s.mediaHooks.BeforeDelete(ctx, media); err != nil {
			return fmt.Errorf("media before-delete hook: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, media.ID.String()); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if s.mediaHooks.AfterDelete != nil {
		if err := s.mediaHooks.AfterDelete(ctx, media); err != nil {
			return fmt.Errorf("media after-delete hook: %w", err)
		}
	}
	return nil
}

// SaveMediaServer inserts or updates a media server registration.
func (s *Store) SaveMediaServer(ctx context.Context, server *MediaServer) error {
	if server == nil {
		return errors.New("media server is nil")
	}
	if server.ID == uuid.Nil {
		server.ID = uuid.New()
	}
	now := time.Now().UTC()
	server.UpdatedAt = now

	existing, err := s.GetMediaServer(ctx, server.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		server.CreatedAt = now
		_, err = s.db.ExecContext(
			ctx,
			`INSERT INTO media_servers (id, server_type, url, token, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			server.ID.String(),
			string(server.Type),
			server.URL,
			nullableString(server.Token),
			now.Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert media server: %w", err)
		}
		return nil
	}

	server.CreatedAt = existing.CreatedAt
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE media_servers SET server_type = ?, url = ?, token = ?, updated_at = ? WHERE id = ?`,
		string(server.Type),
		server.URL,
		nullableString(server.Token),
		now.Format(time.RFC3339Nano),
		server.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update media server: %w", err)
	}
	return nil
}

// GetMediaServer fetches a media server by identifier. Returns nil when missing.
func (s *Store) GetMediaServer(ctx context.Context, id uuid.UUID) (*MediaServer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM media_servers WHERE id = ?`, id.String())
	server, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media server: %w", err)
	}
	return server, nil
}

// ListMediaServers returns every registered media server.
func (s *Store) ListMediaServers(ctx context.Context) ([]*MediaServer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM media_servers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list media servers: %w", err)
	}
	defer rows.Close()

	var servers []*MediaServer
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// DeleteMediaServer removes a media server registration.
func (s *Store) DeleteMediaServer(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media_servers WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("delete media server: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
