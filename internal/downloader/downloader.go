// Package downloader wraps yt-dlp for the metadata-fetch and media-download
// executors, plus a plain HTTP fetch for thumbnails.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/spf13/afero"

	"mediasync/internal/config"
	"mediasync/internal/fileutil"
	"mediasync/internal/logging"
	"mediasync/internal/services"
	"mediasync/internal/store"
)

const userAgent = "MediaSync-Go/0.1.0"

// Downloader performs the remote fetches that enrich a media item.
type Downloader struct {
	downloadDir     string
	outputTemplate  string
	thumbnailSubdir string
	timeout         time.Duration
	fs              afero.Fs
	client          *http.Client
	logger          *slog.Logger
}

func New(cfg *config.Config, fs afero.Fs, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	timeout := time.Duration(cfg.Downloads.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Downloader{
		downloadDir:     cfg.Paths.DownloadDir,
		outputTemplate:  cfg.Downloads.OutputTemplate,
		thumbnailSubdir: cfg.Downloads.ThumbnailSubdir,
		timeout:         timeout,
		fs:              fs,
		client:          &http.Client{Timeout: timeout},
		logger:          logger.With(logging.String(logging.FieldComponent, "downloader")),
	}
}

// FetchMetadata returns the raw yt-dlp info JSON for a media item without
// downloading anything.
func (d *Downloader) FetchMetadata(ctx context.Context, media *store.Media) (string, error) {
	dl := ytdlp.New().
		SkipDownload().
		DumpSingleJSON()

	result, err := dl.Run(ctx, media.URL())
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "downloader", "fetch metadata", media.Key, err)
	}
	payload := strings.TrimSpace(result.Stdout)
	if payload == "" {
		return "", services.Wrap(services.ErrExternalTool, "downloader", "fetch metadata",
			"yt-dlp produced no metadata for "+media.Key, nil)
	}
	return payload, nil
}

// Download fetches the media payload into the source's directory and returns
// the written file's path relative to the download root. formatID is the
// yt-dlp format selection; empty means yt-dlp's default.
func (d *Downloader) Download(ctx context.Context, source *store.Source, media *store.Media, formatID string) (string, error) {
	targetDir := filepath.Join(d.downloadDir, source.Directory)
	if err := fileutil.EnsureDir(d.fs, targetDir); err != nil {
		return "", fmt.Errorf("ensure download dir: %w", err)
	}

	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Output(filepath.Join(targetDir, d.outputTemplate))
	if formatID != "" {
		dl = dl.Format(formatID)
	}

	result, err := dl.Run(ctx, media.URL())
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "downloader", "download media", media.Key, err)
	}

	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 || info[0].Filename == nil {
		return "", services.Wrap(services.ErrExternalTool, "downloader", "download media",
			"yt-dlp reported no output file for "+media.Key, err)
	}

	relative, err := filepath.Rel(d.downloadDir, *info[0].Filename)
	if err != nil {
		return "", fmt.Errorf("relativize download path: %w", err)
	}
	d.logger.Info("media downloaded",
		logging.String(logging.FieldMediaID, media.ID.String()),
		logging.String("file", relative))
	return relative, nil
}

// FetchThumbnail downloads a thumbnail image and returns its path relative
// to the download root.
func (d *Downloader) FetchThumbnail(ctx context.Context, source *store.Source, media *store.Media, thumbURL string) (string, error) {
	if strings.TrimSpace(thumbURL) == "" {
		return "", services.Wrap(services.ErrValidation, "downloader", "fetch thumbnail", "empty thumbnail URL", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbURL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "downloader", "fetch thumbnail", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "downloader", "fetch thumbnail", thumbURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", services.Wrap(services.ErrExternalTool, "downloader", "fetch thumbnail",
			fmt.Sprintf("server returned %d for %s", resp.StatusCode, thumbURL), nil)
	}

	relative := filepath.Join(source.Directory, d.thumbnailSubdir, media.Key+thumbnailExt(thumbURL))
	target := filepath.Join(d.downloadDir, relative)
	if err := fileutil.EnsureDir(d.fs, filepath.Dir(target)); err != nil {
		return "", fmt.Errorf("ensure thumbnail dir: %w", err)
	}

	out, err := d.fs.Create(target)
	if err != nil {
		return "", fmt.Errorf("create thumbnail file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = d.fs.Remove(target)
		return "", services.Wrap(services.ErrTransient, "downloader", "fetch thumbnail", "write image", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close thumbnail file: %w", err)
	}
	return relative, nil
}

// thumbnailExt picks a file extension from the URL path, defaulting to jpg.
func thumbnailExt(thumbURL string) string {
	ext := path.Ext(strings.SplitN(thumbURL, "?", 2)[0])
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return ext
	default:
		return ".jpg"
	}
}
