package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"mediasync/internal/config"
	"mediasync/internal/downloader"
	"mediasync/internal/fileutil"
	"mediasync/internal/store"
	"mediasync/internal/tasks"
	"mediasync/internal/ytclient"
)

type stubIndexer struct {
	entries []ytclient.Entry
	err     error
}

func (s *stubIndexer) Index(context.Context, *store.Source) ([]ytclient.Entry, error) {
	return s.entries, s.err
}

type executorHarness struct {
	cfg   *config.Config
	store *store.Store
	fs    afero.Fs
	set   *ExecutorSet
}

func newExecutorHarness(t *testing.T, indexer ytclient.Indexer) *executorHarness {
	t.Helper()

	defaults := config.Default()
	cfg := &defaults
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.DownloadDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(cfg.Paths.DownloadDir, 0o755); err != nil {
		t.Fatal(err)
	}

	entities, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = entities.Close() })

	dl := downloader.New(cfg, fs, nil)
	set := NewExecutorSet(cfg, entities, indexer, dl, nil, fs, nil)
	return &executorHarness{cfg: cfg, store: entities, fs: fs, set: set}
}

func (h *executorHarness) newSource(t *testing.T, mutate func(*store.Source)) *store.Source {
	t.Helper()
	source := &store.Source{
		Name:      "Example Channel",
		Key:       "UCexample",
		Type:      store.SourceTypeChannelID,
		Directory: "example-channel",
	}
	if mutate != nil {
		mutate(source)
	}
	if _, err := h.store.SaveSource(context.Background(), source); err != nil {
		t.Fatalf("save source: %v", err)
	}
	return source
}

func TestIndexSourceCreatesOnlyNewMedia(t *testing.T) {
	indexer := &stubIndexer{entries: []ytclient.Entry{
		{Key: "vid-1", Title: "First"},
		{Key: "vid-2", Title: "Second"},
	}}
	h := newExecutorHarness(t, indexer)
	source := h.newSource(t, nil)

	existing := &store.Media{SourceID: source.ID, Key: "vid-1", Title: "First"}
	if _, err := h.store.SaveMedia(context.Background(), existing); err != nil {
		t.Fatal(err)
	}

	task := &tasks.Task{Kind: tasks.KindIndexSource, TargetID: source.ID}
	if err := h.set.indexSource(context.Background(), task); err != nil {
		t.Fatalf("index source: %v", err)
	}

	items, err := h.store.ListMediaBySource(context.Background(), source.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("media count = %d, want 2", len(items))
	}

	// Running again must not duplicate anything.
	if err := h.set.indexSource(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	items, _ = h.store.ListMediaBySource(context.Background(), source.ID)
	if len(items) != 2 {
		t.Fatalf("media count after reindex = %d, want 2", len(items))
	}
}

func TestIndexSourceMissingSource(t *testing.T) {
	h := newExecutorHarness(t, &stubIndexer{})
	task := &tasks.Task{Kind: tasks.KindIndexSource, TargetID: uuid.New()}
	if err := h.set.indexSource(context.Background(), task); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestCheckSourceDirectoryCreatesMissing(t *testing.T) {
	h := newExecutorHarness(t, nil)
	source := h.newSource(t, nil)

	task := &tasks.Task{Kind: tasks.KindCheckSourceDirectory, TargetID: source.ID}
	if err := h.set.checkSourceDirectory(context.Background(), task); err != nil {
		t.Fatalf("check directory: %v", err)
	}

	dir := filepath.Join(h.cfg.Paths.DownloadDir, source.Directory)
	isDir, err := fileutil.IsDir(h.fs, dir)
	if err != nil || !isDir {
		t.Fatalf("source directory not created: isDir=%v err=%v", isDir, err)
	}

	// Idempotent when the directory already exists.
	if err := h.set.checkSourceDirectory(context.Background(), task); err != nil {
		t.Fatalf("second check: %v", err)
	}
}

func TestCopySourceImagesFetchesAvatarAndBanner(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes:" + r.URL.Path))
	}))
	defer server.Close()

	h := newExecutorHarness(t, nil)
	source := h.newSource(t, func(s *store.Source) {
		s.AvatarURL = server.URL + "/avatar.png"
		s.BannerURL = server.URL + "/banner.jpg"
	})

	task := &tasks.Task{Kind: tasks.KindCopySourceImages, TargetID: source.ID}
	if err := h.set.copySourceImages(context.Background(), task); err != nil {
		t.Fatalf("copy images: %v", err)
	}

	avatar := filepath.Join(h.cfg.Paths.DownloadDir, source.Directory, "avatar.png")
	data, err := afero.ReadFile(h.fs, avatar)
	if err != nil {
		t.Fatalf("read avatar: %v", err)
	}
	if string(data) != "image-bytes:/avatar.png" {
		t.Fatalf("avatar content = %q", data)
	}
	banner := filepath.Join(h.cfg.Paths.DownloadDir, source.Directory, "banner.jpg")
	if ok, _ := afero.Exists(h.fs, banner); !ok {
		t.Fatal("banner not written")
	}
}

func TestCopySourceImagesSkipsWhenUnset(t *testing.T) {
	h := newExecutorHarness(t, nil)
	source := h.newSource(t, nil)

	task := &tasks.Task{Kind: tasks.KindCopySourceImages, TargetID: source.ID}
	if err := h.set.copySourceImages(context.Background(), task); err != nil {
		t.Fatalf("copy images with no URLs: %v", err)
	}
}

func TestFetchMediaMetadataAdoptsDescriptorFields(t *testing.T) {
	h := newExecutorHarness(t, nil)
	source := h.newSource(t, nil)
	media := &store.Media{SourceID: source.ID, Key: "vid-1", Title: "placeholder"}
	if _, err := h.store.SaveMedia(context.Background(), media); err != nil {
		t.Fatal(err)
	}

	// Apply the descriptor the way the executor does after a fetch, without
	// shelling out.
	media.MetadataJSON = `{"title": "Real Title", "duration": 421.5, "upload_date": "20240315"}`
	md, err := media.Metadata()
	if err != nil || md == nil {
		t.Fatalf("parse metadata: %v", err)
	}
	media.Title = md.Title
	media.Duration = int(md.Duration)
	media.Published = md.PublishedTime()
	if _, err := h.store.SaveMedia(context.Background(), media); err != nil {
		t.Fatal(err)
	}

	stored, err := h.store.GetMedia(context.Background(), media.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Title != "Real Title" || stored.Duration != 421 {
		t.Fatalf("descriptor fields not adopted: title=%q duration=%d", stored.Title, stored.Duration)
	}
	if stored.Published == nil || stored.Published.Format("20060102") != "20240315" {
		t.Fatalf("published = %v", stored.Published)
	}
}

func TestFetchMediaThumbnailStoresRelativePath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("thumb-bytes"))
	}))
	defer server.Close()

	h := newExecutorHarness(t, nil)
	source := h.newSource(t, nil)
	media := &store.Media{SourceID: source.ID, Key: "vid-1", Title: "First"}
	if _, err := h.store.SaveMedia(context.Background(), media); err != nil {
		t.Fatal(err)
	}

	task := &tasks.Task{
		Kind:     tasks.KindFetchMediaThumbnail,
		TargetID: media.ID,
		Args:     server.URL + "/hqdefault.jpg",
	}
	if err := h.set.fetchMediaThumbnail(context.Background(), task); err != nil {
		t.Fatalf("fetch thumbnail: %v", err)
	}

	stored, err := h.store.GetMedia(context.Background(), media.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ThumbFile == "" {
		t.Fatal("thumb file reference not recorded")
	}
	data, err := afero.ReadFile(h.fs, filepath.Join(h.cfg.Paths.DownloadDir, stored.ThumbFile))
	if err != nil {
		t.Fatalf("read thumbnail: %v", err)
	}
	if string(data) != "thumb-bytes" {
		t.Fatalf("thumbnail content = %q", data)
	}
}

func TestReconcileSourceMediaTouchesEveryItem(t *testing.T) {
	h := newExecutorHarness(t, nil)
	source := h.newSource(t, nil)
	for _, key := range []string{"vid-1", "vid-2", "vid-3"} {
		media := &store.Media{SourceID: source.ID, Key: key, Title: key}
		if _, err := h.store.SaveMedia(context.Background(), media); err != nil {
			t.Fatal(err)
		}
	}

	var touched int
	h.store.SetMediaHooks(store.MediaHooks{
		AfterSave: func(ctx context.Context, media *store.Media, created bool) error {
			touched++
			return nil
		},
	})

	task := &tasks.Task{Kind: tasks.KindReconcileSourceMedia, TargetID: source.ID}
	if err := h.set.reconcileSourceMedia(context.Background(), task); err != nil {
		t.Fatalf("reconcile media: %v", err)
	}
	if touched != 3 {
		t.Fatalf("touched = %d, want 3", touched)
	}
}

func TestRescanServerTriggersEndpoint(t *testing.T) {
	var gotPath, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Plex-Token")
	}))
	defer server.Close()

	h := newExecutorHarness(t, nil)
	registered := &store.MediaServer{Type: store.ServerTypePlex, URL: server.URL, Token: "secret"}
	if err := h.store.SaveMediaServer(context.Background(), registered); err != nil {
		t.Fatal(err)
	}

	task := &tasks.Task{Kind: tasks.KindRescanServer, TargetID: registered.ID}
	if err := h.set.rescanServer(context.Background(), task); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if gotPath != "/library/sections/all/refresh" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotToken != "secret" {
		t.Fatalf("token = %q", gotToken)
	}
}

func TestRescanServerToleratesUnregisteredServer(t *testing.T) {
	h := newExecutorHarness(t, nil)
	task := &tasks.Task{Kind: tasks.KindRescanServer, TargetID: uuid.New()}
	if err := h.set.rescanServer(context.Background(), task); err != nil {
		t.Fatalf("rescan of removed server: %v", err)
	}
}

func TestExecutorsCoverEveryKind(t *testing.T) {
	h := newExecutorHarness(t, nil)
	table := h.set.Executors()
	kinds := []tasks.Kind{
		tasks.KindIndexSource,
		tasks.KindCheckSourceDirectory,
		tasks.KindCopySourceImages,
		tasks.KindReconcileSourceMedia,
		tasks.KindFetchMediaMetadata,
		tasks.KindFetchMediaThumbnail,
		tasks.KindDownloadMedia,
		tasks.KindRescanServer,
	}
	for _, kind := range kinds {
		if table[kind] == nil {
			t.Fatalf("no executor for %s", kind)
		}
	}
}
