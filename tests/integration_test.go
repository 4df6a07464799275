package tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"legato/internal/browse"
	"legato/internal/catalog"
	"legato/internal/config"
	"legato/internal/pathutil"
	"legato/internal/scanner"
	"legato/internal/watcher"
	"legato/pkg/models"
)

func engineOptions(dir string) catalog.Options {
	return catalog.Options{
		DataDir:         dir,
		InitialFileSize: 1 << 20,
		GrowIncrement:   1 << 20,
		EnableWAL:       true,
	}
}

func openEngine(t *testing.T, dir string) *catalog.Engine {
	t.Helper()
	e, err := catalog.NewEngine(engineOptions(dir))
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte("media payload"), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// taggingFiller derives tags from the directory layout so the music indexes
// have something to chew on without real audio files.
type taggingFiller struct{}

func (taggingFiller) Fill(path string, file *models.MediaFile) error {
	file.Artist = filepath.Base(filepath.Dir(filepath.Dir(path)))
	file.Album = filepath.Base(filepath.Dir(path))
	file.Title = filepath.Base(path)
	return nil
}

func TestScanToBrowsePipeline(t *testing.T) {
	mediaDir := t.TempDir()
	writeMedia(t, mediaDir, "Iris/Bloom/01.mp3")
	writeMedia(t, mediaDir, "Iris/Bloom/02.mp3")
	writeMedia(t, mediaDir, "Vela/Drift/01.mp3")
	writeMedia(t, mediaDir, "Vela/Drift/notes.txt")

	engine := openEngine(t, t.TempDir())
	s := scanner.NewScanner(engine, taggingFiller{}, scanner.Options{Extensions: []string{".mp3"}})
	ctx := context.Background()

	summary, err := s.Scan(ctx, mediaDir)
	if err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}
	if summary.Inserted != 3 {
		t.Fatalf("Expected 3 files cataloged, got %d", summary.Inserted)
	}

	b := browse.NewBrowser(engine)

	root, err := b.Browse(ctx, browse.RootID)
	if err != nil {
		t.Fatalf("Failed to browse root: %v", err)
	}
	if len(root.Containers) != 3 {
		t.Fatalf("Expected the three top-level containers, got %+v", root.Containers)
	}

	artists, err := b.Browse(ctx, "music:artists")
	if err != nil {
		t.Fatalf("Failed to browse artists: %v", err)
	}
	if len(artists.Containers) != 2 {
		t.Fatalf("Expected 2 artists, got %+v", artists.Containers)
	}
	if artists.Containers[0].Title != "Iris" || artists.Containers[0].ChildCount != 2 {
		t.Errorf("Expected Iris with 2 tracks, got %+v", artists.Containers[0])
	}

	tracks, err := b.Browse(ctx, "music:artists:Vela")
	if err != nil {
		t.Fatalf("Failed to browse artist: %v", err)
	}
	if len(tracks.Items) != 1 || tracks.Items[0].Title != "01.mp3" {
		t.Errorf("Expected the Vela track, got %+v", tracks.Items)
	}

	canonicalRoot, err := pathutil.CanonicalizeFile(mediaDir)
	if err != nil {
		t.Fatalf("Failed to canonicalize root: %v", err)
	}
	dir, err := b.Browse(ctx, "dir:"+canonicalRoot)
	if err != nil {
		t.Fatalf("Failed to browse media root: %v", err)
	}
	if len(dir.Containers) != 2 {
		t.Errorf("Expected artist directories, got %+v", dir.Containers)
	}

	stats := engine.Stats()
	if stats.TotalFiles != 3 {
		t.Errorf("Expected 3 files in stats, got %d", stats.TotalFiles)
	}
}

func TestPlaylistAcrossRestart(t *testing.T) {
	mediaDir := t.TempDir()
	writeMedia(t, mediaDir, "Iris/Bloom/01.mp3")
	writeMedia(t, mediaDir, "Iris/Bloom/02.mp3")
	dataDir := t.TempDir()
	ctx := context.Background()

	engine, err := catalog.NewEngine(engineOptions(dataDir))
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	s := scanner.NewScanner(engine, taggingFiller{}, scanner.Options{Extensions: []string{".mp3"}})
	if _, err := s.Scan(ctx, mediaDir); err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}

	plID, err := engine.CreatePlaylist(ctx, "Evening", "")
	if err != nil {
		t.Fatalf("Failed to create playlist: %v", err)
	}
	var ids []uint64
	cursor := engine.StreamAllMediaFiles(ctx)
	for cursor.Next() {
		ids = append(ids, cursor.File().ID)
	}
	cursor.Close()
	if err := engine.BulkAddToPlaylist(ctx, plID, ids); err != nil {
		t.Fatalf("Failed to fill playlist: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Failed to close engine: %v", err)
	}

	reopened := openEngine(t, dataDir)
	b := browse.NewBrowser(reopened)
	res, err := b.Browse(ctx, browse.PlaylistsID)
	if err != nil {
		t.Fatalf("Failed to browse playlists: %v", err)
	}
	if len(res.Containers) != 1 || res.Containers[0].Title != "Evening" || res.Containers[0].ChildCount != 2 {
		t.Fatalf("Expected Evening with 2 tracks after restart, got %+v", res.Containers)
	}
	res, err = b.Browse(ctx, res.Containers[0].ID)
	if err != nil {
		t.Fatalf("Failed to browse playlist: %v", err)
	}
	if len(res.Items) != 2 {
		t.Errorf("Expected 2 playlist tracks after restart, got %d", len(res.Items))
	}
}

func TestRescanReflectsFilesystemChanges(t *testing.T) {
	mediaDir := t.TempDir()
	keep := writeMedia(t, mediaDir, "Iris/Bloom/01.mp3")
	gone := writeMedia(t, mediaDir, "Iris/Bloom/02.mp3")

	engine := openEngine(t, t.TempDir())
	s := scanner.NewScanner(engine, taggingFiller{}, scanner.Options{Extensions: []string{".mp3"}})
	ctx := context.Background()
	if _, err := s.Scan(ctx, mediaDir); err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}

	if err := os.Remove(gone); err != nil {
		t.Fatalf("Failed to delete file: %v", err)
	}
	added := writeMedia(t, mediaDir, "Iris/Bloom/03.mp3")

	summary, err := s.Scan(ctx, mediaDir)
	if err != nil {
		t.Fatalf("Failed to rescan: %v", err)
	}
	if summary.Inserted != 1 || summary.Removed != 1 {
		t.Errorf("Expected one insert and one removal, got %+v", summary)
	}
	for _, p := range []string{keep, added} {
		canonical, err := pathutil.CanonicalizeFile(p)
		if err != nil {
			t.Fatalf("Failed to canonicalize: %v", err)
		}
		if _, err := engine.GetByPath(ctx, canonical); err != nil {
			t.Errorf("Expected %s cataloged, got %v", p, err)
		}
	}
}

func TestWatcherDrivesCatalog(t *testing.T) {
	mediaDir := t.TempDir()
	engine := openEngine(t, t.TempDir())
	s := scanner.NewScanner(engine, taggingFiller{}, scanner.Options{Extensions: []string{".mp3"}})

	w, err := watcher.NewWatcher(s, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer w.Close()
	if err := w.AddRoot(mediaDir); err != nil {
		t.Fatalf("Failed to add root: %v", err)
	}
	w.Start()

	path := writeMedia(t, mediaDir, "live.mp3")
	canonical, err := pathutil.CanonicalizeFile(path)
	if err != nil {
		t.Fatalf("Failed to canonicalize: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := engine.GetByPath(context.Background(), canonical); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected watcher to catalog the new file")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestConfigBuildsWorkingEngine(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Catalog.DataDir = filepath.Join(dir, "catalog")

	engine, err := catalog.NewEngine(cfg.EngineOptions())
	if err != nil {
		t.Fatalf("Failed to open engine from config: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	id, err := engine.Store(ctx, models.MediaFile{
		CanonicalPath: "/media/music/a.mp3",
		Size:          100,
		Modified:      1700000000,
		MimeType:      "audio/mpeg",
		Title:         "A",
	})
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if _, err := engine.GetByID(ctx, id); err != nil {
		t.Errorf("Failed to read back: %v", err)
	}
}
