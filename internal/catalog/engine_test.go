package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"legato/pkg/models"
)

func testEngineOptions(dir string) Options {
	return Options{
		DataDir:         dir,
		InitialFileSize: 1 << 20,
		GrowIncrement:   1 << 20,
		EnableWAL:       true,
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func trackFile(path, artist, album, title string, track uint32) models.MediaFile {
	return models.MediaFile{
		Path:     path,
		Size:     1000,
		Modified: 1700000000,
		MimeType: "audio/mpeg",
		Title:    title,
		Artist:   artist,
		Album:    album,
		TrackNumber: track,
	}
}

func TestEngineStoreAndGet(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	id, err := e.Store(ctx, trackFile("/music/album/song.mp3", "A", "X", "Song", 1))
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected a non-zero id")
	}

	byID, err := e.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get by id: %v", err)
	}
	if byID.Title != "Song" || byID.CanonicalPath != "/music/album/song.mp3" {
		t.Errorf("Expected stored record back, got %+v", byID)
	}

	// any platform spelling of the path resolves to the same record
	for _, spelling := range []string{"/music/album/song.mp3", "/music//album/./song.mp3"} {
		f, err := e.GetByPath(ctx, spelling)
		if err != nil {
			t.Fatalf("Failed to get by path %q: %v", spelling, err)
		}
		if f.ID != id {
			t.Errorf("Expected id %d for %q, got %d", id, spelling, f.ID)
		}
	}

	if _, err := e.GetByPath(ctx, "/music/missing.mp3"); !IsCode(err, ErrNotFound) {
		t.Errorf("Expected not found for unknown path, got %v", err)
	}
	if _, err := e.GetByPath(ctx, "not-a-path"); !IsCode(err, ErrInvalidFormat) {
		t.Errorf("Expected invalid format for relative path, got %v", err)
	}
}

func TestEngineBulkStoreIDOrder(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	files := make([]models.MediaFile, 5)
	for i := range files {
		files[i] = trackFile(fmt.Sprintf("/music/%02d.mp3", i), "A", "X", fmt.Sprintf("T%d", i), uint32(i))
	}
	ids, err := e.BulkStore(ctx, files, false)
	if err != nil {
		t.Fatalf("Failed to bulk store: %v", err)
	}
	if len(ids) != len(files) {
		t.Fatalf("Expected %d ids, got %d", len(files), len(ids))
	}
	seen := make(map[uint64]bool)
	for i, id := range ids {
		if id == 0 {
			t.Errorf("Expected non-zero id at position %d", i)
		}
		if seen[id] {
			t.Errorf("Expected unique ids, %d repeated", id)
		}
		seen[id] = true
		f, err := e.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get id %d: %v", id, err)
		}
		if f.CanonicalPath != fmt.Sprintf("/music/%02d.mp3", i) {
			t.Errorf("Expected ids in input order, position %d resolved to %q", i, f.CanonicalPath)
		}
	}
}

func TestEngineDuplicateStore(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	first, err := e.BulkStore(ctx, []models.MediaFile{trackFile("/music/dup.mp3", "A", "X", "v1", 1)}, false)
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	t.Run("SkippedWithoutUpsert", func(t *testing.T) {
		ids, err := e.BulkStore(ctx, []models.MediaFile{trackFile("/music/dup.mp3", "A", "X", "v2", 1)}, false)
		if err != nil {
			t.Fatalf("Failed to store duplicate: %v", err)
		}
		if ids[0] != 0 {
			t.Errorf("Expected duplicate to be skipped with id 0, got %d", ids[0])
		}
		f, err := e.GetByID(ctx, first[0])
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if f.Title != "v1" {
			t.Errorf("Expected original record untouched, got title %q", f.Title)
		}
	})

	t.Run("RewrittenWithUpsert", func(t *testing.T) {
		ids, err := e.BulkStore(ctx, []models.MediaFile{trackFile("/music/dup.mp3", "A", "X", "v3", 1)}, true)
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		if ids[0] != first[0] {
			t.Errorf("Expected upsert to keep id %d, got %d", first[0], ids[0])
		}
		f, err := e.GetByID(ctx, first[0])
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if f.Title != "v3" {
			t.Errorf("Expected rewritten record, got title %q", f.Title)
		}
	})
}

func TestEngineUpdate(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	id, err := e.Store(ctx, trackFile("/music/u.mp3", "Old Artist", "Old Album", "Old", 1))
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	orig, err := e.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}

	updated := trackFile("/music/u.mp3", "New Artist", "New Album", "New", 2)
	if err := e.Update(ctx, updated); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}

	f, err := e.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get after update: %v", err)
	}
	if f.Artist != "New Artist" || f.TrackNumber != 2 {
		t.Errorf("Expected updated fields, got %+v", f)
	}
	if f.CreatedAt != orig.CreatedAt {
		t.Errorf("Expected CreatedAt preserved (%d), got %d", orig.CreatedAt, f.CreatedAt)
	}

	cats, err := e.GetArtists(ctx)
	if err != nil {
		t.Fatalf("Failed to list artists: %v", err)
	}
	if len(cats) != 1 || cats[0].Key != "New Artist" {
		t.Errorf("Expected music indexes refreshed, got %v", cats)
	}

	if err := e.Update(ctx, trackFile("/music/nope.mp3", "A", "X", "T", 1)); !IsCode(err, ErrNotFound) {
		t.Errorf("Expected not found updating unknown path, got %v", err)
	}
}

func TestEngineRemove(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	id, err := e.Store(ctx, trackFile("/music/r.mp3", "A", "X", "T", 1))
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	n, err := e.BulkRemove(ctx, []string{"/music/r.mp3", "/music/never-there.mp3"})
	if err != nil {
		t.Fatalf("Failed to bulk remove: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 removal, got %d", n)
	}
	if _, err := e.GetByID(ctx, id); !IsCode(err, ErrNotFound) {
		t.Errorf("Expected removed record to be gone, got %v", err)
	}
	if err := e.Remove(ctx, "/music/r.mp3"); !IsCode(err, ErrNotFound) {
		t.Errorf("Expected not found removing twice, got %v", err)
	}
}

func TestEngineCleanupMissing(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	for _, p := range []string{"/music/keep.mp3", "/music/stale1.mp3", "/music/stale2.mp3"} {
		if _, err := e.Store(ctx, trackFile(p, "A", "X", "T", 1)); err != nil {
			t.Fatalf("Failed to store %s: %v", p, err)
		}
	}

	n, err := e.CleanupMissing(ctx, map[string]struct{}{"/music/keep.mp3": {}})
	if err != nil {
		t.Fatalf("Failed to cleanup: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 stale records removed, got %d", n)
	}
	if _, err := e.GetByPath(ctx, "/music/keep.mp3"); err != nil {
		t.Errorf("Expected surviving record, got %v", err)
	}
}

func TestEngineBatchSplitting(t *testing.T) {
	opts := testEngineOptions(t.TempDir())
	opts.BatchSize = 2
	e := newTestEngine(t, opts)
	ctx := context.Background()

	files := make([]models.MediaFile, 5)
	for i := range files {
		files[i] = trackFile(fmt.Sprintf("/music/s%d.mp3", i), "A", "X", "T", uint32(i))
	}
	ids, err := e.BulkStore(ctx, files, false)
	if err != nil {
		t.Fatalf("Failed to bulk store: %v", err)
	}
	for i, id := range ids {
		if id == 0 {
			t.Errorf("Expected all records stored across split batches, id %d missing", i)
		}
	}
	if got := e.data.batchCount.Load(); got != 3 {
		t.Errorf("Expected 5 records in 3 batches of at most 2, got %d batches", got)
	}
}

func TestEngineMemoryLimit(t *testing.T) {
	opts := testEngineOptions(t.TempDir())
	opts.CacheLimitBytes = 1
	opts.IndexLimitBytes = 1
	e := newTestEngine(t, opts)

	_, err := e.BulkStore(context.Background(), []models.MediaFile{trackFile("/music/big.mp3", "A", "X", "T", 1)}, false)
	if !IsCode(err, ErrMemoryLimitExceeded) {
		t.Errorf("Expected memory limit error, got %v", err)
	}
}

func TestEngineDirectoryListing(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	tracks := []models.MediaFile{
		trackFile("/media/music/album/01.mp3", "A", "X", "One", 1),
		trackFile("/media/music/album/02.mp3", "A", "X", "Two", 2),
		trackFile("/media/music/loose.mp3", "A", "Y", "Loose", 1),
	}
	video := trackFile("/media/music/clip.mkv", "", "", "", 0)
	video.MimeType = "video/x-matroska"
	video.Artist, video.Album, video.Title = "", "", ""
	tracks = append(tracks, video)

	if _, err := e.BulkStore(ctx, tracks, false); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	t.Run("DirectChildrenOnly", func(t *testing.T) {
		l, err := e.GetDirectoryListing(ctx, "/media/music", "")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(l.Subdirectories) != 1 || l.Subdirectories[0] != "/media/music/album" {
			t.Errorf("Expected one subdirectory, got %v", l.Subdirectories)
		}
		if len(l.Files) != 2 {
			t.Errorf("Expected 2 direct files, got %d", len(l.Files))
		}
	})

	t.Run("MimeFilter", func(t *testing.T) {
		l, err := e.GetDirectoryListing(ctx, "/media/music", "audio/")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		for _, f := range l.Files {
			if f.MimeType == "video/x-matroska" {
				t.Error("Expected video filtered out of audio listing")
			}
		}
		if len(l.Files) != 1 {
			t.Errorf("Expected 1 audio file, got %d", len(l.Files))
		}
	})

	t.Run("UnknownDirectory", func(t *testing.T) {
		if _, err := e.GetDirectoryListing(ctx, "/media/podcasts", ""); !IsCode(err, ErrNotFound) {
			t.Errorf("Expected not found, got %v", err)
		}
	})
}

func TestEngineMusicQueries(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	tracks := []models.MediaFile{
		trackFile("/m/b2.mp3", "Artist", "B", "Second", 2),
		trackFile("/m/a1.mp3", "Artist", "A", "First", 1),
		trackFile("/m/b1.mp3", "Artist", "B", "First", 1),
	}
	if _, err := e.BulkStore(ctx, tracks, false); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	got, err := e.GetMusicByArtist(ctx, "Artist")
	if err != nil {
		t.Fatalf("Failed to query by artist: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 tracks, got %d", len(got))
	}
	order := []string{"/m/a1.mp3", "/m/b1.mp3", "/m/b2.mp3"}
	for i, want := range order {
		if got[i].CanonicalPath != want {
			t.Errorf("Expected playback order %v, position %d is %q", order, i, got[i].CanonicalPath)
		}
	}

	if got, _ := e.GetMusicByArtist(ctx, "Nobody"); len(got) != 0 {
		t.Errorf("Expected empty result for unknown artist, got %d", len(got))
	}
}

func TestEngineStreamFilesUnder(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	paths := []string{"/media/music/a.mp3", "/media/music/sub/b.mp3", "/media/movies/c.mkv"}
	for _, p := range paths {
		if _, err := e.Store(ctx, trackFile(p, "A", "X", "T", 1)); err != nil {
			t.Fatalf("Failed to store %s: %v", p, err)
		}
	}

	cursor := e.StreamFilesUnder(ctx, "/media/music")
	defer cursor.Close()

	var streamed []string
	for cursor.Next() {
		f := cursor.File()
		streamed = append(streamed, f.CanonicalPath)
	}
	if err := cursor.Err(); err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if len(streamed) != 2 {
		t.Errorf("Expected 2 files under /media/music, got %v", streamed)
	}
	for _, p := range streamed {
		if p == "/media/movies/c.mkv" {
			t.Error("Expected sibling subtree excluded from stream")
		}
	}
}

func TestEngineStats(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	if _, err := e.BulkStore(ctx, []models.MediaFile{
		trackFile("/m/1.mp3", "A", "X", "T", 1),
		trackFile("/m/2.mp3", "A", "X", "T", 2),
	}, false); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	stats := e.Stats()
	if stats.TotalFiles != 2 {
		t.Errorf("Expected 2 total files, got %d", stats.TotalFiles)
	}
	if stats.BulkOperations != 1 {
		t.Errorf("Expected 1 bulk operation, got %d", stats.BulkOperations)
	}
	if stats.TotalFilesProcessed != 2 {
		t.Errorf("Expected 2 files processed, got %d", stats.TotalFilesProcessed)
	}
	if stats.MemoryBytes == 0 {
		t.Error("Expected non-zero memory accounting")
	}

	// fresh inserts land in the cache, so the first read is a hit
	if _, err := e.GetByPath(ctx, "/m/1.mp3"); err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if got := e.Stats(); got.CacheHits == 0 {
		t.Error("Expected a cache hit reading a freshly stored record")
	}
}

func TestEngineContextDeadline(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if _, err := e.GetByPath(ctx, "/m/x.mp3"); !IsCode(err, ErrTimeout) {
		t.Errorf("Expected timeout error for expired deadline, got %v", err)
	}
	if _, err := e.BulkStore(ctx, []models.MediaFile{trackFile("/m/x.mp3", "A", "X", "T", 1)}, false); !IsCode(err, ErrTimeout) {
		t.Errorf("Expected timeout error on store, got %v", err)
	}
}

func TestEngineClosedRejectsWrites(t *testing.T) {
	e, err := NewEngine(testEngineOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}
	if _, err := e.BulkStore(context.Background(), []models.MediaFile{trackFile("/m/x.mp3", "A", "X", "T", 1)}, false); !IsCode(err, ErrTransactionFailed) {
		t.Errorf("Expected closed engine to reject writes, got %v", err)
	}
}

func TestEngineLastWriteWinsInChunk(t *testing.T) {
	e := newTestEngine(t, testEngineOptions(t.TempDir()))
	ctx := context.Background()

	ids, err := e.BulkStore(ctx, []models.MediaFile{
		trackFile("/m/same.mp3", "A", "X", "first", 1),
		trackFile("/m/same.mp3", "A", "X", "last", 2),
	}, false)
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if ids[0] != 0 {
		t.Errorf("Expected superseded duplicate to yield id 0, got %d", ids[0])
	}
	if ids[1] == 0 {
		t.Fatal("Expected the last write to be stored")
	}
	f, err := e.GetByID(ctx, ids[1])
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if f.Title != "last" {
		t.Errorf("Expected last write to win, got title %q", f.Title)
	}
}
