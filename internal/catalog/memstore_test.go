package catalog

import (
	"context"
	"testing"

	"legato/pkg/models"
)

// The in-memory variant has to answer the store interface the same way the
// engine does, since the scanner and browser are tested against it.
var _ models.MediaStore = (*MemStore)(nil)

func TestMemStoreCRUD(t *testing.T) {
	m := NewMemStore()
	defer m.Close()
	ctx := context.Background()

	id, err := m.Store(ctx, trackFile("/music/a.mp3", "A", "X", "One", 1))
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	f, err := m.GetByPath(ctx, "/music/a.mp3")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if f.ID != id || f.Title != "One" {
		t.Errorf("Expected stored record back, got %+v", f)
	}

	if err := m.Update(ctx, trackFile("/music/a.mp3", "A", "X", "Renamed", 1)); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	f, err = m.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if f.Title != "Renamed" {
		t.Errorf("Expected updated title, got %q", f.Title)
	}

	if err := m.Remove(ctx, "/music/a.mp3"); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	if _, err := m.GetByID(ctx, id); !IsCode(err, ErrNotFound) {
		t.Errorf("Expected not found after remove, got %v", err)
	}
}

func TestMemStoreDuplicateSemantics(t *testing.T) {
	m := NewMemStore()
	defer m.Close()
	ctx := context.Background()

	first, err := m.BulkStore(ctx, []models.MediaFile{trackFile("/m/d.mp3", "A", "X", "v1", 1)}, false)
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	skipped, err := m.BulkStore(ctx, []models.MediaFile{trackFile("/m/d.mp3", "A", "X", "v2", 1)}, false)
	if err != nil {
		t.Fatalf("Failed to store duplicate: %v", err)
	}
	if skipped[0] != 0 {
		t.Errorf("Expected duplicate skipped with id 0, got %d", skipped[0])
	}
	upserted, err := m.BulkStore(ctx, []models.MediaFile{trackFile("/m/d.mp3", "A", "X", "v3", 1)}, true)
	if err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}
	if upserted[0] != first[0] {
		t.Errorf("Expected upsert to keep id %d, got %d", first[0], upserted[0])
	}
	f, _ := m.GetByID(ctx, first[0])
	if f.Title != "v3" {
		t.Errorf("Expected upserted record, got title %q", f.Title)
	}
}

func TestMemStoreRemoveCascadesToPlaylists(t *testing.T) {
	m := NewMemStore()
	defer m.Close()
	ctx := context.Background()

	ids, err := m.BulkStore(ctx, []models.MediaFile{
		trackFile("/m/1.mp3", "A", "X", "T1", 1),
		trackFile("/m/2.mp3", "A", "X", "T2", 2),
	}, false)
	if err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	plID, err := m.CreatePlaylist(ctx, "P", "")
	if err != nil {
		t.Fatalf("Failed to create playlist: %v", err)
	}
	if err := m.BulkAddToPlaylist(ctx, plID, ids); err != nil {
		t.Fatalf("Failed to add tracks: %v", err)
	}

	if _, err := m.BulkRemove(ctx, []string{"/m/1.mp3"}); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	tracks, err := m.GetPlaylistTracks(ctx, plID)
	if err != nil {
		t.Fatalf("Failed to get tracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "T2" {
		t.Errorf("Expected removed media purged from playlist, got %+v", tracks)
	}
}

func TestMemStoreStreamFilesUnder(t *testing.T) {
	m := NewMemStore()
	defer m.Close()
	ctx := context.Background()

	for _, p := range []string{"/media/music/a.mp3", "/media/music/sub/b.mp3", "/other/c.mp3"} {
		if _, err := m.Store(ctx, trackFile(p, "A", "X", "T", 1)); err != nil {
			t.Fatalf("Failed to store %s: %v", p, err)
		}
	}
	cursor := m.StreamFilesUnder(ctx, "/media/music")
	defer cursor.Close()

	count := 0
	for cursor.Next() {
		count++
	}
	if err := cursor.Err(); err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 files under the prefix, got %d", count)
	}
}

func TestMemStoreClosedRejectsOperations(t *testing.T) {
	m := NewMemStore()
	m.Close()
	if _, err := m.Store(context.Background(), trackFile("/m/x.mp3", "A", "X", "T", 1)); !IsCode(err, ErrTransactionFailed) {
		t.Errorf("Expected closed store to reject writes, got %v", err)
	}
}
