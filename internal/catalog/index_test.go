package catalog

import (
	"reflect"
	"testing"

	"legato/pkg/models"
)

func indexedFile(id uint64, parent, filename string, tags ...string) *models.MediaFile {
	f := &models.MediaFile{
		ID:                  id,
		CanonicalPath:       parent + "/" + filename,
		CanonicalParentPath: parent,
		Filename:            filename,
		Size:                100,
	}
	if len(tags) > 0 {
		f.Artist = tags[0]
	}
	if len(tags) > 1 {
		f.Album = tags[1]
	}
	if len(tags) > 2 {
		f.Genre = tags[2]
	}
	return f
}

func TestIndexManagerLookups(t *testing.T) {
	ix := newIndexManager()
	f := indexedFile(1, "/media/music", "a.mp3")
	loc := location{Offset: 64, Length: 500, Index: 0}
	ix.insert(f, loc)

	id, ok := ix.idByPath("/media/music/a.mp3")
	if !ok || id != 1 {
		t.Errorf("Expected id 1 by path, got %d (%v)", id, ok)
	}
	got, ok := ix.locationByID(1)
	if !ok || got != loc {
		t.Errorf("Expected location %+v, got %+v (%v)", loc, got, ok)
	}
	p, ok := ix.pathByID(1)
	if !ok || p != "/media/music/a.mp3" {
		t.Errorf("Expected path by id, got %q (%v)", p, ok)
	}
	if n := ix.fileCount(); n != 1 {
		t.Errorf("Expected file count 1, got %d", n)
	}
	if ix.memoryBytes() == 0 {
		t.Error("Expected non-zero memory accounting after insert")
	}
}

func TestIndexManagerDirectoryTree(t *testing.T) {
	ix := newIndexManager()
	ix.insert(indexedFile(1, "/media/music/album", "01.mp3"), location{})
	ix.insert(indexedFile(2, "/media/music/album", "02.mp3"), location{})
	ix.insert(indexedFile(3, "/media/music", "loose.mp3"), location{})
	ix.insert(indexedFile(4, "/media/movies", "film.mkv"), location{})

	t.Run("RootListing", func(t *testing.T) {
		files, subdirs := ix.listDirectory("")
		if len(files) != 0 {
			t.Errorf("Expected no files at synthetic root, got %d", len(files))
		}
		if !reflect.DeepEqual(subdirs, []string{"/"}) {
			t.Errorf("Expected [/], got %v", subdirs)
		}
		_, below := ix.listDirectory("/")
		if !reflect.DeepEqual(below, []string{"/media"}) {
			t.Errorf("Expected [/media] under /, got %v", below)
		}
	})

	t.Run("DirectChildrenOnly", func(t *testing.T) {
		files, subdirs := ix.listDirectory("/media/music")
		if !reflect.DeepEqual(files, []uint64{3}) {
			t.Errorf("Expected only the direct file, got %v", files)
		}
		if !reflect.DeepEqual(subdirs, []string{"/media/music/album"}) {
			t.Errorf("Expected only the direct subdirectory, got %v", subdirs)
		}
	})

	t.Run("FilenameOrder", func(t *testing.T) {
		files, _ := ix.listDirectory("/media/music/album")
		if !reflect.DeepEqual(files, []uint64{1, 2}) {
			t.Errorf("Expected files in filename order [1 2], got %v", files)
		}
	})

	t.Run("IntermediateDirectories", func(t *testing.T) {
		for _, dir := range []string{"/media", "/media/music", "/media/music/album", "/media/movies"} {
			if !ix.hasDirectory(dir) {
				t.Errorf("Expected %q to be a known directory", dir)
			}
		}
		if ix.hasDirectory("/media/podcasts") {
			t.Error("Expected unknown directory to be absent")
		}
	})

	t.Run("IdsUnder", func(t *testing.T) {
		ids := ix.idsUnder("/media/music")
		if len(ids) != 3 {
			t.Errorf("Expected 3 ids under /media/music, got %v", ids)
		}
	})
}

func TestIndexManagerPrune(t *testing.T) {
	ix := newIndexManager()
	f := indexedFile(1, "/media/music/deep/album", "only.mp3")
	ix.insert(f, location{})
	ix.insert(indexedFile(2, "/media/movies", "keep.mkv"), location{})

	ix.remove(f)

	for _, dir := range []string{"/media/music/deep/album", "/media/music/deep", "/media/music"} {
		if ix.hasDirectory(dir) {
			t.Errorf("Expected %q to be pruned after last file removal", dir)
		}
	}
	if !ix.hasDirectory("/media") || !ix.hasDirectory("/media/movies") {
		t.Error("Expected populated branch to survive pruning")
	}
	if _, ok := ix.idByPath(f.CanonicalPath); ok {
		t.Error("Expected removed path to be gone")
	}
}

func TestIndexManagerMusicCategories(t *testing.T) {
	ix := newIndexManager()
	ix.insert(indexedFile(1, "/m", "a.mp3", "Artist A", "Album X", "Rock"), location{})
	ix.insert(indexedFile(2, "/m", "b.mp3", "Artist A", "Album X", "Rock"), location{})
	ix.insert(indexedFile(3, "/m", "c.mp3", "Artist A", "Album Y", "Jazz"), location{})
	ix.insert(indexedFile(4, "/m", "d.mp3", "Artist B", "Album X"), location{})

	t.Run("Artists", func(t *testing.T) {
		want := []models.MusicCategory{{Key: "Artist A", Count: 3}, {Key: "Artist B", Count: 1}}
		if got := ix.artistCategories(); !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("Albums", func(t *testing.T) {
		want := []models.MusicCategory{{Key: "Album X", Count: 3}, {Key: "Album Y", Count: 1}}
		if got := ix.albumCategories(); !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("AlbumsForArtistScopedCounts", func(t *testing.T) {
		want := []models.MusicCategory{{Key: "Album X", Count: 2}, {Key: "Album Y", Count: 1}}
		if got := ix.albumsForArtist("Artist A"); !reflect.DeepEqual(got, want) {
			t.Errorf("Expected artist-scoped counts %v, got %v", want, got)
		}
	})

	t.Run("GenreIDs", func(t *testing.T) {
		if got := ix.idsByGenre("Rock"); !reflect.DeepEqual(got, []uint64{1, 2}) {
			t.Errorf("Expected [1 2], got %v", got)
		}
	})

	t.Run("RemoveDropsEmptyCategories", func(t *testing.T) {
		f := indexedFile(3, "/m", "c.mp3", "Artist A", "Album Y", "Jazz")
		ix.remove(f)
		for _, c := range ix.albumCategories() {
			if c.Key == "Album Y" {
				t.Error("Expected Album Y to vanish with its last track")
			}
		}
		for _, c := range ix.genreCategories() {
			if c.Key == "Jazz" {
				t.Error("Expected Jazz to vanish with its last track")
			}
		}
	})
}

func TestIndexManagerUpdateRefreshesMusic(t *testing.T) {
	ix := newIndexManager()
	old := indexedFile(1, "/m", "a.mp3", "Before", "Old Album")
	ix.insert(old, location{Offset: 64})

	now := indexedFile(1, "/m", "a.mp3", "After", "New Album")
	newLoc := location{Offset: 640, Length: 300, Index: 2}
	ix.update(old, now, newLoc)

	if loc, _ := ix.locationByID(1); loc != newLoc {
		t.Errorf("Expected location re-pointed to %+v, got %+v", newLoc, loc)
	}
	if ids := ix.idsByArtist("Before"); len(ids) != 0 {
		t.Errorf("Expected old artist entry dropped, got %v", ids)
	}
	if ids := ix.idsByArtist("After"); !reflect.DeepEqual(ids, []uint64{1}) {
		t.Errorf("Expected new artist entry [1], got %v", ids)
	}
}

func TestSortedIDHelpers(t *testing.T) {
	var ids []uint64
	for _, id := range []uint64{5, 1, 3, 3, 2} {
		ids = insertID(ids, id)
	}
	if !reflect.DeepEqual(ids, []uint64{1, 2, 3, 5}) {
		t.Errorf("Expected sorted dedup [1 2 3 5], got %v", ids)
	}
	if !containsID(ids, 3) || containsID(ids, 4) {
		t.Error("Expected containsID to report membership exactly")
	}
	ids = removeID(ids, 3)
	if !reflect.DeepEqual(ids, []uint64{1, 2, 5}) {
		t.Errorf("Expected [1 2 5] after removal, got %v", ids)
	}
	ids = removeID(ids, 99)
	if !reflect.DeepEqual(ids, []uint64{1, 2, 5}) {
		t.Errorf("Expected removal of absent id to be a no-op, got %v", ids)
	}
}
