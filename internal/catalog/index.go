package catalog

import (
	"sort"
	"strconv"
	"sync"

	"legato/internal/pathutil"
	"legato/pkg/models"
)

// location points at one record inside the data file: the offset of its
// framed batch, the framed length, and the record's position in the batch.
type location struct {
	Offset uint64
	Length uint64
	Index  uint32
}

// dirEntry is one file in a directory listing, kept sorted by filename.
type dirEntry struct {
	id       uint64
	filename string
}

// approxEntryOverhead is the rough per-record bookkeeping cost used for the
// memory ceiling check: two map entries, a dir entry and slice headers.
const approxEntryOverhead = 160

// indexManager holds every in-memory index over the data file. All lookups
// go through here; the data file itself is only touched to materialize
// records. A single RWMutex guards the whole set so cross-index mutations
// stay atomic.
type indexManager struct {
	mu sync.RWMutex

	pathToID map[string]uint64
	idToLoc  map[uint64]location
	idToPath map[uint64]string

	// dirIndex lists the direct files of each canonical directory.
	// dirChildren lists its direct subdirectories; roots collects the
	// top-level entries ("/", drive roots) for synthetic root browsing.
	dirIndex    map[string][]dirEntry
	dirChildren map[string]map[string]struct{}
	roots       map[string]struct{}

	// Categorical music indexes. Values are id lists sorted ascending.
	artists      map[string][]uint64
	albums       map[string][]uint64
	genres       map[string][]uint64
	years        map[uint32][]uint64
	artistAlbums map[string]map[string]struct{}

	approxBytes uint64
}

func newIndexManager() *indexManager {
	return &indexManager{
		pathToID:     make(map[string]uint64),
		idToLoc:      make(map[uint64]location),
		idToPath:     make(map[uint64]string),
		dirIndex:     make(map[string][]dirEntry),
		dirChildren:  make(map[string]map[string]struct{}),
		roots:        make(map[string]struct{}),
		artists:      make(map[string][]uint64),
		albums:       make(map[string][]uint64),
		genres:       make(map[string][]uint64),
		years:        make(map[uint32][]uint64),
		artistAlbums: make(map[string]map[string]struct{}),
	}
}

// insert registers a new record under all indexes. The caller guarantees the
// canonical path is not already present.
func (ix *indexManager) insert(f *models.MediaFile, loc location) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.pathToID[f.CanonicalPath] = f.ID
	ix.idToLoc[f.ID] = loc
	ix.idToPath[f.ID] = f.CanonicalPath

	ix.insertDirEntryLocked(f.CanonicalParentPath, dirEntry{id: f.ID, filename: f.Filename})
	ix.registerAncestorsLocked(f.CanonicalParentPath)
	ix.insertMusicLocked(f)

	ix.approxBytes += uint64(2*len(f.CanonicalPath)+len(f.Filename)) + approxEntryOverhead
}

// update re-points an existing id at a new location and refreshes the music
// indexes. old carries the previous categorical values; the path, parent and
// filename of a record never change across an update.
func (ix *indexManager) update(old, now *models.MediaFile, loc location) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.idToLoc[now.ID] = loc
	ix.removeMusicLocked(old)
	ix.insertMusicLocked(now)
}

// remove drops a record from every index. Empty directories left behind are
// pruned all the way up so browse never shows a dead branch.
func (ix *indexManager) remove(f *models.MediaFile) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	delete(ix.pathToID, f.CanonicalPath)
	delete(ix.idToLoc, f.ID)
	delete(ix.idToPath, f.ID)

	ix.removeDirEntryLocked(f.CanonicalParentPath, f.ID)
	ix.pruneLocked(f.CanonicalParentPath)
	ix.removeMusicLocked(f)

	sub := uint64(2*len(f.CanonicalPath)+len(f.Filename)) + approxEntryOverhead
	if ix.approxBytes >= sub {
		ix.approxBytes -= sub
	} else {
		ix.approxBytes = 0
	}
}

func (ix *indexManager) idByPath(canonical string) (uint64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.pathToID[canonical]
	return id, ok
}

func (ix *indexManager) locationByID(id uint64) (location, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	loc, ok := ix.idToLoc[id]
	return loc, ok
}

func (ix *indexManager) pathByID(id uint64) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.idToPath[id]
	return p, ok
}

func (ix *indexManager) fileCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.pathToID)
}

func (ix *indexManager) memoryBytes() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.approxBytes
}

// listDirectory returns the ids of the direct files (filename order) and the
// sorted canonical paths of the direct subdirectories of parent. An empty
// parent lists the registered roots.
func (ix *indexManager) listDirectory(parent string) (fileIDs []uint64, subdirs []string) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if parent == "" {
		for r := range ix.roots {
			subdirs = append(subdirs, r)
		}
		sort.Strings(subdirs)
		return nil, subdirs
	}

	for _, e := range ix.dirIndex[parent] {
		fileIDs = append(fileIDs, e.id)
	}
	for child := range ix.dirChildren[parent] {
		subdirs = append(subdirs, child)
	}
	sort.Strings(subdirs)
	return fileIDs, subdirs
}

// hasDirectory reports whether parent is known to the directory tree, either
// as a file holder or as an intermediate node.
func (ix *indexManager) hasDirectory(parent string) bool {
	if parent == "" {
		return true
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if _, ok := ix.dirIndex[parent]; ok {
		return true
	}
	if _, ok := ix.dirChildren[parent]; ok {
		return true
	}
	_, ok := ix.roots[parent]
	return ok
}

// idsUnder returns the ids of every file whose canonical path lives at or
// below prefix. Used by StreamFilesUnder.
func (ix *indexManager) idsUnder(prefix string) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var ids []uint64
	var walk func(dir string)
	walk = func(dir string) {
		for _, e := range ix.dirIndex[dir] {
			ids = append(ids, e.id)
		}
		for child := range ix.dirChildren[dir] {
			walk(child)
		}
	}
	walk(prefix)
	return ids
}

func (ix *indexManager) artistCategories() []models.MusicCategory {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return categoriesOf(ix.artists)
}

func (ix *indexManager) albumCategories() []models.MusicCategory {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return categoriesOf(ix.albums)
}

func (ix *indexManager) genreCategories() []models.MusicCategory {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return categoriesOf(ix.genres)
}

func (ix *indexManager) yearCategories() []models.MusicCategory {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	cats := make([]models.MusicCategory, 0, len(ix.years))
	for y, ids := range ix.years {
		cats = append(cats, models.MusicCategory{Key: strconv.FormatUint(uint64(y), 10), Count: len(ids)})
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Key < cats[j].Key })
	return cats
}

// albumsForArtist returns the album names an artist appears on, with track
// counts scoped to that artist.
func (ix *indexManager) albumsForArtist(artist string) []models.MusicCategory {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	names := ix.artistAlbums[artist]
	cats := make([]models.MusicCategory, 0, len(names))
	artistIDs := ix.artists[artist]
	for name := range names {
		count := 0
		for _, id := range ix.albums[name] {
			if containsID(artistIDs, id) {
				count++
			}
		}
		cats = append(cats, models.MusicCategory{Key: name, Count: count})
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Key < cats[j].Key })
	return cats
}

func (ix *indexManager) idsByArtist(key string) []uint64 { return ix.copyIDs(ix.artists, key) }
func (ix *indexManager) idsByAlbum(key string) []uint64  { return ix.copyIDs(ix.albums, key) }
func (ix *indexManager) idsByGenre(key string) []uint64  { return ix.copyIDs(ix.genres, key) }

func (ix *indexManager) idsByYear(year uint32) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]uint64(nil), ix.years[year]...)
}

func (ix *indexManager) copyIDs(m map[string][]uint64, key string) []uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]uint64(nil), m[key]...)
}

// forEachLocation visits every (path, id, location) triple. Snapshot writing
// iterates under the read lock; fn must not call back into the manager.
func (ix *indexManager) forEachLocation(fn func(path string, id uint64, loc location)) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for path, id := range ix.pathToID {
		fn(path, id, ix.idToLoc[id])
	}
}

// internal helpers, all called with ix.mu held for writing

func (ix *indexManager) insertDirEntryLocked(parent string, e dirEntry) {
	entries := ix.dirIndex[parent]
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].filename == e.filename {
			return entries[i].id >= e.id
		}
		return entries[i].filename > e.filename
	})
	entries = append(entries, dirEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	ix.dirIndex[parent] = entries
}

func (ix *indexManager) removeDirEntryLocked(parent string, id uint64) {
	entries := ix.dirIndex[parent]
	for i, e := range entries {
		if e.id == id {
			ix.dirIndex[parent] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(ix.dirIndex[parent]) == 0 {
		delete(ix.dirIndex, parent)
	}
}

// registerAncestorsLocked links dir into the tree all the way up to its root.
func (ix *indexManager) registerAncestorsLocked(dir string) {
	for p := dir; p != ""; {
		gp := pathutil.Parent(p)
		if gp == "" {
			ix.roots[p] = struct{}{}
			return
		}
		set := ix.dirChildren[gp]
		if set == nil {
			set = make(map[string]struct{})
			ix.dirChildren[gp] = set
		}
		if _, done := set[p]; done {
			return
		}
		set[p] = struct{}{}
		p = gp
	}
}

// pruneLocked removes dir from the tree if it holds no files and no
// subdirectories, then cascades to its parent.
func (ix *indexManager) pruneLocked(dir string) {
	for dir != "" {
		if _, ok := ix.dirIndex[dir]; ok {
			return
		}
		if len(ix.dirChildren[dir]) > 0 {
			return
		}
		delete(ix.dirChildren, dir)
		parent := pathutil.Parent(dir)
		if parent == "" {
			delete(ix.roots, dir)
			return
		}
		if set := ix.dirChildren[parent]; set != nil {
			delete(set, dir)
			if len(set) == 0 {
				delete(ix.dirChildren, parent)
			}
		}
		dir = parent
	}
}

func (ix *indexManager) insertMusicLocked(f *models.MediaFile) {
	if !f.HasAudioFields() {
		return
	}
	if f.Artist != "" {
		ix.artists[f.Artist] = insertID(ix.artists[f.Artist], f.ID)
		if f.Album != "" {
			set := ix.artistAlbums[f.Artist]
			if set == nil {
				set = make(map[string]struct{})
				ix.artistAlbums[f.Artist] = set
			}
			set[f.Album] = struct{}{}
		}
	}
	if f.Album != "" {
		ix.albums[f.Album] = insertID(ix.albums[f.Album], f.ID)
	}
	if f.Genre != "" {
		ix.genres[f.Genre] = insertID(ix.genres[f.Genre], f.ID)
	}
	if f.Year != 0 {
		ix.years[f.Year] = insertID(ix.years[f.Year], f.ID)
	}
}

func (ix *indexManager) removeMusicLocked(f *models.MediaFile) {
	if !f.HasAudioFields() {
		return
	}
	if f.Artist != "" {
		ix.artists[f.Artist] = removeID(ix.artists[f.Artist], f.ID)
		if len(ix.artists[f.Artist]) == 0 {
			delete(ix.artists, f.Artist)
			delete(ix.artistAlbums, f.Artist)
		}
	}
	if f.Album != "" {
		ix.albums[f.Album] = removeID(ix.albums[f.Album], f.ID)
		if len(ix.albums[f.Album]) == 0 {
			delete(ix.albums, f.Album)
			for _, set := range ix.artistAlbums {
				delete(set, f.Album)
			}
		}
	}
	if f.Genre != "" {
		ix.genres[f.Genre] = removeID(ix.genres[f.Genre], f.ID)
		if len(ix.genres[f.Genre]) == 0 {
			delete(ix.genres, f.Genre)
		}
	}
	if f.Year != 0 {
		ix.years[f.Year] = removeID(ix.years[f.Year], f.ID)
		if len(ix.years[f.Year]) == 0 {
			delete(ix.years, f.Year)
		}
	}
}

func categoriesOf(m map[string][]uint64) []models.MusicCategory {
	cats := make([]models.MusicCategory, 0, len(m))
	for key, ids := range m {
		cats = append(cats, models.MusicCategory{Key: key, Count: len(ids)})
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Key < cats[j].Key })
	return cats
}

func insertID(ids []uint64, id uint64) []uint64 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeID(ids []uint64, id uint64) []uint64 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}

func containsID(ids []uint64, id uint64) bool {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	return i < len(ids) && ids[i] == id
}
