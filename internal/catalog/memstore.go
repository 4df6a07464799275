package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"legato/internal/pathutil"
	"legato/pkg/models"
)

// MemStore is the in-memory MediaStore variant used by tests and dry runs.
// It shares the index implementation with the engine but keeps records on
// the heap, so nothing survives Close.
type MemStore struct {
	mu      sync.Mutex
	idx     *indexManager
	records map[uint64]*models.MediaFile
	nextID  uint64

	playlists      map[uint64]*models.Playlist
	trackLists     map[uint64][]uint64
	nextPlaylistID uint64

	stats  engineStats
	closed bool
}

// NewMemStore returns an empty in-memory catalog.
func NewMemStore() *MemStore {
	return &MemStore{
		idx:        newIndexManager(),
		records:    make(map[uint64]*models.MediaFile),
		playlists:  make(map[uint64]*models.Playlist),
		trackLists: make(map[uint64][]uint64),
	}
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemStore) guard(ctx context.Context) error {
	if m.closed {
		return newError(ErrTransactionFailed, "store is closed")
	}
	return ctxErr(ctx)
}

func (m *MemStore) BulkStore(ctx context.Context, files []models.MediaFile, upsert bool) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	ids := make([]uint64, len(files))
	now := time.Now().Unix()
	for i := range files {
		f := files[i]
		if err := normalizeFile(&f); err != nil {
			return nil, err
		}
		if existingID, ok := m.idx.idByPath(f.CanonicalPath); ok {
			if !upsert {
				ids[i] = 0
				continue
			}
			old := m.records[existingID]
			f.ID = existingID
			f.CreatedAt = old.CreatedAt
			f.UpdatedAt = now
			m.idx.update(old, &f, location{})
			m.records[existingID] = &f
			ids[i] = existingID
			continue
		}
		m.nextID++
		f.ID = m.nextID
		if f.CreatedAt == 0 {
			f.CreatedAt = now
		}
		f.UpdatedAt = now
		m.records[f.ID] = &f
		m.idx.insert(&f, location{})
		ids[i] = f.ID
	}

	m.stats.recordBulk(len(files), time.Since(start))
	return ids, nil
}

func (m *MemStore) BulkUpdate(ctx context.Context, files []models.MediaFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return err
	}

	now := time.Now().Unix()
	for i := range files {
		f := files[i]
		if err := normalizeFile(&f); err != nil {
			return err
		}
		id, ok := m.idx.idByPath(f.CanonicalPath)
		if !ok {
			return &Error{Code: ErrNotFound, Message: "cannot update uncataloged path", Path: f.CanonicalPath}
		}
		old := m.records[id]
		f.ID = id
		f.CreatedAt = old.CreatedAt
		f.UpdatedAt = now
		m.idx.update(old, &f, location{})
		m.records[id] = &f
	}
	m.stats.recordBulk(len(files), 0)
	return nil
}

func (m *MemStore) BulkRemove(ctx context.Context, paths []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range paths {
		canonical, err := pathutil.Canonicalize(p)
		if err != nil {
			continue
		}
		id, ok := m.idx.idByPath(canonical)
		if !ok {
			continue
		}
		old := m.records[id]
		m.idx.remove(old)
		delete(m.records, id)
		for plID, tracks := range m.trackLists {
			m.trackLists[plID] = removeID(tracks, id)
		}
		removed++
	}
	m.stats.recordBulk(removed, 0)
	return removed, nil
}

func (m *MemStore) BulkGetByPaths(ctx context.Context, paths []string) ([]*models.MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return nil, err
	}

	out := make([]*models.MediaFile, len(paths))
	for i, p := range paths {
		canonical, err := pathutil.Canonicalize(p)
		if err != nil {
			continue
		}
		if id, ok := m.idx.idByPath(canonical); ok {
			cp := *m.records[id]
			out[i] = &cp
		}
	}
	return out, nil
}

func (m *MemStore) Store(ctx context.Context, file models.MediaFile) (uint64, error) {
	ids, err := m.BulkStore(ctx, []models.MediaFile{file}, true)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (m *MemStore) Update(ctx context.Context, file models.MediaFile) error {
	return m.BulkUpdate(ctx, []models.MediaFile{file})
}

func (m *MemStore) Remove(ctx context.Context, path string) error {
	n, err := m.BulkRemove(ctx, []string{path})
	if err != nil {
		return err
	}
	if n == 0 {
		return &Error{Code: ErrNotFound, Message: "cannot remove uncataloged path", Path: path}
	}
	return nil
}

func (m *MemStore) GetByPath(ctx context.Context, path string) (*models.MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return nil, err
	}
	canonical, err := pathutil.Canonicalize(path)
	if err != nil {
		return nil, &Error{Code: ErrInvalidFormat, Message: "cannot canonicalize path", Path: path, cause: err}
	}
	id, ok := m.idx.idByPath(canonical)
	if !ok {
		return nil, &Error{Code: ErrNotFound, Message: "path not cataloged", Path: canonical}
	}
	cp := *m.records[id]
	return &cp, nil
}

func (m *MemStore) GetByID(ctx context.Context, id uint64) (*models.MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return nil, err
	}
	f, ok := m.records[id]
	if !ok {
		return nil, &Error{Code: ErrNotFound, Message: "no such record", ID: id}
	}
	cp := *f
	return &cp, nil
}

func (m *MemStore) GetDirectoryListing(ctx context.Context, parent, mimePrefix string) (*models.DirectoryListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return nil, err
	}

	canonical := ""
	if parent != "" {
		var err error
		canonical, err = pathutil.Canonicalize(parent)
		if err != nil {
			return nil, &Error{Code: ErrInvalidFormat, Message: "cannot canonicalize directory", Path: parent, cause: err}
		}
	}
	if !m.idx.hasDirectory(canonical) {
		return nil, &Error{Code: ErrNotFound, Message: "directory not cataloged", Path: canonical}
	}

	fileIDs, subdirs := m.idx.listDirectory(canonical)
	listing := &models.DirectoryListing{Subdirectories: subdirs}
	for _, id := range fileIDs {
		f := m.records[id]
		if mimePrefix != "" && !strings.HasPrefix(f.MimeType, mimePrefix) {
			continue
		}
		listing.Files = append(listing.Files, *f)
	}
	return listing, nil
}

func (m *MemStore) GetArtists(ctx context.Context) ([]models.MusicCategory, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	return m.idx.artistCategories(), nil
}

func (m *MemStore) GetAlbums(ctx context.Context, artist string) ([]models.MusicCategory, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if artist == "" {
		return m.idx.albumCategories(), nil
	}
	return m.idx.albumsForArtist(artist), nil
}

func (m *MemStore) GetGenres(ctx context.Context) ([]models.MusicCategory, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	return m.idx.genreCategories(), nil
}

func (m *MemStore) GetYears(ctx context.Context) ([]models.MusicCategory, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	return m.idx.yearCategories(), nil
}

func (m *MemStore) GetMusicByArtist(ctx context.Context, artist string) ([]models.MediaFile, error) {
	return m.musicByIDs(ctx, m.idx.idsByArtist(artist))
}

func (m *MemStore) GetMusicByAlbum(ctx context.Context, album string) ([]models.MediaFile, error) {
	return m.musicByIDs(ctx, m.idx.idsByAlbum(album))
}

func (m *MemStore) GetMusicByGenre(ctx context.Context, genre string) ([]models.MediaFile, error) {
	return m.musicByIDs(ctx, m.idx.idsByGenre(genre))
}

func (m *MemStore) GetMusicByYear(ctx context.Context, year uint32) ([]models.MediaFile, error) {
	return m.musicByIDs(ctx, m.idx.idsByYear(year))
}

func (m *MemStore) musicByIDs(ctx context.Context, ids []uint64) ([]models.MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return nil, err
	}
	out := make([]models.MediaFile, 0, len(ids))
	for _, id := range ids {
		if f, ok := m.records[id]; ok {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Album != out[j].Album {
			return out[i].Album < out[j].Album
		}
		if out[i].TrackNumber != out[j].TrackNumber {
			return out[i].TrackNumber < out[j].TrackNumber
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (m *MemStore) CreatePlaylist(ctx context.Context, name, description string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return 0, err
	}
	m.nextPlaylistID++
	now := time.Now().Unix()
	m.playlists[m.nextPlaylistID] = &models.Playlist{ID: m.nextPlaylistID, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	return m.nextPlaylistID, nil
}

func (m *MemStore) DeletePlaylist(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return err
	}
	if _, ok := m.playlists[id]; !ok {
		return &Error{Code: ErrNotFound, Message: "no such playlist", ID: id}
	}
	delete(m.playlists, id)
	delete(m.trackLists, id)
	return nil
}

func (m *MemStore) BulkAddToPlaylist(ctx context.Context, playlistID uint64, mediaFileIDs []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return err
	}
	if _, ok := m.playlists[playlistID]; !ok {
		return &Error{Code: ErrNotFound, Message: "no such playlist", ID: playlistID}
	}
	present := make(map[uint64]struct{})
	for _, t := range m.trackLists[playlistID] {
		present[t] = struct{}{}
	}
	for _, id := range mediaFileIDs {
		if _, ok := m.records[id]; !ok {
			continue
		}
		if _, dup := present[id]; dup {
			continue
		}
		present[id] = struct{}{}
		m.trackLists[playlistID] = append(m.trackLists[playlistID], id)
	}
	return nil
}

func (m *MemStore) BulkRemoveFromPlaylist(ctx context.Context, playlistID uint64, mediaFileIDs []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return err
	}
	if _, ok := m.playlists[playlistID]; !ok {
		return &Error{Code: ErrNotFound, Message: "no such playlist", ID: playlistID}
	}
	drop := make(map[uint64]struct{}, len(mediaFileIDs))
	for _, id := range mediaFileIDs {
		drop[id] = struct{}{}
	}
	tracks := m.trackLists[playlistID]
	next := tracks[:0:0]
	for _, t := range tracks {
		if _, gone := drop[t]; !gone {
			next = append(next, t)
		}
	}
	m.trackLists[playlistID] = next
	return nil
}

func (m *MemStore) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return nil, err
	}
	out := make([]models.Playlist, 0, len(m.playlists))
	for id, p := range m.playlists {
		cp := *p
		cp.TrackCount = len(m.trackLists[id])
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) GetPlaylistTracks(ctx context.Context, playlistID uint64) ([]models.MediaFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(ctx); err != nil {
		return nil, err
	}
	if _, ok := m.playlists[playlistID]; !ok {
		return nil, &Error{Code: ErrNotFound, Message: "no such playlist", ID: playlistID}
	}
	out := make([]models.MediaFile, 0, len(m.trackLists[playlistID]))
	for _, id := range m.trackLists[playlistID] {
		if f, ok := m.records[id]; ok {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *MemStore) StreamAllMediaFiles(ctx context.Context) models.MediaCursor {
	m.mu.Lock()
	files := make([]models.MediaFile, 0, len(m.records))
	for _, f := range m.records {
		files = append(files, *f)
	}
	m.mu.Unlock()
	return &sliceCursor{ctx: ctx, files: files}
}

func (m *MemStore) StreamFilesUnder(ctx context.Context, prefix string) models.MediaCursor {
	canonical, err := pathutil.Canonicalize(prefix)
	if err != nil {
		return &sliceCursor{err: &Error{Code: ErrInvalidFormat, Message: "cannot canonicalize prefix", Path: prefix, cause: err}}
	}
	m.mu.Lock()
	var files []models.MediaFile
	for _, id := range m.idx.idsUnder(canonical) {
		if f, ok := m.records[id]; ok {
			files = append(files, *f)
		}
	}
	m.mu.Unlock()
	return &sliceCursor{ctx: ctx, files: files}
}

func (m *MemStore) CleanupMissing(ctx context.Context, existing map[string]struct{}) (int, error) {
	m.mu.Lock()
	var stale []string
	for _, f := range m.records {
		if _, ok := existing[f.CanonicalPath]; !ok {
			stale = append(stale, f.CanonicalPath)
		}
	}
	m.mu.Unlock()
	if len(stale) == 0 {
		return 0, nil
	}
	return m.BulkRemove(ctx, stale)
}

func (m *MemStore) Stats() models.EngineStats {
	m.mu.Lock()
	total := len(m.records)
	m.mu.Unlock()
	return m.stats.snapshot(total, m.idx.memoryBytes())
}

// sliceCursor iterates a pre-materialized record slice.
type sliceCursor struct {
	ctx   context.Context
	files []models.MediaFile
	pos   int
	cur   models.MediaFile
	err   error
}

func (c *sliceCursor) Next() bool {
	if c.err != nil || c.pos >= len(c.files) {
		return false
	}
	if c.ctx != nil {
		if err := ctxErr(c.ctx); err != nil {
			c.err = err
			return false
		}
	}
	c.cur = c.files[c.pos]
	c.pos++
	return true
}

func (c *sliceCursor) File() models.MediaFile { return c.cur }
func (c *sliceCursor) Err() error             { return c.err }
func (c *sliceCursor) Close() error           { return nil }
