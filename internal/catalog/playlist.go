package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"legato/internal/catalog/fb"
	"legato/pkg/models"
)

var playlistMagic = [8]byte{'M', 'E', 'D', 'I', 'A', 'P', 'L', '1'}

// playlistFlagRemove marks a tombstone batch in the playlist file. Inserts
// and updates reuse the shared batch flags.
const playlistFlagRemove uint32 = 3

// playlistStore keeps playlists in their own mapped file, which doubles as
// the log: every mutation appends a batch carrying the full new state of the
// touched playlist, and replay applies batches in order with the last one
// winning. Playlist traffic is light enough that each commit syncs.
type playlistStore struct {
	logger *logrus.Logger
	data   *mappedFile

	mu          sync.RWMutex
	playlists   map[uint64]*models.Playlist
	trackLists  map[uint64][]uint64
	nextID      uint64
	nextBatchID uint64
}

func openPlaylistStore(path string, initialSize, growIncrement uint64, logger *logrus.Logger) (*playlistStore, error) {
	data, err := openMappedFile(path, playlistMagic, initialSize, growIncrement)
	if err != nil {
		return nil, err
	}
	s := &playlistStore{
		logger:     logger,
		data:       data,
		playlists:  make(map[uint64]*models.Playlist),
		trackLists: make(map[uint64][]uint64),
	}
	if err := s.replay(); err != nil {
		data.Close()
		return nil, err
	}
	return s, nil
}

// replay rebuilds the in-memory playlist state from the file. A torn tail is
// discarded the same way the media file handles one.
func (s *playlistStore) replay() error {
	off := uint64(headerSize)
	end := s.data.logicalSize.Load()

	for off+batchHeaderSize <= end {
		view, err := s.data.read(off, end-off)
		if err != nil {
			return err
		}
		hdr, payload, ok := verifyBatch(view)
		if !ok {
			s.logger.WithField("offset", off).Warn("Discarding torn playlist tail")
			s.data.rewind(off)
			break
		}
		s.applyBatch(hdr.Flags, payload)
		if hdr.BatchID > s.nextBatchID {
			s.nextBatchID = hdr.BatchID
		}
		off += uint64(batchHeaderSize) + uint64(hdr.PayloadLen)
	}

	for id := range s.playlists {
		if id > s.nextID {
			s.nextID = id
		}
	}
	return nil
}

func (s *playlistStore) applyBatch(flags uint32, payload []byte) {
	batch := decodePlaylistBatch(payload)

	var pl fb.Playlist
	if flags == playlistFlagRemove {
		for j := 0; j < batch.PlaylistsLength(); j++ {
			if batch.Playlists(&pl, j) {
				delete(s.playlists, pl.Id())
				delete(s.trackLists, pl.Id())
			}
		}
		return
	}

	for j := 0; j < batch.PlaylistsLength(); j++ {
		if !batch.Playlists(&pl, j) {
			continue
		}
		m := playlistToModel(&pl)
		s.playlists[m.ID] = &m
		s.trackLists[m.ID] = nil
	}
	var en fb.PlaylistEntry
	for j := 0; j < batch.EntriesLength(); j++ {
		if !batch.Entries(&en, j) {
			continue
		}
		entry := playlistEntryToModel(&en)
		s.trackLists[entry.PlaylistID] = append(s.trackLists[entry.PlaylistID], entry.MediaFileID)
	}
}

// commitLocked appends one batch describing the new state of the given
// playlists and syncs it. Held under s.mu.
func (s *playlistStore) commitLocked(flag uint32, playlists []*models.Playlist, entries []models.PlaylistEntry) error {
	s.nextBatchID++
	payload := encodePlaylistBatch(s.nextBatchID, playlists, entries)
	hdr := batchHeader{
		BatchID:     s.nextBatchID,
		Timestamp:   uint64(time.Now().Unix()),
		RecordCount: uint32(len(playlists)),
		PayloadLen:  uint32(len(payload)),
		CRC32:       checksumPayload(payload),
		Flags:       flag,
	}
	frame := append(encodeBatchHeader(hdr), payload...)
	if _, err := s.data.append(frame); err != nil {
		return err
	}
	s.data.batchCount.Add(1)
	return s.data.sync()
}

func (s *playlistStore) create(name, description string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now().Unix()
	p := &models.Playlist{ID: s.nextID, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	if err := s.commitLocked(batchFlagInsert, []*models.Playlist{p}, nil); err != nil {
		s.nextID--
		return 0, err
	}
	s.playlists[p.ID] = p
	s.trackLists[p.ID] = nil
	return p.ID, nil
}

func (s *playlistStore) delete(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.playlists[id]
	if !ok {
		return &Error{Code: ErrNotFound, Message: "no such playlist", ID: id}
	}
	if err := s.commitLocked(playlistFlagRemove, []*models.Playlist{p}, nil); err != nil {
		return err
	}
	delete(s.playlists, id)
	delete(s.trackLists, id)
	return nil
}

// addTracks appends media ids to the playlist, skipping ones already on it.
func (s *playlistStore) addTracks(id uint64, mediaIDs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.playlists[id]
	if !ok {
		return &Error{Code: ErrNotFound, Message: "no such playlist", ID: id}
	}

	current := s.trackLists[id]
	present := make(map[uint64]struct{}, len(current))
	for _, t := range current {
		present[t] = struct{}{}
	}
	next := append([]uint64(nil), current...)
	for _, t := range mediaIDs {
		if _, dup := present[t]; dup {
			continue
		}
		present[t] = struct{}{}
		next = append(next, t)
	}
	if len(next) == len(current) {
		return nil
	}
	return s.rewriteLocked(p, next)
}

func (s *playlistStore) removeTracks(id uint64, mediaIDs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.playlists[id]
	if !ok {
		return &Error{Code: ErrNotFound, Message: "no such playlist", ID: id}
	}

	drop := make(map[uint64]struct{}, len(mediaIDs))
	for _, t := range mediaIDs {
		drop[t] = struct{}{}
	}
	current := s.trackLists[id]
	next := current[:0:0]
	for _, t := range current {
		if _, gone := drop[t]; !gone {
			next = append(next, t)
		}
	}
	if len(next) == len(current) {
		return nil
	}
	return s.rewriteLocked(p, next)
}

// dropMedia removes a deleted media id from every playlist that carries it.
func (s *playlistStore) dropMedia(mediaIDs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[uint64]struct{}, len(mediaIDs))
	for _, t := range mediaIDs {
		drop[t] = struct{}{}
	}
	for id, current := range s.trackLists {
		next := current[:0:0]
		for _, t := range current {
			if _, gone := drop[t]; !gone {
				next = append(next, t)
			}
		}
		if len(next) == len(current) {
			continue
		}
		if err := s.rewriteLocked(s.playlists[id], next); err != nil {
			return err
		}
	}
	return nil
}

// rewriteLocked commits a playlist's full new track list.
func (s *playlistStore) rewriteLocked(p *models.Playlist, trackIDs []uint64) error {
	updated := *p
	updated.UpdatedAt = time.Now().Unix()
	entries := make([]models.PlaylistEntry, len(trackIDs))
	for i, t := range trackIDs {
		entries[i] = models.PlaylistEntry{PlaylistID: p.ID, MediaFileID: t, Position: uint32(i)}
	}
	if err := s.commitLocked(batchFlagUpdate, []*models.Playlist{&updated}, entries); err != nil {
		return err
	}
	*p = updated
	s.trackLists[p.ID] = trackIDs
	return nil
}

func (s *playlistStore) list() []models.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Playlist, 0, len(s.playlists))
	for id, p := range s.playlists {
		cp := *p
		cp.TrackCount = len(s.trackLists[id])
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *playlistStore) trackIDs(id uint64) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.playlists[id]; !ok {
		return nil, &Error{Code: ErrNotFound, Message: "no such playlist", ID: id}
	}
	return append([]uint64(nil), s.trackLists[id]...), nil
}

func (s *playlistStore) Close() error {
	return s.data.Close()
}

// Engine playlist surface

func (e *Engine) CreatePlaylist(ctx context.Context, name, description string) (uint64, error) {
	if err := e.writable(); err != nil {
		return 0, err
	}
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	e.stats.recordOp()
	return e.playlists.create(name, description)
}

func (e *Engine) DeletePlaylist(ctx context.Context, id uint64) error {
	if err := e.writable(); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	e.stats.recordOp()
	return e.playlists.delete(id)
}

// BulkAddToPlaylist appends cataloged media files to a playlist; ids not in
// the catalog are skipped.
func (e *Engine) BulkAddToPlaylist(ctx context.Context, playlistID uint64, mediaFileIDs []uint64) error {
	if err := e.writable(); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	e.stats.recordOp()

	live := mediaFileIDs[:0:0]
	for _, id := range mediaFileIDs {
		if _, ok := e.idx.locationByID(id); ok {
			live = append(live, id)
		}
	}
	return e.playlists.addTracks(playlistID, live)
}

func (e *Engine) BulkRemoveFromPlaylist(ctx context.Context, playlistID uint64, mediaFileIDs []uint64) error {
	if err := e.writable(); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	e.stats.recordOp()
	return e.playlists.removeTracks(playlistID, mediaFileIDs)
}

func (e *Engine) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()
	return e.playlists.list(), nil
}

// GetPlaylistTracks materializes a playlist's tracks in position order.
// Tracks whose media file has since been removed are skipped.
func (e *Engine) GetPlaylistTracks(ctx context.Context, playlistID uint64) ([]models.MediaFile, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	e.stats.recordOp()

	ids, err := e.playlists.trackIDs(playlistID)
	if err != nil {
		return nil, err
	}
	out := make([]models.MediaFile, 0, len(ids))
	for _, id := range ids {
		f, err := e.materialize(id)
		if err != nil {
			if IsCode(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}
