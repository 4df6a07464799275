// Package catalog implements the memory-mapped media catalog: an append-only
// data file of FlatBuffer batches, a write-ahead log, in-memory indexes and
// an LRU record cache behind the models.MediaStore interface.
package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"legato/internal/pathutil"
	"legato/pkg/models"
)

var dataMagic = [8]byte{'M', 'E', 'D', 'I', 'A', 'D', 'B', '1'}

const (
	dataFileName     = "media.fb"
	walFileName      = "media.wal"
	indexFileName    = "media.idx"
	playlistFileName = "playlists.fb"
)

// Options configures a zero-copy engine instance. Zero values fall back to
// the defaults below.
type Options struct {
	// DataDir holds media.fb, media.wal, media.idx and playlists.fb.
	DataDir string

	// CacheLimitBytes bounds the materialized record cache.
	CacheLimitBytes uint64

	// IndexLimitBytes bounds the in-memory indexes. Together with the cache
	// limit it forms the ceiling that BulkStore enforces.
	IndexLimitBytes uint64

	// BatchSize is the maximum records per on-disk batch; larger inputs are
	// split transparently.
	BatchSize int

	// InitialFileSize and GrowIncrement size the data file mapping.
	InitialFileSize uint64
	GrowIncrement   uint64

	// SyncFrequency is the cadence of the background msync/fsync pass.
	// Zero disables the background pass; close still syncs.
	SyncFrequency time.Duration

	// EnableWAL turns the commit journal on. Without it, a crash loses
	// everything since the last clean close.
	EnableWAL bool
}

func (o Options) withDefaults() Options {
	if o.CacheLimitBytes == 0 {
		o.CacheLimitBytes = 64 << 20
	}
	if o.IndexLimitBytes == 0 {
		o.IndexLimitBytes = 16 << 20
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.InitialFileSize == 0 {
		o.InitialFileSize = 64 << 20
	}
	if o.GrowIncrement == 0 {
		o.GrowIncrement = 64 << 20
	}
	return o
}

// Engine is the production MediaStore backed by the memory-mapped data file.
// All mutations funnel through a single commit lock; reads never take it and
// only hold the index manager's read lock while resolving a record.
type Engine struct {
	logger *logrus.Logger
	opts   Options

	data      *mappedFile
	wal       *writeAheadLog
	idx       *indexManager
	cache     *recordCache
	stats     engineStats
	playlists *playlistStore

	commitMu    sync.Mutex
	nextID      atomic.Uint64
	nextBatchID atomic.Uint64
	readOnly    atomic.Bool
	closed      atomic.Bool

	stopSync chan struct{}
	syncDone chan struct{}
}

// NewEngine opens or creates the catalog under opts.DataDir and recovers it
// to the last committed state.
func NewEngine(opts Options) (*Engine, error) {
	opts = opts.withDefaults()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := &Engine{
		logger:   logger,
		opts:     opts,
		idx:      newIndexManager(),
		cache:    newRecordCache(opts.CacheLimitBytes),
		stopSync: make(chan struct{}),
		syncDone: make(chan struct{}),
	}

	data, err := openMappedFile(filepath.Join(opts.DataDir, dataFileName), dataMagic, opts.InitialFileSize, opts.GrowIncrement)
	if err != nil {
		return nil, err
	}
	e.data = data

	if opts.EnableWAL {
		wal, err := openWAL(filepath.Join(opts.DataDir, walFileName))
		if err != nil {
			data.Close()
			return nil, err
		}
		e.wal = wal
	}

	if err := e.recover(); err != nil {
		e.releaseFiles()
		return nil, err
	}

	playlists, err := openPlaylistStore(filepath.Join(opts.DataDir, playlistFileName), opts.InitialFileSize/8, opts.GrowIncrement, logger)
	if err != nil {
		e.releaseFiles()
		return nil, err
	}
	e.playlists = playlists

	if opts.SyncFrequency > 0 {
		go e.syncLoop()
	} else {
		close(e.syncDone)
	}

	logger.WithFields(logrus.Fields{
		"data_dir":  opts.DataDir,
		"files":     e.idx.fileCount(),
		"frontier":  e.data.logicalSize.Load(),
		"wal":       opts.EnableWAL,
		"read_only": e.readOnly.Load(),
	}).Info("Catalog engine opened")
	return e, nil
}

func (e *Engine) releaseFiles() {
	if e.wal != nil {
		e.wal.Close()
	}
	e.data.Close()
}

// Close checkpoints the catalog and releases every resource. Subsequent
// operations fail.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.stopSync)
	<-e.syncDone

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	var firstErr error
	if !e.readOnly.Load() {
		if err := e.writeSnapshot(); err != nil {
			firstErr = err
			e.logger.WithError(err).Error("Failed to write index snapshot")
		}
		if e.wal != nil {
			if err := e.wal.checkpoint(e.data.logicalSize.Load()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if e.playlists != nil {
		if err := e.playlists.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.wal != nil {
		if err := e.wal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.data.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (e *Engine) syncLoop() {
	defer close(e.syncDone)
	ticker := time.NewTicker(e.opts.SyncFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := e.syncNow(); err != nil {
				e.logger.WithError(err).Warn("Background sync failed")
			}
		case <-e.stopSync:
			return
		}
	}
}

func (e *Engine) syncNow() error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	if err := e.data.sync(); err != nil {
		return err
	}
	if e.wal != nil {
		return e.wal.sync()
	}
	return nil
}

// writable gates every mutating operation.
func (e *Engine) writable() error {
	if e.closed.Load() {
		return newError(ErrTransactionFailed, "engine is closed")
	}
	if e.readOnly.Load() {
		return newError(ErrCorrupt, "catalog is read-only after unrecoverable corruption")
	}
	return nil
}

// ctxErr maps a context failure onto the catalog error set. Deadlines become
// ErrTimeout; plain cancellation passes through.
func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(ErrTimeout, err, "operation deadline elapsed")
	}
	return err
}

// normalizeFile fills the derived path fields, canonicalizing Path when the
// caller has not done so already.
func normalizeFile(f *models.MediaFile) error {
	if f.CanonicalPath == "" {
		cp, err := pathutil.Canonicalize(f.Path)
		if err != nil {
			return &Error{Code: ErrInvalidFormat, Message: "cannot canonicalize path", Path: f.Path, cause: err}
		}
		f.CanonicalPath = cp
	}
	if f.CanonicalParentPath == "" {
		f.CanonicalParentPath = pathutil.Parent(f.CanonicalPath)
	}
	if f.Filename == "" {
		f.Filename = pathutil.Filename(f.CanonicalPath)
	}
	return nil
}

// checkMemoryBudget rejects work that would push the resident indexes and
// cache past the configured ceiling.
func (e *Engine) checkMemoryBudget(incoming []*models.MediaFile) error {
	projected := e.idx.memoryBytes() + e.cache.bytes()
	for _, f := range incoming {
		projected += uint64(2*len(f.CanonicalPath)+len(f.Filename)) + approxEntryOverhead
	}
	limit := e.opts.IndexLimitBytes + e.opts.CacheLimitBytes
	if projected > limit {
		return newError(ErrMemoryLimitExceeded, "operation needs ~%d bytes, limit is %d; split the batch", projected, limit)
	}
	return nil
}

// BulkStore inserts files, assigning fresh ids returned in input order. With
// upsert, records whose canonical path already exists are rewritten in place
// of being skipped. A skipped duplicate yields id 0 in the result.
func (e *Engine) BulkStore(ctx context.Context, files []models.MediaFile, upsert bool) ([]uint64, error) {
	if err := e.writable(); err != nil {
		return nil, err
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	refs := make([]*models.MediaFile, len(files))
	for i := range files {
		if err := normalizeFile(&files[i]); err != nil {
			return nil, err
		}
		refs[i] = &files[i]
	}
	if err := e.checkMemoryBudget(refs); err != nil {
		return nil, err
	}

	ids := make([]uint64, len(files))

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	for lo := 0; lo < len(refs); lo += e.opts.BatchSize {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		hi := lo + e.opts.BatchSize
		if hi > len(refs) {
			hi = len(refs)
		}
		if err := e.commitChunkLocked(refs[lo:hi], ids[lo:hi], upsert, false); err != nil {
			return nil, err
		}
	}

	e.stats.recordBulk(len(files), time.Since(start))
	e.stats.observeMemory(e.idx.memoryBytes() + e.cache.bytes())
	return ids, nil
}

// BulkUpdate rewrites existing records, resolved by canonical path. A path
// that is not cataloged fails the call with ErrNotFound.
func (e *Engine) BulkUpdate(ctx context.Context, files []models.MediaFile) error {
	if err := e.writable(); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	start := time.Now()

	refs := make([]*models.MediaFile, len(files))
	for i := range files {
		if err := normalizeFile(&files[i]); err != nil {
			return err
		}
		if _, ok := e.idx.idByPath(files[i].CanonicalPath); !ok {
			return &Error{Code: ErrNotFound, Message: "cannot update uncataloged path", Path: files[i].CanonicalPath}
		}
		refs[i] = &files[i]
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	ids := make([]uint64, len(refs))
	for lo := 0; lo < len(refs); lo += e.opts.BatchSize {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		hi := lo + e.opts.BatchSize
		if hi > len(refs) {
			hi = len(refs)
		}
		if err := e.commitChunkLocked(refs[lo:hi], ids[lo:hi], true, true); err != nil {
			return err
		}
	}

	e.stats.recordBulk(len(files), time.Since(start))
	return nil
}

// commitChunkLocked classifies one chunk into inserts and updates, writes a
// batch for each and applies the index mutations. updatesOnly rejects the
// insert path outright; callers hold the commit lock.
func (e *Engine) commitChunkLocked(chunk []*models.MediaFile, ids []uint64, upsert, updatesOnly bool) error {
	now := time.Now().Unix()
	var inserts, updates []*models.MediaFile
	var oldRecords []*models.MediaFile

	seen := make(map[string]int, len(chunk))
	for i, f := range chunk {
		if prev, dup := seen[f.CanonicalPath]; dup {
			// last write wins inside a single chunk
			ids[prev] = 0
			inserts, updates, oldRecords = dropRef(inserts, updates, oldRecords, f.CanonicalPath)
		}
		seen[f.CanonicalPath] = i

		existingID, exists := e.idx.idByPath(f.CanonicalPath)
		switch {
		case exists && (upsert || updatesOnly):
			old, err := e.materialize(existingID)
			if err != nil {
				return err
			}
			f.ID = existingID
			f.CreatedAt = old.CreatedAt
			f.UpdatedAt = now
			updates = append(updates, f)
			oldRecords = append(oldRecords, old)
			ids[i] = existingID
		case exists:
			ids[i] = 0
		case updatesOnly:
			return &Error{Code: ErrNotFound, Message: "cannot update uncataloged path", Path: f.CanonicalPath}
		default:
			f.ID = e.nextID.Add(1)
			if f.CreatedAt == 0 {
				f.CreatedAt = now
			}
			f.UpdatedAt = now
			inserts = append(inserts, f)
			ids[i] = f.ID
		}
	}

	if len(inserts) > 0 {
		offset, frameLen, err := e.writeBatchLocked(inserts, batchFlagInsert, walOpBatchInsert)
		if err != nil {
			return err
		}
		for i, f := range inserts {
			e.idx.insert(f, location{Offset: offset, Length: frameLen, Index: uint32(i)})
			e.cache.put(f)
		}
	}
	if len(updates) > 0 {
		offset, frameLen, err := e.writeBatchLocked(updates, batchFlagUpdate, walOpBatchUpdate)
		if err != nil {
			return err
		}
		for i, f := range updates {
			e.idx.update(oldRecords[i], f, location{Offset: offset, Length: frameLen, Index: uint32(i)})
			e.cache.put(f)
		}
	}
	return nil
}

// dropRef removes the pending classification of path after a duplicate
// appears later in the same chunk.
func dropRef(inserts, updates, old []*models.MediaFile, path string) ([]*models.MediaFile, []*models.MediaFile, []*models.MediaFile) {
	for i, f := range inserts {
		if f.CanonicalPath == path {
			return append(inserts[:i], inserts[i+1:]...), updates, old
		}
	}
	for i, f := range updates {
		if f.CanonicalPath == path {
			return inserts, append(updates[:i], updates[i+1:]...), append(old[:i], old[i+1:]...)
		}
	}
	return inserts, updates, old
}

// writeBatchLocked frames, appends and journals one batch. On a journal
// failure the data-file reservation is rewound so nothing half-committed
// remains.
func (e *Engine) writeBatchLocked(files []*models.MediaFile, flag uint32, walOp byte) (offset, frameLen uint64, err error) {
	batchID := e.nextBatchID.Add(1)
	payload := encodeMediaBatch(batchID, files)
	if len(payload) > maxBatchPayload {
		return 0, 0, newError(ErrBatchTooLarge, "batch payload is %d bytes, cap is %d; split the input", len(payload), maxBatchPayload)
	}

	hdr := batchHeader{
		BatchID:     batchID,
		Timestamp:   uint64(time.Now().Unix()),
		RecordCount: uint32(len(files)),
		PayloadLen:  uint32(len(payload)),
		CRC32:       checksumPayload(payload),
		Flags:       flag,
	}
	frame := append(encodeBatchHeader(hdr), payload...)

	offset, err = e.data.append(frame)
	if err != nil {
		return 0, 0, err
	}
	if e.wal != nil {
		if err := e.wal.appendRecord(walOp, encodeBatchRef(offset, hdr.RecordCount)); err != nil {
			e.data.rewind(offset)
			return 0, 0, err
		}
	}
	e.data.batchCount.Add(1)
	return offset, uint64(len(frame)), nil
}

// BulkRemove drops the records for the given paths. Paths not in the catalog
// are ignored; the count of records actually removed is returned.
func (e *Engine) BulkRemove(ctx context.Context, paths []string) (int, error) {
	if err := e.writable(); err != nil {
		return 0, err
	}
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	start := time.Now()

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	var victims []*models.MediaFile
	for _, p := range paths {
		canonical, err := pathutil.Canonicalize(p)
		if err != nil {
			continue
		}
		id, ok := e.idx.idByPath(canonical)
		if !ok {
			continue
		}
		old, err := e.materialize(id)
		if err != nil {
			return 0, err
		}
		victims = append(victims, old)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	if e.wal != nil {
		ids := make([]uint64, len(victims))
		for i, v := range victims {
			ids[i] = v.ID
		}
		if err := e.wal.appendRecord(walOpBatchRemove, encodeRemovedIDs(ids)); err != nil {
			return 0, err
		}
	}
	removedIDs := make([]uint64, len(victims))
	for i, v := range victims {
		e.idx.remove(v)
		e.cache.remove(v.ID)
		removedIDs[i] = v.ID
	}
	if e.playlists != nil {
		if err := e.playlists.dropMedia(removedIDs); err != nil {
			e.logger.WithError(err).Warn("Failed to purge removed files from playlists")
		}
	}

	e.stats.recordBulk(len(victims), time.Since(start))
	return len(victims), nil
}

// CleanupMissing removes every record whose canonical path is absent from
// existing.
func (e *Engine) CleanupMissing(ctx context.Context, existing map[string]struct{}) (int, error) {
	if err := e.writable(); err != nil {
		return 0, err
	}
	var stale []string
	e.idx.forEachLocation(func(path string, _ uint64, _ location) {
		if _, ok := existing[path]; !ok {
			stale = append(stale, path)
		}
	})
	if len(stale) == 0 {
		return 0, nil
	}
	return e.BulkRemove(ctx, stale)
}

// Store inserts one file, or updates the record when its path is already
// cataloged.
func (e *Engine) Store(ctx context.Context, file models.MediaFile) (uint64, error) {
	ids, err := e.BulkStore(ctx, []models.MediaFile{file}, true)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// Update rewrites one existing file.
func (e *Engine) Update(ctx context.Context, file models.MediaFile) error {
	return e.BulkUpdate(ctx, []models.MediaFile{file})
}

// Remove drops one path; removing an unknown path is ErrNotFound.
func (e *Engine) Remove(ctx context.Context, path string) error {
	n, err := e.BulkRemove(ctx, []string{path})
	if err != nil {
		return err
	}
	if n == 0 {
		return &Error{Code: ErrNotFound, Message: "cannot remove uncataloged path", Path: path}
	}
	return nil
}

// Stats returns a point-in-time snapshot of the engine counters.
func (e *Engine) Stats() models.EngineStats {
	return e.stats.snapshot(e.idx.fileCount(), e.idx.memoryBytes()+e.cache.bytes())
}
