package catalog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"legato/internal/catalog/fb"
	"legato/pkg/models"
)

var indexMagic = []byte("MEDIAIX1")

const indexFormatVersion = 1

// writeSnapshot persists the location index to media.idx so the next open
// skips the full data-file scan. Written atomically via rename; the caller
// holds the commit lock.
func (e *Engine) writeSnapshot() error {
	var body []byte
	var scratch [8]byte

	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:4], v)
		body = append(body, scratch[:4]...)
	}
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:], v)
		body = append(body, scratch[:]...)
	}

	u32(indexFormatVersion)
	u64(e.nextID.Load())
	u64(e.nextBatchID.Load())
	u64(e.data.logicalSize.Load())

	countAt := len(body)
	u64(0)
	count := uint64(0)
	e.idx.forEachLocation(func(path string, id uint64, loc location) {
		binary.LittleEndian.PutUint16(scratch[:2], uint16(len(path)))
		body = append(body, scratch[:2]...)
		body = append(body, path...)
		binary.LittleEndian.PutUint64(scratch[:], id)
		body = append(body, scratch[:]...)
		binary.LittleEndian.PutUint64(scratch[:], loc.Offset)
		body = append(body, scratch[:]...)
		binary.LittleEndian.PutUint64(scratch[:], loc.Length)
		body = append(body, scratch[:]...)
		binary.LittleEndian.PutUint32(scratch[:4], loc.Index)
		body = append(body, scratch[:4]...)
		count++
	})
	binary.LittleEndian.PutUint64(body[countAt:], count)

	out := make([]byte, 0, len(indexMagic)+len(body)+4)
	out = append(out, indexMagic...)
	out = append(out, body...)
	binary.LittleEndian.PutUint32(scratch[:4], crc32.ChecksumIEEE(body))
	out = append(out, scratch[:4]...)

	path := filepath.Join(e.opts.DataDir, indexFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return fmt.Errorf("failed to write index snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish index snapshot: %w", err)
	}
	return nil
}

// loadSnapshot reads media.idx and repopulates the indexes by materializing
// every record it points at. Any inconsistency fails the load; the caller
// falls back to a full scan.
func (e *Engine) loadSnapshot() error {
	raw, err := os.ReadFile(filepath.Join(e.opts.DataDir, indexFileName))
	if err != nil {
		return err
	}
	if len(raw) < len(indexMagic)+4+8*3+8+4 || string(raw[:len(indexMagic)]) != string(indexMagic) {
		return newError(ErrCorrupt, "index snapshot malformed")
	}
	body := raw[len(indexMagic) : len(raw)-4]
	crc := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if crc32.ChecksumIEEE(body) != crc {
		return newError(ErrCorrupt, "index snapshot checksum mismatch")
	}

	off := 0
	version := binary.LittleEndian.Uint32(body[off:])
	off += 4
	if version != indexFormatVersion {
		return newError(ErrCorrupt, "unsupported index snapshot version %d", version)
	}
	nextID := binary.LittleEndian.Uint64(body[off:])
	off += 8
	nextBatchID := binary.LittleEndian.Uint64(body[off:])
	off += 8
	frontier := binary.LittleEndian.Uint64(body[off:])
	off += 8
	if frontier > e.data.logicalSize.Load() {
		return newError(ErrCorrupt, "index snapshot frontier %d beyond data file", frontier)
	}
	count := binary.LittleEndian.Uint64(body[off:])
	off += 8

	for i := uint64(0); i < count; i++ {
		if off+2 > len(body) {
			return newError(ErrCorrupt, "index snapshot truncated")
		}
		pathLen := int(binary.LittleEndian.Uint16(body[off:]))
		off += 2
		if off+pathLen+28 > len(body) {
			return newError(ErrCorrupt, "index snapshot truncated")
		}
		off += pathLen // path is re-derived from the record itself
		id := binary.LittleEndian.Uint64(body[off:])
		off += 8
		loc := location{
			Offset: binary.LittleEndian.Uint64(body[off:]),
			Length: binary.LittleEndian.Uint64(body[off+8:]),
			Index:  binary.LittleEndian.Uint32(body[off+16:]),
		}
		off += 20

		f, err := e.readRecordAt(loc)
		if err != nil {
			return err
		}
		if f.ID != id {
			return newError(ErrCorrupt, "index snapshot id mismatch at offset %d", loc.Offset)
		}
		e.idx.insert(f, loc)
	}

	e.nextID.Store(nextID)
	e.nextBatchID.Store(nextBatchID)
	return nil
}

// recover brings the indexes to the last committed state: snapshot fast path
// first, full data-file scan as fallback, then WAL replay on top.
func (e *Engine) recover() error {
	snapLoaded := false
	if err := e.loadSnapshot(); err == nil {
		snapLoaded = true
	} else {
		if !os.IsNotExist(err) {
			e.logger.WithError(err).Warn("Index snapshot unusable, rebuilding from data file")
		}
		e.idx = newIndexManager()
		if err := e.rebuildFromData(); err != nil {
			return err
		}
	}
	if e.wal != nil {
		if err := e.replayWAL(snapLoaded); err != nil {
			return err
		}
	}
	return nil
}

// rebuildFromData walks every batch in the data file in commit order and
// reapplies it. A frame that fails verification ends the walk: if the WAL
// proves a commit beyond that point the catalog opens read-only, otherwise
// the broken bytes are a torn tail and the frontier is pulled back.
func (e *Engine) rebuildFromData() error {
	off := uint64(headerSize)
	end := e.data.logicalSize.Load()
	var maxID, maxBatchID uint64

	for off+batchHeaderSize <= end {
		view, err := e.data.read(off, end-off)
		if err != nil {
			return err
		}
		hdr, payload, ok := verifyBatch(view)
		if !ok {
			break
		}
		frameLen := uint64(batchHeaderSize) + uint64(hdr.PayloadLen)
		if err := e.applyScannedBatch(off, frameLen, hdr, payload); err != nil {
			return err
		}
		if hdr.BatchID > maxBatchID {
			maxBatchID = hdr.BatchID
		}
		if id := maxRecordID(payload); id > maxID {
			maxID = id
		}
		off += frameLen
	}

	if off < end {
		if e.walCommitsBeyond(off) {
			e.readOnly.Store(true)
			e.logger.WithField("offset", off).Error("Committed batch unreadable, catalog opened read-only")
		} else {
			e.logger.WithFields(logrus.Fields{
				"offset":    off,
				"discarded": end - off,
			}).Warn("Discarding torn tail write")
			e.data.rewind(off)
		}
	}

	e.nextID.Store(maxID)
	e.nextBatchID.Store(maxBatchID)
	return nil
}

// applyScannedBatch folds one verified batch into the indexes. Later batches
// override earlier ones, so replay order reproduces the committed state.
func (e *Engine) applyScannedBatch(offset, frameLen uint64, hdr batchHeader, payload []byte) error {
	batch := decodeMediaBatch(payload)
	var rec fb.MediaFile
	for j := 0; j < int(hdr.RecordCount); j++ {
		if !fileAt(batch, j, &rec) {
			return newError(ErrCorrupt, "record %d missing from batch at offset %d", j, offset)
		}
		m := fileToModel(&rec)
		loc := location{Offset: offset, Length: frameLen, Index: uint32(j)}
		e.applyRecoveredRecord(&m, loc)
	}
	return nil
}

func (e *Engine) applyRecoveredRecord(m *models.MediaFile, loc location) {
	existingID, exists := e.idx.idByPath(m.CanonicalPath)
	if !exists {
		e.idx.insert(m, loc)
		return
	}
	oldLoc, _ := e.idx.locationByID(existingID)
	old, err := e.readRecordAt(oldLoc)
	if err != nil {
		// older copy unreadable; re-register from scratch
		e.idx.remove(&models.MediaFile{ID: existingID, CanonicalPath: m.CanonicalPath, CanonicalParentPath: m.CanonicalParentPath, Filename: m.Filename})
		e.idx.insert(m, loc)
		return
	}
	if existingID == m.ID {
		e.idx.update(old, m, loc)
	} else {
		e.idx.remove(old)
		e.idx.insert(m, loc)
	}
}

// maxRecordID scans a batch payload for its highest record id.
func maxRecordID(payload []byte) uint64 {
	batch := decodeMediaBatch(payload)
	var rec fb.MediaFile
	var max uint64
	for j := 0; j < batch.FilesLength(); j++ {
		if batch.Files(&rec, j) && rec.Id() > max {
			max = rec.Id()
		}
	}
	return max
}

// walCommitsBeyond reports whether the journal records a committed batch at
// or past offset, which distinguishes real corruption from a torn tail.
func (e *Engine) walCommitsBeyond(offset uint64) bool {
	if e.wal == nil {
		return false
	}
	records, err := e.wal.replay()
	if err != nil {
		return false
	}
	for _, r := range records {
		if r.Op != walOpBatchInsert && r.Op != walOpBatchUpdate {
			continue
		}
		if ref, _, ok := decodeBatchRef(r.Payload); ok && ref >= offset {
			return true
		}
	}
	return false
}

// replayWAL reapplies journal records that postdate the last checkpoint.
// After a snapshot load this is what carries the tail commits; after a full
// scan only the removes still matter, since the scan already saw every batch.
func (e *Engine) replayWAL(snapLoaded bool) error {
	records, err := e.wal.replay()
	if err != nil {
		return err
	}
	start := 0
	for i, r := range records {
		if r.Op == walOpCheckpoint {
			start = i + 1
		}
	}

	for _, r := range records[start:] {
		switch r.Op {
		case walOpBatchInsert, walOpBatchUpdate:
			if !snapLoaded {
				// rebuildFromData already indexed every batch up to the
				// header frontier, which advances with the append itself.
				continue
			}
			offset, _, ok := decodeBatchRef(r.Payload)
			if !ok {
				return newError(ErrCorrupt, "malformed wal batch reference")
			}
			if err := e.replayBatchRef(offset); err != nil {
				return err
			}
		case walOpBatchRemove:
			ids, ok := decodeRemovedIDs(r.Payload)
			if !ok {
				return newError(ErrCorrupt, "malformed wal remove record")
			}
			for _, id := range ids {
				loc, found := e.idx.locationByID(id)
				if !found {
					continue
				}
				old, err := e.readRecordAt(loc)
				if err != nil {
					return err
				}
				// a later reinsert of the same path wins over this remove
				if cur, ok := e.idx.idByPath(old.CanonicalPath); ok && cur == id {
					e.idx.remove(old)
				}
			}
		}
	}

	// ids consumed by replayed batches must never be reissued
	var maxID uint64
	e.idx.forEachLocation(func(_ string, id uint64, _ location) {
		if id > maxID {
			maxID = id
		}
	})
	if maxID > e.nextID.Load() {
		e.nextID.Store(maxID)
	}
	return nil
}

// replayBatchRef re-reads the committed batch a journal record points at and
// folds it into the indexes.
func (e *Engine) replayBatchRef(offset uint64) error {
	end := e.data.logicalSize.Load()
	if offset >= end {
		return newError(ErrCorrupt, "wal references offset %d beyond frontier %d", offset, end)
	}
	view, err := e.data.read(offset, end-offset)
	if err != nil {
		return err
	}
	hdr, payload, ok := verifyBatch(view)
	if !ok {
		return newError(ErrCorrupt, "wal-committed batch at offset %d failed verification", offset)
	}
	frameLen := uint64(batchHeaderSize) + uint64(hdr.PayloadLen)
	if hdr.BatchID > e.nextBatchID.Load() {
		e.nextBatchID.Store(hdr.BatchID)
	}
	return e.applyScannedBatch(offset, frameLen, hdr, payload)
}
