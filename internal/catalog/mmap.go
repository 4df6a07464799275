package catalog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const (
	// headerSize is the fixed on-disk header of every mapped data file.
	headerSize = 64

	formatVersion = 1
)

// header field offsets within the 64-byte block. All fields little-endian.
const (
	hdrMagicOff      = 0  // 8 bytes
	hdrVersionOff    = 8  // u32
	hdrLogicalOff    = 12 // u64
	hdrIndexOff      = 20 // u64
	hdrBatchCountOff = 28 // u64
	// bytes [36, 64) reserved, zero
)

// mappedFile owns one append-only memory-mapped data file. The logical size
// (frontier) is an atomic counter so concurrent appenders reserve
// non-overlapping ranges; growth is the only operation that blocks them.
//
// Retired mappings are kept alive until Close so that read views handed out
// before a grow stay valid.
type mappedFile struct {
	path  string
	magic [8]byte
	file  *os.File

	mu         sync.RWMutex // guards data / mappedSize swaps during grow
	data       []byte
	mappedSize uint64
	retired    [][]byte

	logicalSize atomic.Uint64 // the frontier; first valid value is headerSize
	batchCount  atomic.Uint64
	indexOffset atomic.Uint64

	growIncrement uint64
}

// openMappedFile opens or creates the data file at path. A fresh file is
// sized to initialSize and stamped with the given magic; an existing file
// must carry the same magic and a supported format version.
func openMappedFile(path string, magic [8]byte, initialSize, growIncrement uint64) (*mappedFile, error) {
	if initialSize < headerSize {
		initialSize = headerSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat data file: %w", err)
	}

	fresh := info.Size() == 0
	size := uint64(info.Size())
	if fresh {
		size = initialSize
		if err := file.Truncate(int64(size)); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to size data file: %w", err)
		}
	} else if size < headerSize {
		file.Close()
		return nil, newError(ErrCorrupt, "data file %s shorter than header", path)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	m := &mappedFile{
		path:          path,
		magic:         magic,
		file:          file,
		data:          data,
		mappedSize:    size,
		growIncrement: growIncrement,
	}

	if fresh {
		copy(data[hdrMagicOff:], magic[:])
		binary.LittleEndian.PutUint32(data[hdrVersionOff:], formatVersion)
		m.logicalSize.Store(headerSize)
		m.writeHeader()
	} else {
		if err := m.readHeader(); err != nil {
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *mappedFile) readHeader() error {
	if string(m.data[hdrMagicOff:hdrMagicOff+8]) != string(m.magic[:]) {
		return newError(ErrCorrupt, "bad magic in %s", m.path)
	}
	version := binary.LittleEndian.Uint32(m.data[hdrVersionOff:])
	if version != formatVersion {
		return newError(ErrCorrupt, "unsupported format version %d in %s", version, m.path)
	}
	logical := binary.LittleEndian.Uint64(m.data[hdrLogicalOff:])
	if logical < headerSize || logical > m.mappedSize {
		return newError(ErrCorrupt, "logical size %d out of bounds in %s", logical, m.path)
	}
	m.logicalSize.Store(logical)
	m.indexOffset.Store(binary.LittleEndian.Uint64(m.data[hdrIndexOff:]))
	m.batchCount.Store(binary.LittleEndian.Uint64(m.data[hdrBatchCountOff:]))
	return nil
}

// writeHeader refreshes the mutable header fields from the in-memory
// counters. Callers must follow with sync for durability.
func (m *mappedFile) writeHeader() {
	binary.LittleEndian.PutUint64(m.data[hdrLogicalOff:], m.logicalSize.Load())
	binary.LittleEndian.PutUint64(m.data[hdrIndexOff:], m.indexOffset.Load())
	binary.LittleEndian.PutUint64(m.data[hdrBatchCountOff:], m.batchCount.Load())
}

// append atomically reserves len(p) bytes at the frontier, copies p into the
// mapping and returns the pre-reservation offset.
func (m *mappedFile) append(p []byte) (uint64, error) {
	n := uint64(len(p))
	if n == 0 {
		return m.logicalSize.Load(), nil
	}
	for {
		cur := m.logicalSize.Load()
		end := cur + n

		m.mu.RLock()
		mapped := m.mappedSize
		m.mu.RUnlock()

		if end > mapped {
			if err := m.grow(end); err != nil {
				return 0, err
			}
			continue
		}
		if !m.logicalSize.CompareAndSwap(cur, end) {
			continue
		}
		m.mu.RLock()
		copy(m.data[cur:end], p)
		m.mu.RUnlock()
		return cur, nil
	}
}

// read returns a zero-copy view of [offset, offset+length). The view stays
// valid for the lifetime of the mapped file, growth included.
func (m *mappedFile) read(offset, length uint64) ([]byte, error) {
	end := offset + length
	if offset < headerSize || end < offset || end > m.logicalSize.Load() {
		return nil, newError(ErrCorrupt, "read [%d,%d) out of bounds in %s", offset, end, m.path)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[offset:end], nil
}

// grow extends the file and remaps it so that at least want bytes fit. The
// old mapping is retired, not unmapped, so outstanding read views survive.
func (m *mappedFile) grow(want uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if want <= m.mappedSize {
		return nil
	}
	newSize := m.mappedSize
	for newSize < want {
		newSize += m.growIncrement
	}

	if err := m.file.Truncate(int64(newSize)); err != nil {
		return wrapError(ErrTransactionFailed, err, "failed to grow %s to %d bytes", m.path, newSize)
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return wrapError(ErrTransactionFailed, err, "failed to remap %s", m.path)
	}

	m.retired = append(m.retired, m.data)
	m.data = data
	m.mappedSize = newSize
	return nil
}

// rewind resets the frontier to offset, discarding a reservation that never
// committed. Only the single committing writer may call this.
func (m *mappedFile) rewind(offset uint64) {
	m.logicalSize.Store(offset)
}

// sync writes the header fields and durably flushes the valid prefix.
func (m *mappedFile) sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.writeHeader()
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return wrapError(ErrTransactionFailed, err, "msync %s", m.path)
	}
	return nil
}

// Close flushes, unmaps every mapping (retired included) and closes the file.
func (m *mappedFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.data != nil {
		m.writeHeader()
		if err := unix.Msync(m.data, unix.MS_SYNC); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := unix.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}
	for _, old := range m.retired {
		if err := unix.Munmap(old); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.retired = nil
	if err := m.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
