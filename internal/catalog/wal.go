package catalog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// WAL operation codes, as written to media.wal.
const (
	walOpBatchInsert byte = 1
	walOpBatchUpdate byte = 2
	walOpBatchRemove byte = 3
	walOpCheckpoint  byte = 4
)

// walRecordOverhead is the fixed framing around every payload:
// timestamp u64 + op u8 + length u32, then payload, then crc32 u32.
const walRecordOverhead = 8 + 1 + 4 + 4

// walRecord is one decoded entry of the write-ahead log.
type walRecord struct {
	Timestamp uint64
	Op        byte
	Payload   []byte
}

// writeAheadLog is the append-only commit journal. One record is written per
// committed batch; replay after a crash brings the indexes back to the last
// committed state.
type writeAheadLog struct {
	path string
	file *os.File
}

func openWAL(path string) (*writeAheadLog, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek wal: %w", err)
	}
	return &writeAheadLog{path: path, file: file}, nil
}

// appendRecord frames and appends one record. Durability is deferred to sync
// per the engine's sync-frequency policy.
func (w *writeAheadLog) appendRecord(op byte, payload []byte) error {
	buf := make([]byte, walRecordOverhead+len(payload))
	binary.LittleEndian.PutUint64(buf[0:], uint64(time.Now().Unix()))
	buf[8] = op
	binary.LittleEndian.PutUint32(buf[9:], uint32(len(payload)))
	copy(buf[13:], payload)
	binary.LittleEndian.PutUint32(buf[13+len(payload):], checksumPayload(payload))

	if _, err := w.file.Write(buf); err != nil {
		return wrapError(ErrTransactionFailed, err, "wal append")
	}
	return nil
}

// replay reads every intact record from the start of the log. A CRC mismatch
// or truncated frame ends the walk; records before it are still returned so
// a torn tail write never loses the committed prefix.
func (w *writeAheadLog) replay() ([]walRecord, error) {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind wal: %w", err)
	}
	raw, err := io.ReadAll(w.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read wal: %w", err)
	}

	var records []walRecord
	for off := 0; off+walRecordOverhead <= len(raw); {
		ts := binary.LittleEndian.Uint64(raw[off:])
		op := raw[off+8]
		length := int(binary.LittleEndian.Uint32(raw[off+9:]))
		end := off + 13 + length + 4
		if length < 0 || end > len(raw) {
			break
		}
		payload := raw[off+13 : off+13+length]
		crc := binary.LittleEndian.Uint32(raw[off+13+length:])
		if checksumPayload(payload) != crc {
			break
		}
		records = append(records, walRecord{Timestamp: ts, Op: op, Payload: append([]byte(nil), payload...)})
		off = end
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("failed to seek wal: %w", err)
	}
	return records, nil
}

// checkpoint truncates the log and writes a single checkpoint record carrying
// the durable frontier. Called after the index snapshot has been persisted.
func (w *writeAheadLog) checkpoint(frontier uint64) error {
	if err := w.file.Truncate(0); err != nil {
		return wrapError(ErrTransactionFailed, err, "wal truncate")
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return wrapError(ErrTransactionFailed, err, "wal seek")
	}
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, frontier)
	if err := w.appendRecord(walOpCheckpoint, payload); err != nil {
		return err
	}
	return w.sync()
}

func (w *writeAheadLog) sync() error {
	if err := w.file.Sync(); err != nil {
		return wrapError(ErrTransactionFailed, err, "wal fsync")
	}
	return nil
}

func (w *writeAheadLog) Close() error {
	return w.file.Close()
}

// encodeBatchRef builds the payload for insert/update records: the batch
// offset in the data file plus its record count.
func encodeBatchRef(offset uint64, recordCount uint32) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint64(buf[0:], offset)
	binary.LittleEndian.PutUint32(buf[8:], recordCount)
	return buf
}

func decodeBatchRef(payload []byte) (offset uint64, recordCount uint32, ok bool) {
	if len(payload) < 12 {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint64(payload[0:]), binary.LittleEndian.Uint32(payload[8:]), true
}

// encodeRemovedIDs builds the payload for remove records.
func encodeRemovedIDs(ids []uint64) []byte {
	buf := make([]byte, 4+8*len(ids))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(ids)))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[4+8*i:], id)
	}
	return buf
}

func decodeRemovedIDs(payload []byte) ([]uint64, bool) {
	if len(payload) < 4 {
		return nil, false
	}
	n := int(binary.LittleEndian.Uint32(payload[0:]))
	if len(payload) < 4+8*n {
		return nil, false
	}
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint64(payload[4+8*i:])
	}
	return ids, true
}
