package catalog

import (
	"encoding/binary"
	"hash/crc32"
)

// batchHeaderSize is the fixed header preceding every FlatBuffer payload in
// the data file.
const batchHeaderSize = 32

// maxBatchPayload caps a single batch at 2 GiB; larger inputs must split.
const maxBatchPayload = 2 << 30

// batch flags, recorded so recovery can replay the data file in order.
const (
	batchFlagInsert uint32 = 1
	batchFlagUpdate uint32 = 2
)

// batchHeader frames one atomic on-disk unit of 1..N records.
type batchHeader struct {
	BatchID     uint64
	Timestamp   uint64
	RecordCount uint32
	PayloadLen  uint32
	CRC32       uint32
	Flags       uint32
}

// encodeBatchHeader serializes h into a fresh 32-byte little-endian block.
func encodeBatchHeader(h batchHeader) []byte {
	buf := make([]byte, batchHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:], h.BatchID)
	binary.LittleEndian.PutUint64(buf[8:], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[16:], h.RecordCount)
	binary.LittleEndian.PutUint32(buf[20:], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[24:], h.CRC32)
	binary.LittleEndian.PutUint32(buf[28:], h.Flags)
	return buf
}

// decodeBatchHeader reads a header from buf, which must hold at least
// batchHeaderSize bytes.
func decodeBatchHeader(buf []byte) batchHeader {
	return batchHeader{
		BatchID:     binary.LittleEndian.Uint64(buf[0:]),
		Timestamp:   binary.LittleEndian.Uint64(buf[8:]),
		RecordCount: binary.LittleEndian.Uint32(buf[16:]),
		PayloadLen:  binary.LittleEndian.Uint32(buf[20:]),
		CRC32:       binary.LittleEndian.Uint32(buf[24:]),
		Flags:       binary.LittleEndian.Uint32(buf[28:]),
	}
}

// checksumPayload computes the IEEE CRC32 the header carries for its payload.
func checksumPayload(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// verifyBatch checks a framed batch at the start of buf and returns the
// payload view on success. A mismatching CRC or an impossible length yields
// ok=false; callers treat everything from this offset on as corrupt tail.
func verifyBatch(buf []byte) (hdr batchHeader, payload []byte, ok bool) {
	if len(buf) < batchHeaderSize {
		return batchHeader{}, nil, false
	}
	hdr = decodeBatchHeader(buf)
	if hdr.PayloadLen == 0 || uint64(hdr.PayloadLen) > uint64(len(buf)-batchHeaderSize) {
		return batchHeader{}, nil, false
	}
	payload = buf[batchHeaderSize : batchHeaderSize+int(hdr.PayloadLen)]
	if checksumPayload(payload) != hdr.CRC32 {
		return batchHeader{}, nil, false
	}
	return hdr, payload, true
}
