package broker

import (
	"encoding/binary"
	"hash/crc32"
)

// Message record: headerLen(4B BE) | header | payload | crc32c(header|payload)
// Header: deliveries(4B BE) | enqueuedAtMs(8B BE)

const headerSize = 4 + 8

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Record is a stored message.
type Record struct {
	Deliveries   uint32
	EnqueuedAtMs int64
	Payload      []byte
}

func EncodeRecord(r Record) []byte {
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], r.Deliveries)
	binary.BigEndian.PutUint64(header[4:12], uint64(r.EnqueuedAtMs))

	out := make([]byte, 0, 4+headerSize+len(r.Payload)+4)
	out = binary.BigEndian.AppendUint32(out, headerSize)
	out = append(out, header[:]...)
	out = append(out, r.Payload...)
	crc := crc32.Update(0, castagnoli, header[:])
	crc = crc32.Update(crc, castagnoli, r.Payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

// DecodeRecord parses b. It reports false for truncated or corrupted records.
func DecodeRecord(b []byte) (Record, bool) {
	if len(b) < 8 {
		return Record{}, false
	}
	hlen := binary.BigEndian.Uint32(b[:4])
	if hlen < headerSize || int(4+hlen+4) > len(b) {
		return Record{}, false
	}
	headerEnd := 4 + int(hlen)
	header := b[4:headerEnd]
	payload := b[headerEnd : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return Record{}, false
	}
	return Record{
		Deliveries:   binary.BigEndian.Uint32(header[0:4]),
		EnqueuedAtMs: int64(binary.BigEndian.Uint64(header[4:12])),
		Payload:      append([]byte(nil), payload...),
	}, true
}
