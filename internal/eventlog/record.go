package eventlog

import (
	"encoding/binary"
	"hash/crc32"
)

// Entry encoding: timestampMs(8B BE) | payload | crc32c(timestamp|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func EncodeRecord(tsMs int64, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload)+4)
	out = binary.BigEndian.AppendUint64(out, uint64(tsMs))
	out = append(out, payload...)
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))
}

// DecodeRecord returns the timestamp and a copy of the payload. ok is false
// for truncated or corrupted entries.
func DecodeRecord(b []byte) (tsMs int64, payload []byte, ok bool) {
	if len(b) < 8+4 {
		return 0, nil, false
	}
	body := b[:len(b)-4]
	if crc32.Checksum(body, castagnoli) != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return 0, nil, false
	}
	return int64(binary.BigEndian.Uint64(body[:8])), append([]byte(nil), body[8:]...), true
}
