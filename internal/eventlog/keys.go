package eventlog

import (
	"encoding/binary"
)

var (
	logPrefix  = []byte("log/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyLogMeta builds the metadata key of a topic.
func KeyLogMeta(topic string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(topic)+len(metaSuffix))
	k = append(k, logPrefix...)
	k = append(k, topic...)
	return append(k, metaSuffix...)
}

// KeyLogEntryPrefix returns the prefix shared by every entry of a topic.
func KeyLogEntryPrefix(topic string) []byte {
	k := make([]byte, 0, len(logPrefix)+len(topic)+len(entrySeg)+8)
	k = append(k, logPrefix...)
	k = append(k, topic...)
	return append(k, entrySeg...)
}

// KeyLogEntry builds the entry key with a big-endian sequence for ordering.
func KeyLogEntry(topic string, seq uint64) []byte {
	return appendBE8(KeyLogEntryPrefix(topic), seq)
}
