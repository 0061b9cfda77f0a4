package broker

import (
	"encoding/binary"
)

const (
	prefixQueue    = "q/"
	prefixMeta     = "qmeta/"
	segSeq         = "seq"
	segMsg         = "msg/"
	segReady       = "ready/"
	segLease       = "lease/"
	segLeaseIdx    = "lease_idx/"
	leaseValueSize = 8 + 16
)

func queuePrefix(name string) []byte {
	k := make([]byte, 0, len(prefixQueue)+len(name)+1)
	k = append(k, prefixQueue...)
	k = append(k, name...)
	return append(k, '/')
}

func segPrefix(name, seg string) []byte {
	return append(queuePrefix(name), seg...)
}

func appendBE8(k []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(k, b[:]...)
}

// SeqKey holds the last sequence assigned in the queue.
func SeqKey(name string) []byte { return segPrefix(name, segSeq) }

// MsgKey returns the record key of a message.
func MsgKey(name string, seq uint64) []byte { return appendBE8(MsgPrefix(name), seq) }

// MsgPrefix returns the prefix of all message records of a queue.
func MsgPrefix(name string) []byte { return segPrefix(name, segMsg) }

// ReadyKey marks seq as visible.
func ReadyKey(name string, seq uint64) []byte { return appendBE8(ReadyPrefix(name), seq) }

// ReadyPrefix returns the prefix of the ready index.
func ReadyPrefix(name string) []byte { return segPrefix(name, segReady) }

// LeaseKey holds the active lease of seq.
func LeaseKey(name string, seq uint64) []byte { return appendBE8(LeasePrefix(name), seq) }

// LeasePrefix returns the prefix of active leases.
func LeasePrefix(name string) []byte { return segPrefix(name, segLease) }

// LeaseIdxKey orders leases by expiry.
func LeaseIdxKey(name string, expiryMs uint64, seq uint64) []byte {
	return appendBE8(appendBE8(LeaseIdxPrefix(name), expiryMs), seq)
}

// LeaseIdxPrefix returns the prefix of the lease expiry index.
func LeaseIdxPrefix(name string) []byte { return segPrefix(name, segLeaseIdx) }

// MetaKey is the registry record of a queue.
func MetaKey(name string) []byte {
	k := make([]byte, 0, len(prefixMeta)+len(name))
	k = append(k, prefixMeta...)
	return append(k, name...)
}

// seqSuffix reads the trailing 8-byte sequence of an index key.
func seqSuffix(key []byte) (uint64, bool) {
	if len(key) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), true
}

func encodeLease(expiryMs uint64, receipt [16]byte) []byte {
	v := make([]byte, leaseValueSize)
	binary.BigEndian.PutUint64(v[0:8], expiryMs)
	copy(v[8:], receipt[:])
	return v
}

func decodeLease(v []byte) (expiryMs uint64, receipt [16]byte, ok bool) {
	if len(v) != leaseValueSize {
		return 0, receipt, false
	}
	copy(receipt[:], v[8:])
	return binary.BigEndian.Uint64(v[0:8]), receipt, true
}
