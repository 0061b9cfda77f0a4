package id

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrInvalid is returned when a string is not a 32-character hex ID.
var ErrInvalid = errors.New("id: invalid identifier")

// ID is [8 bytes unix ms][8 bytes sequence], big-endian, so byte order is
// generation order.
type ID [16]byte

// String returns the 32-character lowercase hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Parse decodes the form produced by String.
func Parse(s string) (ID, error) {
	var out ID
	if len(s) != 2*len(out) {
		return ID{}, ErrInvalid
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return ID{}, ErrInvalid
	}
	return out, nil
}

// Generator hands out strictly increasing IDs. It is safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	now    func() time.Time
	lastMs int64
	seq    uint64
}

func NewGenerator() *Generator { return NewGeneratorWithClock(time.Now) }

// NewGeneratorWithClock uses now as the time source; queue backends pass
// the clock they use for lease expiry.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next returns the next ID. A clock that moves backwards is pinned to the
// last millisecond seen; an exhausted sequence waits for the next one.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	switch {
	case ms > g.lastMs:
		g.seq = 0
	case g.seq < math.MaxUint64:
		ms = g.lastMs
		g.seq++
	default:
		for ms <= g.lastMs {
			time.Sleep(time.Millisecond / 8)
			ms = g.now().UnixMilli()
		}
		g.seq = 0
	}
	g.lastMs = ms

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:16], g.seq)
	return out
}
