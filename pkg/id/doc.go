// Package id generates lease receipts: 16-byte values that sort in the
// order they were issued.
//
// The first eight bytes hold the issuing clock's unix milliseconds and the
// last eight a per-millisecond counter, both big-endian. A Generator never
// goes backwards: a regressed clock reuses the last millisecond with a
// higher counter, and a saturated counter blocks until the clock ticks.
//
// Queue backends stamp every lease with a fresh ID. A delete must present
// the receipt of the current lease, so a handle held past its lease expiry
// (the message was reclaimed and perhaps leased again) is rejected.
//
//	g := id.NewGeneratorWithClock(now)
//	receipt := g.Next()
//	s := receipt.String()    // 32-char hex, safe inside handles
//	back, err := id.Parse(s) // round-trips String
package id
