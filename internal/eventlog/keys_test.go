package eventlog

import (
	"bytes"
	"testing"
)

func TestKeyOrderingEntries(t *testing.T) {
	a := KeyLogEntry("results", 10)
	b := KeyLogEntry("results", 11)
	if !bytes.HasPrefix(a, KeyLogEntryPrefix("results")) {
		t.Fatalf("entry key should carry the topic prefix")
	}
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected seq 10 < seq 11")
	}
	if bytes.HasPrefix(KeyLogEntry("results-2", 1), KeyLogEntryPrefix("results")) {
		t.Fatalf("topics must not share entry prefixes")
	}
}
