package eventlog

import (
	"context"
	"testing"
	"time"
)

func TestTrimToCountKeepsNewest(t *testing.T) {
	l := newTestLog(t)
	appendN(t, l, "a", "b", "c", "d", "e")
	n, err := l.TrimToCount(context.Background(), 2)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted %d, want 3", n)
	}
	items, _ := l.Read(ReadOptions{})
	if got := payloads(items); len(got) != 2 || got[0] != "d" || got[1] != "e" {
		t.Fatalf("unexpected remainder: %v", got)
	}
	if n, _ := l.TrimToCount(context.Background(), 10); n != 0 {
		t.Fatalf("nothing should be trimmed, got %d", n)
	}
}

func TestTrimOlderThan(t *testing.T) {
	l := newTestLog(t)
	base := time.UnixMilli(1_000_000)
	l.now = func() time.Time { return base }
	appendN(t, l, "old1", "old2")
	l.now = func() time.Time { return base.Add(time.Minute) }
	appendN(t, l, "new")

	n, err := l.TrimOlderThan(context.Background(), base.Add(time.Second).UnixMilli())
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}
	items, _ := l.Read(ReadOptions{})
	if got := payloads(items); len(got) != 1 || got[0] != "new" {
		t.Fatalf("unexpected remainder: %v", got)
	}
}
