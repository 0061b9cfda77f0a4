package eventlog

import (
	"testing"
)

func payloads(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it.Payload)
	}
	return out
}

func TestReadForwardAndReverse(t *testing.T) {
	l := newTestLog(t)
	appendN(t, l, "a", "b", "c", "d")

	tests := []struct {
		name string
		opts ReadOptions
		want []string
	}{
		{"all", ReadOptions{}, []string{"a", "b", "c", "d"}},
		{"limit", ReadOptions{Limit: 2}, []string{"a", "b"}},
		{"start", ReadOptions{Start: 3}, []string{"c", "d"}},
		{"reverse", ReadOptions{Reverse: true, Limit: 3}, []string{"d", "c", "b"}},
		{"reverse from", ReadOptions{Reverse: true, Start: 2}, []string{"b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := l.Read(tt.opts)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			got := payloads(items)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v want %v", got, tt.want)
				}
			}
		})
	}
}

func TestReadCarriesTimestamp(t *testing.T) {
	l := newTestLog(t)
	appendN(t, l, "a")
	items, err := l.Read(ReadOptions{})
	if err != nil || len(items) != 1 {
		t.Fatalf("read: %v %v", items, err)
	}
	if items[0].Seq != 1 || items[0].TimestampMs <= 0 {
		t.Fatalf("unexpected item: %+v", items[0])
	}
}
