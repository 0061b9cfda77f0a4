package celfilter

import (
	"errors"
	"testing"

	"github.com/rzbill/courier/internal/transport"
)

func TestEmptyFilterMatchesEverything(t *testing.T) {
	f, err := Compile("  ")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if f.Enabled() || !f.Match(transport.PeekedMessage{}) {
		t.Fatalf("empty filter must match")
	}
}

func TestFilterVariables(t *testing.T) {
	msg := transport.PeekedMessage{
		Seq:          7,
		Body:         []byte(`{"requestId":"abc","payload":{"n":3}}`),
		Deliveries:   2,
		Leased:       true,
		EnqueuedAtMs: 1000,
	}
	tests := []struct {
		expr string
		want bool
	}{
		{"seq == 7", true},
		{"deliveries >= 5", false},
		{"leased && size > 10", true},
		{`json.payload.n == 3.0`, true},
		{`text.contains("abc")`, true},
		{"enqueued_ms < now_ms", true},
		{`json.missing == 1`, false},
		{"seq + 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if got := f.Match(msg); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestCompileRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"seq ==", "unknown > 1"} {
		if _, err := Compile(expr); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("%q: want ErrInvalidFilter, got %v", expr, err)
		}
	}
}
