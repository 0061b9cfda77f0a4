package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/recorder"
	"github.com/rzbill/courier/internal/rpc"
	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/memq"
	"github.com/rzbill/courier/internal/transports"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// sharedBackend outlives every command that opens it.
type sharedBackend struct{ transports.Backend }

func (sharedBackend) Close() error { return nil }

func useSharedBackend(t *testing.T) *memq.Transport {
	t.Helper()
	mq := memq.New()
	prev := openBackend
	openBackend = func(context.Context, cfgpkg.TransportConfig, logpkg.Logger) (transports.Backend, error) {
		return sharedBackend{mq}, nil
	}
	t.Cleanup(func() {
		openBackend = prev
		_ = mq.Close()
	})
	return mq
}

func execute(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	root := NewRoot(func() string { return baseURL })
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func enqueue(t *testing.T, tr transport.Transport, queue string, bodies ...string) {
	t.Helper()
	q, err := tr.Queue(queue)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	ctx := context.Background()
	if err := q.EnsureExists(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, b := range bodies {
		if err := q.Enqueue(ctx, []byte(b)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
}

func TestSubmitRoundTrip(t *testing.T) {
	mq := useSharedBackend(t)
	cfg := cfgpkg.Default()
	cfg.Worker.IdleDelayMs = 5

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runProbeWorkers(ctx, mq, cfg, 1, logpkg.NewNopLogger()) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("workers: %v", err)
		}
	}()

	out, err := execute(t, "", "submit", "--transport", "memory", "--instance", "cli-test",
		"--data", `{"requestNumber":7,"startTime":"2024-01-01T00:00:00Z"}`)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(out, `"requestNumber":7`) || !strings.Contains(out, "processingCompletionTime") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSubmitTimesOutWithoutWorker(t *testing.T) {
	useSharedBackend(t)
	_, err := execute(t, "", "submit", "--transport", "memory", "--instance", "cli-test",
		"--timeout", "50ms", "--data", `"A"`)
	if !errors.Is(err, rpc.ErrTimeout) {
		t.Fatalf("want timeout, got %v", err)
	}
}

func TestSubmitRejectsInvalidJSON(t *testing.T) {
	useSharedBackend(t)
	if _, err := execute(t, "", "submit", "--transport", "memory", "--data", "{oops"); err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestBenchPrintsRound(t *testing.T) {
	useSharedBackend(t)
	out, err := execute(t, "", "bench", "--transport", "memory", "--instance", "bench-test",
		"--workers", "2", "--requests", "4", "--tps", "0", "--rounds", "1")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	var got recorder.Latency
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Instance != "bench-test" || got.TotalRequests != 4 || got.Succeeded != 4 {
		t.Fatalf("unexpected round %+v", got)
	}
}

func TestBenchRecordsToResultsDir(t *testing.T) {
	useSharedBackend(t)
	dir := t.TempDir()
	out, err := execute(t, "", "bench", "--transport", "memory", "--instance", "bench-test",
		"--workers", "1", "--requests", "2", "--tps", "0", "--rounds", "1", "--results-dir", dir)
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	if out != "" {
		t.Fatalf("recorded rounds should not be printed: %q", out)
	}
}

func TestBenchRejectsUnknownVia(t *testing.T) {
	useSharedBackend(t)
	if _, err := execute(t, "", "bench", "--transport", "memory", "--via", "smoke"); err == nil {
		t.Fatal("expected an error for an unknown --via")
	}
}

func TestStatsDefaultsToRequestQueue(t *testing.T) {
	mq := useSharedBackend(t)
	enqueue(t, mq, "request-queue", "a", "b")

	out, err := execute(t, "", "stats", "--transport", "memory")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var st transport.QueueStats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if st.Queue != "request-queue" || st.Ready != 2 || st.InFlight != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPeekAppliesFilter(t *testing.T) {
	mq := useSharedBackend(t)
	enqueue(t, mq, "jobs", `{"n":1}`, `{"n":3}`)

	out, err := execute(t, "", "peek", "--transport", "memory", "--queue", "jobs", "--filter", "json.n > 2.0")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	dec := json.NewDecoder(strings.NewReader(out))
	var rows []map[string]any
	for dec.More() {
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			t.Fatalf("decode: %v", err)
		}
		rows = append(rows, row)
	}
	if len(rows) != 1 {
		t.Fatalf("want 1 row, got %d: %q", len(rows), out)
	}
	body, ok := rows[0]["payload_json"].(map[string]any)
	if !ok || body["n"] != 3.0 {
		t.Fatalf("unexpected row %v", rows[0])
	}
}

func TestPeekMissingQueue(t *testing.T) {
	useSharedBackend(t)
	_, err := execute(t, "", "peek", "--transport", "memory", "--queue", "absent")
	if !errors.Is(err, transport.ErrQueueNotFound) {
		t.Fatalf("want queue not found, got %v", err)
	}
}

func TestResultsReadsFrontEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/results" || r.URL.Query().Get("limit") != "3" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"latency":[],"exceptions":[]}`))
	}))
	defer srv.Close()

	out, err := execute(t, srv.URL, "results", "--limit", "3")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if !strings.Contains(out, `"latency"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestResultsReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := execute(t, srv.URL, "results")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("want error with body, got %v", err)
	}
}

func TestLoadConfigRejectsUnknownTransport(t *testing.T) {
	_, err := execute(t, "", "stats", "--transport", "kafka")
	if err == nil || !strings.Contains(err.Error(), "transport kind") {
		t.Fatalf("want transport kind error, got %v", err)
	}
}

func TestDecodedBody(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		key     string
	}{
		{"json object", []byte(`{"a":1}`), "payload_json"},
		{"json array", []byte(`[1,2]`), "payload_json"},
		{"broken json is text", []byte(`{"a":`), "payload_text"},
		{"text", []byte("hello"), "payload_text"},
		{"binary", []byte{0xff, 0xfe, 0x00}, "payload_b64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodedBody(tt.payload)
			if _, ok := got[tt.key]; !ok || len(got) != 1 {
				t.Fatalf("got %v, want key %s", got, tt.key)
			}
		})
	}
}
