package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/courier/internal/probe"
	"github.com/rzbill/courier/internal/recorder"
	"github.com/rzbill/courier/internal/rpc"
	"github.com/rzbill/courier/internal/transport/memq"
)

type funcSubmitter func(ctx context.Context, req probe.Request) (probe.Response, error)

func (f funcSubmitter) Submit(ctx context.Context, req probe.Request) (probe.Response, error) {
	return f(ctx, req)
}

func echo(delay time.Duration) funcSubmitter {
	return func(_ context.Context, req probe.Request) (probe.Response, error) {
		return probe.Response{RequestNumber: req.RequestNumber, StartTime: req.StartTime.Add(-delay)}, nil
	}
}

func TestRunAveragesSuccessfulLatency(t *testing.T) {
	var calls int
	var mu sync.Mutex
	s := funcSubmitter(func(ctx context.Context, req probe.Request) (probe.Response, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if req.RequestNumber%2 == 1 {
			return probe.Response{}, errors.New("boom")
		}
		return echo(20*time.Millisecond)(ctx, req)
	})

	res, err := Run(context.Background(), s, Options{Requests: 4})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 4 || res.Succeeded != 2 || res.Failed != 2 {
		t.Fatalf("unexpected counts: calls=%d %+v", calls, res)
	}
	if res.AvgLatency < 20*time.Millisecond {
		t.Fatalf("avg latency %v below the injected delay", res.AvgLatency)
	}
}

func TestRunWithoutSuccessReturnsErrNoResults(t *testing.T) {
	s := funcSubmitter(func(context.Context, probe.Request) (probe.Response, error) {
		return probe.Response{}, rpc.ErrTimeout
	})
	res, err := Run(context.Background(), s, Options{Requests: 3})
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("want ErrNoResults, got %v", err)
	}
	if res.Failed != 3 {
		t.Fatalf("failed %d", res.Failed)
	}
	if _, err := Run(context.Background(), s, Options{}); err == nil {
		t.Fatalf("zero requests should be rejected")
	}
}

func TestRunPacesSubmissions(t *testing.T) {
	start := time.Now()
	if _, err := Run(context.Background(), echo(0), Options{Requests: 5, TPS: 100}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Fatalf("5 requests at 100 tps finished in %v", elapsed)
	}
}

type memorySink struct {
	mu         sync.Mutex
	latency    []recorder.Latency
	exceptions []string
}

func (s *memorySink) RecordLatency(_ context.Context, l recorder.Latency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = append(s.latency, l)
	return nil
}

func (s *memorySink) RecordException(_ context.Context, instance string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append(s.exceptions, instance+": "+err.Error())
	return nil
}

func TestLoopRecordsEveryRound(t *testing.T) {
	// One request per round, so rounds run strictly one after another.
	round := 0
	s := funcSubmitter(func(ctx context.Context, req probe.Request) (probe.Response, error) {
		round++
		if round == 2 {
			return probe.Response{}, errors.New("down")
		}
		return echo(time.Millisecond)(ctx, req)
	})
	sink := &memorySink{}
	err := Loop(context.Background(), s, sink, LoopOptions{Options: Options{Requests: 1}, Instance: "bench", Rounds: 3})
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	if len(sink.latency) != 2 || len(sink.exceptions) != 1 {
		t.Fatalf("unexpected sink contents: %+v", sink)
	}
	if sink.latency[0].Instance != "bench" || sink.latency[0].TotalRequests != 1 {
		t.Fatalf("unexpected latency entry: %+v", sink.latency[0])
	}
}

func TestQueueSubmitterEndToEnd(t *testing.T) {
	tr := memq.New()
	t.Cleanup(func() { _ = tr.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wopts := rpc.DefaultWorkerOptions()
	wopts.DelayWhenNothingInQueue = 5 * time.Millisecond
	w, err := rpc.NewWorker[probe.Request, probe.Response](tr, "requests", probe.Handler(nil), wopts)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := w.Initialize(ctx); err != nil {
		t.Fatalf("init worker: %v", err)
	}
	wctx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(wctx) }()
	defer func() { stop(); <-done }()

	c, err := rpc.NewClient[probe.Request, probe.Response](tr,
		rpc.QueueNames{RequestQueue: "requests", ResponseQueue: "response-queue-bench"},
		rpc.ClientOptions{PollInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("init client: %v", err)
	}

	res, err := Run(ctx, QueueSubmitter{Client: c, Timeout: 2 * time.Second}, Options{Requests: 10, TPS: 500})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Succeeded != 10 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestHTTPSubmitter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/probe" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req probe.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.RequestNumber == 99 {
			http.Error(w, "request timed out", http.StatusGatewayTimeout)
			return
		}
		resp, _ := probe.Handler(nil)(r.Context(), req)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL+"/", time.Second)
	resp, err := s.Submit(context.Background(), probe.Request{RequestNumber: 4, StartTime: time.Now()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.RequestNumber != 4 || resp.ProcessingCompletionTime.IsZero() {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, err := s.Submit(context.Background(), probe.Request{RequestNumber: 99}); err == nil {
		t.Fatalf("expected error for 504")
	}
}
