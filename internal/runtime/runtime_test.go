package runtime

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/recorder"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
)

func openTestRuntime(t *testing.T, dir string) *Runtime {
	t.Helper()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openTestRuntime(t, t.TempDir())
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestBrokerAndRecorderShareStorage(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	rt := openTestRuntime(t, dir)
	if _, err := rt.Broker().EnsureQueue(ctx, "jobs"); err != nil {
		t.Fatalf("ensure queue: %v", err)
	}
	if err := rt.Recorder().RecordLatency(ctx, recorder.Latency{Instance: "bench", TotalRequests: 3}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt = openTestRuntime(t, dir)
	defer rt.Close()
	queues, err := rt.Broker().ListQueues()
	if err != nil || len(queues) != 1 || queues[0].Name != "jobs" {
		t.Fatalf("queues after reopen: %v %v", queues, err)
	}
	got, err := rt.Recorder().RecentLatency(1)
	if err != nil || len(got) != 1 || got[0].TotalRequests != 3 {
		t.Fatalf("latency after reopen: %v %v", got, err)
	}
}

func TestParseFsync(t *testing.T) {
	for in, want := range map[string]pebblestore.FsyncMode{
		"always":   pebblestore.FsyncModeAlways,
		"interval": pebblestore.FsyncModeInterval,
		"":         pebblestore.FsyncModeInterval,
		"never":    pebblestore.FsyncModeNever,
	} {
		got, err := ParseFsync(in)
		if err != nil || got != want {
			t.Fatalf("ParseFsync(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFsync("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Queues.Instance = "Bench_1"
	cfg.Client.PollIntervalMs = 25
	cfg.Worker.PoisonLimit = 7

	co := ClientOptions(cfg, nil)
	if co.PollInterval != 25*time.Millisecond {
		t.Fatalf("poll interval %v", co.PollInterval)
	}
	if wo := WorkerOptions(cfg, nil); wo.PoisonLimit != 7 {
		t.Fatalf("poison limit %d", wo.PoisonLimit)
	}
	names := QueueNames(cfg)
	if names.RequestQueue != cfg.Queues.Request || names.ResponseQueue != "response-queue-bench-1" {
		t.Fatalf("unexpected names: %+v", names)
	}
}
