package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	cfg.Queues.Instance = "web-1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Worker.PoisonLimit != 5 || cfg.Worker.MessagesPerRequest != 2 {
		t.Fatalf("worker defaults %+v", cfg.Worker)
	}
	if cfg.Client.PollInterval() != 50*time.Millisecond || cfg.Client.ResponseBatchSize != 32 {
		t.Fatalf("client defaults %+v", cfg.Client)
	}
	if cfg.Worker.MaxProcessingTimeout() != 30*time.Second {
		t.Fatalf("processing timeout %s", cfg.Worker.MaxProcessingTimeout())
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "courier.json")
	data := []byte(`{"transport":{"kind":"redis","redisAddr":"cache:6379"},"queues":{"request":"jobs","instance":"api"},"worker":{"poisonLimit":3}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Kind != TransportRedis || cfg.Transport.RedisAddr != "cache:6379" {
		t.Fatalf("transport %+v", cfg.Transport)
	}
	if cfg.Queues.Request != "jobs" || cfg.ResponseQueueName() != "response-queue-api" {
		t.Fatalf("queues %+v", cfg.Queues)
	}
	if cfg.Worker.PoisonLimit != 3 || cfg.Worker.MessagesPerRequest != 2 {
		t.Fatalf("worker overlay on defaults %+v", cfg.Worker)
	}
}

func TestLoadRejectsYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "courier.yaml")
	_ = os.WriteFile(file, []byte("transport: {}"), 0644)
	if _, err := Load(file); err == nil {
		t.Fatalf("yaml should be rejected")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("COURIER_TRANSPORT", "grpc")
	t.Setenv("COURIER_GRPC_ADDR", "broker:7070")
	t.Setenv("COURIER_POISON_LIMIT", "9")
	t.Setenv("COURIER_POLL_INTERVAL_MS", "not-a-number")
	t.Setenv("COURIER_INSTANCE", "Worker_7")
	FromEnv(&cfg)
	if cfg.Transport.Kind != TransportGRPC || cfg.Transport.GRPCAddr != "broker:7070" {
		t.Fatalf("transport env %+v", cfg.Transport)
	}
	if cfg.Worker.PoisonLimit != 9 {
		t.Fatalf("poison limit env")
	}
	if cfg.Client.PollIntervalMs != 50 {
		t.Fatalf("unparsable value must be ignored")
	}
	if got := cfg.ResponseQueueName(); got != "response-queue-worker-7" {
		t.Fatalf("response queue %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown transport", func(c *Config) { c.Transport.Kind = "kafka" }, "transport kind"},
		{"unknown fsync", func(c *Config) { c.Transport.Fsync = "sometimes" }, "fsync"},
		{"bad regex", func(c *Config) { c.Transport.QueueNameRegex = "[" }, "queueNameRegex"},
		{"same queues", func(c *Config) { c.Queues.Response = c.Queues.Request }, "must differ"},
		{"zero poison", func(c *Config) { c.Worker.PoisonLimit = 0 }, "poisonLimit"},
		{"negative sweep", func(c *Config) { c.Client.MaxSweepDelayMs = -1 }, "maxSweepDelayMs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Queues.Instance = "test"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("want error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaultResponseQueueName(t *testing.T) {
	tests := map[string]string{
		"WEB01":           "response-queue-web01",
		"build_agent":     "response-queue-build-agent",
		"host.example.io": "response-queue-host-example-io",
		"":                "response-queue-local",
	}
	for in, want := range tests {
		if got := DefaultResponseQueueName(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
	long := DefaultResponseQueueName(strings.Repeat("x", 100))
	if len(long) != 63 {
		t.Fatalf("long name not truncated: %d", len(long))
	}
}

func TestInstanceNameDefaultsToHostname(t *testing.T) {
	cfg := Default()
	host, _ := os.Hostname()
	if got := cfg.InstanceName(); got != host {
		t.Fatalf("instance %q, want hostname %q", got, host)
	}
	cfg.Queues.Instance = "api-2"
	if got := cfg.InstanceName(); got != "api-2" {
		t.Fatalf("instance %q", got)
	}
}
