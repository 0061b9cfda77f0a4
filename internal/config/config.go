package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Transport kinds understood by the transports package.
const (
	TransportMemory = "memory"
	TransportPebble = "pebble"
	TransportGRPC   = "grpc"
	TransportRedis  = "redis"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Transport TransportConfig `json:"transport"`
	Queues    QueuesConfig    `json:"queues"`
	Client    ClientConfig    `json:"client"`
	Worker    WorkerConfig    `json:"worker"`
	Broker    BrokerConfig    `json:"broker"`
	Log       LogConfig       `json:"log"`
}

// TransportConfig selects and addresses the queue backend.
type TransportConfig struct {
	Kind string `json:"kind"`
	// DataDir is the data root shared with the broker host; the Pebble
	// store lives in its store subdirectory. DataDir and Fsync apply to the
	// pebble transport.
	DataDir string `json:"dataDir"`
	Fsync   string `json:"fsync"`
	// GRPCAddr is the broker address dialed by the grpc transport.
	GRPCAddr string `json:"grpcAddr"`
	// RedisAddr and RedisPrefix apply to the redis transport.
	RedisAddr      string `json:"redisAddr"`
	RedisPrefix    string `json:"redisPrefix"`
	QueueNameRegex string `json:"queueNameRegex"`
}

// QueuesConfig names the request queue and this instance's reply queue.
type QueuesConfig struct {
	Request string `json:"request"`
	// Response overrides the reply queue derived from Instance.
	Response string `json:"response"`
	// Instance identifies this client; defaults to the hostname.
	Instance string `json:"instance"`
}

// ClientConfig tunes the request submitter and its response poller.
type ClientConfig struct {
	PollIntervalMs    int `json:"pollIntervalMs"`
	ResponseBatchSize int `json:"responseBatchSize"`
	ResponseLeaseMs   int `json:"responseLeaseMs"`
	MaxSweepDelayMs   int `json:"maxSweepDelayMs"`
	RequestTimeoutMs  int `json:"requestTimeoutMs"`
}

// WorkerConfig tunes the request worker.
type WorkerConfig struct {
	IdleDelayMs            int `json:"idleDelayMs"`
	PoisonLimit            int `json:"poisonLimit"`
	MessagesPerRequest     int `json:"messagesPerRequest"`
	MaxProcessingTimeoutMs int `json:"maxProcessingTimeoutMs"`
}

// BrokerConfig configures the broker host.
type BrokerConfig struct {
	GRPCAddr        string `json:"grpcAddr"`
	HTTPAddr        string `json:"httpAddr"`
	SweepIntervalMs int    `json:"sweepIntervalMs"`
}

// LogConfig is the subset of logging options exposed through config.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			Kind:        TransportPebble,
			Fsync:       "interval",
			GRPCAddr:    "127.0.0.1:7070",
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "courier",
		},
		Queues: QueuesConfig{Request: "request-queue"},
		Client: ClientConfig{
			PollIntervalMs:    50,
			ResponseBatchSize: 32,
			ResponseLeaseMs:   5000,
			RequestTimeoutMs:  30000,
		},
		Worker: WorkerConfig{
			IdleDelayMs:            100,
			PoisonLimit:            5,
			MessagesPerRequest:     2,
			MaxProcessingTimeoutMs: 30000,
		},
		Broker: BrokerConfig{
			GRPCAddr:        ":7070",
			HTTPAddr:        ":7080",
			SweepIntervalMs: 500,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON file on top of the defaults. If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Transport.Kind {
	case TransportMemory, TransportPebble, TransportGRPC, TransportRedis:
	default:
		return fmt.Errorf("config: unknown transport kind %q", c.Transport.Kind)
	}
	switch c.Transport.Fsync {
	case "", "always", "interval", "never":
	default:
		return fmt.Errorf("config: unknown fsync mode %q", c.Transport.Fsync)
	}
	if c.Transport.QueueNameRegex != "" {
		if _, err := regexp.Compile(c.Transport.QueueNameRegex); err != nil {
			return fmt.Errorf("config: queueNameRegex: %w", err)
		}
	}
	if c.Queues.Request == "" {
		return errors.New("config: queues.request is required")
	}
	if c.Queues.Request == c.ResponseQueueName() {
		return errors.New("config: request and response queue must differ")
	}
	positive := map[string]int{
		"client.pollIntervalMs":         c.Client.PollIntervalMs,
		"client.responseBatchSize":      c.Client.ResponseBatchSize,
		"client.responseLeaseMs":        c.Client.ResponseLeaseMs,
		"client.requestTimeoutMs":       c.Client.RequestTimeoutMs,
		"worker.idleDelayMs":            c.Worker.IdleDelayMs,
		"worker.poisonLimit":            c.Worker.PoisonLimit,
		"worker.messagesPerRequest":     c.Worker.MessagesPerRequest,
		"worker.maxProcessingTimeoutMs": c.Worker.MaxProcessingTimeoutMs,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", name, v)
		}
	}
	if c.Client.MaxSweepDelayMs < 0 {
		return fmt.Errorf("config: client.maxSweepDelayMs must not be negative")
	}
	return nil
}

// ResponseQueueName returns the reply queue of this instance.
func (c Config) ResponseQueueName() string {
	if c.Queues.Response != "" {
		return c.Queues.Response
	}
	return DefaultResponseQueueName(c.InstanceName())
}

// InstanceName returns Queues.Instance, defaulting to the hostname.
func (c Config) InstanceName() string {
	if c.Queues.Instance != "" {
		return c.Queues.Instance
	}
	h, _ := os.Hostname()
	return h
}

// DefaultResponseQueueName derives a per-instance reply queue name that
// satisfies the default queue name pattern.
func DefaultResponseQueueName(instance string) string {
	instance = strings.ToLower(strings.TrimSpace(instance))
	instance = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, instance)
	if instance == "" {
		instance = "local"
	}
	name := "response-queue-" + instance
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c ClientConfig) PollInterval() time.Duration   { return ms(c.PollIntervalMs) }
func (c ClientConfig) ResponseLease() time.Duration  { return ms(c.ResponseLeaseMs) }
func (c ClientConfig) MaxSweepDelay() time.Duration  { return ms(c.MaxSweepDelayMs) }
func (c ClientConfig) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMs) }

func (w WorkerConfig) IdleDelay() time.Duration            { return ms(w.IdleDelayMs) }
func (w WorkerConfig) MaxProcessingTimeout() time.Duration { return ms(w.MaxProcessingTimeoutMs) }

func (b BrokerConfig) SweepInterval() time.Duration { return ms(b.SweepIntervalMs) }
