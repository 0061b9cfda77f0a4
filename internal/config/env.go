package config

import (
	"os"
	"strconv"
)

// FromEnv overlays COURIER_* environment variables onto cfg. Values that do
// not parse are ignored.
func FromEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("COURIER_TRANSPORT", &cfg.Transport.Kind)
	str("COURIER_DATA_DIR", &cfg.Transport.DataDir)
	str("COURIER_FSYNC", &cfg.Transport.Fsync)
	str("COURIER_GRPC_ADDR", &cfg.Transport.GRPCAddr)
	str("COURIER_REDIS_ADDR", &cfg.Transport.RedisAddr)
	str("COURIER_REDIS_PREFIX", &cfg.Transport.RedisPrefix)
	str("COURIER_QUEUE_NAME_REGEX", &cfg.Transport.QueueNameRegex)

	str("COURIER_REQUEST_QUEUE", &cfg.Queues.Request)
	str("COURIER_RESPONSE_QUEUE", &cfg.Queues.Response)
	str("COURIER_INSTANCE", &cfg.Queues.Instance)

	num("COURIER_POLL_INTERVAL_MS", &cfg.Client.PollIntervalMs)
	num("COURIER_RESPONSE_BATCH_SIZE", &cfg.Client.ResponseBatchSize)
	num("COURIER_RESPONSE_LEASE_MS", &cfg.Client.ResponseLeaseMs)
	num("COURIER_MAX_SWEEP_DELAY_MS", &cfg.Client.MaxSweepDelayMs)
	num("COURIER_REQUEST_TIMEOUT_MS", &cfg.Client.RequestTimeoutMs)

	num("COURIER_WORKER_IDLE_DELAY_MS", &cfg.Worker.IdleDelayMs)
	num("COURIER_POISON_LIMIT", &cfg.Worker.PoisonLimit)
	num("COURIER_MESSAGES_PER_REQUEST", &cfg.Worker.MessagesPerRequest)
	num("COURIER_MAX_PROCESSING_TIMEOUT_MS", &cfg.Worker.MaxProcessingTimeoutMs)

	str("COURIER_BROKER_GRPC_ADDR", &cfg.Broker.GRPCAddr)
	str("COURIER_HTTP_ADDR", &cfg.Broker.HTTPAddr)
	num("COURIER_SWEEP_INTERVAL_MS", &cfg.Broker.SweepIntervalMs)

	str("COURIER_LOG_LEVEL", &cfg.Log.Level)
	str("COURIER_LOG_FORMAT", &cfg.Log.Format)
}
