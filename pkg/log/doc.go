// Package log is courier's structured logging facade.
//
// Components take a Logger and tag themselves with Component; queue and
// request scoped entries carry QueueKey and RequestIDKey fields:
//
//	l := log.NewLogger(log.WithLevel(log.InfoLevel), log.WithFormatter(&log.TextFormatter{}))
//	l = l.With(log.Component("worker"), log.Str(log.QueueKey, "request-queue"))
//	l.Info("worker started", log.Int("batch", 2))
//
// BaseLogger sits on a log/slog Handler that hands records to a Formatter
// (JSON or text) and one or more Outputs (console, file, null). ApplyConfig
// builds a logger from a declarative Config; Redact masks field values by
// key and SampleInitial/SampleThereafter thin out repeated messages such as
// per-poll lease warnings.
//
// Pebble and gRPC write through the standard library logger, so hosts call
// RedirectStdLog once at startup. ToStdLogger adapts a Logger for APIs that
// want a *log.Logger.
package log
