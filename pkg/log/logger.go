package log

import "time"

// Level is the severity of an entry.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Well-known field keys shared by the queue, rpc and server packages.
const (
	ComponentKey = "component"
	QueueKey     = "queue"
	RequestIDKey = "request_id"
	InstanceKey  = "instance"
)

// Entry is one formatted log line before it reaches the outputs.
type Entry struct {
	Level     Level
	Message   string
	Fields    map[string]any
	Timestamp time.Time
	Caller    string
}

// Logger is the logging surface every courier component takes.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs and exits the process.
	Fatal(msg string, fields ...Field)

	// With returns a child carrying fields on every entry.
	With(fields ...Field) Logger
	WithComponent(component string) Logger
	WithError(err error) Logger

	// SetLevel changes the minimum level of this logger only; parents and
	// previously derived children keep theirs.
	SetLevel(level Level)
	GetLevel() Level
}

// Formatter renders an entry into bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives every formatted entry.
type Output interface {
	Write(entry *Entry, formatted []byte) error
	Close() error
}

type LoggerOption func(*BaseLogger)

// BaseLogger implements Logger on top of a slog.Handler that feeds the
// configured formatter and outputs.
type BaseLogger struct {
	level     Level
	formatter Formatter
	outputs   []Output
	handler   *bridgeHandler
}

// NewLogger builds a logger. Defaults: info level, JSON, stderr.
func NewLogger(options ...LoggerOption) Logger {
	l := &BaseLogger{level: InfoLevel, formatter: &JSONFormatter{}}
	for _, opt := range options {
		opt(l)
	}
	if len(l.outputs) == 0 {
		l.outputs = []Output{NewConsoleOutput()}
	}
	l.handler = &bridgeHandler{sink: l}
	return l
}

func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.level = level }
}

func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.formatter = formatter }
}

// WithOutput adds an output; it may be given more than once.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, output) }
}
