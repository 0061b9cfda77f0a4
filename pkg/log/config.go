package log

import (
	"fmt"
	"strings"
)

// Config declares a logger: level, format and outputs.
type Config struct {
	Level   string         `json:"level"`
	Format  string         `json:"format"`
	Outputs []OutputConfig `json:"outputs,omitempty"`
	// Redact lists field keys whose values are replaced with [REDACTED].
	Redact []string `json:"redact,omitempty"`
	// SampleInitial entries per message are kept, then one in SampleThereafter.
	SampleInitial    int `json:"sampleInitial,omitempty"`
	SampleThereafter int `json:"sampleThereafter,omitempty"`
}

// OutputConfig selects an Output: console (default), file or null.
type OutputConfig struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// ParseLevel maps a level name to a Level. The empty string means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			if oc.Path == "" {
				return nil, fmt.Errorf("log: file output requires a path")
			}
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			return nil, fmt.Errorf("log: unknown output %q", oc.Type)
		}
	}
	l := NewLogger(opts...).(*BaseLogger)
	if len(cfg.Redact) > 0 {
		l.handler.redactions = make(map[string]struct{}, len(cfg.Redact))
		for _, k := range cfg.Redact {
			l.handler.redactions[k] = struct{}{}
		}
	}
	if cfg.SampleThereafter > 0 {
		l.handler.sampler = newSampler(cfg.SampleInitial, cfg.SampleThereafter)
	}
	return l, nil
}
