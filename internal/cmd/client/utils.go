package client

import (
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/transports"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// openBackend is swapped in tests to share one in-memory transport.
var openBackend = transports.Open

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// LoadConfig resolves the effective configuration: defaults, the --config
// file, COURIER_* variables, then command-line flags.
func LoadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	override := func(flag string, dst *string) {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*dst = v
		}
	}
	override("transport", &cfg.Transport.Kind)
	override("instance", &cfg.Queues.Instance)
	override("log-level", &cfg.Log.Level)
	override("log-format", &cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

// commandLogger logs to the command's stderr so output stays parseable.
func commandLogger(cmd *cobra.Command, cfg cfgpkg.Config) logpkg.Logger {
	lvl, err := logpkg.ParseLevel(cfg.Log.Level)
	if err != nil {
		lvl = logpkg.InfoLevel
	}
	var f logpkg.Formatter = &logpkg.TextFormatter{}
	if cfg.Log.Format == "json" {
		f = &logpkg.JSONFormatter{}
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(lvl),
		logpkg.WithFormatter(f),
		logpkg.WithOutput(logpkg.NewWriterOutput(cmd.ErrOrStderr())),
	)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// decodedBody returns one of payload_json, payload_text, or payload_b64.
func decodedBody(payload []byte) map[string]any {
	out := map[string]any{}
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}
