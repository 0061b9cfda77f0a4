package pebblestore

import (
	"fmt"
	"strings"

	logpkg "github.com/rzbill/courier/pkg/log"
)

// pebbleLogger adapts a Logger to pebble.Logger.
type pebbleLogger struct {
	l logpkg.Logger
}

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
