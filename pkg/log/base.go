package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// log builds the slog record by hand so the recorded PC points at the caller
// of Info/Warn/... rather than at this file.
func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	for _, f := range fields {
		r.AddAttrs(slog.Any(f.Key, f.Value))
	}
	_ = l.handler.Handle(context.Background(), r)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

// With returns a child that shares formatter and outputs but owns its level.
func (l *BaseLogger) With(fields ...Field) Logger {
	child := &BaseLogger{level: l.level, formatter: l.formatter, outputs: l.outputs}
	h := *l.handler
	h.sink = child
	if len(fields) > 0 {
		h.attrs = make([]slog.Attr, 0, len(l.handler.attrs)+len(fields))
		h.attrs = append(h.attrs, l.handler.attrs...)
		for _, f := range fields {
			h.attrs = append(h.attrs, slog.Any(f.Key, f.Value))
		}
	}
	child.handler = &h
	return child
}

func (l *BaseLogger) WithComponent(component string) Logger { return l.With(Component(component)) }

func (l *BaseLogger) WithError(err error) Logger { return l.With(Err(err)) }

func (l *BaseLogger) SetLevel(level Level) { l.level = level }

// GetLevel returns the minimum level for this logger.
func (l *BaseLogger) GetLevel() Level { return l.level }

func (l *BaseLogger) write(e *Entry) error {
	formatted, err := l.formatter.Format(e)
	if err != nil {
		return err
	}
	for _, out := range l.outputs {
		_ = out.Write(e, formatted)
	}
	return nil
}
