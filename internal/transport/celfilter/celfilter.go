// Package celfilter compiles the CEL expressions accepted by queue Peek and
// evaluates them against queued messages.
package celfilter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/courier/internal/transport"
)

// Filter wraps a compiled CEL program. The zero value matches everything.
type Filter struct {
	prog    cel.Program
	enabled bool
	now     func() time.Time
}

// Compile builds a Filter for expr. An empty expression matches everything.
//
// Variables available to the expression:
//
//	seq          int     queue sequence number
//	deliveries   int     times the message has been leased
//	size         int     body length in bytes
//	text         string  body as text
//	json         dyn     body parsed as JSON (null when it does not parse)
//	leased       bool    whether a lease currently hides the message
//	enqueued_ms  int     enqueue time, unix milliseconds
//	now_ms       int     evaluation time, unix milliseconds
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("seq", cel.IntType),
		cel.Variable("deliveries", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("leased", cel.BoolType),
		cel.Variable("enqueued_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, iss2.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true, now: time.Now}, nil
}

// Enabled reports whether the filter has an expression.
func (f Filter) Enabled() bool { return f.enabled }

// Match evaluates the expression against m. Evaluation errors and
// non-boolean results count as a miss.
func (f Filter) Match(m transport.PeekedMessage) bool {
	if !f.enabled {
		return true
	}
	var doc any
	_ = json.Unmarshal(m.Body, &doc)
	out, _, err := f.prog.Eval(map[string]any{
		"seq":         int64(m.Seq),
		"deliveries":  int64(m.Deliveries),
		"size":        int64(len(m.Body)),
		"text":        string(m.Body),
		"json":        doc,
		"leased":      m.Leased,
		"enqueued_ms": m.EnqueuedAtMs,
		"now_ms":      f.now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
