package controllers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rzbill/courier/internal/recorder"
	"github.com/rzbill/courier/internal/rpc"
)

// RawClient submits opaque JSON payloads. The probe routes use it too,
// encoding probe requests at the edge.
type RawClient = rpc.Client[json.RawMessage, json.RawMessage]

// Caller is the part of RawClient the request routes need.
type Caller interface {
	Call(ctx context.Context, req json.RawMessage, timeout time.Duration) (json.RawMessage, error)
}

// ResultSource reads recorded load-test rounds.
type ResultSource interface {
	RecentLatency(limit int) ([]recorder.Latency, error)
	RecentExceptions(limit int) ([]recorder.Exception, error)
}

// resultsResp is the body of GET /v1/results.
type resultsResp struct {
	Latency    []recorder.Latency   `json:"latency"`
	Exceptions []recorder.Exception `json:"exceptions"`
}

// peekResp is the body of GET /v1/queues/{name}/messages.
type peekResp struct {
	Queue    string        `json:"queue"`
	Messages []peekMessage `json:"messages"`
}

type peekMessage struct {
	Seq          uint64          `json:"seq"`
	Deliveries   int             `json:"deliveries"`
	Leased       bool            `json:"leased"`
	EnqueuedAtMs int64           `json:"enqueuedAtMs"`
	Body         json.RawMessage `json:"body,omitempty"`
	Text         string          `json:"text,omitempty"`
}
