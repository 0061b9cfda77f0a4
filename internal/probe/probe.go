// Package probe defines the synthetic workload used to measure round-trip
// latency: the worker echoes the request number and start time and stamps
// when processing completed.
package probe

import (
	"context"
	"time"
)

type Request struct {
	RequestNumber int       `json:"requestNumber"`
	StartTime     time.Time `json:"startTime"`
}

type Response struct {
	RequestNumber            int       `json:"requestNumber"`
	StartTime                time.Time `json:"startTime"`
	ProcessingCompletionTime time.Time `json:"processingCompletionTime"`
}

// Latency is the time from submission to now.
func (r Response) Latency(now time.Time) time.Duration { return now.Sub(r.StartTime) }

// Handler returns the probe request handler. now defaults to time.Now.
func Handler(now func() time.Time) func(context.Context, Request) (Response, error) {
	if now == nil {
		now = time.Now
	}
	return func(_ context.Context, req Request) (Response, error) {
		return Response{
			RequestNumber:            req.RequestNumber,
			StartTime:                req.StartTime,
			ProcessingCompletionTime: now().UTC(),
		}, nil
	}
}
