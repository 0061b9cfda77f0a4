package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/courier/internal/rpc"
	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/celfilter"
)

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeFailure maps err to a status code.
//
// Request timeouts are 504, poller faults 502, a closed client or an
// unreachable queue backend 503.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rpc.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, rpc.ErrPollerFault):
		return http.StatusBadGateway
	case errors.Is(err, rpc.ErrInvalidTimeout):
		return http.StatusBadRequest
	case errors.Is(err, transport.ErrQueueNotFound):
		return http.StatusNotFound
	case errors.Is(err, transport.ErrInvalidQueueName), errors.Is(err, celfilter.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, rpc.ErrClosed), transport.IsTransportError(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseLimit parses a limit string and returns a valid limit value.
//
// Returns def for empty strings or invalid values.
func parseLimit(limitStr string, def int) int {
	if limitStr == "" {
		return def
	}
	if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
		return limit
	}
	return def
}

// parseTimeout accepts a Go duration ("250ms") or plain milliseconds.
func parseTimeout(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
