// Package brokerapi defines the wire contract of the broker gRPC service.
// Messages travel as google.protobuf.Struct values converted to and from
// the plain Go shapes below through their JSON form, so no generated code
// is needed on either side.
package brokerapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rzbill/courier/internal/transport"
)

const ServiceName = "courier.broker.v1.Broker"

const (
	MethodEnsureQueue = "EnsureQueue"
	MethodEnqueue     = "Enqueue"
	MethodLease       = "Lease"
	MethodDelete      = "Delete"
	MethodStats       = "Stats"
	MethodPeek        = "Peek"
)

// FullMethod returns the gRPC method path, e.g. /courier.broker.v1.Broker/Lease.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

type EnsureQueueRequest struct {
	Queue string `json:"queue"`
}

type EnsureQueueResponse struct {
	Queue       string `json:"queue"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

type EnqueueRequest struct {
	Queue string `json:"queue"`
	Body  []byte `json:"body"`
}

type EnqueueResponse struct{}

type LeaseRequest struct {
	Queue   string `json:"queue"`
	Max     int    `json:"max"`
	LeaseMs int64  `json:"leaseMs"`
}

type LeasedMessage struct {
	Body         []byte `json:"body"`
	DequeueCount int    `json:"dequeueCount"`
	Handle       string `json:"handle"`
}

type LeaseResponse struct {
	Messages []LeasedMessage `json:"messages"`
}

type DeleteRequest struct {
	Queue  string `json:"queue"`
	Handle string `json:"handle"`
}

type DeleteResponse struct{}

type StatsRequest struct {
	Queue string `json:"queue"`
}

type StatsResponse = transport.QueueStats

type PeekRequest struct {
	Queue  string `json:"queue"`
	Limit  int    `json:"limit"`
	Filter string `json:"filter,omitempty"`
}

type PeekResponse struct {
	Messages []transport.PeekedMessage `json:"messages"`
}

// ToStruct converts v to a Struct through its JSON encoding.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("brokerapi: encode: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("brokerapi: encode: %w", err)
	}
	return s, nil
}

// FromStruct decodes s into v. Struct numbers are doubles; encoding/json
// renders integral doubles without an exponent so integer fields decode.
func FromStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("brokerapi: decode: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("brokerapi: decode: %w", err)
	}
	return nil
}
