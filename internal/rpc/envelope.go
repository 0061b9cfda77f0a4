package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RequestEnvelope is the wire form of a request.
type RequestEnvelope[T any] struct {
	RequestID uuid.UUID `json:"requestId"`
	ReplyTo   string    `json:"replyTo"`
	Payload   T         `json:"payload"`
}

// Validate reports a malformed envelope.
func (e RequestEnvelope[T]) Validate() error {
	if e.RequestID == uuid.Nil {
		return fmt.Errorf("%w: missing requestId", ErrMalformedEnvelope)
	}
	if e.ReplyTo == "" {
		return fmt.Errorf("%w: missing replyTo", ErrMalformedEnvelope)
	}
	return nil
}

// ResponseEnvelope is the wire form of a response. RequestID echoes the
// request it answers.
type ResponseEnvelope[T any] struct {
	RequestID uuid.UUID `json:"requestId"`
	Payload   T         `json:"payload"`
}

// Validate reports a malformed envelope.
func (e ResponseEnvelope[T]) Validate() error {
	if e.RequestID == uuid.Nil {
		return fmt.Errorf("%w: missing requestId", ErrMalformedEnvelope)
	}
	return nil
}

// Codec turns envelopes into message bodies and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func decodeRequest[T any](c Codec, body []byte) (RequestEnvelope[T], error) {
	var env RequestEnvelope[T]
	if err := c.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, env.Validate()
}

func decodeResponse[T any](c Codec, body []byte) (ResponseEnvelope[T], error) {
	var env ResponseEnvelope[T]
	if err := c.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, env.Validate()
}
