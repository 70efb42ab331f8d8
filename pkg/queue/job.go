package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Job handles one message type.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// Decode unmarshals a job payload into T. An empty payload yields the zero value.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var out T
	if len(payload) == 0 || string(payload) == "null" {
		return &out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
