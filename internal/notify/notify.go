package notify

import (
	"context"
	"errors"
	"fmt"
)

// Message is one notification, delivered to every configured sink.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Keys of Message.Data set for tour completions.
const (
	DataTourID = "tour_id"
	DataCity   = "city"
	DataDay    = "day"
)

// Sink delivers a notification somewhere.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

func (f SinkFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Multi fans a message out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for i, s := range m {
		if err := s.Notify(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
