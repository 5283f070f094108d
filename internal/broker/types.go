package broker

import (
	"context"
	"time"
)

// RawEvent is the wire form of one host event carried over the broker:
// the event name plus its untouched payload. Normalization happens on
// the consuming side.
type RawEvent struct {
	ID         string                 `json:"id"`
	Event      string                 `json:"event"`
	Payload    map[string]interface{} `json:"payload"`
	TraceID    string                 `json:"trace_id,omitempty"`
	ReceivedAt time.Time              `json:"received_at"`
	Enrichment map[string]interface{} `json:"enrichment,omitempty"`
}

type Producer interface {
	Publish(ctx context.Context, topic string, evt RawEvent) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, evt RawEvent) error
