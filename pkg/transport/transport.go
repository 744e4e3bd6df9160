// Package transport carries processor requests over a message bus.
//
// The caller side is the Client, a request/reply client with bounded retries
// and exponential backoff, and Remote, which sends a whole context to a remote
// processor and decodes the reply into it. The serving side is the Server,
// which receives requests from a Responder, runs them on a worker pool and
// answers retried requests from a de-duplication cache.
package transport

import (
	"context"
	"time"
)

// Envelope is the unit carried by the bus. ID identifies the logical request
// and stays the same across retries; ReplyTo is filled in by the bus.
type Envelope struct {
	ID      string    `json:"id"`
	Topic   string    `json:"topic"`
	ReplyTo string    `json:"replyTo,omitempty"`
	Attempt int       `json:"attempt"`
	Payload []byte    `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}

// Bus publishes a request and waits for its reply.
type Bus interface {
	// Request publishes env and waits up to timeout for a reply. A nil reply
	// with a nil error means no reply arrived in time.
	Request(ctx context.Context, env Envelope, timeout time.Duration) ([]byte, error)
}

// Responder is the serving side of a Bus.
type Responder interface {
	// Receive waits up to wait for the next request on any of topics. A nil
	// envelope with a nil error means none arrived.
	Receive(ctx context.Context, topics []string, wait time.Duration) (*Envelope, error)

	// Reply answers req.
	Reply(ctx context.Context, req Envelope, payload []byte) error
}

// Handler serves the payload of one request.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)
