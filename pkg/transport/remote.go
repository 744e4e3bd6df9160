package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vnykmshr/cardflow/pkg/pipeline"
)

// Remote stands in for a processor served on another node. Execute sends the
// whole context and decodes the reply into the same instance.
type Remote[T pipeline.Subject] struct {
	client *Client
	topic  string
}

// NewRemote returns a remote processor reached through client on topic.
func NewRemote[T pipeline.Subject](client *Client, topic string) *Remote[T] {
	return &Remote[T]{client: client, topic: topic}
}

// Topic returns the topic requests are sent to.
func (r *Remote[T]) Topic() string {
	return r.topic
}

// Execute assigns a request id when subject has none, sends it and
// overwrites subject with the reply. Transport failures are returned as
// errors and leave subject untouched apart from the request id.
func (r *Remote[T]) Execute(ctx context.Context, subject T) error {
	state := subject.PipelineState()
	if state.RequestID == "" {
		state.RequestID = uuid.NewString()
	}

	payload, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("transport: encode %s request: %w", r.topic, err)
	}

	reply, err := r.client.Send(ctx, r.topic, payload)
	if err != nil {
		return err
	}

	// Errors are omitted from an empty reply, so clear ours first.
	state.Errors = nil
	if err := json.Unmarshal(reply, subject); err != nil {
		return fmt.Errorf("transport: decode %s reply: %w", r.topic, err)
	}
	return nil
}
