package transport

import (
	"context"
	"sync"
	"time"
)

// LocalBus is an in-process Bus and Responder. Requests from every topic
// share one queue; replies are matched by envelope id.
type LocalBus struct {
	requests chan Envelope

	mu      sync.Mutex
	replies map[string]chan []byte
}

// NewLocalBus creates a bus buffering up to capacity pending requests.
func NewLocalBus(capacity int) *LocalBus {
	return &LocalBus{
		requests: make(chan Envelope, capacity),
		replies:  make(map[string]chan []byte),
	}
}

func (b *LocalBus) replyChannel(id string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.replies[id]
	if !ok {
		ch = make(chan []byte, 8)
		b.replies[id] = ch
	}
	return ch
}

func (b *LocalBus) release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.replies, id)
}

// Request implements Bus.
func (b *LocalBus) Request(ctx context.Context, env Envelope, timeout time.Duration) ([]byte, error) {
	env.ReplyTo = env.ID
	replies := b.replyChannel(env.ID)
	defer b.release(env.ID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b.requests <- env:
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Receive implements Responder.
func (b *LocalBus) Receive(ctx context.Context, topics []string, wait time.Duration) (*Envelope, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case env := <-b.requests:
			for _, t := range topics {
				if t == env.Topic {
					return &env, nil
				}
			}
			// Unserved topics are dropped; their senders time out.
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Reply implements Responder. A reply nobody waits for any more is dropped.
func (b *LocalBus) Reply(_ context.Context, req Envelope, payload []byte) error {
	b.mu.Lock()
	ch, ok := b.replies[req.ReplyTo]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case ch <- payload:
	default:
	}
	return nil
}

var (
	_ Bus       = (*LocalBus)(nil)
	_ Responder = (*LocalBus)(nil)
)
