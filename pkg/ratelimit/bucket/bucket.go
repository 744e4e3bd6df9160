// Package bucket provides a token bucket limiter. The remote executor uses
// it to bound the rate at which requests are taken off the bus.
package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vnykmshr/cardflow/pkg/common/errors"
)

// Limit is a number of events per second.
type Limit float64

// Inf allows every event.
var Inf = Limit(math.Inf(1))

// Every converts a minimum interval between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds configuration for a Limiter.
type Config struct {
	// Rate is the number of tokens added per second.
	Rate Limit

	// Burst is the maximum number of tokens that can be stored. The
	// bucket starts full.
	Burst int

	// Clock provides the current time. If nil, the system clock is used.
	Clock Clock
}

// Limiter is a token bucket. It is safe for concurrent use.
type Limiter struct {
	mu         sync.Mutex
	limit      Limit
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock
}

// New creates a full bucket.
func New(config Config) (*Limiter, error) {
	if config.Rate <= 0 {
		return nil, errors.NewValidationError("bucket", "rate", config.Rate, "rate must be positive").
			WithHint("use bucket.Inf to disable limiting")
	}
	if config.Burst <= 0 {
		return nil, errors.NewValidationError("bucket", "burst", config.Burst, "burst must be positive").
			WithHint("burst determines how many tokens can be consumed instantly")
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}

	return &Limiter{
		limit:      config.Rate,
		burst:      config.Burst,
		tokens:     float64(config.Burst),
		lastUpdate: config.Clock.Now(),
		clock:      config.Clock,
	}, nil
}

// Allow takes a token if one is available now.
func (l *Limiter) Allow() bool {
	return l.reserve(l.clock.Now(), 0) == 0
}

// Wait takes a token, waiting for it to be refilled if necessary. A token
// reserved for a canceled wait is given back.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	delay := l.reserve(l.clock.Now(), math.MaxInt64)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		l.giveBack()
		return ctx.Err()
	}
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.clock.Now())
	return l.tokens
}

// Limit returns the refill rate.
func (l *Limiter) Limit() Limit {
	return l.limit
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.burst
}

// reserve takes one token and returns how long the caller must wait for it,
// or -1 without taking anything when that is longer than maxWait.
func (l *Limiter) reserve(now time.Time, maxWait time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit == Inf {
		return 0
	}
	l.refill(now)

	if l.tokens >= 1 {
		l.tokens--
		return 0
	}

	wait := time.Duration(float64(time.Second) * (1 - l.tokens) / float64(l.limit))
	if wait > maxWait {
		return -1
	}
	// Tokens may go negative; later callers queue behind this one.
	l.tokens--
	return wait
}

func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastUpdate)
	if elapsed <= 0 {
		return
	}
	l.tokens = math.Min(l.tokens+elapsed.Seconds()*float64(l.limit), float64(l.burst))
	l.lastUpdate = now
}

func (l *Limiter) giveBack() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.clock.Now())
	l.tokens = math.Min(l.tokens+1, float64(l.burst))
}
