package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/vnykmshr/cardflow/internal/testutil"
	cferrors "github.com/vnykmshr/cardflow/pkg/common/errors"
	"github.com/vnykmshr/cardflow/pkg/metrics"
)

type scripted struct {
	reply []byte
	err   error
}

// scriptedBus answers attempts from a script; attempts past its end get no reply.
type scriptedBus struct {
	mu        sync.Mutex
	script    []scripted
	envelopes []Envelope
}

func (b *scriptedBus) Request(_ context.Context, env Envelope, _ time.Duration) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.envelopes)
	b.envelopes = append(b.envelopes, env)
	if n < len(b.script) {
		return b.script[n].reply, b.script[n].err
	}
	return nil, nil
}

func newTestClient(t *testing.T, bus Bus, sleeper *testutil.RecordingSleeper, registry *metrics.Registry) *Client {
	t.Helper()
	config := DefaultConfig()
	config.Sleep = sleeper.Sleep
	config.Metrics = registry
	c, err := NewClient(bus, config)
	require.NoError(t, err)
	return c
}

func TestSendSucceedsOnFourthAttempt(t *testing.T) {
	bus := &scriptedBus{script: []scripted{{}, {}, {}, {reply: []byte(`{"status":"ok"}`)}}}
	sleeper := &testutil.RecordingSleeper{}
	registry := metrics.NewRegistry(prometheus.NewRegistry())
	client := newTestClient(t, bus, sleeper, registry)

	reply, err := client.Send(context.Background(), "cards", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"status":"ok"}`), reply)

	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}, sleeper.Delays())
	assert.GreaterOrEqual(t, sleeper.Total(), 1400*time.Millisecond)

	require.Len(t, bus.envelopes, 4)
	for i, env := range bus.envelopes {
		assert.Equal(t, bus.envelopes[0].ID, env.ID, "envelope id is stable across retries")
		assert.Equal(t, i+1, env.Attempt)
		assert.Equal(t, "cards", env.Topic)
	}

	assert.Equal(t, float64(3), promtest.ToFloat64(registry.TransportAttempts.WithLabelValues("cards", "no_reply")))
	assert.Equal(t, float64(1), promtest.ToFloat64(registry.TransportAttempts.WithLabelValues("cards", "reply")))
}

func TestSendExhaustsAttempts(t *testing.T) {
	bus := &scriptedBus{}
	sleeper := &testutil.RecordingSleeper{}
	registry := metrics.NewRegistry(prometheus.NewRegistry())
	client := newTestClient(t, bus, sleeper, registry)

	_, err := client.Send(context.Background(), "cards", []byte(`{}`))
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, cferrors.ErrAttemptsExhausted)
	assert.ErrorIs(t, err, cferrors.ErrNoReply)

	assert.Len(t, bus.envelopes, 4)
	assert.Len(t, sleeper.Delays(), 3, "no wait after the last attempt")
	assert.Equal(t, float64(1), promtest.ToFloat64(registry.TransportExhausted.WithLabelValues("cards")))
}

func TestSendKeepsLastCause(t *testing.T) {
	errFirst := errors.New("connection reset")
	errLast := errors.New("connection refused")
	bus := &scriptedBus{script: []scripted{{err: errFirst}, {}, {}, {err: errLast}}}
	client := newTestClient(t, bus, &testutil.RecordingSleeper{}, nil)

	_, err := client.Send(context.Background(), "cards", nil)
	assert.ErrorIs(t, err, errLast)
	assert.NotErrorIs(t, err, errFirst)
}

func TestSendStopsWhenContextEnds(t *testing.T) {
	bus := &scriptedBus{}
	sleeper := &testutil.RecordingSleeper{}
	client := newTestClient(t, bus, sleeper, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Send(ctx, "cards", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, cferrors.ErrAttemptsExhausted)
	assert.Len(t, bus.envelopes, 1)
}

func TestSendWaitsForReal(t *testing.T) {
	bus := &scriptedBus{script: []scripted{{}, {reply: []byte("ok")}}}
	config := Config{MaxAttempts: 2, BaseDelay: 20 * time.Millisecond, Timeout: time.Second}
	client, err := NewClient(bus, config)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Send(context.Background(), "cards", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSendRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	config := DefaultConfig()
	config.MaxAttempts = 2
	config.Sleep = (&testutil.RecordingSleeper{}).Sleep
	config.Tracer = tp.Tracer("test")
	client, err := NewClient(&scriptedBus{}, config)
	require.NoError(t, err)

	_, err = client.Send(context.Background(), "tts", nil)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "transport.send", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("cardflow.topic", "tts"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("cardflow.attempts", 2))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil, DefaultConfig())
	assert.True(t, cferrors.IsValidationError(err))

	_, err = NewClient(&scriptedBus{}, Config{MaxAttempts: 0, BaseDelay: time.Second, Timeout: time.Second})
	assert.True(t, cferrors.IsValidationError(err))

	_, err = NewClient(&scriptedBus{}, Config{MaxAttempts: 1, Timeout: time.Second})
	assert.True(t, cferrors.IsValidationError(err))
}

func TestSendWithTimeoutRejectsNonPositive(t *testing.T) {
	bus := &scriptedBus{}
	client := newTestClient(t, bus, &testutil.RecordingSleeper{}, nil)

	for _, timeout := range []time.Duration{0, -time.Second} {
		_, err := client.SendWithTimeout(context.Background(), "cards", []byte(`{}`), timeout)
		assert.True(t, cferrors.IsValidationError(err), "timeout %v", timeout)
	}
	assert.Empty(t, bus.envelopes)
}

func TestBackoffProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxAttempts := rapid.IntRange(1, 6).Draw(rt, "maxAttempts")
		base := time.Duration(rapid.IntRange(1, 1000).Draw(rt, "baseMs")) * time.Millisecond
		failures := rapid.IntRange(0, 8).Draw(rt, "failures")

		script := make([]scripted, failures+1)
		script[failures] = scripted{reply: []byte("ok")}
		bus := &scriptedBus{script: script}
		sleeper := &testutil.RecordingSleeper{}

		client, err := NewClient(bus, Config{MaxAttempts: maxAttempts, BaseDelay: base, Timeout: time.Second, Sleep: sleeper.Sleep})
		if err != nil {
			rt.Fatalf("new client: %v", err)
		}
		reply, err := client.Send(context.Background(), "t", nil)

		succeeded := failures < maxAttempts
		if succeeded != (err == nil) {
			rt.Fatalf("failures=%d max=%d err=%v", failures, maxAttempts, err)
		}
		if succeeded && string(reply) != "ok" {
			rt.Fatalf("reply %q", reply)
		}

		attempts := len(bus.envelopes)
		if attempts > maxAttempts {
			rt.Fatalf("%d attempts exceed max %d", attempts, maxAttempts)
		}
		delays := sleeper.Delays()
		if len(delays) != attempts-1 {
			rt.Fatalf("%d delays for %d attempts", len(delays), attempts)
		}
		for i, d := range delays {
			if d != base<<i {
				rt.Fatalf("delay %d is %v, want %v", i, d, base<<i)
			}
		}
	})
}
