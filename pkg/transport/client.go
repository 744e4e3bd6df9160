package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cfcontext "github.com/vnykmshr/cardflow/pkg/common/context"
	cferrors "github.com/vnykmshr/cardflow/pkg/common/errors"
	"github.com/vnykmshr/cardflow/pkg/common/validation"
	"github.com/vnykmshr/cardflow/pkg/metrics"
)

const tracerName = "github.com/vnykmshr/cardflow/pkg/transport"

// Config configures a Client.
type Config struct {
	// MaxAttempts is the number of requests sent before giving up.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt. The wait doubles
	// after every further failure; there is no wait after the last attempt.
	BaseDelay time.Duration

	// Timeout is the per-attempt reply timeout used by Send.
	Timeout time.Duration

	// Logger receives one warning per failed attempt. Nil means slog.Default().
	Logger *slog.Logger

	// Metrics records attempts and exhausted sends. Nil disables metrics.
	Metrics *metrics.Registry

	// Tracer starts one span per send. Nil uses the global tracer provider.
	Tracer trace.Tracer

	// Sleep waits between attempts. Nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns four attempts with a 200ms base delay.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		Timeout:     5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("transport", "MaxAttempts", c.MaxAttempts); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("transport", "BaseDelay", c.BaseDelay); err != nil {
		return err
	}
	return validation.ValidatePositiveDuration("transport", "Timeout", c.Timeout)
}

// ExhaustedError is returned when every attempt failed. It unwraps to the
// cause of the last attempt and matches ErrAttemptsExhausted.
type ExhaustedError struct {
	Topic    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("transport: %s: gave up after %d attempts: %v", e.Topic, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

func (e *ExhaustedError) Is(target error) bool {
	return target == cferrors.ErrAttemptsExhausted
}

// Client sends requests over a Bus with bounded retries. It is safe for
// concurrent use.
type Client struct {
	bus    Bus
	config Config
	logger *slog.Logger
	tracer trace.Tracer
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client on bus.
func NewClient(bus Bus, config Config) (*Client, error) {
	if err := validation.ValidateNotNil("transport", "Bus", bus); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		bus:    bus,
		config: config,
		logger: config.Logger,
		tracer: config.Tracer,
		sleep:  config.Sleep,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.sleep == nil {
		c.sleep = cfcontext.Sleep
	}
	return c, nil
}

// Send sends payload to topic with the configured per-attempt timeout.
func (c *Client) Send(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	return c.SendWithTimeout(ctx, topic, payload, c.config.Timeout)
}

// SendWithTimeout sends payload to topic and returns the first non-nil reply.
// A failed attempt, a bus error or a missing reply, is followed by a wait of
// BaseDelay << attempt before the next one. timeout must be positive.
func (c *Client) SendWithTimeout(ctx context.Context, topic string, payload []byte, timeout time.Duration) ([]byte, error) {
	if err := validation.ValidatePositiveDuration("transport", "timeout", timeout); err != nil {
		return nil, err
	}
	start := time.Now()
	env := Envelope{ID: uuid.NewString(), Topic: topic, Payload: payload}

	ctx, span := c.tracer.Start(ctx, "transport.send", trace.WithAttributes(
		attribute.String("cardflow.topic", topic),
		attribute.String("cardflow.envelope_id", env.ID),
	))
	defer span.End()

	var last error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		env.Attempt = attempt + 1
		env.SentAt = time.Now().UTC()

		reply, err := c.bus.Request(ctx, env, timeout)
		if err == nil && reply != nil {
			c.observe(topic, "reply", start)
			span.SetAttributes(attribute.Int("cardflow.attempts", env.Attempt))
			return reply, nil
		}

		outcome := "error"
		if err == nil {
			err = cferrors.ErrNoReply
			outcome = "no_reply"
		}
		last = err
		c.observe(topic, outcome, start)
		c.logger.WarnContext(ctx, "request attempt failed",
			slog.String("topic", topic),
			slog.String("envelope_id", env.ID),
			slog.Int("attempt", env.Attempt),
			slog.Int("max_attempts", c.config.MaxAttempts),
			slog.Any("error", err),
		)

		if attempt == c.config.MaxAttempts-1 {
			break
		}
		if serr := c.sleep(ctx, c.config.BaseDelay<<attempt); serr != nil {
			err := fmt.Errorf("transport: %s: aborted after %d attempts: %w", topic, env.Attempt, serr)
			span.RecordError(err)
			span.SetStatus(codes.Error, "aborted")
			return nil, err
		}
	}

	err := &ExhaustedError{Topic: topic, Attempts: c.config.MaxAttempts, Err: last}
	if c.config.Metrics != nil {
		c.config.Metrics.TransportExhausted.WithLabelValues(topic).Inc()
	}
	span.SetAttributes(attribute.Int("cardflow.attempts", c.config.MaxAttempts))
	span.RecordError(err)
	span.SetStatus(codes.Error, "attempts exhausted")
	return nil, err
}

func (c *Client) observe(topic, outcome string, start time.Time) {
	if c.config.Metrics == nil {
		return
	}
	c.config.Metrics.TransportAttempts.WithLabelValues(topic, outcome).Inc()
	if outcome == "reply" {
		c.config.Metrics.TransportDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	}
}
