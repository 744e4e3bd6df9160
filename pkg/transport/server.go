package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	cfcontext "github.com/vnykmshr/cardflow/pkg/common/context"
	"github.com/vnykmshr/cardflow/pkg/common/validation"
	"github.com/vnykmshr/cardflow/pkg/metrics"
	"github.com/vnykmshr/cardflow/pkg/pipeline"
	"github.com/vnykmshr/cardflow/pkg/scheduling/workerpool"
	"github.com/vnykmshr/cardflow/pkg/transport/dedup"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Workers and QueueSize size the pool requests run on.
	Workers   int
	QueueSize int

	// ReceiveWait bounds one Receive call, so cancellation is noticed.
	ReceiveWait time.Duration

	// RequestTimeout bounds the handling of one request. Zero means none.
	RequestTimeout time.Duration

	// ErrorBackoff is the pause after a failed Receive.
	ErrorBackoff time.Duration

	// Cache answers retried requests. Nil disables de-duplication.
	Cache *dedup.Cache

	// Limiter paces how fast requests are taken off the bus. Nil means
	// no pacing.
	Limiter Limiter

	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// DefaultServerConfig returns a server with eight workers.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Workers:        8,
		QueueSize:      64,
		ReceiveWait:    time.Second,
		RequestTimeout: 30 * time.Second,
		ErrorBackoff:   time.Second,
	}
}

// Limiter is satisfied by *bucket.Limiter.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Server receives requests from a Responder and answers them with the
// handler registered for their topic.
type Server struct {
	responder Responder
	config    ServerConfig
	logger    *slog.Logger

	mu     sync.RWMutex
	routes map[string]Handler

	pool    workerpool.Pool
	running sync.Mutex
}

// NewServer creates a server on responder.
func NewServer(responder Responder, config ServerConfig) (*Server, error) {
	if err := validation.ValidateNotNil("transport", "Responder", responder); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration("transport", "ReceiveWait", config.ReceiveWait); err != nil {
		return nil, err
	}

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount: config.Workers,
		QueueSize:   config.QueueSize,
		TaskTimeout: config.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var p workerpool.Pool = pool
	if config.Metrics != nil {
		p = workerpool.WithMetrics(pool, "server", config.Metrics)
	}

	return &Server{
		responder: responder,
		config:    config,
		logger:    logger.With(slog.String("component", "server")),
		routes:    make(map[string]Handler),
		pool:      p,
	}, nil
}

// Route registers handler for topic, replacing any previous one.
func (s *Server) Route(topic string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[topic] = handler
}

// Topics returns the routed topics in sorted order.
func (s *Server) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.routes))
	for topic := range s.routes {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// Handle routes topic to proc. Every request is decoded into a fresh
// context from factory, executed and encoded back as the reply.
func Handle[T pipeline.Subject](s *Server, topic string, proc *pipeline.Processor[T], factory func() T) {
	s.Route(topic, func(ctx context.Context, payload []byte) ([]byte, error) {
		subject := factory()
		if err := json.Unmarshal(payload, subject); err != nil {
			return nil, fmt.Errorf("decode %s request: %w", topic, err)
		}

		// Only the caller's request is trusted; the outcome is ours to decide.
		state := subject.PipelineState()
		state.Status = pipeline.StatusInit
		state.Errors = nil

		if err := proc.Execute(ctx, subject); err != nil {
			return nil, err
		}
		return json.Marshal(subject)
	})
}

// Run receives and dispatches requests until ctx is done, then waits for
// in-flight requests to finish. A Server runs once.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.TryLock() {
		return errors.New("transport: server already running")
	}

	topics := s.Topics()
	if len(topics) == 0 {
		return errors.New("transport: no routes registered")
	}
	defer func() { <-s.pool.Shutdown() }()

	s.logger.InfoContext(ctx, "server started", slog.Any("topics", topics))
	for {
		if s.config.Limiter != nil {
			if err := s.config.Limiter.Wait(ctx); err != nil {
				s.logger.InfoContext(ctx, "server stopping")
				return nil
			}
		}

		env, err := s.responder.Receive(ctx, topics, s.config.ReceiveWait)
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "server stopping")
			return nil
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "receive failed", slog.Any("error", err))
			if cfcontext.Sleep(ctx, s.config.ErrorBackoff) != nil {
				return nil
			}
			continue
		}
		if env == nil {
			continue
		}

		req := *env
		task := workerpool.TaskFunc(func(taskCtx context.Context) error {
			return s.serve(taskCtx, req)
		})
		// Accepted requests finish even when ctx is canceled meanwhile.
		if err := s.pool.SubmitWithContext(context.WithoutCancel(ctx), task); err != nil {
			s.logger.ErrorContext(ctx, "dispatch failed", slog.String("envelope_id", req.ID), slog.Any("error", err))
		}
	}
}

func (s *Server) serve(ctx context.Context, req Envelope) error {
	s.mu.RLock()
	handler, ok := s.routes[req.Topic]
	s.mu.RUnlock()

	log := s.logger.With(
		slog.String("topic", req.Topic),
		slog.String("envelope_id", req.ID),
		slog.Int("attempt", req.Attempt),
	)

	if !ok {
		s.count(req.Topic, "unrouted")
		log.WarnContext(ctx, "no route for topic")
		return fmt.Errorf("no route for topic %q", req.Topic)
	}

	run := func() ([]byte, error) { return handler(ctx, req.Payload) }

	var (
		reply []byte
		hit   bool
		err   error
	)
	if s.config.Cache != nil {
		reply, hit, err = s.config.Cache.Do(req.ID, run)
	} else {
		reply, err = run()
	}
	if err != nil {
		s.count(req.Topic, "error")
		log.ErrorContext(ctx, "request failed", slog.Any("error", err))
		return err
	}
	if hit {
		s.count(req.Topic, "duplicate")
		if s.config.Metrics != nil {
			s.config.Metrics.DedupHits.WithLabelValues(req.Topic).Inc()
		}
		log.DebugContext(ctx, "answered from dedup cache")
	} else {
		s.count(req.Topic, "ok")
	}

	if err := s.responder.Reply(ctx, req, reply); err != nil {
		log.ErrorContext(ctx, "reply failed", slog.Any("error", err))
		return err
	}
	return nil
}

func (s *Server) count(topic, outcome string) {
	if s.config.Metrics != nil {
		s.config.Metrics.ServerRequests.WithLabelValues(topic, outcome).Inc()
	}
}
