package transport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/cardflow/internal/testutil"
	"github.com/vnykmshr/cardflow/pkg/cards"
	"github.com/vnykmshr/cardflow/pkg/metrics"
	"github.com/vnykmshr/cardflow/pkg/model"
	"github.com/vnykmshr/cardflow/pkg/pipeline"
	"github.com/vnykmshr/cardflow/pkg/repository/memory"
	"github.com/vnykmshr/cardflow/pkg/transport/dedup"
)

func startServer(t *testing.T, bus *LocalBus, config ServerConfig, routes func(*Server)) {
	t.Helper()
	srv, err := NewServer(bus, config)
	require.NoError(t, err)
	routes(srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func testServerConfig() ServerConfig {
	config := DefaultServerConfig()
	config.Workers = 2
	config.ReceiveWait = 20 * time.Millisecond
	return config
}

func newCardsProcessor(t *testing.T) (*pipeline.Processor[*cards.Context], string) {
	t.Helper()
	store := memory.New()
	dict, err := store.Dictionaries().Create(context.Background(), model.Dictionary{
		UserID: "42", Name: "weather", SourceLang: "en", TargetLang: "ru",
	})
	require.NoError(t, err)

	proc, err := cards.New(cards.Dependencies{Prod: store.Cards(), Test: memory.New().Cards()}, pipeline.Config{})
	require.NoError(t, err)
	return proc, dict.ID
}

func TestRemoteExecutesProcessor(t *testing.T) {
	bus := NewLocalBus(16)
	proc, dictID := newCardsProcessor(t)
	startServer(t, bus, testServerConfig(), func(s *Server) {
		Handle(s, "cards", proc, func() *cards.Context { return &cards.Context{} })
	})

	client, err := NewClient(bus, Config{MaxAttempts: 2, BaseDelay: 10 * time.Millisecond, Timeout: time.Second})
	require.NoError(t, err)
	remote := NewRemote[*cards.Context](client, "cards")

	c := cards.NewContext(cards.OpCreate, pipeline.ModeProd)
	c.CardRequest = model.Card{DictionaryID: dictID, Word: " Rain ", Translations: []string{"дождь"}}
	require.NoError(t, remote.Execute(context.Background(), c))

	assert.NotEmpty(t, c.RequestID)
	assert.Equal(t, pipeline.StatusOK, c.Status, "%v", c.Errors)
	assert.Equal(t, "rain", c.CardResponse.Word)
	assert.NotEmpty(t, c.CardResponse.ID)

	invalid := cards.NewContext(cards.OpCreate, pipeline.ModeProd)
	invalid.CardRequest = model.Card{DictionaryID: dictID, Translations: []string{"дождь"}}
	require.NoError(t, remote.Execute(context.Background(), invalid))
	assert.Equal(t, pipeline.StatusFail, invalid.Status)
	require.Len(t, invalid.Errors, 1)
	assert.Equal(t, "word", invalid.Errors[0].Field)
}

// lossyResponder drops the first drop replies it is asked to send.
type lossyResponder struct {
	*LocalBus
	drop    int32
	dropped int32
}

func (r *lossyResponder) Reply(ctx context.Context, req Envelope, payload []byte) error {
	if atomic.AddInt32(&r.dropped, 1) <= r.drop {
		return nil
	}
	return r.LocalBus.Reply(ctx, req, payload)
}

func TestRemoteSucceedsAfterLostReplies(t *testing.T) {
	bus := NewLocalBus(16)
	responder := &lossyResponder{LocalBus: bus, drop: 3}
	proc, _ := newCardsProcessor(t)

	srv, err := NewServer(responder, testServerConfig())
	require.NoError(t, err)
	Handle(srv, "cards", proc, func() *cards.Context { return &cards.Context{} })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	sleeper := &testutil.RecordingSleeper{}
	config := DefaultConfig()
	config.Timeout = 500 * time.Millisecond
	config.Sleep = sleeper.Sleep
	client, err := NewClient(bus, config)
	require.NoError(t, err)

	c := cards.NewContext(cards.OpGet, pipeline.ModeStub)
	c.StubCase = pipeline.StubSuccess
	require.NoError(t, NewRemote[*cards.Context](client, "cards").Execute(context.Background(), c))

	assert.Equal(t, pipeline.StatusOK, c.Status, "%v", c.Errors)
	assert.Empty(t, c.Errors)
	assert.Equal(t, cards.StubCard, c.CardResponse)
	assert.Equal(t, int32(4), atomic.LoadInt32(&responder.dropped))
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}, sleeper.Delays())
}

func TestServerResetsCallerOutcome(t *testing.T) {
	bus := NewLocalBus(16)
	proc, _ := newCardsProcessor(t)
	startServer(t, bus, testServerConfig(), func(s *Server) {
		Handle(s, "cards", proc, func() *cards.Context { return &cards.Context{} })
	})

	client, err := NewClient(bus, Config{MaxAttempts: 1, BaseDelay: time.Millisecond, Timeout: time.Second})
	require.NoError(t, err)

	c := cards.NewContext(cards.OpGet, pipeline.ModeStub)
	c.StubCase = pipeline.StubSuccess
	c.Status = pipeline.StatusFail
	c.Errors = []pipeline.Error{{Code: "forged"}}
	require.NoError(t, NewRemote[*cards.Context](client, "cards").Execute(context.Background(), c))

	assert.Equal(t, pipeline.StatusOK, c.Status)
	assert.Empty(t, c.Errors)
	assert.Equal(t, cards.StubCard, c.CardResponse)
}

func TestServerDeduplicatesRetries(t *testing.T) {
	bus := NewLocalBus(16)
	cache, err := dedup.New(dedup.Config{TTL: time.Minute, MaxEntries: 100})
	require.NoError(t, err)
	registry := metrics.NewRegistry(prometheus.NewRegistry())

	var calls int32
	config := testServerConfig()
	config.Cache = cache
	config.Metrics = registry
	startServer(t, bus, config, func(s *Server) {
		s.Route("echo", func(_ context.Context, payload []byte) ([]byte, error) {
			atomic.AddInt32(&calls, 1)
			return payload, nil
		})
	})

	env := Envelope{ID: "req-1", Topic: "echo", Payload: []byte("hello")}
	for i := 0; i < 3; i++ {
		env.Attempt = i + 1
		reply, err := bus.Request(context.Background(), env, time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), reply)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, float64(2), promtest.ToFloat64(registry.DedupHits.WithLabelValues("echo")))
	assert.Equal(t, float64(1), promtest.ToFloat64(registry.ServerRequests.WithLabelValues("echo", "ok")))
}

func TestServerHandlesConcurrentRequests(t *testing.T) {
	bus := NewLocalBus(64)
	startServer(t, bus, testServerConfig(), func(s *Server) {
		s.Route("upper", func(_ context.Context, payload []byte) ([]byte, error) {
			var word string
			if err := json.Unmarshal(payload, &word); err != nil {
				return nil, err
			}
			return json.Marshal(word + "!")
		})
	})

	client, err := NewClient(bus, Config{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Timeout: time.Second})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := client.Send(context.Background(), "upper", []byte(`"hey"`))
			assert.NoError(t, err)
			assert.Equal(t, `"hey!"`, string(reply))
		}()
	}
	wg.Wait()
}

func TestUnroutedTopicTimesOut(t *testing.T) {
	bus := NewLocalBus(16)
	startServer(t, bus, testServerConfig(), func(s *Server) {
		s.Route("cards", func(context.Context, []byte) ([]byte, error) { return []byte("x"), nil })
	})

	client, err := NewClient(bus, Config{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Send(context.Background(), "nowhere", nil)
	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestServerRunRequiresRoutes(t *testing.T) {
	srv, err := NewServer(NewLocalBus(1), testServerConfig())
	require.NoError(t, err)
	testutil.AssertError(t, srv.Run(context.Background()))
}

type countingLimiter struct{ waits int32 }

func (l *countingLimiter) Wait(ctx context.Context) error {
	atomic.AddInt32(&l.waits, 1)
	return ctx.Err()
}

func TestServerWaitsOnLimiter(t *testing.T) {
	bus := NewLocalBus(16)
	limiter := &countingLimiter{}
	config := testServerConfig()
	config.Limiter = limiter
	startServer(t, bus, config, func(s *Server) {
		s.Route("echo", func(_ context.Context, payload []byte) ([]byte, error) { return payload, nil })
	})

	reply, err := bus.Request(context.Background(), Envelope{ID: "1", Topic: "echo", Payload: []byte("x")}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), reply)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&limiter.waits), int32(1))
}
