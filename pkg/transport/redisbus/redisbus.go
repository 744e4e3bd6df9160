// Package redisbus implements the transport bus on Redis lists.
//
// A request is pushed onto the list of its topic. Servers pop requests from
// the topic lists they serve and push the reply onto a per-request reply list
// that expires after ReplyTTL. Retries of a request share its reply list, so
// a late reply to an earlier attempt still answers a later one.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/cardflow/pkg/common/validation"
	"github.com/vnykmshr/cardflow/pkg/transport"
)

// Config holds configuration for a Redis bus.
type Config struct {
	// Redis client for the topic and reply lists
	Redis redis.UniversalClient

	// Prefix namespaces every key used by the bus
	Prefix string

	// ReplyTTL is how long an unread reply is kept (defaults to 1 minute)
	ReplyTTL time.Duration
}

// DefaultConfig returns a default bus configuration without a client.
func DefaultConfig() Config {
	return Config{
		Prefix:   "cardflow",
		ReplyTTL: time.Minute,
	}
}

// RedisError represents a failed Redis operation.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return "redisbus: " + e.Operation + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

// Bus is a transport.Bus and transport.Responder backed by Redis.
type Bus struct {
	rdb      redis.UniversalClient
	prefix   string
	replyTTL time.Duration
}

// New creates a bus on config.Redis. The client stays owned by the caller.
func New(config Config) (*Bus, error) {
	if err := validation.ValidateNotNil("redisbus", "Redis", config.Redis); err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	if config.ReplyTTL == 0 {
		config.ReplyTTL = defaults.ReplyTTL
	}
	if err := validation.ValidatePositiveDuration("redisbus", "ReplyTTL", config.ReplyTTL); err != nil {
		return nil, err
	}

	return &Bus{
		rdb:      config.Redis,
		prefix:   strings.TrimSuffix(config.Prefix, ":"),
		replyTTL: config.ReplyTTL,
	}, nil
}

// TopicKey returns the list requests for topic are pushed onto.
func (b *Bus) TopicKey(topic string) string {
	return b.prefix + ":topic:" + topic
}

// ReplyKey returns the list the reply to request id is pushed onto.
func (b *Bus) ReplyKey(id string) string {
	return b.prefix + ":reply:" + id
}

// Ping checks the connection to Redis.
func (b *Bus) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return &RedisError{Operation: "ping", Err: err}
	}
	return nil
}

// Request implements transport.Bus. Redis blocks in whole seconds, so
// timeouts below one second wait a full second. A zero timeout would block
// forever and is rejected.
func (b *Bus) Request(ctx context.Context, env transport.Envelope, timeout time.Duration) ([]byte, error) {
	if err := validation.ValidatePositiveDuration("redisbus", "timeout", timeout); err != nil {
		return nil, err
	}
	env.ReplyTo = b.ReplyKey(env.ID)
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	if err := b.rdb.LPush(ctx, b.TopicKey(env.Topic), data).Err(); err != nil {
		return nil, &RedisError{Operation: "publish", Err: err}
	}

	res, err := b.rdb.BLPop(ctx, timeout, env.ReplyTo).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &RedisError{Operation: "await reply", Err: err}
	}
	return []byte(res[1]), nil
}

// Receive implements transport.Responder. Requests are taken oldest first.
func (b *Bus) Receive(ctx context.Context, topics []string, wait time.Duration) (*transport.Envelope, error) {
	keys := make([]string, len(topics))
	for i, topic := range topics {
		keys[i] = b.TopicKey(topic)
	}

	res, err := b.rdb.BRPop(ctx, wait, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &RedisError{Operation: "receive", Err: err}
	}

	var env transport.Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, &RedisError{Operation: "decode " + res[0], Err: err}
	}
	return &env, nil
}

// Reply implements transport.Responder.
func (b *Bus) Reply(ctx context.Context, req transport.Envelope, payload []byte) error {
	if req.ReplyTo == "" {
		return &RedisError{Operation: "reply", Err: errors.New("request " + req.ID + " has no reply key")}
	}

	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, req.ReplyTo, payload)
		pipe.Expire(ctx, req.ReplyTo, b.replyTTL)
		return nil
	})
	if err != nil {
		return &RedisError{Operation: "reply", Err: err}
	}
	return nil
}

var (
	_ transport.Bus       = (*Bus)(nil)
	_ transport.Responder = (*Bus)(nil)
)
