// Package cache is the hot-state and fan-out layer: pet state snapshots,
// the recent-transition list, the single-instance lease and the frame
// broadcast channel. Redis backs it when configured; otherwise an
// in-process implementation is used.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/desktoppet/cache/local"
	cacheredis "github.com/kasuganosora/desktoppet/cache/redis"
	"github.com/kasuganosora/desktoppet/config"
)

// Store is the subset of Redis commands the daemon relies on.
type Store interface {
	// KV
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Hash
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// List
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	Close() error
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
	Close() error
}

// FramesChannel carries JSON-encoded frames to every stream subscriber.
const FramesChannel = "pet.frames"

// IsNotFound reports whether err means a missing key in either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// New returns a Redis-backed store and pubsub when RedisAddr is set, and
// in-process ones otherwise.
func New(cfg config.CacheConfig) (Store, PubSub, error) {
	if cfg.RedisAddr != "" {
		client, err := cacheredis.New(cacheredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, &redisPubSub{c: client}, nil
	}
	return local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval}),
		&localPubSub{ps: local.NewPubSub(cfg.LocalPubSubBuf)}, nil
}

// ---- adapters to bridge sub-package message types to cache.Message ----

type localPubSub struct {
	ps *local.PubSub
}

func (a *localPubSub) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *localPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	return relay(in, func(m *local.Message) *Message { return &Message{Channel: m.Channel, Payload: m.Payload} }), cancel, nil
}

func (a *localPubSub) Close() error { return nil }

type redisPubSub struct {
	c *cacheredis.Client
}

func (a *redisPubSub) Publish(ctx context.Context, channel, message string) error {
	return a.c.Publish(ctx, channel, message)
}

func (a *redisPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	in, cancel, err := a.c.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	return relay(in, func(m *cacheredis.Message) *Message { return &Message{Channel: m.Channel, Payload: m.Payload} }), cancel, nil
}

// Close is a no-op; the shared client is closed through the Store.
func (a *redisPubSub) Close() error { return nil }

// relay converts messages until in closes. A subscriber that stops
// reading loses messages rather than stalling the relay.
func relay[T any](in <-chan T, conv func(T) *Message) <-chan *Message {
	out := make(chan *Message, max(cap(in), 1))
	go func() {
		defer close(out)
		for m := range in {
			select {
			case out <- conv(m):
			default:
			}
		}
	}()
	return out
}
