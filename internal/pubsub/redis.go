// Package pubsub relays room frames between gateway instances over Redis.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"mindpalace/backend/pkg/logger"
)

// DefaultChannel carries every room frame.
const DefaultChannel = "mindpalace:rooms"

// Relay timing defaults.
const (
	DefaultPublishTimeout   = 2 * time.Second
	DefaultRetryInterval    = 500 * time.Millisecond
	DefaultMaxRetryInterval = 30 * time.Second
)

// envelope wraps a frame with its origin so an instance skips its own
// publications.
type envelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Frame  json.RawMessage `json:"frame"`
}

// Deliverer receives frames published by other instances.
type Deliverer interface {
	DeliverLocal(room string, frame []byte)
}

// RedisRelay publishes local broadcasts and delivers remote ones.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	log        *logger.Logger

	publishTimeout   time.Duration
	retryInterval    time.Duration
	maxRetryInterval time.Duration
}

// NewClient parses a redis URL such as redis://localhost:6379/0. A bare
// host:port is accepted too.
func NewClient(rawURL string) *redis.Client {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		opts = &redis.Options{Addr: rawURL}
	}
	return redis.NewClient(opts)
}

// NewRedisRelay creates a relay on channel. instanceID must be unique per
// gateway process.
func NewRedisRelay(client *redis.Client, channel, instanceID string, log *logger.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &RedisRelay{
		client:           client,
		channel:          channel,
		instanceID:       instanceID,
		log:              log,
		publishTimeout:   DefaultPublishTimeout,
		retryInterval:    DefaultRetryInterval,
		maxRetryInterval: DefaultMaxRetryInterval,
	}
}

// WithTimings overrides the publish timeout and the subscribe retry
// intervals. Zero values keep the defaults.
func (r *RedisRelay) WithTimings(publishTimeout, retryInterval, maxRetryInterval time.Duration) *RedisRelay {
	if publishTimeout > 0 {
		r.publishTimeout = publishTimeout
	}
	if retryInterval > 0 {
		r.retryInterval = retryInterval
	}
	if maxRetryInterval > 0 {
		r.maxRetryInterval = maxRetryInterval
	}
	return r
}

// Publish implements ws.Relay. It is called on the broadcasting client's
// read path, so it gives up after the publish timeout.
func (r *RedisRelay) Publish(ctx context.Context, room string, frame []byte) error {
	payload, err := encode(r.instanceID, room, frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run subscribes and hands remote frames to d until ctx is done. A failed
// subscribe is retried with exponential backoff; once subscribed, go-redis
// reconnects on its own.
func (r *RedisRelay) Run(ctx context.Context, d Deliverer) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryInterval
	b.MaxInterval = r.maxRetryInterval
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		err := r.subscribe(ctx, d)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		r.log.LogError(err, "room relay subscribe failed, retrying", "retry_in", wait.String())
	})
}

func (r *RedisRelay) subscribe(ctx context.Context, d Deliverer) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("pubsub: subscribe %s: %w", r.channel, err)
	}
	r.log.Info("room relay subscribed", "channel", r.channel, "instance_id", r.instanceID)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("pubsub: subscription to %s closed", r.channel)
			}
			room, frame, remote, err := decode(r.instanceID, []byte(msg.Payload))
			if err != nil {
				r.log.LogError(err, "dropping relay payload")
				continue
			}
			if remote {
				d.DeliverLocal(room, frame)
			}
		}
	}
}

// Ping checks the redis connection.
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func encode(origin, room string, frame []byte) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Room: room, Frame: frame})
}

// decode reports remote=false for frames this instance published.
func decode(self string, payload []byte) (room string, frame []byte, remote bool, err error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", nil, false, fmt.Errorf("pubsub: decode: %w", err)
	}
	if env.Room == "" {
		return "", nil, false, fmt.Errorf("pubsub: payload without room")
	}
	return env.Room, env.Frame, env.Origin != self, nil
}
