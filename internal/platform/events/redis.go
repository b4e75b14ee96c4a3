package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/elanza/clinic/internal/platform/metrics"
)

type RedisBusConfig struct {
	// Prefix is prepended to the topic to form the stream key.
	Prefix string
	// Group names the consumer group family; each subscription reads with
	// its own group "<Group>:<name>".
	Group    string
	Consumer string
	MaxLen   int64
	Block    time.Duration
	Batch    int64
}

func DefaultRedisBusConfig(consumer string) RedisBusConfig {
	return RedisBusConfig{
		Prefix:   "clinic:events:",
		Group:    "clinic",
		Consumer: consumer,
		MaxLen:   10000,
		Block:    5 * time.Second,
		Batch:    16,
	}
}

// RedisBus publishes to Redis Streams and consumes with XREADGROUP so that
// events survive restarts and are shared across server replicas.
type RedisBus struct {
	client *redis.Client
	cfg    RedisBusConfig
	logger zerolog.Logger
	rec    metrics.Recorder

	mu   sync.RWMutex
	subs []subscription
}

func NewRedisBus(client *redis.Client, cfg RedisBusConfig, logger zerolog.Logger, rec metrics.Recorder) *RedisBus {
	return &RedisBus{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "events").Logger(),
		rec:    rec,
	}
}

func (b *RedisBus) stream(topic string) string { return b.cfg.Prefix + topic }

func (b *RedisBus) group(sub subscription) string { return b.cfg.Group + ":" + sub.name }

func (b *RedisBus) Subscribe(topic, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{topic: topic, name: name, handler: h})
}

func (b *RedisBus) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	ev, err := newEvent(topic, key, payload)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: b.stream(topic),
		Values: map[string]interface{}{
			"id":           ev.ID,
			"key":          ev.Key,
			"payload":      string(ev.Payload),
			"published_at": ev.PublishedAt.Format(time.RFC3339Nano),
		},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}

func (b *RedisBus) ensureGroups(ctx context.Context) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		err := b.client.XGroupCreateMkStream(ctx, b.stream(sub.topic), b.group(sub), "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", b.group(sub), b.stream(sub.topic), err)
		}
	}
	return nil
}

// poll reads one batch of new messages for sub, dispatches it and
// acknowledges every message. A negative block returns immediately when
// nothing is waiting.
func (b *RedisBus) poll(ctx context.Context, sub subscription, block time.Duration) (int, error) {
	msgs, err := b.read(ctx, sub, ">", block)
	if err != nil {
		return 0, err
	}
	b.handle(ctx, sub, msgs)
	return len(msgs), nil
}

// drainPending redelivers the entries this consumer read but never
// acknowledged, e.g. because the process stopped mid-batch. It walks the
// pending list by ID so an entry whose ack keeps failing is visited once.
func (b *RedisBus) drainPending(ctx context.Context, sub subscription) (int, error) {
	total, from := 0, "0"
	for ctx.Err() == nil {
		msgs, err := b.read(ctx, sub, from, -1)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			break
		}
		b.handle(ctx, sub, msgs)
		total += len(msgs)
		from = msgs[len(msgs)-1].ID
	}
	return total, nil
}

func (b *RedisBus) read(ctx context.Context, sub subscription, from string, block time.Duration) ([]redis.XMessage, error) {
	stream := b.stream(sub.topic)
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group(sub),
		Consumer: b.cfg.Consumer,
		Streams:  []string{stream, from},
		Count:    b.cfg.Batch,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", stream, err)
	}
	var msgs []redis.XMessage
	for _, s := range res {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// handle dispatches and acknowledges msgs. A batch that has been read is
// finished even after ctx is cancelled.
func (b *RedisBus) handle(ctx context.Context, sub subscription, msgs []redis.XMessage) {
	ctx = context.WithoutCancel(ctx)
	stream := b.stream(sub.topic)
	for _, msg := range msgs {
		ev, err := decodeMessage(sub.topic, msg)
		if err != nil {
			b.logger.Error().Err(err).Str("stream", stream).Str("message_id", msg.ID).Msg("dropping malformed event")
		} else {
			dispatch(ctx, b.logger, b.rec, sub, ev)
		}
		if err := b.client.XAck(ctx, stream, b.group(sub), msg.ID).Err(); err != nil {
			b.logger.Warn().Err(err).Str("stream", stream).Str("message_id", msg.ID).Msg("xack failed")
		}
	}
}

func decodeMessage(topic string, msg redis.XMessage) (Event, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return Event{}, fmt.Errorf("message %s has no payload", msg.ID)
	}
	ev := Event{Topic: topic, Payload: []byte(payload)}
	ev.ID, _ = msg.Values["id"].(string)
	ev.Key, _ = msg.Values["key"].(string)
	if ts, ok := msg.Values["published_at"].(string); ok {
		ev.PublishedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if ev.ID == "" {
		ev.ID = msg.ID
	}
	return ev, nil
}

// Run creates the consumer groups, redelivers entries left pending by a
// previous run and polls every subscription until ctx is cancelled.
func (b *RedisBus) Run(ctx context.Context) error {
	if err := b.ensureGroups(ctx); err != nil {
		return err
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	var wg conc.WaitGroup
	for _, sub := range subs {
		sub := sub
		wg.Go(func() {
			if n, err := b.drainPending(ctx, sub); err != nil {
				b.logger.Error().Err(err).Str("subscription", sub.name).Msg("pending redelivery failed")
			} else if n > 0 {
				b.logger.Info().Int("count", n).Str("subscription", sub.name).Msg("redelivered pending events")
			}
			for ctx.Err() == nil {
				if _, err := b.poll(ctx, sub, b.cfg.Block); err != nil && ctx.Err() == nil {
					b.logger.Error().Err(err).Str("subscription", sub.name).Msg("poll failed")
					select {
					case <-ctx.Done():
					case <-time.After(time.Second):
					}
				}
			}
		})
	}
	wg.Wait()
	return nil
}
