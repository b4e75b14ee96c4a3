// Package events carries background triggers (user writes, history appends)
// from the request path to their consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elanza/clinic/internal/platform/metrics"
)

const (
	TopicUserWritten     = "user.written"
	TopicHistoryAppended = "history.appended"
)

type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s event %s: %w", e.Topic, e.ID, err)
	}
	return nil
}

type Handler func(ctx context.Context, ev Event) error

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Bus delivers each published event once to every subscription. Handler
// errors are logged and never retried.
type Bus interface {
	Publisher
	Subscribe(topic, name string, h Handler)
	// Run processes deliveries until ctx is cancelled.
	Run(ctx context.Context) error
}

type subscription struct {
	topic   string
	name    string
	handler Handler
}

func newEvent(topic, key string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		Key:         key,
		Payload:     raw,
		PublishedAt: time.Now().UTC(),
	}, nil
}

func dispatch(ctx context.Context, logger zerolog.Logger, rec metrics.Recorder, sub subscription, ev Event) {
	if err := sub.handler(ctx, ev); err != nil {
		rec.EventHandled(ev.Topic, "error")
		logger.Error().Err(err).
			Str("topic", ev.Topic).
			Str("subscription", sub.name).
			Str("event_id", ev.ID).
			Str("key", ev.Key).
			Msg("event handler failed")
		return
	}
	rec.EventHandled(ev.Topic, "ok")
}
