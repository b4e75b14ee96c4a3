package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/elanza/clinic/internal/platform/metrics"
)

// MemoryBus dispatches every event to its subscribers on fresh goroutines.
// Deliveries are lost on process exit.
type MemoryBus struct {
	logger zerolog.Logger
	rec    metrics.Recorder

	mu   sync.RWMutex
	subs map[string][]subscription
	wg   conc.WaitGroup
}

func NewMemoryBus(logger zerolog.Logger, rec metrics.Recorder) *MemoryBus {
	return &MemoryBus{
		logger: logger.With().Str("component", "events").Logger(),
		rec:    rec,
		subs:   make(map[string][]subscription),
	}
}

func (b *MemoryBus) Subscribe(topic, name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], subscription{topic: topic, name: name, handler: h})
}

func (b *MemoryBus) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	ev, err := newEvent(topic, key, payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	// Deliveries outlive the publishing request.
	dctx := context.WithoutCancel(ctx)
	for _, sub := range subs {
		sub := sub
		b.wg.Go(func() {
			dispatch(dctx, b.logger, b.rec, sub, ev)
		})
	}
	return nil
}

// Drain blocks until every in-flight delivery has finished.
func (b *MemoryBus) Drain() {
	if r := b.wg.WaitAndRecover(); r != nil {
		b.logger.Error().Str("panic", r.String()).Msg("event handler panicked")
	}
}

func (b *MemoryBus) Run(ctx context.Context) error {
	<-ctx.Done()
	b.Drain()
	return nil
}
