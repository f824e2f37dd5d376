// Package changefeed subscribes to the assignment change feed and hands
// decoded events to the reconciler.
package changefeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"offerboard_backend/internal/offers/domain"
	"offerboard_backend/platform/logger"
)

// Applier consumes decoded change events.
type Applier interface {
	Apply(ctx context.Context, ev domain.ChangeEvent)
}

// Subscriber listens on the Redis pub/sub channel carrying assignment
// ChangeEvents. Delivery is at-least-once and unordered; the applier is
// responsible for idempotent merging.
type Subscriber struct {
	rdb     *redis.Client
	channel string
	applier Applier
	log     *logger.Logger
}

// New creates a change feed subscriber.
func New(rdb *redis.Client, channel string, applier Applier, log *logger.Logger) *Subscriber {
	return &Subscriber{
		rdb:     rdb,
		channel: channel,
		applier: applier,
		log:     log,
	}
}

// Run consumes the feed until the context is cancelled, resubscribing
// after transport failures.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("change feed subscription lost, resubscribing", "error", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		return
	}
}

func (s *Subscriber) consume(ctx context.Context) error {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

// handle decodes and applies one message. Malformed payloads are logged
// and skipped; the feed keeps flowing.
func (s *Subscriber) handle(ctx context.Context, payload string) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		s.log.Warn("change feed: malformed event skipped", "error", err)
		return
	}
	if ev.Kind == "" || ev.Assignment.ID == uuid.Nil {
		s.log.Warn("change feed: incomplete event skipped", "kind", ev.Kind)
		return
	}
	s.applier.Apply(ctx, ev)
}
