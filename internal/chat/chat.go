// Package chat implements the one-to-one messaging core: mirrored message
// logs, the inbox projection and live listeners over both.
package chat

import (
	"context"
	"time"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/events"
	"expertvakil/server/internal/realtime"
	"expertvakil/server/internal/store"
	"expertvakil/server/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option customizes a Core
type Option func(*Core)

// WithClock replaces time.Now as the source of message timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// WithIDGenerator replaces uuid.NewString for message ids
func WithIDGenerator(gen func() string) Option {
	return func(c *Core) { c.newID = gen }
}

// WithEvents publishes committed writes to p
func WithEvents(p events.Publisher) Option {
	return func(c *Core) { c.events = p }
}

// Core holds what the message and inbox stores share: the document store,
// the change feed and the commit path.
type Core struct {
	store  store.Store
	broker realtime.Broker
	events events.Publisher
	log    *zap.SugaredLogger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// NewCore wires a document store to a change feed
func NewCore(st store.Store, broker realtime.Broker, log *zap.SugaredLogger, opts ...Option) *Core {
	c := &Core{
		store:  st,
		broker: broker,
		events: events.Nop{},
		log:    log,
		tracer: telemetry.Tracer("expertvakil/chat"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewID returns a fresh message id. Attachments need it before the message
// is written because it is part of the upload path.
func (c *Core) NewID() string {
	return c.newID()
}

// commit applies b atomically and then signals every touched topic. The
// write is durable once Commit returns, so a failed signal is only logged.
func (c *Core) commit(ctx context.Context, op string, b *store.Batch) error {
	if err := c.store.Commit(ctx, b); err != nil {
		return apperrors.WriteFailed(op, err)
	}
	for _, topic := range b.Topics() {
		if err := c.broker.Publish(ctx, topic); err != nil {
			c.log.Warnw("change signal failed", "op", op, "topic", topic, "error", err)
		}
	}
	return nil
}

func (c *Core) emit(ctx context.Context, ev events.ChatEvent) {
	if err := c.events.Publish(ctx, ev); err != nil {
		c.log.Warnw("chat event publish failed", "type", ev.Type, "error", err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
