// Package escrow is the settlement engine. Each exported operation runs as a
// single store unit of work: validation, state checks, balance movement and
// record writes either all commit or none do. Lifecycle events are published
// only after commit.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/atmx/arena-escrow/internal/events"
	"github.com/atmx/arena-escrow/internal/metrics"
	"github.com/atmx/arena-escrow/internal/model"
	"github.com/atmx/arena-escrow/internal/slot"
	"github.com/atmx/arena-escrow/internal/store"
)

// Engine runs the match lifecycle against a Store.
type Engine struct {
	store store.Store
	slots slot.Source
	pub   events.Publisher
	log   *zap.Logger
	clock quartz.Clock // wall clock for audit timestamps only
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock used to stamp resolution records.
func WithClock(c quartz.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an engine. pub may be nil to disable event publishing.
func New(st store.Store, slots slot.Source, pub events.Publisher, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{store: st, slots: slots, pub: pub, log: log, clock: quartz.NewReal()}
	if e.pub == nil {
		e.pub = events.Nop{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// Slot returns the current value of the engine's time counter.
func (e *Engine) Slot() uint64 {
	return e.slots.Current()
}

// update runs fn as one unit of work and records its latency and, on
// failure, its kind.
func (e *Engine) update(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	defer metrics.ObserveOp(op, time.Now())
	err := e.store.Update(ctx, fn)
	if err != nil {
		metrics.Rejections.WithLabelValues(op, string(KindOf(err))).Inc()
	}
	return err
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.pub.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.WithLabelValues(ev.Type).Inc()
		e.log.Warn("publish event failed",
			zap.String("type", ev.Type),
			zap.Uint64("match_id", ev.MatchID),
			zap.Error(err),
		)
	}
}

func loadPool(tx store.Tx, matchID uint64) (*model.Pool, error) {
	p, err := tx.Pool(matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: match %d", ErrNotFound, matchID)
	}
	return p, err
}

func loadRegistry(tx store.Tx) (*model.Registry, error) {
	r, err := tx.Registry()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	return r, err
}

// transferErr classifies a failed value transfer. Backend failures pass
// through unchanged.
func transferErr(err error, from, to string, amount uint64) error {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrUnauthorizedTransfer),
		errors.Is(err, store.ErrInvalidTransfer):
		return fmt.Errorf("%w: %d from %s to %s: %w", ErrTransferFailed, amount, from, to, err)
	}
	return err
}
