// Package keeper cranks pools past their betting deadline. Anyone may call
// CheckDeadline; the keeper does it on a timer so pools do not sit open
// waiting for a participant to close them.
package keeper

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/arena-escrow/internal/escrow"
)

// Concurrency bounds how many pools one sweep checks at once. Pools have
// disjoint write sets, so checks never contend with each other.
const Concurrency = 4

type Keeper struct {
	eng      *escrow.Engine
	clock    quartz.Clock
	interval time.Duration
	log      *zap.Logger
}

func New(eng *escrow.Engine, clock quartz.Clock, interval time.Duration, log *zap.Logger) *Keeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Keeper{eng: eng, clock: clock, interval: interval, log: log}
}

// Run sweeps every interval until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := k.clock.NewTicker(k.interval, "keeper")
	defer ticker.Stop()

	k.log.Info("deadline keeper started", zap.Duration("interval", k.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := k.Sweep(ctx); err != nil {
				k.log.Error("deadline sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep checks the deadline of every expired open pool and returns how many
// it moved out of OpenForBetting. Pools closed concurrently by someone else
// are skipped.
func (k *Keeper) Sweep(ctx context.Context) (int, error) {
	pools, err := k.eng.ExpiredPools(ctx)
	if err != nil {
		return 0, err
	}

	var (
		closed atomic.Int64
		g      errgroup.Group
	)
	g.SetLimit(Concurrency)
	for _, p := range pools {
		id := p.MatchID
		g.Go(func() error {
			_, err := k.eng.CheckDeadline(ctx, id)
			switch {
			case err == nil:
				closed.Add(1)
			case errors.Is(err, escrow.ErrNotOpen), errors.Is(err, escrow.ErrDeadlineNotReached):
				k.log.Debug("pool already closed", zap.Uint64("match_id", id))
			default:
				k.log.Warn("deadline check failed", zap.Uint64("match_id", id), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()
	return int(closed.Load()), nil
}
