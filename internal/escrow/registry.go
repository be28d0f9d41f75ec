package escrow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/atmx/arena-escrow/internal/model"
	"github.com/atmx/arena-escrow/internal/payout"
	"github.com/atmx/arena-escrow/internal/store"
)

// InitializeRegistry creates the match counter. It can succeed only once.
func (e *Engine) InitializeRegistry(ctx context.Context, authority string) (*model.Registry, error) {
	if authority == "" {
		return nil, ErrInvalidIdentity
	}

	var reg *model.Registry
	err := e.update(ctx, "initialize_registry", func(tx store.Tx) error {
		_, err := tx.Registry()
		switch {
		case err == nil:
			return ErrAlreadyInitialized
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		reg = &model.Registry{Authority: authority, NextMatchID: 1}
		return tx.PutRegistry(reg)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("registry initialized", zap.String("authority", authority))
	return reg, nil
}

// allocate returns the next match id and advances the counter.
func allocate(r *model.Registry) (uint64, error) {
	id := r.NextMatchID
	next, err := payout.Add(id, 1)
	if err != nil {
		return 0, fmt.Errorf("allocate match id after %d: %w", id, err)
	}
	r.NextMatchID = next
	return id, nil
}

// recordResolved counts one more settled match.
func recordResolved(r *model.Registry) error {
	n, err := payout.Add(r.TotalMatches, 1)
	if err != nil {
		return fmt.Errorf("count resolved matches: %w", err)
	}
	r.TotalMatches = n
	return nil
}
