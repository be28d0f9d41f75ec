package escrow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/atmx/arena-escrow/internal/model"
	"github.com/atmx/arena-escrow/internal/store"
)

// Deposit credits externally funded value to a participant account and
// returns the new balance. Only the registry authority may credit accounts,
// and custody accounts cannot be credited at all.
func (e *Engine) Deposit(ctx context.Context, caller, account string, amount uint64) (uint64, error) {
	if caller == "" || account == "" {
		return 0, ErrInvalidIdentity
	}
	if amount == 0 {
		return 0, ErrZeroAmount
	}

	var balance uint64
	err := e.update(ctx, "deposit", func(tx store.Tx) error {
		reg, err := loadRegistry(tx)
		if err != nil {
			return err
		}
		if caller != reg.Authority {
			return fmt.Errorf("%w: deposits are credited by the registry authority", ErrUnauthorized)
		}
		if err := tx.Credit(account, amount); err != nil {
			if errors.Is(err, store.ErrCustodyAccount) {
				return fmt.Errorf("%w: %w", ErrUnauthorized, err)
			}
			return err
		}
		balance, err = tx.Balance(account)
		return err
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("deposit credited",
		zap.String("caller", caller),
		zap.String("account", account),
		zap.Uint64("amount", amount),
		zap.Uint64("balance", balance),
	)
	return balance, nil
}

// Balance returns the committed balance of an account. Unknown accounts hold
// zero.
func (e *Engine) Balance(ctx context.Context, account string) (uint64, error) {
	return e.store.Balance(ctx, account)
}

func (e *Engine) Registry(ctx context.Context) (*model.Registry, error) {
	r, err := e.store.Registry(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	return r, err
}

func (e *Engine) Pool(ctx context.Context, matchID uint64) (*model.Pool, error) {
	p, err := e.store.Pool(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: match %d", ErrNotFound, matchID)
	}
	return p, err
}

// Pools lists every pool ordered by match id, optionally only those in one
// status.
func (e *Engine) Pools(ctx context.Context, status model.MatchStatus) ([]model.Pool, error) {
	all, err := e.store.ListPools(ctx)
	if err != nil || status == 0 {
		return all, err
	}
	out := make([]model.Pool, 0, len(all))
	for _, p := range all {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

// ExpiredPools returns the open pools whose deadline the slot counter has
// reached.
func (e *Engine) ExpiredPools(ctx context.Context) ([]model.Pool, error) {
	open, err := e.Pools(ctx, model.StatusOpenForBetting)
	if err != nil {
		return nil, err
	}
	now := e.slots.Current()
	out := open[:0]
	for _, p := range open {
		if now >= p.Deadline {
			out = append(out, p)
		}
	}
	return out, nil
}

func (e *Engine) Receipt(ctx context.Context, participant string, matchID uint64) (*model.Receipt, error) {
	r, err := e.store.Receipt(ctx, participant, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: no receipt for %s on match %d", ErrNotFound, participant, matchID)
	}
	return r, err
}

func (e *Engine) Receipts(ctx context.Context, matchID uint64) ([]model.Receipt, error) {
	return e.store.ListReceipts(ctx, matchID)
}

func (e *Engine) Resolution(ctx context.Context, matchID uint64) (*model.Resolution, error) {
	r, err := e.store.Resolution(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: match %d is unresolved", ErrNotFound, matchID)
	}
	return r, err
}
