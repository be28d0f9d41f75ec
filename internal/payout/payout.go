// Package payout computes what a bet receipt is owed once its pool has been
// settled or cancelled. It is stateless: records are passed in, an amount
// comes out, nothing is written.
//
// Pari-mutuel rule: winners get their stake back plus a share of the losing
// side proportional to their stake, floored to the base unit. A draw or a
// cancelled pool refunds every stake.
package payout

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/atmx/arena-escrow/internal/model"
)

var (
	// ErrNotClaimable is returned for pools that are neither settled nor
	// cancelled.
	ErrNotClaimable = errors.New("payout: pool is not settled or cancelled")

	// ErrRecordMismatch is returned when the receipt or resolution belongs to
	// a different match than the pool.
	ErrRecordMismatch = errors.New("payout: match id mismatch between records")

	// ErrNoWinningStake is returned when a receipt wins against a pool that
	// recorded no stake on the winning side. That cannot happen for a
	// consistent ledger.
	ErrNoWinningStake = errors.New("payout: winning outcome has no recorded stake")

	// ErrMissingResolution is returned for a settled pool with no resolution.
	ErrMissingResolution = errors.New("payout: settled pool has no resolution record")
)

// Compute returns the amount owed to r. res is required only when the pool
// is settled.
func Compute(r *model.Receipt, p *model.Pool, res *model.Resolution) (uint64, error) {
	if r.MatchID != p.MatchID {
		return 0, fmt.Errorf("%w: receipt %d, pool %d", ErrRecordMismatch, r.MatchID, p.MatchID)
	}

	if !p.Status.Terminal() {
		return 0, fmt.Errorf("%w: status %s", ErrNotClaimable, p.Status)
	}
	if p.Status == model.StatusCancelledDueToLowBets {
		return r.Stake, nil
	}

	if res == nil {
		return 0, ErrMissingResolution
	}
	if res.MatchID != p.MatchID {
		return 0, fmt.Errorf("%w: resolution %d, pool %d", ErrRecordMismatch, res.MatchID, p.MatchID)
	}
	return settled(r, p, res.Winner)
}

func settled(r *model.Receipt, p *model.Pool, winner model.Winner) (uint64, error) {
	switch winner {
	case model.WinnerDraw:
		return r.Stake, nil
	case model.WinnerA, model.WinnerB:
	default:
		return 0, fmt.Errorf("%w: %d", model.ErrInvalidWinner, uint8(winner))
	}
	if r.Prediction.Winner() != winner {
		return 0, nil
	}

	winning := p.StakeOn(r.Prediction)
	if winning == 0 {
		return 0, ErrNoWinningStake
	}
	total, err := Add(p.StakeA, p.StakeB)
	if err != nil {
		return 0, fmt.Errorf("pool total: %w", err)
	}
	losing, err := Sub(total, winning)
	if err != nil {
		return 0, fmt.Errorf("losing side: %w", err)
	}

	profit, err := MulDiv(r.Stake, losing, winning)
	if err != nil {
		return 0, fmt.Errorf("profit for stake %d: %w", r.Stake, err)
	}
	return Add(r.Stake, profit)
}

// Quote is the gross return per unit staked on each outcome if it won now.
// A zero value means nobody has staked on that outcome yet.
type Quote struct {
	A decimal.Decimal `json:"a"`
	B decimal.Decimal `json:"b"`
}

// QuoteScale is the number of decimal places in a quote.
var QuoteScale int32 = 4

// QuotePool returns display odds for p. Quotes are informational only;
// settlement always goes through Compute.
func QuotePool(p *model.Pool) Quote {
	a := units(p.StakeA)
	b := units(p.StakeB)
	total := a.Add(b)

	q := Quote{A: decimal.Zero, B: decimal.Zero}
	if a.IsPositive() {
		q.A = total.DivRound(a, QuoteScale)
	}
	if b.IsPositive() {
		q.B = total.DivRound(b, QuoteScale)
	}
	return q
}

func units(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}
