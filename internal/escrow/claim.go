package escrow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/atmx/arena-escrow/internal/events"
	"github.com/atmx/arena-escrow/internal/metrics"
	"github.com/atmx/arena-escrow/internal/model"
	"github.com/atmx/arena-escrow/internal/payout"
	"github.com/atmx/arena-escrow/internal/store"
)

// Claim pays out the participant's receipt on a settled or cancelled match
// and marks it claimed. The transfer out of custody is signed by the pool
// authority; no other path debits a custody account. A losing receipt is
// marked claimed with a zero payout.
func (e *Engine) Claim(ctx context.Context, participant string, matchID uint64) (*model.Receipt, error) {
	if participant == "" {
		return nil, ErrInvalidIdentity
	}

	var (
		receipt *model.Receipt
		status  model.MatchStatus
	)
	err := e.update(ctx, "claim", func(tx store.Tx) error {
		var err error
		receipt, err = tx.Receipt(participant, matchID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: no receipt for %s on match %d", ErrNotFound, participant, matchID)
		}
		if err != nil {
			return err
		}
		if receipt.Claimed {
			return fmt.Errorf("%w: %s on match %d", ErrAlreadyClaimed, participant, matchID)
		}

		pool, err := loadPool(tx, matchID)
		if err != nil {
			return err
		}
		if receipt.MatchID != pool.MatchID {
			return fmt.Errorf("%w: receipt %d, pool %d", ErrIDMismatch, receipt.MatchID, pool.MatchID)
		}
		status = pool.Status

		var res *model.Resolution
		if pool.Status == model.StatusSettled {
			res, err = tx.Resolution(matchID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: settled match %d has no resolution", ErrIDMismatch, matchID)
			}
			if err != nil {
				return err
			}
		}

		amount, err := payout.Compute(receipt, pool, res)
		if err != nil {
			return computeErr(err)
		}

		if amount > 0 {
			custody := CustodyAccount(matchID)
			if err := tx.Transfer(custody, participant, amount, PoolAuthority(matchID)); err != nil {
				return transferErr(err, custody, participant, amount)
			}
		}

		receipt.Claimed = true
		receipt.Payout = amount
		return tx.PutReceipt(receipt)
	})
	if err != nil {
		return nil, err
	}

	metrics.ClaimsTotal.WithLabelValues(status.String()).Inc()
	metrics.PayoutUnits.Add(float64(receipt.Payout))
	e.log.Info("receipt claimed",
		zap.Uint64("match_id", matchID),
		zap.String("participant", participant),
		zap.Stringer("status", status),
		zap.Uint64("stake", receipt.Stake),
		zap.Uint64("payout", receipt.Payout),
	)
	ev := events.New(events.TypeClaimed, matchID)
	ev.Participant = participant
	ev.Amount = receipt.Payout
	ev.Prediction = receipt.Prediction.String()
	ev.Status = status.String()
	ev.Slot = e.slots.Current()
	e.publish(ctx, ev)
	return receipt, nil
}

// computeErr maps payout failures onto engine failure kinds. Arithmetic
// sentinels are shared and pass through.
func computeErr(err error) error {
	switch {
	case errors.Is(err, payout.ErrNotClaimable):
		return fmt.Errorf("%w: %w", ErrWrongStatus, err)
	case errors.Is(err, payout.ErrRecordMismatch), errors.Is(err, payout.ErrMissingResolution):
		return fmt.Errorf("%w: %w", ErrIDMismatch, err)
	}
	return err
}
