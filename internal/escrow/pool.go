package escrow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/atmx/arena-escrow/internal/address"
	"github.com/atmx/arena-escrow/internal/events"
	"github.com/atmx/arena-escrow/internal/metrics"
	"github.com/atmx/arena-escrow/internal/model"
	"github.com/atmx/arena-escrow/internal/payout"
	"github.com/atmx/arena-escrow/internal/rps"
	"github.com/atmx/arena-escrow/internal/store"
)

// CustodyAccount is the balance that holds a match's stakes.
func CustodyAccount(matchID uint64) string {
	return address.Pool(matchID).String()
}

// PoolAuthority is the only signer the store accepts for debits from a
// match's custody account.
func PoolAuthority(matchID uint64) string {
	return address.PoolAuthority(matchID).String()
}

// CreateMatch allocates a match id and opens its escrow pool. Betting stays
// open while the slot counter is below current slot + duration.
func (e *Engine) CreateMatch(ctx context.Context, creator string, minThreshold, duration uint64) (*model.Pool, error) {
	if creator == "" {
		return nil, ErrInvalidIdentity
	}

	var pool *model.Pool
	err := e.update(ctx, "create_match", func(tx store.Tx) error {
		reg, err := loadRegistry(tx)
		if err != nil {
			return err
		}
		id, err := allocate(reg)
		if err != nil {
			return err
		}

		now := e.slots.Current()
		deadline, err := payout.Add(now, duration)
		if err != nil {
			return fmt.Errorf("deadline %d+%d: %w", now, duration, err)
		}

		pool = &model.Pool{
			Authority:         creator,
			MatchID:           id,
			Status:            model.StatusOpenForBetting,
			Deadline:          deadline,
			MinStakeThreshold: minThreshold,
			CreatedSlot:       now,
		}
		if err := tx.CreatePool(pool); err != nil {
			return fmt.Errorf("create pool %d: %w", id, err)
		}
		if err := tx.OpenCustody(CustodyAccount(id), PoolAuthority(id)); err != nil {
			return fmt.Errorf("open custody for match %d: %w", id, err)
		}
		return tx.PutRegistry(reg)
	})
	if err != nil {
		return nil, err
	}

	metrics.Transitions.WithLabelValues(pool.Status.String()).Inc()
	e.log.Info("match created",
		zap.Uint64("match_id", pool.MatchID),
		zap.String("authority", creator),
		zap.Uint64("deadline", pool.Deadline),
		zap.Uint64("min_stake_threshold", minThreshold),
	)
	ev := events.New(events.TypeMatchCreated, pool.MatchID)
	ev.Participant = creator
	ev.Status = pool.Status.String()
	ev.Slot = pool.CreatedSlot
	e.publish(ctx, ev)
	return pool, nil
}

// PlaceBet moves amount from participant into the match's custody and
// records the participant's receipt. predictionRaw is 0 for A, 1 for B.
func (e *Engine) PlaceBet(ctx context.Context, participant string, matchID, amount uint64, predictionRaw uint8) (*model.Receipt, error) {
	if participant == "" {
		return nil, ErrInvalidIdentity
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	prediction, err := model.ParseOutcome(predictionRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOutcome, err)
	}

	var (
		receipt *model.Receipt
		pool    *model.Pool
		now     uint64
	)
	err = e.update(ctx, "place_bet", func(tx store.Tx) error {
		var err error
		pool, err = loadPool(tx, matchID)
		if err != nil {
			return err
		}
		if pool.Status != model.StatusOpenForBetting {
			return fmt.Errorf("%w: match %d is %s", ErrBettingClosed, matchID, pool.Status)
		}
		now = e.slots.Current()
		if now >= pool.Deadline {
			return fmt.Errorf("%w: match %d closed at slot %d, now %d", ErrDeadlinePassed, matchID, pool.Deadline, now)
		}

		switch _, err := tx.Receipt(participant, matchID); {
		case err == nil:
			return fmt.Errorf("%w: %s on match %d", ErrDuplicateReceipt, participant, matchID)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		custody := CustodyAccount(matchID)
		if err := tx.Transfer(participant, custody, amount, participant); err != nil {
			return transferErr(err, participant, custody, amount)
		}

		switch prediction {
		case model.OutcomeA:
			pool.StakeA, err = payout.Add(pool.StakeA, amount)
		case model.OutcomeB:
			pool.StakeB, err = payout.Add(pool.StakeB, amount)
		}
		if err != nil {
			return fmt.Errorf("stake on %s for match %d: %w", prediction, matchID, err)
		}
		if err := tx.PutPool(pool); err != nil {
			return err
		}

		receipt = &model.Receipt{
			Participant: participant,
			MatchID:     matchID,
			Prediction:  prediction,
			Stake:       amount,
		}
		if err := tx.CreateReceipt(receipt); err != nil {
			if errors.Is(err, store.ErrExists) {
				return fmt.Errorf("%w: %s on match %d", ErrDuplicateReceipt, participant, matchID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BetsTotal.WithLabelValues(prediction.String()).Inc()
	metrics.StakedUnits.WithLabelValues(prediction.String()).Add(float64(amount))
	e.log.Info("bet placed",
		zap.Uint64("match_id", matchID),
		zap.String("participant", participant),
		zap.Stringer("prediction", prediction),
		zap.Uint64("amount", amount),
	)
	ev := events.New(events.TypeBetPlaced, matchID)
	ev.Participant = participant
	ev.Amount = amount
	ev.Prediction = prediction.String()
	ev.StakeA, ev.StakeB = pool.StakeA, pool.StakeB
	ev.Slot = now
	e.publish(ctx, ev)
	return receipt, nil
}

// CheckDeadline closes betting once the deadline slot is reached. The pool
// moves to AwaitingResolution if its total stake meets the threshold and to
// CancelledDueToLowBets otherwise.
func (e *Engine) CheckDeadline(ctx context.Context, matchID uint64) (*model.Pool, error) {
	var (
		pool *model.Pool
		now  uint64
	)
	err := e.update(ctx, "check_deadline", func(tx store.Tx) error {
		var err error
		pool, err = loadPool(tx, matchID)
		if err != nil {
			return err
		}
		if pool.Status != model.StatusOpenForBetting {
			return fmt.Errorf("%w: match %d is %s", ErrNotOpen, matchID, pool.Status)
		}
		now = e.slots.Current()
		if now < pool.Deadline {
			return fmt.Errorf("%w: match %d closes at slot %d, now %d", ErrDeadlineNotReached, matchID, pool.Deadline, now)
		}

		total, err := payout.Add(pool.StakeA, pool.StakeB)
		if err != nil {
			return fmt.Errorf("total stake of match %d: %w", matchID, err)
		}
		next := model.StatusCancelledDueToLowBets
		if total >= pool.MinStakeThreshold {
			next = model.StatusAwaitingResolution
		}
		if !pool.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s to %s", ErrWrongStatus, pool.Status, next)
		}
		pool.Status = next
		return tx.PutPool(pool)
	})
	if err != nil {
		return nil, err
	}

	metrics.Transitions.WithLabelValues(pool.Status.String()).Inc()
	e.log.Info("deadline checked",
		zap.Uint64("match_id", matchID),
		zap.Stringer("status", pool.Status),
		zap.Uint64("stake_a", pool.StakeA),
		zap.Uint64("stake_b", pool.StakeB),
		zap.Uint64("slot", now),
	)
	ev := events.New(events.TypeDeadlineChecked, matchID)
	ev.Status = pool.Status.String()
	ev.StakeA, ev.StakeB = pool.StakeA, pool.StakeB
	ev.Slot = now
	e.publish(ctx, ev)
	return pool, nil
}

// ResolveMatch records the moves of both sides and settles the pool. Only
// the pool's authority may resolve it. Move codes are 0 rock, 1 paper,
// 2 scissors.
func (e *Engine) ResolveMatch(ctx context.Context, resolver string, matchID uint64, moveARaw, moveBRaw uint8) (*model.Resolution, error) {
	moveA, err := model.ParseMove(moveARaw)
	if err != nil {
		return nil, fmt.Errorf("%w: move a: %w", ErrInvalidMove, err)
	}
	moveB, err := model.ParseMove(moveBRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: move b: %w", ErrInvalidMove, err)
	}

	var res *model.Resolution
	err = e.update(ctx, "resolve_match", func(tx store.Tx) error {
		pool, err := loadPool(tx, matchID)
		if err != nil {
			return err
		}
		if pool.Status != model.StatusAwaitingResolution {
			return fmt.Errorf("%w: match %d is %s", ErrWrongStatus, matchID, pool.Status)
		}
		if resolver != pool.Authority {
			return fmt.Errorf("%w: %q may not resolve match %d", ErrUnauthorized, resolver, matchID)
		}

		total, err := payout.Add(pool.StakeA, pool.StakeB)
		if err != nil {
			return fmt.Errorf("total stake of match %d: %w", matchID, err)
		}
		res = &model.Resolution{
			MatchID:    matchID,
			ResolvedAt: e.now(),
			MoveA:      moveA,
			MoveB:      moveB,
			Winner:     rps.Winner(moveA, moveB),
			TotalStake: total,
		}
		if err := tx.CreateResolution(res); err != nil {
			return fmt.Errorf("record resolution of match %d: %w", matchID, err)
		}

		pool.Status = model.StatusSettled
		if err := tx.PutPool(pool); err != nil {
			return err
		}

		reg, err := loadRegistry(tx)
		if err != nil {
			return err
		}
		if err := recordResolved(reg); err != nil {
			return err
		}
		return tx.PutRegistry(reg)
	})
	if err != nil {
		return nil, err
	}

	metrics.Transitions.WithLabelValues(model.StatusSettled.String()).Inc()
	e.log.Info("match resolved",
		zap.Uint64("match_id", matchID),
		zap.Stringer("move_a", moveA),
		zap.Stringer("move_b", moveB),
		zap.Stringer("winner", res.Winner),
		zap.Uint64("total_stake", res.TotalStake),
	)
	ev := events.New(events.TypeMatchResolved, matchID)
	ev.Participant = resolver
	ev.Status = model.StatusSettled.String()
	ev.Winner = res.Winner.String()
	ev.Amount = res.TotalStake
	ev.Slot = e.slots.Current()
	e.publish(ctx, ev)
	return res, nil
}
