// Package model defines the persisted records of the settlement engine.
// All amounts are uint64 base units; arithmetic on them lives in package
// payout and is always checked.
package model

import (
	"time"
)

// Registry is the single process-wide match counter.
// Schema: {authority, next_match_id, total_matches}
type Registry struct {
	Authority    string `json:"authority" db:"authority"`
	NextMatchID  uint64 `json:"next_match_id" db:"next_match_id"`
	TotalMatches uint64 `json:"total_matches" db:"total_matches"`
}

// Pool is the escrow ledger of one match. StakeA+StakeB never exceeds the
// balance held in the pool's custody account.
type Pool struct {
	Authority         string      `json:"authority" db:"authority"`
	MatchID           uint64      `json:"match_id" db:"match_id"`
	StakeA            uint64      `json:"stake_a" db:"stake_a"`
	StakeB            uint64      `json:"stake_b" db:"stake_b"`
	Status            MatchStatus `json:"status" db:"status"`
	Deadline          uint64      `json:"deadline" db:"deadline"` // slot
	MinStakeThreshold uint64      `json:"min_stake_threshold" db:"min_stake_threshold"`
	CreatedSlot       uint64      `json:"created_slot" db:"created_slot"`
}

// StakeOn returns the aggregate stake recorded for one outcome.
func (p *Pool) StakeOn(o Outcome) uint64 {
	switch o {
	case OutcomeA:
		return p.StakeA
	case OutcomeB:
		return p.StakeB
	}
	return 0
}

// Receipt is a participant's proof of stake for one match. Only Claimed and
// Payout change after creation, and only once.
type Receipt struct {
	Participant string  `json:"participant" db:"participant"`
	MatchID     uint64  `json:"match_id" db:"match_id"`
	Prediction  Outcome `json:"prediction" db:"prediction"`
	Stake       uint64  `json:"stake" db:"stake"`
	Claimed     bool    `json:"claimed" db:"claimed"`
	Payout      uint64  `json:"payout" db:"payout"` // amount paid by the claim
}

// Resolution is the immutable result of a settled match.
type Resolution struct {
	MatchID    uint64    `json:"match_id" db:"match_id"`
	ResolvedAt time.Time `json:"resolved_at" db:"resolved_at"`
	MoveA      Move      `json:"move_a" db:"move_a"`
	MoveB      Move      `json:"move_b" db:"move_b"`
	Winner     Winner    `json:"winner" db:"winner"`
	TotalStake uint64    `json:"total_stake" db:"total_stake"`
}
