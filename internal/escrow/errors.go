package escrow

import (
	"errors"

	"github.com/atmx/arena-escrow/internal/payout"
)

// Failure kinds returned by Engine operations. Every returned error wraps
// exactly one of these; match with errors.Is.
var (
	ErrAlreadyInitialized = errors.New("escrow: registry already initialized")
	ErrNotInitialized     = errors.New("escrow: registry not initialized")
	ErrInvalidIdentity    = errors.New("escrow: identity is required")

	ErrBettingClosed      = errors.New("escrow: betting is closed for this match")
	ErrDeadlinePassed     = errors.New("escrow: betting deadline has passed")
	ErrZeroAmount         = errors.New("escrow: amount must be greater than zero")
	ErrInvalidOutcome     = errors.New("escrow: invalid predicted outcome")
	ErrDuplicateReceipt   = errors.New("escrow: participant already bet on this match")
	ErrTransferFailed     = errors.New("escrow: value transfer failed")
	ErrNotOpen            = errors.New("escrow: match is not open for betting")
	ErrDeadlineNotReached = errors.New("escrow: deadline has not been reached")
	ErrInvalidMove        = errors.New("escrow: invalid move")
	ErrWrongStatus        = errors.New("escrow: match is in the wrong status")
	ErrUnauthorized       = errors.New("escrow: caller is not the match authority")
	ErrAlreadyClaimed     = errors.New("escrow: receipt already claimed")
	ErrIDMismatch         = errors.New("escrow: match id mismatch between records")
	ErrNotFound           = errors.New("escrow: not found")

	ErrOverflow       = payout.ErrOverflow
	ErrDivisionByZero = payout.ErrDivisionByZero
	ErrNoWinningStake = payout.ErrNoWinningStake
)

// Kind classifies an error for callers that map it to a response.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindAuthorization Kind = "authorization"
	KindArithmetic    Kind = "arithmetic"
	KindConsistency   Kind = "consistency"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Consistency and arithmetic come first: an error that reports a broken
// invariant is classified as such even if it also wraps a state error.
var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrIDMismatch, KindConsistency},
	{ErrNoWinningStake, KindConsistency},
	{ErrOverflow, KindArithmetic},
	{ErrDivisionByZero, KindArithmetic},

	{ErrInvalidIdentity, KindValidation},
	{ErrZeroAmount, KindValidation},
	{ErrInvalidOutcome, KindValidation},
	{ErrInvalidMove, KindValidation},

	{ErrUnauthorized, KindAuthorization},
	{ErrTransferFailed, KindState},

	{ErrAlreadyInitialized, KindState},
	{ErrNotInitialized, KindState},
	{ErrBettingClosed, KindState},
	{ErrDeadlinePassed, KindState},
	{ErrDuplicateReceipt, KindState},
	{ErrNotOpen, KindState},
	{ErrDeadlineNotReached, KindState},
	{ErrWrongStatus, KindState},
	{ErrAlreadyClaimed, KindState},

	{ErrNotFound, KindNotFound},
}

// KindOf returns the class of err, or KindInternal for errors the engine
// does not produce itself.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
