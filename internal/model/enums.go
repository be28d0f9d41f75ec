package model

import (
	"errors"
	"fmt"
)

// The zero value of every enumeration below is invalid. Values are only
// produced by the constants or the Parse functions, never by default.

var (
	ErrInvalidMove    = errors.New("model: invalid move code")
	ErrInvalidOutcome = errors.New("model: invalid outcome code")
	ErrInvalidStatus  = errors.New("model: invalid match status")
	ErrInvalidWinner  = errors.New("model: invalid winner")
)

// MatchStatus is the lifecycle state of an escrow pool.
type MatchStatus uint8

const (
	StatusOpenForBetting MatchStatus = iota + 1
	StatusAwaitingResolution
	StatusCancelledDueToLowBets
	StatusSettled
)

var statusNames = map[MatchStatus]string{
	StatusOpenForBetting:        "open_for_betting",
	StatusAwaitingResolution:    "awaiting_resolution",
	StatusCancelledDueToLowBets: "cancelled_due_to_low_bets",
	StatusSettled:               "settled",
}

func (s MatchStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the declared states.
func (s MatchStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s MatchStatus) Terminal() bool {
	return s == StatusCancelledDueToLowBets || s == StatusSettled
}

// CanTransition reports whether the lifecycle allows s → next.
func (s MatchStatus) CanTransition(next MatchStatus) bool {
	switch s {
	case StatusOpenForBetting:
		return next == StatusAwaitingResolution || next == StatusCancelledDueToLowBets
	case StatusAwaitingResolution:
		return next == StatusSettled
	}
	return false
}

func (s MatchStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *MatchStatus) UnmarshalText(b []byte) error {
	for k, n := range statusNames {
		if n == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, b)
}

// Outcome is one of the two competing predictions.
type Outcome uint8

const (
	OutcomeA Outcome = iota + 1
	OutcomeB
)

// ParseOutcome maps the wire code {0,1} to an Outcome.
func ParseOutcome(raw uint8) (Outcome, error) {
	switch raw {
	case 0:
		return OutcomeA, nil
	case 1:
		return OutcomeB, nil
	}
	return 0, fmt.Errorf("%w: %d (must be 0 or 1)", ErrInvalidOutcome, raw)
}

func (o Outcome) String() string {
	switch o {
	case OutcomeA:
		return "A"
	case OutcomeB:
		return "B"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// Winner converts the prediction into the winner value it bets on.
func (o Outcome) Winner() Winner {
	switch o {
	case OutcomeA:
		return WinnerA
	case OutcomeB:
		return WinnerB
	}
	return 0
}

func (o Outcome) MarshalText() ([]byte, error) {
	if o != OutcomeA && o != OutcomeB {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOutcome, uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "A":
		*o = OutcomeA
	case "B":
		*o = OutcomeB
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, b)
	}
	return nil
}

// Move is a rock/paper/scissors throw.
type Move uint8

const (
	MoveRock Move = iota + 1
	MovePaper
	MoveScissors
)

// ParseMove maps the wire code {0,1,2} to a Move.
func ParseMove(raw uint8) (Move, error) {
	switch raw {
	case 0:
		return MoveRock, nil
	case 1:
		return MovePaper, nil
	case 2:
		return MoveScissors, nil
	}
	return 0, fmt.Errorf("%w: %d (must be 0 rock, 1 paper or 2 scissors)", ErrInvalidMove, raw)
}

func (m Move) String() string {
	switch m {
	case MoveRock:
		return "rock"
	case MovePaper:
		return "paper"
	case MoveScissors:
		return "scissors"
	}
	return fmt.Sprintf("move(%d)", uint8(m))
}

// Valid reports whether m is rock, paper or scissors.
func (m Move) Valid() bool {
	return m >= MoveRock && m <= MoveScissors
}

func (m Move) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMove, uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Move) UnmarshalText(b []byte) error {
	for _, c := range []Move{MoveRock, MovePaper, MoveScissors} {
		if c.String() == string(b) {
			*m = c
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidMove, b)
}

// Winner is the result of a resolved match.
type Winner uint8

const (
	WinnerA Winner = iota + 1
	WinnerB
	WinnerDraw
)

func (w Winner) String() string {
	switch w {
	case WinnerA:
		return "A"
	case WinnerB:
		return "B"
	case WinnerDraw:
		return "draw"
	}
	return fmt.Sprintf("winner(%d)", uint8(w))
}

func (w Winner) MarshalText() ([]byte, error) {
	if w < WinnerA || w > WinnerDraw {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWinner, uint8(w))
	}
	return []byte(w.String()), nil
}

func (w *Winner) UnmarshalText(b []byte) error {
	for _, c := range []Winner{WinnerA, WinnerB, WinnerDraw} {
		if c.String() == string(b) {
			*w = c
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidWinner, b)
}
