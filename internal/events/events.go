// Package events publishes escrow lifecycle events after their unit of work
// has committed. Publishing is best effort: a failed publish never changes
// the outcome of the operation that produced the event.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeMatchCreated    = "match_created"
	TypeBetPlaced       = "bet_placed"
	TypeDeadlineChecked = "deadline_checked"
	TypeMatchResolved   = "match_resolved"
	TypeClaimed         = "claimed"
)

// Event is the JSON message sent to Kafka and WebSocket clients.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	MatchID     uint64    `json:"match_id"`
	Participant string    `json:"participant,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Prediction  string    `json:"prediction,omitempty"`
	Status      string    `json:"status,omitempty"`
	Winner      string    `json:"winner,omitempty"`
	StakeA      uint64    `json:"stake_a"`
	StakeB      uint64    `json:"stake_b"`
	Slot        uint64    `json:"slot"`
	Timestamp   time.Time `json:"timestamp"`
}

// New stamps an event with a fresh id and the current time.
func New(typ string, matchID uint64) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      typ,
		MatchID:   matchID,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers events to one sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Types returns the type of every recorded event in order.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
