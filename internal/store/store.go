// Package store defines the persistence boundary of the settlement engine.
// Records live in a keyed store under their deterministic address; every
// engine operation runs as one Update unit of work that either commits all
// of its writes, balance movements included, or none of them.
//
// Implementations: in-memory (tests and development), bbolt (embedded,
// durable), PostgreSQL (shared source of truth) and a Redis read-through
// cache that wraps any of them.
package store

import (
	"context"
	"errors"

	"github.com/atmx/arena-escrow/internal/model"
)

var (
	ErrNotFound             = errors.New("store: record not found")
	ErrExists               = errors.New("store: record already exists")
	ErrInsufficientFunds    = errors.New("store: insufficient funds")
	ErrUnauthorizedTransfer = errors.New("store: signer may not debit account")
	ErrInvalidTransfer      = errors.New("store: invalid transfer")
	ErrCustodyAccount       = errors.New("store: custody accounts cannot be credited directly")
)

// Reader serves committed state outside a unit of work.
type Reader interface {
	Registry(ctx context.Context) (*model.Registry, error)
	Pool(ctx context.Context, matchID uint64) (*model.Pool, error)
	ListPools(ctx context.Context) ([]model.Pool, error)
	Receipt(ctx context.Context, participant string, matchID uint64) (*model.Receipt, error)
	ListReceipts(ctx context.Context, matchID uint64) ([]model.Receipt, error)
	Resolution(ctx context.Context, matchID uint64) (*model.Resolution, error)
	Balance(ctx context.Context, account string) (uint64, error)
}

// Store is the persistence interface used by the engine.
type Store interface {
	Reader

	// Update runs fn as one atomic unit of work. Writers are serialized; if
	// fn returns an error nothing it wrote becomes visible.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the read/write set of one unit of work. Reads observe the unit's own
// earlier writes.
type Tx interface {
	// --- Registry ---

	Registry() (*model.Registry, error)
	PutRegistry(r *model.Registry) error

	// --- Escrow pools ---

	Pool(matchID uint64) (*model.Pool, error)
	// CreatePool fails with ErrExists if the pool address is occupied.
	CreatePool(p *model.Pool) error
	PutPool(p *model.Pool) error

	// --- Bet receipts ---

	Receipt(participant string, matchID uint64) (*model.Receipt, error)
	// CreateReceipt fails with ErrExists if the participant already holds a
	// receipt for the match.
	CreateReceipt(r *model.Receipt) error
	PutReceipt(r *model.Receipt) error

	// --- Resolution records ---

	Resolution(matchID uint64) (*model.Resolution, error)
	CreateResolution(res *model.Resolution) error

	// --- Balances (value-transfer collaborator) ---

	// OpenCustody registers account as a custody account that only
	// authority may debit.
	OpenCustody(account, authority string) error
	Balance(account string) (uint64, error)
	// Credit adds externally funded value to a participant account.
	Credit(account string, amount uint64) error
	// Transfer moves amount from → to. signer must be the owner of from, or
	// for a custody account the authority it was opened with.
	Transfer(from, to string, amount uint64, signer string) error
}
