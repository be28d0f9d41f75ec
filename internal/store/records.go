package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atmx/arena-escrow/internal/address"
	"github.com/atmx/arena-escrow/internal/model"
	"github.com/atmx/arena-escrow/internal/payout"
)

// Buckets group records by kind. Keys inside a bucket are addresses, except
// for accounts, which are keyed by the account identity.
const (
	bucketRegistry    = "registry"
	bucketPools       = "pools"
	bucketReceipts    = "receipts"
	bucketResolutions = "resolutions"
	bucketAccounts    = "accounts"
)

var buckets = []string{bucketRegistry, bucketPools, bucketReceipts, bucketResolutions, bucketAccounts}

// kv is the raw keyed storage a backend exposes inside one transaction.
type kv interface {
	// get returns nil, nil for a missing key.
	get(bucket, key string) ([]byte, error)
	// insert fails with ErrExists if key is present.
	insert(bucket, key string, val []byte) error
	put(bucket, key string, val []byte) error
	scan(bucket string, fn func(val []byte) error) error
}

// account is the stored balance of one addressable account.
type account struct {
	Balance   uint64 `json:"balance"`
	Authority string `json:"authority,omitempty"` // set for custody accounts
}

// txn implements Tx on top of a backend's kv.
type txn struct {
	kv kv
}

func load[T any](s kv, bucket, key string) (*T, error) {
	data, err := s.get(bucket, key)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return &v, nil
}

func save(s kv, bucket, key string, v any, create bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	if create {
		return s.insert(bucket, key, data)
	}
	return s.put(bucket, key, data)
}

func scanAll[T any](s kv, bucket string, keep func(*T) bool) ([]T, error) {
	var out []T
	err := s.scan(bucket, func(data []byte) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		if keep == nil || keep(&v) {
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

func registryKey() string                   { return address.Registry().String() }
func poolKey(id uint64) string              { return address.Pool(id).String() }
func receiptKey(p string, id uint64) string { return address.Receipt(p, id).String() }
func resolutionKey(id uint64) string        { return address.MatchRecord(id).String() }

func (t *txn) Registry() (*model.Registry, error) {
	return load[model.Registry](t.kv, bucketRegistry, registryKey())
}

func (t *txn) PutRegistry(r *model.Registry) error {
	return save(t.kv, bucketRegistry, registryKey(), r, false)
}

func (t *txn) Pool(matchID uint64) (*model.Pool, error) {
	return load[model.Pool](t.kv, bucketPools, poolKey(matchID))
}

func (t *txn) CreatePool(p *model.Pool) error {
	return save(t.kv, bucketPools, poolKey(p.MatchID), p, true)
}

func (t *txn) PutPool(p *model.Pool) error {
	if _, err := t.Pool(p.MatchID); err != nil {
		return err
	}
	return save(t.kv, bucketPools, poolKey(p.MatchID), p, false)
}

func (t *txn) Receipt(participant string, matchID uint64) (*model.Receipt, error) {
	return load[model.Receipt](t.kv, bucketReceipts, receiptKey(participant, matchID))
}

func (t *txn) CreateReceipt(r *model.Receipt) error {
	return save(t.kv, bucketReceipts, receiptKey(r.Participant, r.MatchID), r, true)
}

func (t *txn) PutReceipt(r *model.Receipt) error {
	if _, err := t.Receipt(r.Participant, r.MatchID); err != nil {
		return err
	}
	return save(t.kv, bucketReceipts, receiptKey(r.Participant, r.MatchID), r, false)
}

func (t *txn) Resolution(matchID uint64) (*model.Resolution, error) {
	return load[model.Resolution](t.kv, bucketResolutions, resolutionKey(matchID))
}

func (t *txn) CreateResolution(res *model.Resolution) error {
	return save(t.kv, bucketResolutions, resolutionKey(res.MatchID), res, true)
}

func (t *txn) loadAccount(id string) (*account, error) {
	a, err := load[account](t.kv, bucketAccounts, id)
	if err == nil {
		return a, nil
	}
	if isNotFound(err) {
		return &account{}, nil
	}
	return nil, err
}

// lockAccount materializes a missing account row before reading it, so a
// backend with row locks serializes concurrent first credits.
func (t *txn) lockAccount(id string) (*account, error) {
	empty, err := json.Marshal(&account{})
	if err != nil {
		return nil, err
	}
	if err := t.kv.insert(bucketAccounts, id, empty); err != nil && !errors.Is(err, ErrExists) {
		return nil, err
	}
	return load[account](t.kv, bucketAccounts, id)
}

func (t *txn) OpenCustody(id, authority string) error {
	if authority == "" {
		return fmt.Errorf("%w: custody %s needs an authority", ErrInvalidTransfer, id)
	}
	a, err := t.lockAccount(id)
	if err != nil {
		return err
	}
	// An address is derivable before its pool exists, so it may already hold
	// credited value. Adopt the row; only a second custody claim conflicts.
	if a.Authority != "" {
		return fmt.Errorf("%w: custody %s already opened", ErrExists, id)
	}
	a.Authority = authority
	return save(t.kv, bucketAccounts, id, a, false)
}

func (t *txn) Balance(id string) (uint64, error) {
	a, err := t.loadAccount(id)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

func (t *txn) Credit(id string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidTransfer)
	}
	a, err := t.lockAccount(id)
	if err != nil {
		return err
	}
	if a.Authority != "" {
		return fmt.Errorf("%w: %s", ErrCustodyAccount, id)
	}
	if a.Balance, err = payout.Add(a.Balance, amount); err != nil {
		return fmt.Errorf("credit %s: %w", id, err)
	}
	return save(t.kv, bucketAccounts, id, a, false)
}

func (t *txn) Transfer(from, to string, amount uint64, signer string) error {
	if amount == 0 || from == "" || to == "" {
		return fmt.Errorf("%w: %q → %q amount %d", ErrInvalidTransfer, from, to, amount)
	}
	if from == to {
		return fmt.Errorf("%w: source and destination are both %s", ErrInvalidTransfer, from)
	}

	src, err := t.lockAccount(from)
	if err != nil {
		return err
	}
	if err := authorize(from, src, signer); err != nil {
		return err
	}
	dst, err := t.lockAccount(to)
	if err != nil {
		return err
	}

	if src.Balance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, src.Balance, amount)
	}
	src.Balance -= amount
	if dst.Balance, err = payout.Add(dst.Balance, amount); err != nil {
		return fmt.Errorf("transfer to %s: %w", to, err)
	}

	if err := save(t.kv, bucketAccounts, from, src, false); err != nil {
		return err
	}
	return save(t.kv, bucketAccounts, to, dst, false)
}

// authorize enforces who may debit an account: its owner, or for custody
// accounts only the authority registered by OpenCustody.
func authorize(id string, a *account, signer string) error {
	want := id
	if a.Authority != "" {
		want = a.Authority
	}
	if signer != want {
		return fmt.Errorf("%w: %s signed for %s", ErrUnauthorizedTransfer, signer, id)
	}
	return nil
}

// reader implements Reader for backends that can open a read-only kv.
type reader struct {
	view func(ctx context.Context, fn func(kv) error) error
}

func (r reader) Registry(ctx context.Context) (out *model.Registry, err error) {
	err = r.view(ctx, func(s kv) error {
		out, err = (&txn{kv: s}).Registry()
		return err
	})
	return out, err
}

func (r reader) Pool(ctx context.Context, matchID uint64) (out *model.Pool, err error) {
	err = r.view(ctx, func(s kv) error {
		out, err = (&txn{kv: s}).Pool(matchID)
		return err
	})
	return out, err
}

func (r reader) ListPools(ctx context.Context) (out []model.Pool, err error) {
	err = r.view(ctx, func(s kv) error {
		out, err = scanAll[model.Pool](s, bucketPools, nil)
		return err
	})
	sortPools(out)
	return out, err
}

func (r reader) Receipt(ctx context.Context, participant string, matchID uint64) (out *model.Receipt, err error) {
	err = r.view(ctx, func(s kv) error {
		out, err = (&txn{kv: s}).Receipt(participant, matchID)
		return err
	})
	return out, err
}

func (r reader) ListReceipts(ctx context.Context, matchID uint64) (out []model.Receipt, err error) {
	err = r.view(ctx, func(s kv) error {
		out, err = scanAll(s, bucketReceipts, func(rc *model.Receipt) bool { return rc.MatchID == matchID })
		return err
	})
	sortReceipts(out)
	return out, err
}

func (r reader) Resolution(ctx context.Context, matchID uint64) (out *model.Resolution, err error) {
	err = r.view(ctx, func(s kv) error {
		out, err = (&txn{kv: s}).Resolution(matchID)
		return err
	})
	return out, err
}

func (r reader) Balance(ctx context.Context, id string) (out uint64, err error) {
	err = r.view(ctx, func(s kv) error {
		out, err = (&txn{kv: s}).Balance(id)
		return err
	})
	return out, err
}
