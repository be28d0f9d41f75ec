package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/arena-escrow/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache. Units
// of work run against the primary; every record they write is invalidated
// after commit. Reads check Redis first then fall back to the primary.
// Balances and listings are not cached.
//
// Each cached key has a version key that commits bump together with the
// invalidation. A fill is written under WATCH of that version, so a reader
// that loaded a record before a concurrent commit never caches it.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	rec := &recordingTx{}
	err := s.primary.Update(ctx, func(tx Tx) error {
		rec.Tx = tx
		return fn(rec)
	})
	if err != nil {
		return err
	}
	if len(rec.keys) > 0 {
		s.invalidate(ctx, rec.keys)
	}
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, keys []string) {
	s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range keys {
			p.Incr(ctx, versionKey(key))
			if s.ttl > 0 {
				p.Expire(ctx, versionKey(key), s.ttl)
			}
		}
		p.Del(ctx, keys...)
		return nil
	})
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Registry(ctx context.Context) (*model.Registry, error) {
	return cached(ctx, s, registryCacheKey(), func() (*model.Registry, error) {
		return s.primary.Registry(ctx)
	})
}

func (s *CachedStore) Pool(ctx context.Context, matchID uint64) (*model.Pool, error) {
	return cached(ctx, s, poolCacheKey(matchID), func() (*model.Pool, error) {
		return s.primary.Pool(ctx, matchID)
	})
}

func (s *CachedStore) Receipt(ctx context.Context, participant string, matchID uint64) (*model.Receipt, error) {
	return cached(ctx, s, receiptCacheKey(participant, matchID), func() (*model.Receipt, error) {
		return s.primary.Receipt(ctx, participant, matchID)
	})
}

func (s *CachedStore) Resolution(ctx context.Context, matchID uint64) (*model.Resolution, error) {
	return cached(ctx, s, resolutionCacheKey(matchID), func() (*model.Resolution, error) {
		return s.primary.Resolution(ctx, matchID)
	})
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) ListReceipts(ctx context.Context, matchID uint64) ([]model.Receipt, error) {
	return s.primary.ListReceipts(ctx, matchID)
}

func (s *CachedStore) Balance(ctx context.Context, account string) (uint64, error) {
	return s.primary.Balance(ctx, account)
}

func (s *CachedStore) Close() error {
	return s.primary.Close()
}

// --- Cache helpers ---

func cached[T any](ctx context.Context, s *CachedStore, key string, load func() (*T, error)) (*T, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var v T
		if json.Unmarshal(data, &v) == nil {
			return &v, nil
		}
	}

	// Cache miss: read from primary while watching the key's version.
	var (
		v       *T
		loadErr error
		loaded  bool
	)
	s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		v, loadErr = load()
		loaded = true
		if loadErr != nil {
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		// Fails with redis.TxFailedErr if a commit bumped the version.
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, versionKey(key))

	if !loaded {
		// Redis unavailable.
		return load()
	}
	return v, loadErr
}

func versionKey(key string) string { return key + ":v" }

func registryCacheKey() string                   { return "escrow:" + registryKey() }
func poolCacheKey(id uint64) string              { return "escrow:pool:" + poolKey(id) }
func receiptCacheKey(p string, id uint64) string { return "escrow:receipt:" + receiptKey(p, id) }
func resolutionCacheKey(id uint64) string        { return "escrow:resolution:" + resolutionKey(id) }

// recordingTx notes the cache keys of every record written through it.
type recordingTx struct {
	Tx

	keys []string
}

func (t *recordingTx) touch(key string) {
	t.keys = append(t.keys, key)
}

func (t *recordingTx) PutRegistry(r *model.Registry) error {
	t.touch(registryCacheKey())
	return t.Tx.PutRegistry(r)
}

func (t *recordingTx) CreatePool(p *model.Pool) error {
	t.touch(poolCacheKey(p.MatchID))
	return t.Tx.CreatePool(p)
}

func (t *recordingTx) PutPool(p *model.Pool) error {
	t.touch(poolCacheKey(p.MatchID))
	return t.Tx.PutPool(p)
}

func (t *recordingTx) CreateReceipt(r *model.Receipt) error {
	t.touch(receiptCacheKey(r.Participant, r.MatchID))
	return t.Tx.CreateReceipt(r)
}

func (t *recordingTx) PutReceipt(r *model.Receipt) error {
	t.touch(receiptCacheKey(r.Participant, r.MatchID))
	return t.Tx.PutReceipt(r)
}

func (t *recordingTx) CreateResolution(res *model.Resolution) error {
	t.touch(resolutionCacheKey(res.MatchID))
	return t.Tx.CreateResolution(res)
}
