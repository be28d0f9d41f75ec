package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store on an embedded bbolt database. bbolt allows a
// single writer at a time and discards a transaction whose function returns
// an error, which is exactly the unit-of-work contract.
type BoltStore struct {
	reader

	db *bolt.DB
}

// OpenBoltStore opens (creating if needed) the database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database path: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database buckets: %w", err)
	}

	s := &BoltStore{db: db}
	s.reader = reader{view: s.view}
	return s, nil
}

func (s *BoltStore) Update(_ context.Context, fn func(tx Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&txn{kv: boltKV{tx: tx}})
	})
}

func (s *BoltStore) view(_ context.Context, fn func(kv) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(boltKV{tx: tx})
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltKV struct {
	tx *bolt.Tx
}

func (k boltKV) bucket(name string) (*bolt.Bucket, error) {
	b := k.tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket %s doesn't exist", name)
	}
	return b, nil
}

func (k boltKV) get(bucket, key string) ([]byte, error) {
	b, err := k.bucket(bucket)
	if err != nil {
		return nil, err
	}
	return b.Get([]byte(key)), nil
}

func (k boltKV) insert(bucket, key string, val []byte) error {
	b, err := k.bucket(bucket)
	if err != nil {
		return err
	}
	if b.Get([]byte(key)) != nil {
		return fmt.Errorf("%w: %s/%s", ErrExists, bucket, key)
	}
	return b.Put([]byte(key), val)
}

func (k boltKV) put(bucket, key string, val []byte) error {
	b, err := k.bucket(bucket)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), val)
}

func (k boltKV) scan(bucket string, fn func(val []byte) error) error {
	b, err := k.bucket(bucket)
	if err != nil {
		return err
	}
	return b.ForEach(func(_, v []byte) error {
		return fn(v)
	})
}
