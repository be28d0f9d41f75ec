// Package address derives stable record and account identifiers from a
// namespace tag and an ordered tuple of key fields. Identifiers have no
// private key behind them; anyone can recompute them from the same inputs.
package address

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/decred/base58"
	lru "github.com/hashicorp/golang-lru"
)

// Namespace separates identifier spaces. Equal key fields under different
// namespaces never produce the same address.
type Namespace string

const (
	NSRegistry      Namespace = "registry"
	NSPool          Namespace = "pool"
	NSPoolAuthority Namespace = "pool-authority"
	NSReceipt       Namespace = "receipt"
	NSMatchRecord   Namespace = "match-record"
)

// Address is a base58-encoded SHA-256 digest.
type Address string

func (a Address) String() string { return string(a) }

var addrSeed = []byte("arena escrow address seed")

var cache *lru.Cache

func init() {
	cache, _ = lru.New(10240)
}

// Field is one length-prefixed component of the key tuple.
type Field []byte

// String encodes a text key field.
func String(s string) Field { return Field(s) }

// Uint64 encodes a numeric key field little-endian, fixed width.
func Uint64(n uint64) Field {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, n)
	return buf
}

// Derive returns the address for ns and fields. Every field is prefixed by
// its length so ("ab","c") and ("a","bc") differ.
func Derive(ns Namespace, fields ...Field) Address {
	buf := make([]byte, 0, len(addrSeed)+len(ns)+1+len(fields)*16)
	buf = append(buf, addrSeed...)
	buf = append(buf, ns...)
	buf = append(buf, 0)
	for _, f := range fields {
		buf = binary.AppendUvarint(buf, uint64(len(f)))
		buf = append(buf, f...)
	}

	key := string(buf)
	if v, ok := cache.Get(key); ok {
		return v.(Address)
	}
	sum := sha256.Sum256(buf)
	addr := Address(base58.Encode(sum[:]))
	cache.Add(key, addr)
	return addr
}

// Registry is the address of the single match registry.
func Registry() Address {
	return Derive(NSRegistry)
}

// Pool is the address of a match's escrow pool record and custody account.
func Pool(matchID uint64) Address {
	return Derive(NSPool, Uint64(matchID))
}

// PoolAuthority is the derived identity that alone may sign transfers out of
// the pool's custody account.
func PoolAuthority(matchID uint64) Address {
	return Derive(NSPoolAuthority, Uint64(matchID))
}

// Receipt is the address of participant's bet receipt for a match. One
// address per pair makes a second receipt structurally impossible.
func Receipt(participant string, matchID uint64) Address {
	return Derive(NSReceipt, String(participant), Uint64(matchID))
}

// MatchRecord is the address of a match's resolution record.
func MatchRecord(matchID uint64) Address {
	return Derive(NSMatchRecord, Uint64(matchID))
}
