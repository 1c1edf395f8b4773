// Package pebblestore keeps the ledger's journal, shard directory and archive
// shards in a single Pebble key space.
package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Key prefixes. Indices are big-endian so iteration order matches index order.
const (
	prefixJournal   byte = 'j'
	prefixDirectory byte = 'd'
	prefixShardTx   byte = 's'
	prefixShardMark byte = 'h'
	prefixStoreSize byte = 'm'
)

// DB is a Pebble database holding ledger state.
type DB struct {
	pebble *pebble.DB
}

// Open opens or creates the database in dir.
func Open(dir string, opts *pebble.Options) (*DB, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	pdb, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &DB{pebble: pdb}, nil
}

// OpenInMemory opens a database backed by an in-memory filesystem.
func OpenInMemory() (*DB, error) {
	return Open("", &pebble.Options{FS: vfs.NewMem()})
}

// Close flushes and closes the database.
func (db *DB) Close() error {
	return db.pebble.Close()
}

func (db *DB) get(key []byte) ([]byte, bool, error) {
	val, closer, err := db.pebble.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// scan calls fn for every key in [lower, upper) in key order.
func (db *DB) scan(lower, upper []byte, fn func(key, value []byte) error) error {
	iter, err := db.pebble.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return err
	}
	return iter.Close()
}

func encodeUint64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func indexKey(prefix byte, index uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, prefix)
	return append(key, encodeUint64(index)...)
}

// storeKey namespaces a key by store id: prefix | id | 0x00 | index.
func storeKey(prefix byte, storeID string, index uint64) []byte {
	key := make([]byte, 0, len(storeID)+10)
	key = append(key, prefix)
	key = append(key, storeID...)
	key = append(key, 0)
	return append(key, encodeUint64(index)...)
}

func sizeKey(storeID string) []byte {
	key := make([]byte, 0, len(storeID)+1)
	key = append(key, prefixStoreSize)
	return append(key, storeID...)
}
