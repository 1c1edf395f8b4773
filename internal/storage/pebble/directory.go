package pebblestore

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"

	"github.com/congo-pay/icrc_ledger/internal/storage"
)

// Directory stores shard descriptors under the directory prefix.
type Directory struct {
	db *DB
}

// Directory returns the shard directory view of db.
func (db *DB) Directory() *Directory {
	return &Directory{db: db}
}

var _ storage.Directory = (*Directory)(nil)

// Append records a newly sealed shard.
func (d *Directory) Append(_ context.Context, desc storage.ShardDescriptor) error {
	key := indexKey(prefixDirectory, desc.ID)
	if _, exists, err := d.db.get(key); err != nil {
		return fmt.Errorf("directory lookup %d: %w", desc.ID, err)
	} else if exists {
		return storage.ErrDuplicateKey
	}

	data, err := cbor.Marshal(desc)
	if err != nil {
		return fmt.Errorf("encode descriptor %d: %w", desc.ID, err)
	}
	if err := d.db.pebble.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("directory append %d: %w", desc.ID, err)
	}
	return nil
}

// List returns every descriptor ordered by Start. Shard ids are assigned in
// seal order, so key order is Start order.
func (d *Directory) List(_ context.Context) ([]storage.ShardDescriptor, error) {
	var out []storage.ShardDescriptor
	err := d.db.scan(indexKey(prefixDirectory, 0), []byte{prefixDirectory + 1}, func(_, value []byte) error {
		var desc storage.ShardDescriptor
		if err := cbor.Unmarshal(value, &desc); err != nil {
			return err
		}
		out = append(out, desc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("directory list: %w", err)
	}
	return out, nil
}
