package pebblestore

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// Journal stores the live log segment under the journal prefix.
type Journal struct {
	db *DB
}

// Journal returns the journal view of db.
func (db *DB) Journal() *Journal {
	return &Journal{db: db}
}

var _ storage.Journal = (*Journal)(nil)

// Append durably records tx.
func (j *Journal) Append(_ context.Context, tx transaction.Transaction) error {
	key := indexKey(prefixJournal, tx.Index)
	if _, exists, err := j.db.get(key); err != nil {
		return fmt.Errorf("journal lookup %d: %w", tx.Index, err)
	} else if exists {
		return storage.ErrDuplicateKey
	}

	data, err := transaction.Marshal(tx)
	if err != nil {
		return err
	}
	if err := j.db.pebble.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("journal append %d: %w", tx.Index, err)
	}
	return nil
}

// Truncate removes every entry with index below before.
func (j *Journal) Truncate(_ context.Context, before uint64) error {
	if before == 0 {
		return nil
	}
	if err := j.db.pebble.DeleteRange(indexKey(prefixJournal, 0), indexKey(prefixJournal, before), pebble.Sync); err != nil {
		return fmt.Errorf("journal truncate below %d: %w", before, err)
	}
	return nil
}

// Load returns every journaled entry ordered by index.
func (j *Journal) Load(_ context.Context) ([]transaction.Transaction, error) {
	var out []transaction.Transaction
	upper := []byte{prefixJournal + 1}
	err := j.db.scan(indexKey(prefixJournal, 0), upper, func(_, value []byte) error {
		tx, err := transaction.Unmarshal(value)
		if err != nil {
			return err
		}
		out = append(out, tx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}
	return out, nil
}

