package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// Journal implements storage.Journal on the log_journal table.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

var _ storage.Journal = (*Journal)(nil)

// Append records tx. Returns ErrDuplicateKey if its index exists.
func (j *Journal) Append(ctx context.Context, tx transaction.Transaction) error {
	payload, err := transaction.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = j.pool.Exec(ctx, `INSERT INTO log_journal (idx, payload) VALUES ($1, $2)`, int64(tx.Index), payload)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("journal append %d: %w", tx.Index, err)
	}
	return nil
}

// Truncate removes every entry with index below before.
func (j *Journal) Truncate(ctx context.Context, before uint64) error {
	if _, err := j.pool.Exec(ctx, `DELETE FROM log_journal WHERE idx < $1`, int64(before)); err != nil {
		return fmt.Errorf("journal truncate below %d: %w", before, err)
	}
	return nil
}

// Load returns every entry ordered by index.
func (j *Journal) Load(ctx context.Context) ([]transaction.Transaction, error) {
	rows, err := j.pool.Query(ctx, `SELECT payload FROM log_journal ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}
	return scanPayloads(rows)
}
