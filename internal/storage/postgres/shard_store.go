package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// ShardStore implements storage.ShardStore on the archive tables.
type ShardStore struct {
	pool     *pgxpool.Pool
	id       string
	capacity uint64 // zero means unbounded
}

// NewShardStore creates a store named id holding at most capacity
// transactions. A zero capacity means unbounded.
func NewShardStore(pool *pgxpool.Pool, id string, capacity uint64) *ShardStore {
	return &ShardStore{pool: pool, id: id, capacity: capacity}
}

var _ storage.ShardStore = (*ShardStore)(nil)

// ID returns the store identifier.
func (s *ShardStore) ID() string { return s.id }

// WriteShard stores txs as shard d atomically.
func (s *ShardStore) WriteShard(ctx context.Context, d storage.ShardDescriptor, txs []transaction.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.capacity > 0 {
		// Serializes concurrent writers to the same store.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.id); err != nil {
			return fmt.Errorf("lock store %s: %w", s.id, err)
		}
		var used int64
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(end_index - start_index), 0)
			FROM archive_shards WHERE store_id = $1`, s.id).Scan(&used); err != nil {
			return fmt.Errorf("store usage %s: %w", s.id, err)
		}
		if uint64(used)+uint64(len(txs)) > s.capacity {
			return storage.ErrStoreFull
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO archive_shards (store_id, shard_id, start_index, end_index)
		VALUES ($1, $2, $3, $4)`,
		s.id, int64(d.ID), int64(d.Start), int64(d.Start)+int64(len(txs)),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert shard %d: %w", d.ID, err)
	}

	rows := make([][]any, 0, len(txs))
	for _, t := range txs {
		payload, err := transaction.Marshal(t)
		if err != nil {
			return err
		}
		rows = append(rows, []any{s.id, int64(t.Index), int64(d.ID), payload})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"archive_transactions"},
		[]string{"store_id", "idx", "shard_id", "payload"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy shard %d: %w", d.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit shard %d: %w", d.ID, err)
	}
	return nil
}

// ReadRange returns the transactions of shard d in [start, end). The range is
// clamped to what the shard actually holds.
func (s *ShardStore) ReadRange(ctx context.Context, d storage.ShardDescriptor, start, end uint64) ([]transaction.Transaction, error) {
	stored, err := s.Lookup(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	start = max(start, d.Start, stored.Start)
	end = min(end, d.End, stored.End)
	if start >= end {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM archive_transactions
		WHERE store_id = $1 AND shard_id = $2 AND idx >= $3 AND idx < $4
		ORDER BY idx`,
		s.id, int64(d.ID), int64(start), int64(end),
	)
	if err != nil {
		return nil, fmt.Errorf("read shard %d: %w", d.ID, err)
	}
	return scanPayloads(rows)
}

// Lookup returns the stored range of shard id.
func (s *ShardStore) Lookup(ctx context.Context, id uint64) (storage.ShardDescriptor, error) {
	var start, end int64
	err := s.pool.QueryRow(ctx, `
		SELECT start_index, end_index FROM archive_shards
		WHERE store_id = $1 AND shard_id = $2`,
		s.id, int64(id)).Scan(&start, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ShardDescriptor{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ShardDescriptor{}, fmt.Errorf("shard lookup %d: %w", id, err)
	}
	return storage.ShardDescriptor{ID: id, Start: uint64(start), End: uint64(end), StoreID: s.id}, nil
}

func scanPayloads(rows pgx.Rows) ([]transaction.Transaction, error) {
	defer rows.Close()

	var out []transaction.Transaction
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		tx, err := transaction.Unmarshal(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payloads: %w", err)
	}
	return out, nil
}
