package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/icrc_ledger/internal/storage"
)

// Directory implements storage.Directory on the shard_directory table.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory creates a Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

var _ storage.Directory = (*Directory)(nil)

// Append records a sealed shard. Returns ErrDuplicateKey if its id exists.
func (d *Directory) Append(ctx context.Context, desc storage.ShardDescriptor) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO shard_directory (shard_id, start_index, end_index, store_id)
		VALUES ($1, $2, $3, $4)`,
		int64(desc.ID), int64(desc.Start), int64(desc.End), desc.StoreID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("directory append %d: %w", desc.ID, err)
	}
	return nil
}

// List returns every descriptor ordered by start index.
func (d *Directory) List(ctx context.Context) ([]storage.ShardDescriptor, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT shard_id, start_index, end_index, store_id
		FROM shard_directory
		ORDER BY start_index`)
	if err != nil {
		return nil, fmt.Errorf("directory list: %w", err)
	}
	defer rows.Close()

	var out []storage.ShardDescriptor
	for rows.Next() {
		var id, start, end int64
		var storeID string
		if err := rows.Scan(&id, &start, &end, &storeID); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		out = append(out, storage.ShardDescriptor{
			ID:      uint64(id),
			Start:   uint64(start),
			End:     uint64(end),
			StoreID: storeID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}
	return out, nil
}
