package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/icrc_ledger/internal/config"
	"github.com/congo-pay/icrc_ledger/internal/ledger"
	"github.com/congo-pay/icrc_ledger/internal/storage/memory"
	pebblestore "github.com/congo-pay/icrc_ledger/internal/storage/pebble"
	"github.com/congo-pay/icrc_ledger/internal/storage/postgres"
)

// LedgerStorage is an opened ledger storage backend.
type LedgerStorage struct {
	ledger.Storage
	Backend string
	close   func() error
}

// Close releases the backend. The Postgres pool is owned by the caller.
func (s *LedgerStorage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenLedgerStorage opens the backend selected by cfg. db is required for the
// postgres backend and ignored otherwise.
func OpenLedgerStorage(ctx context.Context, cfg config.Config, db *pgxpool.Pool) (*LedgerStorage, error) {
	out := &LedgerStorage{Backend: cfg.StorageBackend}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		out.Journal = memory.NewJournal()
		out.Directory = memory.NewDirectory()
		for _, id := range cfg.ArchiveStores {
			out.Stores = append(out.Stores, memory.NewShardStore(id, cfg.ArchiveStoreCapacity))
		}

	case config.BackendPebble:
		pdb, err := pebblestore.Open(cfg.PebbleDir, nil)
		if err != nil {
			return nil, err
		}
		out.Journal = pdb.Journal()
		out.Directory = pdb.Directory()
		for _, id := range cfg.ArchiveStores {
			out.Stores = append(out.Stores, pdb.ShardStore(id, cfg.ArchiveStoreCapacity))
		}
		out.close = pdb.Close

	case config.BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres backend requires a database pool")
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			return nil, err
		}
		out.Journal = postgres.NewJournal(db)
		out.Directory = postgres.NewDirectory(db)
		for _, id := range cfg.ArchiveStores {
			out.Stores = append(out.Stores, postgres.NewShardStore(db, id, cfg.ArchiveStoreCapacity))
		}

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	return out, nil
}

// StoreIDs lists the configured shard stores in preference order.
func (s *LedgerStorage) StoreIDs() []string {
	ids := make([]string, 0, len(s.Stores))
	for _, st := range s.Stores {
		ids = append(ids, st.ID())
	}
	return ids
}

