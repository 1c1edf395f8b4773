package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/icrc_ledger/internal/archive"
	"github.com/congo-pay/icrc_ledger/internal/txlog"
)

const (
	defaultTriggerThreshold   = 2000
	defaultNumBlocksToArchive = 1000
	replayBatch               = 1024
)

func (o Options) withDefaults() Options {
	if o.Archive.NumBlocksToArchive == 0 {
		o.Archive.NumBlocksToArchive = defaultNumBlocksToArchive
	}
	if o.Archive.TriggerThreshold == 0 {
		o.Archive.TriggerThreshold = defaultTriggerThreshold
	}
	return o
}

// Open builds an engine from cfg and rebuilds its state by replaying the
// initial balances, every archived shard and the live journal in index order.
func Open(ctx context.Context, cfg Config, st Storage, opts Options, logger *slog.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	opts = opts.withDefaults()
	if len(st.Stores) > 0 && opts.LiveCapacity != 0 && opts.LiveCapacity <= opts.Archive.TriggerThreshold {
		return nil, fmt.Errorf("live capacity %d must exceed the archive trigger threshold %d",
			opts.LiveCapacity, opts.Archive.TriggerThreshold)
	}
	if logger == nil {
		logger = slog.Default()
	}

	mgr, err := archive.Open(ctx, opts.Archive, st.Directory, st.Stores, logger)
	if err != nil {
		return nil, err
	}
	live, err := txlog.Open(ctx, st.Journal, mgr.End(), opts.LiveCapacity)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		balances:   newBalances(),
		allowances: newAllowances(),
		dedup:      newDedupWindow(),
		log:        live,
		archive:    mgr,
		logger:     logger,
	}
	for _, ib := range cfg.InitialBalances {
		if err := e.credit(nil, ib.Account.Key(), ib.Amount); err != nil {
			return nil, fmt.Errorf("initial balance for %s: %w", ib.Account, err)
		}
		if err := e.addMinted(nil, ib.Amount); err != nil {
			return nil, fmt.Errorf("initial balance for %s: %w", ib.Account, err)
		}
	}

	if err := e.replay(ctx); err != nil {
		return nil, err
	}

	logger.Info("ledger opened",
		slog.String("symbol", cfg.Symbol),
		slog.Uint64("log_length", e.log.Next()),
		slog.Int("shards", len(mgr.Shards())),
		slog.Uint64("total_supply", e.balances.total),
	)
	return e, nil
}

func (e *Engine) replay(ctx context.Context) error {
	var next uint64
	for next < e.log.Next() {
		txs, err := e.archive.PlanRange(e.log, next, replayBatch).Fetch(ctx)
		if err != nil {
			return fmt.Errorf("replay from %d: %w", next, err)
		}
		if len(txs) == 0 {
			return fmt.Errorf("replay from %d: no transactions", next)
		}
		for _, tx := range txs {
			if tx.Index != next {
				return fmt.Errorf("replay: found index %d, expected %d", tx.Index, next)
			}
			if err := e.apply(tx, tx.RecordedAt, nil); err != nil {
				return fmt.Errorf("replay transaction %d: %w", tx.Index, err)
			}
			if tx.RequestHash != nil && tx.CreatedAt != nil {
				e.dedup.insert(*tx.RequestHash, tx.Index, *tx.CreatedAt)
			}
			next++
		}
	}
	return nil
}
