package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/congo-pay/icrc_ledger/internal/config"
	"github.com/congo-pay/icrc_ledger/internal/infra"
	"github.com/congo-pay/icrc_ledger/internal/logging"
	"github.com/congo-pay/icrc_ledger/internal/storage"
)

var ArchivesCommand = &cli.Command{
	Name:  "archives",
	Usage: "lists the sealed archive shards",
	Action: func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.StorageBackend == config.BackendMemory {
			return fmt.Errorf("the %s backend keeps no archives between runs", config.BackendMemory)
		}

		ctx := c.Context
		deps, cleanup, err := connect(ctx, cfg, logging.New(cfg.LogLevel))
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := infra.OpenLedgerStorage(ctx, cfg, deps.DB)
		if err != nil {
			return err
		}
		defer st.Close() // nolint:errcheck

		shards, err := st.Directory.List(ctx)
		if err != nil {
			return err
		}
		out := struct {
			Stores []string                  `json:"stores"`
			Shards []storage.ShardDescriptor `json:"shards"`
		}{Stores: st.StoreIDs(), Shards: shards}

		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
