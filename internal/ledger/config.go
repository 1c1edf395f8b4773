package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/icrc_ledger/internal/account"
	"github.com/congo-pay/icrc_ledger/internal/archive"
	"github.com/congo-pay/icrc_ledger/internal/storage"
)

const (
	DefaultTxWindow       = 24 * time.Hour
	DefaultPermittedDrift = time.Minute
	DefaultMaxMemoLength  = 32
	DefaultMaxQueryLength = 2000
	pruneBatch            = 64
)

// InitialBalance allocates tokens to an account when the ledger is created.
type InitialBalance struct {
	Account account.Account
	Amount  uint64
}

// Config holds the token parameters fixed at ledger creation.
type Config struct {
	Name     string
	Symbol   string
	Decimals uint8

	Fee           uint64
	MinBurnAmount uint64
	// MaxSupply caps total minted tokens. Zero means uncapped.
	MaxSupply uint64

	MintingAccount account.Account
	// FeeCollector receives fees. When nil fees are burned.
	FeeCollector    *account.Account
	InitialBalances []InitialBalance

	MaxMemoLength  int
	TxWindow       time.Duration
	PermittedDrift time.Duration
	MaxQueryLength uint64
}

// Storage is the durable state the engine is rebuilt from.
type Storage struct {
	Journal   storage.Journal
	Directory storage.Directory
	// Stores receive sealed shards in preference order.
	Stores []storage.ShardStore
}

// Options tune the log and archive behavior without changing token semantics.
type Options struct {
	// LiveCapacity bounds the live log. Zero means unbounded. With archive
	// stores configured it must exceed Archive.TriggerThreshold.
	LiveCapacity uint64
	// Archive zero fields select the defaults of 2000 and 1000.
	Archive archive.Config
}

func (c Config) withDefaults() Config {
	if c.MaxMemoLength == 0 {
		c.MaxMemoLength = DefaultMaxMemoLength
	}
	if c.TxWindow == 0 {
		c.TxWindow = DefaultTxWindow
	}
	if c.PermittedDrift == 0 {
		c.PermittedDrift = DefaultPermittedDrift
	}
	if c.MaxQueryLength == 0 {
		c.MaxQueryLength = DefaultMaxQueryLength
	}
	c.MintingAccount = c.MintingAccount.Normalize()
	if c.FeeCollector != nil {
		fc := c.FeeCollector.Normalize()
		c.FeeCollector = &fc
	}
	return c
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Symbol == "" {
		return errors.New("token symbol is required")
	}
	if len(c.MintingAccount.Owner) > account.MaxPrincipalLength {
		return fmt.Errorf("minting account: %w", account.ErrInvalidPrincipal)
	}
	if c.MaxMemoLength < 0 {
		return errors.New("max memo length must not be negative")
	}
	if c.TxWindow < 0 || c.PermittedDrift < 0 {
		return errors.New("transaction window and drift must not be negative")
	}
	if c.FeeCollector != nil && account.Equal(*c.FeeCollector, c.MintingAccount) {
		return errors.New("fee collector must differ from the minting account")
	}

	var total uint64
	for _, ib := range c.InitialBalances {
		if account.Equal(ib.Account, c.MintingAccount) {
			return errors.New("initial balance for the minting account is not allowed")
		}
		sum, err := addAmount(total, ib.Amount)
		if err != nil {
			return fmt.Errorf("initial balances: %w", err)
		}
		total = sum
	}
	if c.MaxSupply > 0 && total > c.MaxSupply {
		return fmt.Errorf("initial balances %d exceed max supply %d", total, c.MaxSupply)
	}
	return nil
}
