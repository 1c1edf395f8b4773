package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/congo-pay/icrc_ledger/internal/account"
	"github.com/congo-pay/icrc_ledger/internal/ledger"
)

// tokenFile is the on-disk form of the token parameters. Accounts use the
// ICRC-1 textual encoding.
type tokenFile struct {
	Name           string `yaml:"name"`
	Symbol         string `yaml:"symbol"`
	Decimals       uint8  `yaml:"decimals"`
	Fee            uint64 `yaml:"fee"`
	MinBurnAmount  uint64 `yaml:"min_burn_amount"`
	MaxSupply      uint64 `yaml:"max_supply"`
	MintingAccount string `yaml:"minting_account"`
	FeeCollector   string `yaml:"fee_collector"`
	MaxMemoLength  int    `yaml:"max_memo_length"`
	MaxQueryLength uint64 `yaml:"max_query_length"`
	TxWindow       string `yaml:"tx_window"`
	PermittedDrift string `yaml:"permitted_drift"`

	InitialBalances []struct {
		Account string `yaml:"account"`
		Amount  uint64 `yaml:"amount"`
	} `yaml:"initial_balances"`
}

// LoadToken reads the token parameters from a YAML file.
func LoadToken(path string) (ledger.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ledger.Config{}, fmt.Errorf("failed to read token file: %w", err)
	}
	return ParseToken(data)
}

// ParseToken decodes and validates YAML token parameters.
func ParseToken(data []byte) (ledger.Config, error) {
	var f tokenFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return ledger.Config{}, fmt.Errorf("failed to parse token file: %w", err)
	}
	if f.MintingAccount == "" {
		return ledger.Config{}, fmt.Errorf("minting_account is required")
	}

	cfg := ledger.Config{
		Name:           f.Name,
		Symbol:         f.Symbol,
		Decimals:       f.Decimals,
		Fee:            f.Fee,
		MinBurnAmount:  f.MinBurnAmount,
		MaxSupply:      f.MaxSupply,
		MaxMemoLength:  f.MaxMemoLength,
		MaxQueryLength: f.MaxQueryLength,
	}

	var err error
	if cfg.MintingAccount, err = account.ParseAccount(f.MintingAccount); err != nil {
		return ledger.Config{}, fmt.Errorf("minting_account: %w", err)
	}
	if f.FeeCollector != "" {
		collector, err := account.ParseAccount(f.FeeCollector)
		if err != nil {
			return ledger.Config{}, fmt.Errorf("fee_collector: %w", err)
		}
		cfg.FeeCollector = &collector
	}
	if cfg.TxWindow, err = parseDuration("tx_window", f.TxWindow); err != nil {
		return ledger.Config{}, err
	}
	if cfg.PermittedDrift, err = parseDuration("permitted_drift", f.PermittedDrift); err != nil {
		return ledger.Config{}, err
	}
	for i, ib := range f.InitialBalances {
		acc, err := account.ParseAccount(ib.Account)
		if err != nil {
			return ledger.Config{}, fmt.Errorf("initial_balances[%d]: %w", i, err)
		}
		cfg.InitialBalances = append(cfg.InitialBalances, ledger.InitialBalance{Account: acc, Amount: ib.Amount})
	}

	if err := cfg.Validate(); err != nil {
		return ledger.Config{}, fmt.Errorf("invalid token file: %w", err)
	}
	return cfg, nil
}

func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
