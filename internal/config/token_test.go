package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

var (
	minterText    = account.Of(account.Principal("\x09\x09")).String()
	collectorText = account.Of(account.Principal("\x0c\x0c")).String()
	holderText    = account.Of(account.Principal("\x01\x01")).String()
)

func tokenYAML(extra string) string {
	return fmt.Sprintf(`name: Test Token
symbol: TST
decimals: 8
fee: 10
max_supply: 1000000
minting_account: %s
fee_collector: %s
tx_window: 12h
permitted_drift: 30s
initial_balances:
  - account: %s
    amount: 500
%s`, minterText, collectorText, holderText, extra)
}

func TestLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.yaml")
	if err := os.WriteFile(path, []byte(tokenYAML("")), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	cfg, err := LoadToken(path)
	if err != nil {
		t.Fatalf("load token: %v", err)
	}
	if cfg.Symbol != "TST" || cfg.Decimals != 8 || cfg.Fee != 10 || cfg.MaxSupply != 1000000 {
		t.Fatalf("unexpected token %+v", cfg)
	}
	if cfg.MintingAccount.String() != minterText || cfg.FeeCollector == nil || cfg.FeeCollector.String() != collectorText {
		t.Fatalf("unexpected accounts %+v", cfg)
	}
	if cfg.TxWindow != 12*time.Hour || cfg.PermittedDrift != 30*time.Second {
		t.Fatalf("unexpected windows %s %s", cfg.TxWindow, cfg.PermittedDrift)
	}
	if len(cfg.InitialBalances) != 1 || cfg.InitialBalances[0].Amount != 500 || cfg.InitialBalances[0].Account.String() != holderText {
		t.Fatalf("unexpected initial balances %+v", cfg.InitialBalances)
	}
}

func TestParseTokenRejectsInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"missing minter": "symbol: TST\n",
		"bad account":    "symbol: TST\nminting_account: nope\n",
		"bad duration":   fmt.Sprintf("symbol: TST\nminting_account: %s\ntx_window: tomorrow\n", minterText),
		"over supply":    fmt.Sprintf("symbol: TST\nminting_account: %s\nmax_supply: 10\ninitial_balances:\n  - account: %s\n    amount: 11\n", minterText, holderText),
		"malformed yaml": "symbol: [",
	}
	for name, data := range cases {
		if _, err := ParseToken([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := LoadToken(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
