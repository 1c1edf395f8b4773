package ledger

import "github.com/congo-pay/icrc_ledger/internal/account"

// Metadata describes the token.
type Metadata struct {
	Name           string           `json:"name"`
	Symbol         string           `json:"symbol"`
	Decimals       uint8            `json:"decimals"`
	Fee            uint64           `json:"fee"`
	MaxSupply      uint64           `json:"max_supply"`
	MinBurnAmount  uint64           `json:"min_burn_amount"`
	MaxMemoLength  int              `json:"max_memo_length"`
	MintingAccount account.Account  `json:"minting_account"`
	FeeCollector   *account.Account `json:"fee_collector,omitempty"`
}

// Standard names a supported token standard.
type Standard struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

var supportedStandards = []Standard{
	{Name: "ICRC-1", URL: "https://github.com/dfinity/ICRC-1/tree/main/standards/ICRC-1"},
	{Name: "ICRC-2", URL: "https://github.com/dfinity/ICRC-1/tree/main/standards/ICRC-2"},
}

// Metadata returns the token metadata.
func (e *Engine) Metadata() Metadata {
	return Metadata{
		Name:           e.cfg.Name,
		Symbol:         e.cfg.Symbol,
		Decimals:       e.cfg.Decimals,
		Fee:            e.cfg.Fee,
		MaxSupply:      e.cfg.MaxSupply,
		MinBurnAmount:  e.cfg.MinBurnAmount,
		MaxMemoLength:  e.cfg.MaxMemoLength,
		MintingAccount: e.cfg.MintingAccount,
		FeeCollector:   e.cfg.FeeCollector,
	}
}

// SupportedStandards lists the standards the ledger implements.
func SupportedStandards() []Standard {
	out := make([]Standard, len(supportedStandards))
	copy(out, supportedStandards)
	return out
}
