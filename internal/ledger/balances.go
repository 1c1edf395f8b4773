package ledger

import "github.com/congo-pay/icrc_ledger/internal/account"

// balances maps canonical accounts to amounts and keeps their sum.
type balances struct {
	amounts map[account.Key]uint64
	total   uint64
}

func newBalances() *balances {
	return &balances{amounts: make(map[account.Key]uint64)}
}

func (b *balances) get(k account.Key) uint64 {
	return b.amounts[k]
}

func (b *balances) credit(k account.Key, amount uint64) error {
	next, err := addAmount(b.amounts[k], amount)
	if err != nil {
		return err
	}
	total, err := addAmount(b.total, amount)
	if err != nil {
		return err
	}
	b.amounts[k] = next
	b.total = total
	return nil
}

func (b *balances) debit(k account.Key, amount uint64) error {
	current := b.amounts[k]
	next, ok := subAmount(current, amount)
	if !ok {
		return &Error{Err: ErrInsufficientFunds, Balance: current}
	}
	b.amounts[k] = next
	b.total -= amount
	return nil
}

// restore sets k back to a previously observed balance.
func (b *balances) restore(k account.Key, amount uint64) {
	b.total = b.total - b.amounts[k] + amount
	b.amounts[k] = amount
}
