package ledger

import (
	"time"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

// change records undo steps for the mutations of one request.
type change struct {
	undo []func()
}

func (c *change) record(f func()) {
	if c != nil {
		c.undo = append(c.undo, f)
	}
}

// rollback undoes the recorded mutations in reverse order.
func (c *change) rollback() {
	if c == nil {
		return
	}
	for i := len(c.undo) - 1; i >= 0; i-- {
		c.undo[i]()
	}
	c.undo = nil
}

func (e *Engine) credit(c *change, k account.Key, amount uint64) error {
	prev := e.balances.get(k)
	if err := e.balances.credit(k, amount); err != nil {
		return err
	}
	c.record(func() { e.balances.restore(k, prev) })
	return nil
}

func (e *Engine) debit(c *change, k account.Key, amount uint64) error {
	prev := e.balances.get(k)
	if err := e.balances.debit(k, amount); err != nil {
		return err
	}
	c.record(func() { e.balances.restore(k, prev) })
	return nil
}

func (e *Engine) consume(c *change, owner, spender account.Account, amount uint64, now time.Time) error {
	k := allowanceKey{owner: owner.Key(), spender: spender.Key()}
	prev, existed := e.allowances.lookup(k)
	if err := e.allowances.consume(k, amount, now); err != nil {
		return err
	}
	c.record(func() { e.allowances.restore(k, prev, existed) })
	return nil
}

func (e *Engine) setAllowance(c *change, k allowanceKey, rec allowance) {
	prev, existed := e.allowances.lookup(k)
	e.allowances.put(k, rec)
	c.record(func() { e.allowances.restore(k, prev, existed) })
}

func (e *Engine) addMinted(c *change, amount uint64) error {
	next, err := addAmount(e.minted, amount)
	if err != nil {
		return err
	}
	prev := e.minted
	e.minted = next
	c.record(func() { e.minted = prev })
	return nil
}

func (e *Engine) addBurned(c *change, amount uint64) error {
	next, err := addAmount(e.burned, amount)
	if err != nil {
		return err
	}
	prev := e.burned
	e.burned = next
	c.record(func() { e.burned = prev })
	return nil
}
