// Package ledger implements the ICRC-1/ICRC-2 token state machine and the
// service that serializes requests against it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/icrc_ledger/internal/account"
	"github.com/congo-pay/icrc_ledger/internal/archive"
	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
	"github.com/congo-pay/icrc_ledger/internal/txlog"
)

// Receipt is the outcome of an accepted request. A deduplicated retry carries
// the original index and no transaction.
type Receipt struct {
	Index       uint64
	Duplicate   bool
	Transaction *transaction.Transaction
}

// TransferArgs moves tokens from one of the caller's subaccounts.
type TransferArgs struct {
	FromSubaccount *account.Subaccount
	To             account.Account
	Amount         uint64
	Fee            *uint64
	Memo           []byte
	CreatedAt      *time.Time
}

// TransferFromArgs moves tokens from an owner that approved the caller.
type TransferFromArgs struct {
	SpenderSubaccount *account.Subaccount
	From              account.Account
	To                account.Account
	Amount            uint64
	Fee               *uint64
	Memo              []byte
	CreatedAt         *time.Time
}

// ApproveArgs sets the allowance of a spender over one of the caller's
// subaccounts.
type ApproveArgs struct {
	FromSubaccount    *account.Subaccount
	Spender           account.Account
	Amount            uint64
	ExpectedAllowance *uint64
	ExpiresAt         *time.Time
	Fee               *uint64
	Memo              []byte
	CreatedAt         *time.Time
}

// MintArgs creates tokens. Only the minting account may mint.
type MintArgs struct {
	FromSubaccount *account.Subaccount
	To             account.Account
	Amount         uint64
	Memo           []byte
	CreatedAt      *time.Time
}

// BurnArgs destroys tokens held by the caller.
type BurnArgs struct {
	FromSubaccount *account.Subaccount
	Amount         uint64
	Memo           []byte
	CreatedAt      *time.Time
}

// Allowance is the active approval of a spender.
type Allowance struct {
	Amount    uint64     `json:"allowance"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Engine is the ledger state machine. It is not safe for concurrent use.
type Engine struct {
	cfg        Config
	balances   *balances
	allowances *allowances
	dedup      *dedupWindow
	minted     uint64
	burned     uint64

	log     *txlog.Log
	archive *archive.Manager
	logger  *slog.Logger
}

// Transfer moves tokens. A transfer from the minting account is a mint and a
// transfer to it is a burn; neither is charged a fee.
func (e *Engine) Transfer(ctx context.Context, caller account.Principal, args TransferArgs, now time.Time) (Receipt, error) {
	from := account.Account{Owner: caller, Subaccount: args.FromSubaccount}.Normalize()
	to := args.To.Normalize()

	hash, dup, err := e.admit(transaction.Request{
		Kind: transaction.KindTransfer, Caller: caller,
		From: &from, To: &to, Amount: args.Amount, Fee: args.Fee,
		Memo: args.Memo, CreatedAt: args.CreatedAt,
	}, now)
	if err != nil || dup != nil {
		return deref(dup), err
	}

	tx := transaction.Transaction{
		Kind: transaction.KindTransfer, From: &from, To: &to,
		Amount: args.Amount, Memo: args.Memo, CreatedAt: utc(args.CreatedAt), RequestHash: hash,
	}
	switch {
	case account.Equal(from, e.cfg.MintingAccount):
		if err := checkFee(args.Fee, 0); err != nil {
			return Receipt{}, err
		}
		if err := e.checkSupply(args.Amount); err != nil {
			return Receipt{}, err
		}
		tx.Kind, tx.From = transaction.KindMint, nil
	case account.Equal(to, e.cfg.MintingAccount):
		if err := checkFee(args.Fee, 0); err != nil {
			return Receipt{}, err
		}
		if err := e.checkBurn(args.Amount); err != nil {
			return Receipt{}, err
		}
		tx.Kind, tx.To = transaction.KindBurn, nil
	default:
		if err := checkFee(args.Fee, e.cfg.Fee); err != nil {
			return Receipt{}, err
		}
		tx.Fee = e.cfg.Fee
	}
	return e.execute(ctx, tx, now)
}

// TransferFrom moves tokens on behalf of an owner, consuming the caller's
// allowance for amount plus fee. A spender equal to the owner needs no
// allowance.
func (e *Engine) TransferFrom(ctx context.Context, caller account.Principal, args TransferFromArgs, now time.Time) (Receipt, error) {
	spender := account.Account{Owner: caller, Subaccount: args.SpenderSubaccount}.Normalize()
	from := args.From.Normalize()
	to := args.To.Normalize()

	hash, dup, err := e.admit(transaction.Request{
		Kind: transaction.KindTransfer, Caller: caller,
		From: &from, To: &to, Spender: &spender, Amount: args.Amount, Fee: args.Fee,
		Memo: args.Memo, CreatedAt: args.CreatedAt,
	}, now)
	if err != nil || dup != nil {
		return deref(dup), err
	}

	tx := transaction.Transaction{
		Kind: transaction.KindTransfer, From: &from, To: &to, Spender: &spender,
		Amount: args.Amount, Memo: args.Memo, CreatedAt: utc(args.CreatedAt), RequestHash: hash,
	}
	if account.Equal(spender, from) {
		tx.Spender = nil
	}
	switch {
	case account.Equal(from, e.cfg.MintingAccount):
		return Receipt{}, reject(ErrUnauthorized)
	case account.Equal(to, e.cfg.MintingAccount):
		if err := checkFee(args.Fee, 0); err != nil {
			return Receipt{}, err
		}
		if err := e.checkBurn(args.Amount); err != nil {
			return Receipt{}, err
		}
		tx.Kind, tx.To = transaction.KindBurn, nil
	default:
		if err := checkFee(args.Fee, e.cfg.Fee); err != nil {
			return Receipt{}, err
		}
		tx.Fee = e.cfg.Fee
	}
	return e.execute(ctx, tx, now)
}

// Approve replaces the allowance of a spender. The fee is charged to the owner.
func (e *Engine) Approve(ctx context.Context, caller account.Principal, args ApproveArgs, now time.Time) (Receipt, error) {
	owner := account.Account{Owner: caller, Subaccount: args.FromSubaccount}.Normalize()
	spender := args.Spender.Normalize()

	hash, dup, err := e.admit(transaction.Request{
		Kind: transaction.KindApprove, Caller: caller,
		From: &owner, Spender: &spender, Amount: args.Amount, Fee: args.Fee,
		ExpectedAllowance: args.ExpectedAllowance, ExpiresAt: args.ExpiresAt,
		Memo: args.Memo, CreatedAt: args.CreatedAt,
	}, now)
	if err != nil || dup != nil {
		return deref(dup), err
	}

	if err := checkFee(args.Fee, e.cfg.Fee); err != nil {
		return Receipt{}, err
	}
	if account.Equal(owner, spender) {
		return Receipt{}, reject(ErrSelfApproval)
	}
	if args.ExpiresAt != nil && !args.ExpiresAt.After(now) {
		return Receipt{}, &Error{Err: ErrExpiredApproval, LedgerTime: now}
	}
	if args.ExpectedAllowance != nil {
		current := e.allowances.get(allowanceKey{owner: owner.Key(), spender: spender.Key()}, now).amount
		if current != *args.ExpectedAllowance {
			return Receipt{}, &Error{Err: ErrAllowanceChanged, Allowance: current}
		}
	}

	return e.execute(ctx, transaction.Transaction{
		Kind: transaction.KindApprove, From: &owner, Spender: &spender,
		Amount: args.Amount, Fee: e.cfg.Fee,
		ExpectedAllowance: args.ExpectedAllowance, ExpiresAt: utc(args.ExpiresAt),
		Memo: args.Memo, CreatedAt: utc(args.CreatedAt), RequestHash: hash,
	}, now)
}

// Mint creates tokens for an account. The caller must own the minting account.
func (e *Engine) Mint(ctx context.Context, caller account.Principal, args MintArgs, now time.Time) (Receipt, error) {
	minter := account.Account{Owner: caller, Subaccount: args.FromSubaccount}.Normalize()
	if !account.Equal(minter, e.cfg.MintingAccount) {
		return Receipt{}, reject(ErrUnauthorized)
	}
	to := args.To.Normalize()

	hash, dup, err := e.admit(transaction.Request{
		Kind: transaction.KindMint, Caller: caller,
		From: &minter, To: &to, Amount: args.Amount,
		Memo: args.Memo, CreatedAt: args.CreatedAt,
	}, now)
	if err != nil || dup != nil {
		return deref(dup), err
	}
	if err := e.checkSupply(args.Amount); err != nil {
		return Receipt{}, err
	}

	return e.execute(ctx, transaction.Transaction{
		Kind: transaction.KindMint, To: &to, Amount: args.Amount,
		Memo: args.Memo, CreatedAt: utc(args.CreatedAt), RequestHash: hash,
	}, now)
}

// Burn destroys tokens held by one of the caller's subaccounts.
func (e *Engine) Burn(ctx context.Context, caller account.Principal, args BurnArgs, now time.Time) (Receipt, error) {
	from := account.Account{Owner: caller, Subaccount: args.FromSubaccount}.Normalize()

	hash, dup, err := e.admit(transaction.Request{
		Kind: transaction.KindBurn, Caller: caller,
		From: &from, Amount: args.Amount,
		Memo: args.Memo, CreatedAt: args.CreatedAt,
	}, now)
	if err != nil || dup != nil {
		return deref(dup), err
	}
	if err := e.checkBurn(args.Amount); err != nil {
		return Receipt{}, err
	}

	return e.execute(ctx, transaction.Transaction{
		Kind: transaction.KindBurn, From: &from, Amount: args.Amount,
		Memo: args.Memo, CreatedAt: utc(args.CreatedAt), RequestHash: hash,
	}, now)
}

// admit validates the memo, consults the deduplication window and checks the
// created_at window. It returns the request hash to record, or the receipt of
// the original request for a retry.
func (e *Engine) admit(req transaction.Request, now time.Time) (*transaction.Hash, *Receipt, error) {
	if len(req.Memo) > e.cfg.MaxMemoLength {
		return nil, nil, reject(ErrMemoTooLong)
	}
	if req.CreatedAt == nil {
		return nil, nil, nil
	}

	e.dedup.prune(now.Add(-(e.cfg.TxWindow + e.cfg.PermittedDrift)))
	h, err := req.Hash()
	if err != nil {
		return nil, nil, err
	}
	if index, ok := e.dedup.lookup(h); ok {
		return nil, &Receipt{Index: index, Duplicate: true}, nil
	}

	created := *req.CreatedAt
	if created.Add(e.cfg.TxWindow + e.cfg.PermittedDrift).Before(now) {
		return nil, nil, &Error{Err: ErrTooOld, LedgerTime: now}
	}
	if created.After(now.Add(e.cfg.PermittedDrift)) {
		return nil, nil, &Error{Err: ErrTooNew, LedgerTime: now}
	}
	return &h, nil, nil
}

func checkFee(given *uint64, expected uint64) error {
	if given != nil && *given != expected {
		return &Error{Err: ErrBadFee, ExpectedFee: expected}
	}
	return nil
}

func (e *Engine) checkSupply(amount uint64) error {
	if e.cfg.MaxSupply == 0 {
		return nil
	}
	next, err := addAmount(e.minted, amount)
	if err != nil || next > e.cfg.MaxSupply {
		return reject(ErrSupplyCapExceeded)
	}
	return nil
}

func (e *Engine) checkBurn(amount uint64) error {
	if amount < e.cfg.MinBurnAmount {
		return &Error{Err: ErrBelowMinimumBurn, MinBurn: e.cfg.MinBurnAmount}
	}
	return nil
}

// execute mutates state for tx, appends it to the log and runs the archive
// check. Any failure before the append completes undoes every mutation.
func (e *Engine) execute(ctx context.Context, tx transaction.Transaction, now time.Time) (Receipt, error) {
	tx.RecordedAt = now
	tx.Index = e.log.Next()

	c := &change{}
	if err := e.apply(tx, now, c); err != nil {
		c.rollback()
		return Receipt{}, err
	}
	if err := e.log.Append(ctx, tx); err != nil {
		c.rollback()
		if errors.Is(err, txlog.ErrLogFull) {
			return Receipt{}, reject(ErrLogFull)
		}
		return Receipt{}, fmt.Errorf("append transaction %d: %w", tx.Index, err)
	}

	if tx.RequestHash != nil {
		e.dedup.insert(*tx.RequestHash, tx.Index, *tx.CreatedAt)
	}
	if _, err := e.archive.MaybeSeal(ctx, e.log); err != nil {
		e.logger.Warn("archive seal failed", slog.Uint64("live_length", e.log.Len()), slog.Any("error", err))
	}
	e.allowances.prune(now, pruneBatch)

	return Receipt{Index: tx.Index, Transaction: &tx}, nil
}

// apply performs the state changes of tx. Mutations are recorded in c when it
// is non-nil so they can be undone.
func (e *Engine) apply(tx transaction.Transaction, now time.Time, c *change) error {
	switch tx.Kind {
	case transaction.KindMint:
		if tx.To == nil {
			return fmt.Errorf("mint %d without recipient", tx.Index)
		}
		if err := e.credit(c, tx.To.Key(), tx.Amount); err != nil {
			return err
		}
		return e.addMinted(c, tx.Amount)

	case transaction.KindBurn:
		if tx.From == nil {
			return fmt.Errorf("burn %d without source", tx.Index)
		}
		if tx.Spender != nil {
			if err := e.consume(c, *tx.From, *tx.Spender, tx.Amount, now); err != nil {
				return err
			}
		}
		if err := e.debit(c, tx.From.Key(), tx.Amount); err != nil {
			return err
		}
		return e.addBurned(c, tx.Amount)

	case transaction.KindTransfer:
		if tx.From == nil || tx.To == nil {
			return fmt.Errorf("transfer %d without source or recipient", tx.Index)
		}
		total, err := addAmount(tx.Amount, tx.Fee)
		if err != nil {
			return err
		}
		if tx.Spender != nil {
			if err := e.consume(c, *tx.From, *tx.Spender, total, now); err != nil {
				return err
			}
		}
		if err := e.debit(c, tx.From.Key(), total); err != nil {
			return err
		}
		if err := e.credit(c, tx.To.Key(), tx.Amount); err != nil {
			return err
		}
		return e.chargeFee(c, tx.Fee)

	case transaction.KindApprove:
		if tx.From == nil || tx.Spender == nil {
			return fmt.Errorf("approve %d without owner or spender", tx.Index)
		}
		if err := e.debit(c, tx.From.Key(), tx.Fee); err != nil {
			return err
		}
		if err := e.chargeFee(c, tx.Fee); err != nil {
			return err
		}
		e.setAllowance(c, allowanceKey{owner: tx.From.Key(), spender: tx.Spender.Key()},
			allowance{amount: tx.Amount, expiresAt: tx.ExpiresAt})
		return nil
	}
	return fmt.Errorf("transaction %d has unknown kind %q", tx.Index, tx.Kind)
}

func (e *Engine) chargeFee(c *change, fee uint64) error {
	if fee == 0 {
		return nil
	}
	if e.cfg.FeeCollector != nil {
		return e.credit(c, e.cfg.FeeCollector.Key(), fee)
	}
	return e.addBurned(c, fee)
}

func deref(r *Receipt) Receipt {
	if r == nil {
		return Receipt{}
	}
	return *r
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// BalanceOf returns the balance of acc, zero for unknown accounts.
func (e *Engine) BalanceOf(acc account.Account) uint64 {
	return e.balances.get(acc.Key())
}

// TotalSupply returns the sum of all balances.
func (e *Engine) TotalSupply() uint64 { return e.balances.total }

// Minted returns the total amount ever minted, initial balances included.
func (e *Engine) Minted() uint64 { return e.minted }

// Burned returns the total amount ever burned, burned fees included.
func (e *Engine) Burned() uint64 { return e.burned }

// Allowance returns the active allowance of spender over owner.
func (e *Engine) Allowance(owner, spender account.Account, now time.Time) Allowance {
	rec := e.allowances.get(allowanceKey{owner: owner.Key(), spender: spender.Key()}, now)
	return Allowance{Amount: rec.amount, ExpiresAt: rec.expiresAt}
}

// LogLength returns the number of transactions ever recorded.
func (e *Engine) LogLength() uint64 { return e.log.Next() }

// LiveLength returns the number of transactions in the live log.
func (e *Engine) LiveLength() uint64 { return e.log.Len() }

// PlanTransactions resolves up to length transactions from start, capped by
// the configured maximum query length.
func (e *Engine) PlanTransactions(start, length uint64) archive.RangePlan {
	return e.archive.PlanRange(e.log, start, min(length, e.cfg.MaxQueryLength))
}

// Archives returns the sealed shard directory.
func (e *Engine) Archives() []storage.ShardDescriptor {
	return e.archive.Shards()
}
