package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/icrc_ledger/internal/txlog"
)

var (
	// ErrInsufficientFunds occurs when the source account cannot cover the
	// amount plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientAllowance occurs when a spender's allowance cannot cover
	// the amount plus fee.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrAllowanceChanged indicates the expected allowance did not match.
	ErrAllowanceChanged = errors.New("allowance changed")

	// ErrExpiredApproval indicates an approval whose expiry is already past.
	ErrExpiredApproval = errors.New("approval expired")

	// ErrOverflow indicates an amount would exceed the representable range.
	ErrOverflow = errors.New("amount overflow")

	// ErrSupplyCapExceeded indicates a mint would exceed the maximum supply.
	ErrSupplyCapExceeded = errors.New("supply cap exceeded")

	// ErrUnauthorized indicates the caller may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBelowMinimumBurn indicates a burn under the configured minimum.
	ErrBelowMinimumBurn = errors.New("amount below minimum burn")

	// ErrTooOld indicates created_at is outside the deduplication horizon.
	ErrTooOld = errors.New("transaction too old")

	// ErrTooNew indicates created_at is ahead of the ledger clock beyond the
	// permitted drift.
	ErrTooNew = errors.New("transaction created in the future")

	// ErrLogFull indicates the live transaction log reached its capacity.
	ErrLogFull = txlog.ErrLogFull

	// ErrNotFound indicates an index that was never assigned.
	ErrNotFound = errors.New("transaction not found")

	// ErrBadFee indicates a caller-supplied fee that differs from the ledger fee.
	ErrBadFee = errors.New("bad fee")

	// ErrMemoTooLong indicates a memo above the configured maximum length.
	ErrMemoTooLong = errors.New("memo too long")

	// ErrSelfApproval indicates an owner approving itself as spender.
	ErrSelfApproval = errors.New("self approval")

	// ErrStopped is returned for requests submitted after the service stopped.
	ErrStopped = errors.New("ledger service stopped")
)

// Error is a ledger rejection carrying the data a caller needs to react.
// Which field is meaningful depends on Err.
type Error struct {
	Err         error
	Balance     uint64
	Allowance   uint64
	ExpectedFee uint64
	MinBurn     uint64
	LedgerTime  time.Time
}

func (e *Error) Error() string {
	switch e.Err {
	case ErrInsufficientFunds:
		return fmt.Sprintf("%v: balance %d", e.Err, e.Balance)
	case ErrInsufficientAllowance, ErrAllowanceChanged:
		return fmt.Sprintf("%v: allowance %d", e.Err, e.Allowance)
	case ErrBadFee:
		return fmt.Sprintf("%v: expected %d", e.Err, e.ExpectedFee)
	case ErrBelowMinimumBurn:
		return fmt.Sprintf("%v: minimum %d", e.Err, e.MinBurn)
	case ErrTooNew, ErrExpiredApproval:
		return fmt.Sprintf("%v: ledger time %s", e.Err, e.LedgerTime.Format(time.RFC3339Nano))
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func reject(err error) *Error { return &Error{Err: err} }
