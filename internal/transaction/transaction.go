// Package transaction defines the immutable records kept in the ledger's
// transaction log and their canonical encoding.
package transaction

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

// Kind identifies the operation a transaction records.
type Kind string

const (
	KindMint     Kind = "mint"
	KindBurn     Kind = "burn"
	KindTransfer Kind = "transfer"
	KindApprove  Kind = "approve"
)

// Transaction is a committed ledger operation. Once appended it is never mutated.
type Transaction struct {
	Index             uint64           `cbor:"1,keyasint" json:"index"`
	Kind              Kind             `cbor:"2,keyasint" json:"kind"`
	From              *account.Account `cbor:"3,keyasint,omitempty" json:"from,omitempty"`
	To                *account.Account `cbor:"4,keyasint,omitempty" json:"to,omitempty"`
	Spender           *account.Account `cbor:"5,keyasint,omitempty" json:"spender,omitempty"`
	Amount            uint64           `cbor:"6,keyasint" json:"amount"`
	Fee               uint64           `cbor:"7,keyasint" json:"fee"`
	ExpectedAllowance *uint64          `cbor:"8,keyasint,omitempty" json:"expected_allowance,omitempty"`
	ExpiresAt         *time.Time       `cbor:"9,keyasint,omitempty" json:"expires_at,omitempty"`
	Memo              []byte           `cbor:"10,keyasint,omitempty" json:"memo,omitempty"`
	CreatedAt         *time.Time       `cbor:"11,keyasint,omitempty" json:"created_at,omitempty"`
	RecordedAt        time.Time        `cbor:"12,keyasint" json:"recorded_at"`
	// RequestHash identifies the originating request while it is inside the
	// deduplication window. Only set when CreatedAt is.
	RequestHash *Hash `cbor:"13,keyasint,omitempty" json:"-"`
}

// Hash is the digest identifying a request for deduplication.
type Hash [sha256.Size]byte

// Request carries the caller-controlled fields of an operation. Two requests
// with the same hash are retries of one another.
type Request struct {
	Kind              Kind              `cbor:"1,keyasint"`
	Caller            account.Principal `cbor:"2,keyasint"`
	From              *account.Account  `cbor:"3,keyasint,omitempty"`
	To                *account.Account  `cbor:"4,keyasint,omitempty"`
	Spender           *account.Account  `cbor:"5,keyasint,omitempty"`
	Amount            uint64            `cbor:"6,keyasint"`
	Fee               *uint64           `cbor:"7,keyasint,omitempty"`
	ExpectedAllowance *uint64           `cbor:"8,keyasint,omitempty"`
	ExpiresAt         *time.Time        `cbor:"9,keyasint,omitempty"`
	Memo              []byte            `cbor:"10,keyasint,omitempty"`
	CreatedAt         *time.Time        `cbor:"11,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	if encMode, err = opts.EncMode(); err != nil {
		panic(fmt.Sprintf("transaction: cbor enc mode: %v", err))
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(fmt.Sprintf("transaction: cbor dec mode: %v", err))
	}
}

// Hash returns the deterministic digest of the request.
func (r Request) Hash() (Hash, error) {
	r.From = normalized(r.From)
	r.To = normalized(r.To)
	r.Spender = normalized(r.Spender)
	r.ExpiresAt = utc(r.ExpiresAt)
	r.CreatedAt = utc(r.CreatedAt)
	data, err := encMode.Marshal(r)
	if err != nil {
		return Hash{}, fmt.Errorf("encode request: %w", err)
	}
	return sha256.Sum256(data), nil
}

// Marshal encodes tx in the canonical storage form.
func Marshal(tx Transaction) ([]byte, error) {
	data, err := encMode.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode transaction %d: %w", tx.Index, err)
	}
	return data, nil
}

// Unmarshal decodes a transaction stored with Marshal.
func Unmarshal(data []byte) (Transaction, error) {
	var tx Transaction
	if err := decMode.Unmarshal(data, &tx); err != nil {
		return Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

func normalized(a *account.Account) *account.Account {
	if a == nil {
		return nil
	}
	n := a.Normalize()
	return &n
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
