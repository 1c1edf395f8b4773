package account

import (
	"bytes"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	// MaxPrincipalLength is the largest principal accepted by the ledger.
	MaxPrincipalLength = 29
	// SubaccountLength is the fixed size of a subaccount.
	SubaccountLength = 32
)

var (
	// ErrInvalidPrincipal is returned when a principal cannot be parsed.
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrInvalidAccount is returned when an account text cannot be parsed.
	ErrInvalidAccount = errors.New("invalid account")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is the canonical identity of an account owner, stored as raw bytes.
type Principal string

// Anonymous is the principal of unauthenticated callers.
const Anonymous = Principal("\x04")

// PrincipalFromBytes validates raw bytes as a principal.
func PrincipalFromBytes(raw []byte) (Principal, error) {
	if len(raw) > MaxPrincipalLength {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidPrincipal, len(raw))
	}
	return Principal(raw), nil
}

// ParsePrincipal decodes the dashed base32 textual form of a principal.
func ParsePrincipal(text string) (Principal, error) {
	compact := strings.ReplaceAll(strings.ToLower(text), "-", "")
	decoded, err := encoding.DecodeString(strings.ToUpper(compact))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if len(decoded) < 4 {
		return "", fmt.Errorf("%w: too short", ErrInvalidPrincipal)
	}
	raw := decoded[4:]
	if binary.BigEndian.Uint32(decoded[:4]) != crc32.ChecksumIEEE(raw) {
		return "", fmt.Errorf("%w: checksum mismatch", ErrInvalidPrincipal)
	}
	p, err := PrincipalFromBytes(raw)
	if err != nil {
		return "", err
	}
	if p.String() != strings.ToLower(text) {
		return "", fmt.Errorf("%w: not in canonical form", ErrInvalidPrincipal)
	}
	return p, nil
}

// Bytes returns the raw principal bytes.
func (p Principal) Bytes() []byte { return []byte(p) }

// String renders the principal in its textual form.
func (p Principal) String() string {
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE([]byte(p)))
	text := strings.ToLower(encoding.EncodeToString(append(sum[:], p...)))

	var b strings.Builder
	for i := 0; i < len(text); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + 5
		if end > len(text) {
			end = len(text)
		}
		b.WriteString(text[i:end])
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := ParsePrincipal(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalCBOR encodes the principal as a CBOR byte string.
func (p Principal) MarshalCBOR() ([]byte, error) { return cbor.Marshal([]byte(p)) }

// UnmarshalCBOR decodes a principal from a CBOR byte string.
func (p *Principal) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := PrincipalFromBytes(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Subaccount distinguishes balances held by the same owner.
type Subaccount [SubaccountLength]byte

// IsZero reports whether s is the default subaccount.
func (s Subaccount) IsZero() bool { return s == Subaccount{} }

// Account is an owner plus an optional subaccount.
type Account struct {
	Owner      Principal   `cbor:"1,keyasint"`
	Subaccount *Subaccount `cbor:"2,keyasint,omitempty"`
}

// Key is the comparable canonical form of an Account, usable as a map key.
type Key struct {
	Owner      Principal
	Subaccount Subaccount
}

// Of builds an account for the default subaccount of owner.
func Of(owner Principal) Account { return Account{Owner: owner} }

// WithSubaccount builds an account for a specific subaccount of owner.
func WithSubaccount(owner Principal, sub Subaccount) Account {
	return Account{Owner: owner, Subaccount: &sub}.Normalize()
}

// Normalize returns the canonical form: an all-zero subaccount is dropped.
func (a Account) Normalize() Account {
	if a.Subaccount == nil || a.Subaccount.IsZero() {
		return Account{Owner: a.Owner}
	}
	sub := *a.Subaccount
	return Account{Owner: a.Owner, Subaccount: &sub}
}

// EffectiveSubaccount returns the subaccount with absent treated as zero.
func (a Account) EffectiveSubaccount() Subaccount {
	if a.Subaccount == nil {
		return Subaccount{}
	}
	return *a.Subaccount
}

// Key returns the canonical map key for a.
func (a Account) Key() Key {
	return Key{Owner: a.Owner, Subaccount: a.EffectiveSubaccount()}
}

// Account converts the key back into a normalized Account.
func (k Key) Account() Account {
	return WithSubaccount(k.Owner, k.Subaccount)
}

// Equal reports whether a and b denote the same account.
func Equal(a, b Account) bool { return a.Key() == b.Key() }

// Equal reports whether a and b denote the same account.
func (a Account) Equal(b Account) bool { return Equal(a, b) }

// Compare orders accounts by owner bytes, then subaccount bytes.
func Compare(a, b Account) int {
	if c := strings.Compare(string(a.Owner), string(b.Owner)); c != 0 {
		return c
	}
	sa, sb := a.EffectiveSubaccount(), b.EffectiveSubaccount()
	return bytes.Compare(sa[:], sb[:])
}

// String renders the ICRC-1 textual form of the account.
func (a Account) String() string {
	owner := a.Owner.String()
	sub := a.EffectiveSubaccount()
	if sub.IsZero() {
		return owner
	}
	return owner + "-" + checksum(a.Owner, sub) + "." + strings.TrimLeft(hex.EncodeToString(sub[:]), "0")
}

// ParseAccount decodes the ICRC-1 textual form of an account.
func ParseAccount(text string) (Account, error) {
	dot := strings.LastIndexByte(text, '.')
	if dot < 0 {
		owner, err := ParsePrincipal(text)
		if err != nil {
			return Account{}, err
		}
		return Of(owner), nil
	}

	head, subHex := text[:dot], text[dot+1:]
	dash := strings.LastIndexByte(head, '-')
	if dash < 0 || subHex == "" || strings.HasPrefix(subHex, "0") || len(subHex) > 2*SubaccountLength {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, text)
	}
	owner, err := ParsePrincipal(head[:dash])
	if err != nil {
		return Account{}, err
	}
	if len(subHex)%2 == 1 {
		subHex = "0" + subHex
	}
	raw, err := hex.DecodeString(subHex)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	var sub Subaccount
	copy(sub[SubaccountLength-len(raw):], raw)
	if sub.IsZero() {
		return Account{}, fmt.Errorf("%w: explicit default subaccount", ErrInvalidAccount)
	}
	if head[dash+1:] != checksum(owner, sub) {
		return Account{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidAccount)
	}
	return WithSubaccount(owner, sub), nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Account) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Account) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func checksum(owner Principal, sub Subaccount) string {
	crc := crc32.NewIEEE()
	crc.Write([]byte(owner))
	crc.Write(sub[:])
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	return strings.ToLower(encoding.EncodeToString(sum[:]))
}
