package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/icrc_ledger/internal/account"
)

func TestRequestHashIdentifiesRetries(t *testing.T) {
	created := time.Unix(1_700_000_000, 123).UTC()
	to := account.Of(account.Principal("\x02"))
	var zero account.Subaccount
	toExplicit := account.Account{Owner: to.Owner, Subaccount: &zero}

	base := Request{Kind: KindTransfer, Caller: "\x01", To: &to, Amount: 10, CreatedAt: &created}
	retry := Request{Kind: KindTransfer, Caller: "\x01", To: &toExplicit, Amount: 10, CreatedAt: &created}

	h1, err := base.Hash()
	require.NoError(t, err)
	h2, err := retry.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	later := created.Add(time.Nanosecond)
	retry.CreatedAt = &later
	h3, err := retry.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	local := created.In(time.FixedZone("X", 3600))
	retry.CreatedAt = &local
	h4, err := retry.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h4)
}

func TestMarshalRoundTrip(t *testing.T) {
	from := account.Of(account.Principal("\x01"))
	to := account.Of(account.Principal("\x02"))
	created := time.Unix(1_700_000_000, 42).UTC()
	tx := Transaction{
		Index:      7,
		Kind:       KindTransfer,
		From:       &from,
		To:         &to,
		Amount:     100,
		Fee:        1,
		Memo:       []byte("memo"),
		CreatedAt:  &created,
		RecordedAt: created.Add(time.Second),
	}
	h, err := Request{Kind: KindTransfer, Caller: from.Owner, To: &to, Amount: 100, CreatedAt: &created}.Hash()
	require.NoError(t, err)
	tx.RequestHash = &h

	data, err := Marshal(tx)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, tx.Index, decoded.Index)
	assert.Equal(t, tx.Kind, decoded.Kind)
	assert.True(t, account.Equal(*tx.From, *decoded.From))
	assert.True(t, account.Equal(*tx.To, *decoded.To))
	assert.Equal(t, tx.Memo, decoded.Memo)
	assert.True(t, tx.CreatedAt.Equal(*decoded.CreatedAt))
	assert.True(t, tx.RecordedAt.Equal(decoded.RecordedAt))
	assert.Nil(t, decoded.Spender)
	require.NotNil(t, decoded.RequestHash)
	assert.Equal(t, h, *decoded.RequestHash)
}
