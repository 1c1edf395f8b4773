package account

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalText(t *testing.T) {
	cases := []struct {
		raw  string
		text string
	}{
		{raw: "", text: "aaaaa-aa"},
		{raw: "\x04", text: "2vxsx-fae"},
		{raw: "\x00\x00\x00\x00\x00\x00\x00\x01\x01\x01", text: "rrkah-fqaaa-aaaaa-aaaaq-cai"},
	}

	for _, tc := range cases {
		p := Principal(tc.raw)
		assert.Equal(t, tc.text, p.String())

		parsed, err := ParsePrincipal(tc.text)
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

func TestParsePrincipalRejectsBadInput(t *testing.T) {
	for _, text := range []string{"aaaaa-ab", "2vxsx-fa", "not a principal", "2vxsxfae"} {
		_, err := ParsePrincipal(text)
		require.ErrorIs(t, err, ErrInvalidPrincipal, text)
	}

	_, err := PrincipalFromBytes(make([]byte, MaxPrincipalLength+1))
	require.ErrorIs(t, err, ErrInvalidPrincipal)
}

func TestNormalizeTreatsZeroSubaccountAsDefault(t *testing.T) {
	owner := Principal("\x01\x02\x03")
	var zero Subaccount

	a := Of(owner)
	b := Account{Owner: owner, Subaccount: &zero}

	assert.True(t, Equal(a, b))
	assert.Nil(t, b.Normalize().Subaccount)
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, 0, Compare(a, b))

	var one Subaccount
	one[31] = 1
	c := WithSubaccount(owner, one)
	assert.False(t, Equal(a, c))
	assert.Equal(t, -1, Compare(a, c))
	assert.Equal(t, 1, Compare(c, a))
}

func TestCompareOrdersByOwnerFirst(t *testing.T) {
	var high Subaccount
	high[0] = 0xff
	a := WithSubaccount(Principal("\x01"), high)
	b := Of(Principal("\x02"))

	assert.Equal(t, -1, Compare(a, b))
}

func TestAccountTextRoundTrip(t *testing.T) {
	owner := Principal("\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0a")
	var sub Subaccount
	sub[31] = 1

	acc := WithSubaccount(owner, sub)
	assert.Equal(t, "euqfo-6ybai-bqibi-ga4ea-scq-3qekcea.1", acc.String())

	parsed, err := ParseAccount(acc.String())
	require.NoError(t, err)
	assert.True(t, Equal(acc, parsed))

	def, err := ParseAccount("euqfo-6ybai-bqibi-ga4ea-scq")
	require.NoError(t, err)
	assert.True(t, Equal(Of(owner), def))
}

func TestParseAccountRejectsBadChecksum(t *testing.T) {
	_, err := ParseAccount("euqfo-6ybai-bqibi-ga4ea-scq-aaaaaaa.1")
	require.ErrorIs(t, err, ErrInvalidAccount)

	_, err = ParseAccount("euqfo-6ybai-bqibi-ga4ea-scq-3qekcea.01")
	require.ErrorIs(t, err, ErrInvalidAccount)
}

func TestAccountCBOR(t *testing.T) {
	var sub Subaccount
	sub[0] = 7
	acc := WithSubaccount(Principal("\xff\xfe\x00"), sub)

	data, err := cbor.Marshal(acc)
	require.NoError(t, err)

	var decoded Account
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	assert.True(t, Equal(acc, decoded))
}
