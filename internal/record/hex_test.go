package record

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePublicKey(t *testing.T) {
	kp := mustKeypair(t)

	got, err := ParsePublicKey(string(kp.Public))
	require.NoError(t, err)
	assert.Equal(t, kp.Public, got)

	// 0x prefix and uppercase are normalized.
	got, err = ParsePublicKey("0x" + strings.ToUpper(string(kp.Public)))
	require.NoError(t, err)
	assert.Equal(t, kp.Public, got)
}

func TestParsePublicKey_Rejects(t *testing.T) {
	tests := []string{
		"",
		"zz",
		"deadbeef", // wrong length
	}
	for _, in := range tests {
		_, err := ParsePublicKey(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseSignature_Rejects(t *testing.T) {
	_, err := ParseSignature("deadbeef")
	assert.Error(t, err, "short signatures must be rejected")
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "0", AmountString(nil))
	assert.Equal(t, "123456789012345678901234567890", AmountString(mustBig(t, "123456789012345678901234567890")))
}

func TestParseAmount(t *testing.T) {
	a, ok := ParseAmount("1000")
	require.True(t, ok)
	assert.Equal(t, int64(1000), a.Int64())

	_, ok = ParseAmount("-5")
	assert.False(t, ok, "negative amounts are invalid")

	_, ok = ParseAmount("1.5")
	assert.False(t, ok, "fractional amounts are invalid")
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}
