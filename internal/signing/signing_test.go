package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func fields() Fields {
	return Fields{
		OrderID:        42,
		Amount:         decimal.NewFromInt(100),
		Status:         "initiated",
		IdempotencyKey: "charge:42",
		PaymentID:      7,
	}
}

func TestCanonical_ExactBytes(t *testing.T) {
	got, err := Canonical(fields())
	require.NoError(t, err)

	want := `{"v":1,"payment":{"order_id":42,"amount":"100.00","status":"initiated","idempotency_key":"charge:42","id":7}}`
	assert.Equal(t, want, string(got))
}

func TestCanonical_NoHTMLEscaping(t *testing.T) {
	f := fields()
	f.IdempotencyKey = "charge:42/<&>"

	got, err := Canonical(f)
	require.NoError(t, err)
	assert.Contains(t, string(got), `"idempotency_key":"charge:42/<&>"`)
}

func TestCanonical_AmountNormalisation(t *testing.T) {
	for _, in := range []string{"100", "100.0", "100.00"} {
		f := fields()
		f.Amount = decimal.RequireFromString(in)

		got, err := Canonical(f)
		require.NoError(t, err, in)
		assert.Contains(t, string(got), `"amount":"100.00"`, in)
	}
}

func TestCanonical_RejectsExtraPrecision(t *testing.T) {
	f := fields()
	f.Amount = decimal.RequireFromString("100.001")

	_, err := Canonical(f)
	assert.ErrorIs(t, err, ErrAmountScale)
}

func TestSign_MatchesHMACSHA256(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)

	payload, sig, err := s.SignFields(fields())
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestVerify(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)

	payload, sig, err := s.SignFields(fields())
	require.NoError(t, err)

	assert.True(t, s.Verify(payload, sig))
	assert.True(t, s.Verify(payload, strings.ToUpper(sig)), "hex case must not matter")
	assert.False(t, s.Verify(payload, ""))
	assert.False(t, s.Verify(payload, sig[:len(sig)-1]))

	other, err := NewSigner("another-secret")
	require.NoError(t, err)
	assert.False(t, other.Verify(payload, sig))
}

func TestVerify_TamperedField(t *testing.T) {
	s, err := NewSigner(testSecret)
	require.NoError(t, err)

	_, sig, err := s.SignFields(fields())
	require.NoError(t, err)

	tamper := []func(*Fields){
		func(f *Fields) { f.OrderID = 43 },
		func(f *Fields) { f.Amount = decimal.NewFromInt(1) },
		func(f *Fields) { f.Status = "success" },
		func(f *Fields) { f.IdempotencyKey = "charge:43" },
		func(f *Fields) { f.PaymentID = 8 },
	}
	for i, mutate := range tamper {
		f := fields()
		mutate(&f)
		payload, err := Canonical(f)
		require.NoError(t, err)
		assert.False(t, s.Verify(payload, sig), "tamper case %d verified", i)
	}
}

func TestNewSigner_EmptySecret(t *testing.T) {
	_, err := NewSigner("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
