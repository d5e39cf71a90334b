// Package signing defines the canonical payment payload shared by the charge
// endpoint and the webhook verifier, and the HMAC-SHA256 signature over it.
//
// Both sides must build the payload through Canonical. The field order is fixed
// by the struct layout below and the version field lets the format evolve
// without silently breaking verification of in-flight payments.
package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const Version = 1

// amountPlaces is the fixed scale of amounts in the signed payload.
const amountPlaces = 2

var (
	ErrEmptySecret = errors.New("signing: empty secret")
	ErrAmountScale = errors.New("signing: amount has more than 2 decimal places")
)

// Fields are the discrete values covered by a signature.
type Fields struct {
	OrderID        int64
	Amount         decimal.Decimal
	Status         string
	IdempotencyKey string
	PaymentID      int64
}

type canonicalPayment struct {
	OrderID        int64  `json:"order_id"`
	Amount         string `json:"amount"`
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotency_key"`
	ID             int64  `json:"id"`
}

type canonicalEnvelope struct {
	V       int              `json:"v"`
	Payment canonicalPayment `json:"payment"`
}

// Canonical returns the exact bytes that get signed.
func Canonical(f Fields) ([]byte, error) {
	if !f.Amount.Equal(f.Amount.Round(amountPlaces)) {
		return nil, ErrAmountScale
	}

	env := canonicalEnvelope{
		V: Version,
		Payment: canonicalPayment{
			OrderID:        f.OrderID,
			Amount:         f.Amount.StringFixed(amountPlaces),
			Status:         f.Status,
			IdempotencyKey: f.IdempotencyKey,
			ID:             f.PaymentID,
		},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (s *Signer) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignFields builds the canonical payload for f and signs it.
func (s *Signer) SignFields(f Fields) (payload []byte, signature string, err error) {
	payload, err = Canonical(f)
	if err != nil {
		return nil, "", err
	}
	return payload, s.Sign(payload), nil
}

// Verify compares signature against the expected one in constant time.
func (s *Signer) Verify(payload []byte, signature string) bool {
	expected := s.Sign(payload)
	received := strings.ToLower(strings.TrimSpace(signature))
	return hmac.Equal([]byte(expected), []byte(received))
}
