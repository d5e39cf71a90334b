package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
	PaymentDeclined  PaymentStatus = "declined"
)

type Payment struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"order_id"`
	Amount            decimal.Decimal `json:"amount"`
	Status            PaymentStatus   `json:"status"`
	IdempotencyKey    string          `json:"idempotency_key"`
	ProviderReference *string         `json:"provider_reference,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

const chargeKeyPrefix = "charge:"

// ChargeKey builds the idempotency key a client sends to charge orderID.
func ChargeKey(orderID int64) string {
	return chargeKeyPrefix + strconv.FormatInt(orderID, 10)
}

// ParseChargeKey extracts the order id from a "charge:<order_id>" key.
// ok is false for anything that is not exactly that shape with a positive id.
func ParseChargeKey(key string) (orderID int64, ok bool) {
	rest, found := strings.CutPrefix(key, chargeKeyPrefix)
	if !found || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	// reject "+7" and "007": the key must round-trip
	if strconv.FormatInt(id, 10) != rest {
		return 0, false
	}
	return id, true
}
