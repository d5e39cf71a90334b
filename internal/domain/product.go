package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Metrics is the dashboard summary over orders and payments.
type Metrics struct {
	TotalRevenue       decimal.Decimal `json:"totalRevenue"`
	TotalOrders        int64           `json:"totalOrders"`
	SuccessfulPayments int64           `json:"successfulPayments"`
	FailedPayments     int64           `json:"failedPayments"`
}
