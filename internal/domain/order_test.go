package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewOrderItem_Subtotal(t *testing.T) {
	p := Product{ID: 1, Name: "Rice 5kg", Price: decimal.RequireFromString("50")}

	item := NewOrderItem(p, 2)

	assert.Equal(t, int64(1), item.ProductID)
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(50)))
	assert.True(t, item.Subtotal.Equal(decimal.NewFromInt(100)), "got %s", item.Subtotal)
}

func TestItemsTotal(t *testing.T) {
	tests := []struct {
		name  string
		lines []struct {
			price string
			qty   int
		}
		want string
	}{
		{name: "empty", want: "0"},
		{
			name: "single",
			lines: []struct {
				price string
				qty   int
			}{{"50", 2}},
			want: "100",
		},
		{
			name: "fractional prices",
			lines: []struct {
				price string
				qty   int
			}{{"19.99", 3}, {"0.01", 7}, {"120.50", 1}},
			want: "180.54",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var items []OrderItem
			want := decimal.Zero
			for i, l := range tt.lines {
				price := decimal.RequireFromString(l.price)
				items = append(items, NewOrderItem(Product{ID: int64(i + 1), Price: price}, l.qty))
				want = want.Add(price.Mul(decimal.NewFromInt(int64(l.qty))))
			}

			got := ItemsTotal(items)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
			assert.True(t, got.Equal(want))
		})
	}
}

func TestOrderStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderPending, OrderPaid, true},
		{OrderPaid, OrderCompleted, true},
		{OrderPending, OrderFailed, true},
		{OrderPaid, OrderFailed, false},
		{OrderPending, OrderCompleted, false},
		{OrderCompleted, OrderFailed, false},
		{OrderPaid, OrderPending, false},
		{OrderPaid, OrderPaid, false},
		{OrderCompleted, OrderPaid, false},
		{OrderFailed, OrderPaid, false},
		{OrderStatus("unknown"), OrderPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}
