package database

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

type seedProduct struct {
	name  string
	price decimal.Decimal
}

var catalog = []seedProduct{
	{"Wireless Mouse", decimal.RequireFromString("50.00")},
	{"Mechanical Keyboard", decimal.RequireFromString("120.00")},
	{"USB-C Hub", decimal.RequireFromString("35.50")},
	{"27\" Monitor", decimal.RequireFromString("899.99")},
	{"Laptop Stand", decimal.RequireFromString("45.00")},
	{"Webcam HD", decimal.RequireFromString("75.25")},
	{"Noise Cancelling Headphones", decimal.RequireFromString("249.00")},
	{"External SSD 1TB", decimal.RequireFromString("150.00")},
}

// Seed fills an empty products table with the demo catalog.
// It returns the number of products inserted.
func Seed(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM products").Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, p := range catalog {
		if _, err := tx.ExecContext(ctx, "INSERT INTO products (name, price) VALUES ($1, $2)", p.name, p.price); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(catalog), nil
}
