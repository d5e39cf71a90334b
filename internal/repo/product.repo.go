package repo

import (
	"context"
	"database/sql"

	"momo-checkout/internal/domain"
)

type ProductRepo interface {
	FindById(ctx context.Context, tx *sql.Tx, id int64) (*domain.Product, error)
	List(ctx context.Context, page Page) ([]domain.Product, int64, error)
}

type productRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) ProductRepo {
	return &productRepo{db: db}
}

func (r *productRepo) FindById(ctx context.Context, tx *sql.Tx, id int64) (*domain.Product, error) {
	var p domain.Product
	err := conn(r.db, tx).QueryRowContext(ctx,
		"SELECT id, name, price FROM products WHERE id = $1 AND deleted_at IS NULL", id,
	).Scan(&p.ID, &p.Name, &p.Price)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) List(ctx context.Context, page Page) ([]domain.Product, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM products WHERE deleted_at IS NULL").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, price FROM products WHERE deleted_at IS NULL ORDER BY id LIMIT $1 OFFSET $2",
		page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}
