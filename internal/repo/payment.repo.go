package repo

import (
	"context"
	"database/sql"

	"momo-checkout/internal/domain"
)

type PaymentRepo interface {
	// CreatePayment inserts the payment unless its idempotency key is taken.
	// created is false when another payment already owns the key; p is then left untouched.
	CreatePayment(ctx context.Context, tx *sql.Tx, p *domain.Payment) (created bool, err error)
	FindById(ctx context.Context, tx *sql.Tx, id int64) (*domain.Payment, error)
	FindByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (*domain.Payment, error)
	// MarkSucceeded flips a payment to success unless it already is; it reports whether this call did it.
	MarkSucceeded(ctx context.Context, tx *sql.Tx, id int64) (bool, error)
	FindByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]domain.Payment, error)
	List(ctx context.Context, page Page) ([]domain.Payment, int64, error)
	CountByStatus(ctx context.Context, statuses ...domain.PaymentStatus) (int64, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, order_id, amount, status, idempotency_key, provider_reference, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }, p *domain.Payment) error {
	var ref sql.NullString
	if err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.IdempotencyKey, &ref, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	if ref.Valid {
		p.ProviderReference = &ref.String
	}
	return nil
}

func (r *paymentRepo) CreatePayment(ctx context.Context, tx *sql.Tx, p *domain.Payment) (bool, error) {
	err := conn(r.db, tx).QueryRowContext(ctx,
		`INSERT INTO payments (order_id, amount, status, idempotency_key, provider_reference)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		p.OrderID, p.Amount, p.Status, p.IdempotencyKey, p.ProviderReference,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		// idempotency hit
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *paymentRepo) FindById(ctx context.Context, tx *sql.Tx, id int64) (*domain.Payment, error) {
	var p domain.Payment
	err := scanPayment(conn(r.db, tx).QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = $1", id), &p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) FindByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (*domain.Payment, error) {
	var p domain.Payment
	err := scanPayment(conn(r.db, tx).QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE idempotency_key = $1", key), &p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) MarkSucceeded(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx,
		`UPDATE payments
		 SET status = $2,
		     updated_at = now()
		 WHERE id = $1 AND status <> $2`,
		id, domain.PaymentSuccess,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *paymentRepo) FindByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]domain.Payment, error) {
	out := make(map[int64][]domain.Payment, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE order_id = ANY($1) ORDER BY id", orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, err
		}
		out[p.OrderID] = append(out[p.OrderID], p)
	}
	return out, rows.Err()
}

func (r *paymentRepo) List(ctx context.Context, page Page) ([]domain.Payment, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM payments").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, 0, err
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}

func (r *paymentRepo) CountByStatus(ctx context.Context, statuses ...domain.PaymentStatus) (int64, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM payments WHERE status = ANY($1)", names).Scan(&n)
	return n, err
}
