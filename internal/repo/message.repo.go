package repo

import (
	"context"
	"database/sql"

	"momo-checkout/internal/domain"
)

type MessageRepo interface {
	// LockOrder serialises confirmation work per order until tx ends.
	LockOrder(ctx context.Context, tx *sql.Tx, orderID int64) error
	ExistsForOrder(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error)
	// CreateMessage inserts m unless the order already has a message.
	CreateMessage(ctx context.Context, tx *sql.Tx, m *domain.Message) (created bool, err error)
	FindByOrderID(ctx context.Context, orderID int64) (*domain.Message, error)
}

type messageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) LockOrder(ctx context.Context, tx *sql.Tx, orderID int64) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1::bigint)", orderID)
	return err
}

func (r *messageRepo) ExistsForOrder(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error) {
	var exists bool
	err := conn(r.db, tx).QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM messages WHERE order_id = $1)", orderID).Scan(&exists)
	return exists, err
}

func (r *messageRepo) CreateMessage(ctx context.Context, tx *sql.Tx, m *domain.Message) (bool, error) {
	err := conn(r.db, tx).QueryRowContext(ctx,
		`INSERT INTO messages (order_id, recipient, provider_msg_id, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (order_id) DO NOTHING
		 RETURNING id, created_at`,
		m.OrderID, m.Recipient, m.ProviderMsgID, m.Status,
	).Scan(&m.ID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *messageRepo) FindByOrderID(ctx context.Context, orderID int64) (*domain.Message, error) {
	var m domain.Message
	err := r.db.QueryRowContext(ctx,
		"SELECT id, order_id, recipient, provider_msg_id, status, created_at FROM messages WHERE order_id = $1",
		orderID,
	).Scan(&m.ID, &m.OrderID, &m.Recipient, &m.ProviderMsgID, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
