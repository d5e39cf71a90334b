package repo

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"momo-checkout/internal/domain"
)

type OrderRepo interface {
	// CreateOrder inserts the order header and fills in ID and timestamps.
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	CreateOrderItem(ctx context.Context, tx *sql.Tx, item *domain.OrderItem) error
	UpdateOrderTotal(ctx context.Context, tx *sql.Tx, orderID int64, total decimal.Decimal) error
	// FindById returns the order with its items, or nil when it does not exist.
	FindById(ctx context.Context, tx *sql.Tx, id int64) (*domain.Order, error)
	// AdvanceOrderStatus moves the order from one status to the next and reports whether a row changed.
	AdvanceOrderStatus(ctx context.Context, tx *sql.Tx, id int64, from, to domain.OrderStatus) (bool, error)
	List(ctx context.Context, page Page, search string) ([]domain.Order, int64, error)
	// FindPaidWithoutMessage returns paid orders older than olderThan that never got a confirmation.
	FindPaidWithoutMessage(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
	// FindPendingWithSucceededPayment returns pending orders holding a payment that succeeded
	// more than olderThan ago, i.e. webhooks that failed between the payment and order updates.
	FindPendingWithSucceededPayment(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
	Revenue(ctx context.Context) (decimal.Decimal, int64, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, status, total_amount, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }, o *domain.Order) error {
	return row.Scan(&o.ID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	return conn(r.db, tx).QueryRowContext(ctx,
		`INSERT INTO orders (status, total_amount) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		order.Status, order.TotalAmount,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (r *orderRepo) CreateOrderItem(ctx context.Context, tx *sql.Tx, item *domain.OrderItem) error {
	return conn(r.db, tx).QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, price, subtotal) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal,
	).Scan(&item.ID)
}

func (r *orderRepo) UpdateOrderTotal(ctx context.Context, tx *sql.Tx, orderID int64, total decimal.Decimal) error {
	_, err := conn(r.db, tx).ExecContext(ctx,
		"UPDATE orders SET total_amount = $1, updated_at = now() WHERE id = $2", total, orderID)
	return err
}

func (r *orderRepo) FindById(ctx context.Context, tx *sql.Tx, id int64) (*domain.Order, error) {
	var order domain.Order
	err := scanOrder(conn(r.db, tx).QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id), &order)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err // system error
	}

	items, err := r.itemsFor(ctx, conn(r.db, tx), []int64{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}
	return &order, nil
}

func (r *orderRepo) itemsFor(ctx context.Context, q dbtx, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, price, subtotal
		 FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, err
		}
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	return items, rows.Err()
}

func (r *orderRepo) AdvanceOrderStatus(ctx context.Context, tx *sql.Tx, id int64, from, to domain.OrderStatus) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 AND status = $3", to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *orderRepo) List(ctx context.Context, page Page, search string) ([]domain.Order, int64, error) {
	where := ""
	args := []any{}
	if search != "" {
		where = ` WHERE CAST(id AS TEXT) LIKE $1 OR status LIKE $1 OR CAST(total_amount AS TEXT) LIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT count(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := "SELECT " + orderColumns + " FROM orders" + where +
		" ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []domain.Order{}
	var ids []int64
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	items, err := r.itemsFor(ctx, r.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}
	return orders, total, nil
}

func (r *orderRepo) FindPaidWithoutMessage(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	return r.queryOrders(ctx,
		`SELECT o.id, o.status, o.total_amount, o.created_at, o.updated_at
		 FROM orders o
		 WHERE o.status = $1
		   AND o.updated_at <= now() - make_interval(secs => $2)
		   AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.order_id = o.id)
		 ORDER BY o.updated_at
		 LIMIT $3`,
		domain.OrderPaid, olderThan.Seconds(), limit,
	)
}

func (r *orderRepo) FindPendingWithSucceededPayment(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	return r.queryOrders(ctx,
		`SELECT o.id, o.status, o.total_amount, o.created_at, o.updated_at
		 FROM orders o
		 WHERE o.status = $1
		   AND EXISTS (
		     SELECT 1 FROM payments p
		     WHERE p.order_id = o.id
		       AND p.status = $2
		       AND p.updated_at <= now() - make_interval(secs => $3))
		 ORDER BY o.id
		 LIMIT $4`,
		domain.OrderPending, domain.PaymentSuccess, olderThan.Seconds(), limit,
	)
}

func (r *orderRepo) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Revenue sums totals of paid and completed orders and counts all orders.
func (r *orderRepo) Revenue(ctx context.Context) (decimal.Decimal, int64, error) {
	var revenue decimal.Decimal
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_amount) FILTER (WHERE status IN ($1, $2)), 0), count(*) FROM orders`,
		domain.OrderPaid, domain.OrderCompleted,
	).Scan(&revenue, &count)
	return revenue, count, err
}
