package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/shopspring/decimal"

	"momo-checkout/internal/apperr"
	"momo-checkout/internal/domain"
	"momo-checkout/internal/repo"
)

type OrderService interface {
	CreateOrder(ctx context.Context, items []domain.ItemRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, page repo.Page, search string) ([]domain.Order, int64, error)
	ListProducts(ctx context.Context, page repo.Page) ([]domain.Product, int64, error)
	Metrics(ctx context.Context) (*domain.Metrics, error)
}

type orderService struct {
	db          *sql.DB
	orderRepo   repo.OrderRepo
	productRepo repo.ProductRepo
	paymentRepo repo.PaymentRepo
	logger      *slog.Logger
}

func NewOrderService(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	productRepo repo.ProductRepo,
	paymentRepo repo.PaymentRepo,
	logger *slog.Logger,
) OrderService {
	return &orderService{
		db:          db,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		paymentRepo: paymentRepo,
		logger:      logger,
	}
}

// CreateOrder prices every item against the catalog and persists the order
// header, its items and the final total in one transaction.
func (s *orderService) CreateOrder(ctx context.Context, items []domain.ItemRequest) (*domain.Order, error) {
	if len(items) == 0 {
		return nil, apperr.InvalidRequest("items must contain at least one entry")
	}
	for i, it := range items {
		if it.ProductID <= 0 {
			return nil, apperr.InvalidRequest("items[%d].product_id must be a positive integer", i)
		}
		if it.Quantity < 1 {
			return nil, apperr.InvalidRequest("items[%d].quantity must be at least 1", i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err, "Order creation failed")
	}
	defer tx.Rollback()

	order := &domain.Order{
		Status:      domain.OrderPending,
		TotalAmount: decimal.Zero,
		Items:       make([]domain.OrderItem, 0, len(items)),
	}
	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		return nil, apperr.Internal(err, "Order creation failed")
	}

	for _, req := range items {
		product, err := s.productRepo.FindById(ctx, tx, req.ProductID)
		if err != nil {
			return nil, apperr.Internal(err, "Order creation failed")
		}
		if product == nil {
			return nil, apperr.NotFound("Product with ID %d does not exist in our system.", req.ProductID)
		}

		item := domain.NewOrderItem(*product, req.Quantity)
		item.OrderID = order.ID
		if err := s.orderRepo.CreateOrderItem(ctx, tx, &item); err != nil {
			return nil, apperr.Internal(err, "Order creation failed")
		}
		order.Items = append(order.Items, item)
	}

	order.TotalAmount = domain.ItemsTotal(order.Items)
	if err := s.orderRepo.UpdateOrderTotal(ctx, tx, order.ID, order.TotalAmount); err != nil {
		return nil, apperr.Internal(err, "Order creation failed")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal(err, "Order creation failed")
	}

	s.logger.Info("order created",
		"order_id", order.ID,
		"items", len(order.Items),
		"total_amount", order.TotalAmount.StringFixed(2),
	)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.orderRepo.FindById(ctx, nil, id)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load order")
	}
	if order == nil {
		return nil, apperr.NotFound("Order with ID %d does not exist in our system.", id)
	}

	payments, err := s.paymentRepo.FindByOrderIDs(ctx, []int64{id})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load order")
	}
	order.Payments = payments[id]
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, page repo.Page, search string) ([]domain.Order, int64, error) {
	orders, total, err := s.orderRepo.List(ctx, page, search)
	if err != nil {
		return nil, 0, apperr.Internal(err, "Failed to list orders")
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	payments, err := s.paymentRepo.FindByOrderIDs(ctx, ids)
	if err != nil {
		return nil, 0, apperr.Internal(err, "Failed to list orders")
	}
	for i := range orders {
		orders[i].Payments = payments[orders[i].ID]
	}
	return orders, total, nil
}

func (s *orderService) ListProducts(ctx context.Context, page repo.Page) ([]domain.Product, int64, error) {
	products, total, err := s.productRepo.List(ctx, page)
	if err != nil {
		return nil, 0, apperr.Internal(err, "Failed to list products")
	}
	return products, total, nil
}

func (s *orderService) Metrics(ctx context.Context) (*domain.Metrics, error) {
	revenue, orders, err := s.orderRepo.Revenue(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to compute metrics")
	}
	succeeded, err := s.paymentRepo.CountByStatus(ctx, domain.PaymentSuccess)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to compute metrics")
	}
	failed, err := s.paymentRepo.CountByStatus(ctx, domain.PaymentFailed, domain.PaymentDeclined)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to compute metrics")
	}

	return &domain.Metrics{
		TotalRevenue:       revenue,
		TotalOrders:        orders,
		SuccessfulPayments: succeeded,
		FailedPayments:     failed,
	}, nil
}
