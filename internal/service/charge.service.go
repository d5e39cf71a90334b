package service

import (
	"context"
	"log/slog"

	"momo-checkout/internal/apperr"
	"momo-checkout/internal/domain"
	"momo-checkout/internal/repo"
	"momo-checkout/internal/signing"
)

// ChargeResult is a payment plus the signed canonical payload describing it.
type ChargeResult struct {
	Payment   *domain.Payment
	Signature string
	Payload   []byte
	// Replayed is true when the idempotency key already had a payment.
	Replayed bool
}

type ChargeService interface {
	Charge(ctx context.Context, idempotencyKey string) (*ChargeResult, error)
	ListPayments(ctx context.Context, page repo.Page) ([]domain.Payment, int64, error)
}

type chargeService struct {
	orderRepo   repo.OrderRepo
	paymentRepo repo.PaymentRepo
	signer      *signing.Signer
	logger      *slog.Logger
}

func NewChargeService(
	orderRepo repo.OrderRepo,
	paymentRepo repo.PaymentRepo,
	signer *signing.Signer,
	logger *slog.Logger,
) ChargeService {
	return &chargeService{
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		signer:      signer,
		logger:      logger,
	}
}

func (s *chargeService) Charge(ctx context.Context, idempotencyKey string) (*ChargeResult, error) {
	if idempotencyKey == "" {
		return nil, apperr.InvalidRequest("Idempotency-Key header required")
	}
	orderID, ok := domain.ParseChargeKey(idempotencyKey)
	if !ok {
		return nil, apperr.InvalidRequest("Invalid Idempotency-Key format, expected charge:<order_id>")
	}

	existing, err := s.paymentRepo.FindByIdempotencyKey(ctx, nil, idempotencyKey)
	if err != nil {
		return nil, apperr.Internal(err, "Payment creation failed")
	}
	if existing != nil {
		return s.signed(existing, true)
	}

	order, err := s.orderRepo.FindById(ctx, nil, orderID)
	if err != nil {
		return nil, apperr.Internal(err, "Payment creation failed")
	}
	if order == nil {
		return nil, apperr.NotFound("Order with ID %d does not exist in our system.", orderID)
	}

	payment := &domain.Payment{
		OrderID:        order.ID,
		Amount:         order.TotalAmount,
		Status:         domain.PaymentInitiated,
		IdempotencyKey: idempotencyKey,
	}
	// single INSERT ... ON CONFLICT: atomic without an explicit transaction
	created, err := s.paymentRepo.CreatePayment(ctx, nil, payment)
	if err != nil {
		return nil, apperr.Internal(err, "Payment creation failed")
	}
	if !created {
		// a concurrent request with the same key won the insert
		winner, err := s.paymentRepo.FindByIdempotencyKey(ctx, nil, idempotencyKey)
		if err != nil {
			return nil, apperr.Internal(err, "Payment creation failed")
		}
		if winner == nil {
			return nil, apperr.Conflict("Payment for %s is being created concurrently, retry the request", idempotencyKey)
		}
		return s.signed(winner, true)
	}

	s.logger.Info("payment initiated",
		"payment_id", payment.ID,
		"order_id", payment.OrderID,
		"amount", payment.Amount.StringFixed(2),
		"idempotency_key", payment.IdempotencyKey,
	)
	return s.signed(payment, false)
}

func (s *chargeService) signed(p *domain.Payment, replayed bool) (*ChargeResult, error) {
	payload, sig, err := s.signer.SignFields(PaymentFields(p))
	if err != nil {
		return nil, apperr.Internal(err, "Payment signing failed")
	}
	return &ChargeResult{Payment: p, Signature: sig, Payload: payload, Replayed: replayed}, nil
}

func (s *chargeService) ListPayments(ctx context.Context, page repo.Page) ([]domain.Payment, int64, error) {
	payments, total, err := s.paymentRepo.List(ctx, page)
	if err != nil {
		return nil, 0, apperr.Internal(err, "Failed to list payments")
	}
	return payments, total, nil
}

// PaymentFields selects the signed fields of a stored payment.
func PaymentFields(p *domain.Payment) signing.Fields {
	return signing.Fields{
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Status:         string(p.Status),
		IdempotencyKey: p.IdempotencyKey,
		PaymentID:      p.ID,
	}
}
