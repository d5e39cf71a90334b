package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"momo-checkout/internal/apperr"
	"momo-checkout/internal/dispatch"
	"momo-checkout/internal/domain"
	"momo-checkout/internal/repo"
	"momo-checkout/internal/signing"
)

// WebhookCallback is the payment notification posted by the processor.
// It echoes the fields of the signed charge payload.
type WebhookCallback struct {
	OrderID        int64           `json:"order_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required"`
	PaymentID      int64           `json:"id" binding:"required"`
}

func (cb WebhookCallback) fields() signing.Fields {
	return signing.Fields{
		OrderID:        cb.OrderID,
		Amount:         cb.Amount,
		Status:         cb.Status,
		IdempotencyKey: cb.IdempotencyKey,
		PaymentID:      cb.PaymentID,
	}
}

type WebhookOutcome struct {
	Payment *domain.Payment
	Order   *domain.Order
	// AlreadyProcessed is true when the payment had succeeded before this delivery.
	AlreadyProcessed bool
	// Payload is the verified canonical payload.
	Payload []byte
}

type ConfirmationQueue interface {
	Enqueue(task dispatch.Task) error
}

type WebhookService interface {
	// Verify authenticates the callback and returns the canonical bytes that were signed.
	Verify(signature string, cb WebhookCallback) ([]byte, error)
	// Apply records a verified callback.
	Apply(ctx context.Context, cb WebhookCallback) (*WebhookOutcome, error)
	Handle(ctx context.Context, signature string, cb WebhookCallback) (*WebhookOutcome, error)
}

type webhookService struct {
	orderRepo   repo.OrderRepo
	paymentRepo repo.PaymentRepo
	signer      *signing.Signer
	queue       ConfirmationQueue
	recipient   string
	logger      *slog.Logger
}

func NewWebhookService(
	orderRepo repo.OrderRepo,
	paymentRepo repo.PaymentRepo,
	signer *signing.Signer,
	queue ConfirmationQueue,
	recipient string,
	logger *slog.Logger,
) WebhookService {
	return &webhookService{
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		signer:      signer,
		queue:       queue,
		recipient:   recipient,
		logger:      logger,
	}
}

func (s *webhookService) Handle(ctx context.Context, signature string, cb WebhookCallback) (*WebhookOutcome, error) {
	payload, err := s.Verify(signature, cb)
	if err != nil {
		return nil, err
	}
	outcome, err := s.Apply(ctx, cb)
	if err != nil {
		return nil, err
	}
	outcome.Payload = payload
	return outcome, nil
}

func (s *webhookService) Verify(signature string, cb WebhookCallback) ([]byte, error) {
	if signature == "" {
		return nil, apperr.SignatureMismatch("Invalid signature")
	}

	// rebuilt from the decoded fields, never the raw body
	payload, err := signing.Canonical(cb.fields())
	if errors.Is(err, signing.ErrAmountScale) {
		return nil, apperr.InvalidRequest("Invalid payload: amount must have at most 2 decimal places")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Payload encoding failed")
	}

	if !s.signer.Verify(payload, signature) {
		s.logger.Warn("webhook signature mismatch", "payment_id", cb.PaymentID, "order_id", cb.OrderID)
		return nil, apperr.SignatureMismatch("Invalid signature")
	}
	return payload, nil
}

func (s *webhookService) Apply(ctx context.Context, cb WebhookCallback) (*WebhookOutcome, error) {
	payment, err := s.paymentRepo.FindById(ctx, nil, cb.PaymentID)
	if err != nil {
		return nil, apperr.Internal(err, "Payment lookup failed")
	}
	if payment == nil {
		return nil, apperr.NotFound("Payment with ID %d does not exist in our system.", cb.PaymentID)
	}
	if payment.OrderID != cb.OrderID || payment.IdempotencyKey != cb.IdempotencyKey {
		return nil, apperr.InvalidRequest("Payment %d does not belong to order %d", cb.PaymentID, cb.OrderID)
	}

	if payment.Status == domain.PaymentSuccess {
		return &WebhookOutcome{Payment: payment, AlreadyProcessed: true}, nil
	}

	changed, err := s.paymentRepo.MarkSucceeded(ctx, nil, payment.ID)
	if err != nil {
		return nil, apperr.Internal(err, "Payment update failed")
	}
	if !changed {
		// a concurrent delivery got there first
		payment.Status = domain.PaymentSuccess
		return &WebhookOutcome{Payment: payment, AlreadyProcessed: true}, nil
	}
	payment.Status = domain.PaymentSuccess

	s.logger.Info("payment succeeded", "payment_id", payment.ID, "order_id", payment.OrderID)

	order, err := s.orderRepo.FindById(ctx, nil, payment.OrderID)
	if err != nil {
		return nil, apperr.Internal(err, "Order lookup failed")
	}
	if order == nil {
		// the payment update stays committed
		return nil, apperr.NotFound("Order with ID %d does not exist in our system.", payment.OrderID)
	}

	if order.Status.CanAdvanceTo(domain.OrderPaid) {
		// on failure the reconciliation worker finishes the transition
		advanced, err := s.orderRepo.AdvanceOrderStatus(ctx, nil, order.ID, order.Status, domain.OrderPaid)
		if err != nil {
			return nil, apperr.Internal(err, "Order update failed")
		}
		if advanced {
			order.Status = domain.OrderPaid
		}
	} else {
		s.logger.Info("order past pending, status kept", "order_id", order.ID, "status", order.Status)
	}

	err = s.queue.Enqueue(dispatch.Task{OrderID: order.ID, Recipient: s.recipient})
	if err != nil {
		s.logger.Error("confirmation enqueue failed, left to reconciliation", "order_id", order.ID, "error", err)
	}

	return &WebhookOutcome{Payment: payment, Order: order}, nil
}
