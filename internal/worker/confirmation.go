package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"momo-checkout/internal/dispatch"
	"momo-checkout/internal/domain"
	"momo-checkout/internal/infrastructure/messaging"
	"momo-checkout/internal/repo"
)

// ConfirmationSender sends the payment confirmation message for an order, at most once.
type ConfirmationSender struct {
	db          *sql.DB
	messageRepo repo.MessageRepo
	provider    messaging.Provider
	logger      *slog.Logger
}

func NewConfirmationSender(
	db *sql.DB,
	messageRepo repo.MessageRepo,
	provider messaging.Provider,
	logger *slog.Logger,
) *ConfirmationSender {
	return &ConfirmationSender{
		db:          db,
		messageRepo: messageRepo,
		provider:    provider,
		logger:      logger,
	}
}

// Handle implements dispatch.Handler.
func (s *ConfirmationSender) Handle(ctx context.Context, task dispatch.Task) error {
	_, err := s.SendConfirmation(ctx, task.OrderID, task.Recipient)
	return err
}

// SendConfirmation delivers the message unless the order already has one.
// sent reports whether this call delivered it.
func (s *ConfirmationSender) SendConfirmation(ctx context.Context, orderID int64, recipient string) (sent bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// held until commit or rollback
	if err := s.messageRepo.LockOrder(ctx, tx, orderID); err != nil {
		return false, fmt.Errorf("lock order %d: %w", orderID, err)
	}

	exists, err := s.messageRepo.ExistsForOrder(ctx, tx, orderID)
	if err != nil {
		return false, fmt.Errorf("check message for order %d: %w", orderID, err)
	}
	if exists {
		s.logger.Info("confirmation already sent", "order_id", orderID)
		return false, nil
	}

	providerID, err := s.provider.Send(ctx, recipient, confirmationBody(orderID))
	if err != nil {
		return false, fmt.Errorf("send confirmation for order %d: %w", orderID, err)
	}

	msg := &domain.Message{
		OrderID:       orderID,
		Recipient:     recipient,
		ProviderMsgID: providerID,
		Status:        domain.MessageSent,
	}
	created, err := s.messageRepo.CreateMessage(ctx, tx, msg)
	if err != nil {
		return false, fmt.Errorf("record message for order %d: %w", orderID, err)
	}
	if !created {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	s.logger.Info("SEND_MSG",
		"message_id", msg.ID,
		"order_id", orderID,
		"recipient", recipient,
		"provider_msg_id", providerID,
	)
	return true, nil
}

func confirmationBody(orderID int64) string {
	return fmt.Sprintf("Payment received. Your order #%d is confirmed.", orderID)
}
