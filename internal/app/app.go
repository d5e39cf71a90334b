// Package app assembles repositories, services, the confirmation queue and the
// HTTP router from a Config and an open database.
package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"momo-checkout/internal/config"
	"momo-checkout/internal/database"
	"momo-checkout/internal/dispatch"
	"momo-checkout/internal/infrastructure/messaging"
	"momo-checkout/internal/repo"
	"momo-checkout/internal/service"
	"momo-checkout/internal/signing"
	httpapi "momo-checkout/internal/transport/http"
	"momo-checkout/internal/worker"
)

type App struct {
	DB       database.Service
	Orders   service.OrderService
	Charges  service.ChargeService
	Webhooks service.WebhookService

	OrderRepo   repo.OrderRepo
	PaymentRepo repo.PaymentRepo
	MessageRepo repo.MessageRepo

	Signer     *signing.Signer
	Provider   *messaging.MockProvider
	Sender     *worker.ConfirmationSender
	Queue      *dispatch.Queue
	Reconciler *worker.ReconciliationWorker

	Router *gin.Engine
}

func New(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*App, error) {
	signer, err := signing.NewSigner(cfg.WebhookSecret)
	if err != nil {
		return nil, err
	}

	provider, err := messaging.NewMockProvider(1, messaging.WithFailureRate(cfg.Confirmation.MessageFailureRate))
	if err != nil {
		return nil, err
	}

	orderRepo := repo.NewOrderRepo(db)
	paymentRepo := repo.NewPaymentRepo(db)
	productRepo := repo.NewProductRepo(db)
	messageRepo := repo.NewMessageRepo(db)

	var reconciler *worker.ReconciliationWorker
	sender := worker.NewConfirmationSender(db, messageRepo, provider, logger)
	queue := dispatch.New(sender, dispatch.Options{
		Workers:     cfg.Confirmation.Workers,
		QueueSize:   cfg.Confirmation.QueueSize,
		MaxAttempts: cfg.Confirmation.MaxAttempts,
		BaseDelay:   cfg.Confirmation.RetryBaseDelay,
		MaxDelay:    cfg.Confirmation.RetryMaxDelay,
		OnExhausted: func(task dispatch.Task, _ error) {
			reconciler.MarkExhausted(task.OrderID)
		},
	}, logger)
	reconciler = worker.NewReconciliationWorker(orderRepo, queue, cfg.Confirmation.Recipient,
		cfg.Confirmation.ReconcileInterval, cfg.Confirmation.ReconcileGrace, logger)

	a := &App{
		DB:          database.New(db, logger),
		Orders:      service.NewOrderService(db, orderRepo, productRepo, paymentRepo, logger),
		Charges:     service.NewChargeService(orderRepo, paymentRepo, signer, logger),
		Webhooks:    service.NewWebhookService(orderRepo, paymentRepo, signer, queue, cfg.Confirmation.Recipient, logger),
		OrderRepo:   orderRepo,
		PaymentRepo: paymentRepo,
		MessageRepo: messageRepo,
		Signer:      signer,
		Provider:    provider,
		Sender:      sender,
		Queue:       queue,
		Reconciler:  reconciler,
	}

	handler := httpapi.NewHandler(a.Orders, a.Charges, a.Webhooks, a.DB, logger)
	a.Router = httpapi.NewRouter(handler, cfg.CORSAllowedOrigins, logger)
	return a, nil
}

// RunWorkers runs the confirmation queue and the reconciliation worker until ctx is canceled.
func (a *App) RunWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Queue.Run(ctx)
	})
	g.Go(func() error {
		a.Reconciler.Run(ctx)
		return nil
	})
	return g.Wait()
}
