// Package httpapi exposes the checkout services over HTTP with gin.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"momo-checkout/internal/logging"
	"momo-checkout/internal/service"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	SignatureHeader      = "X-Signature"
)

type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Handler struct {
	orders   service.OrderService
	charges  service.ChargeService
	webhooks service.WebhookService
	health   HealthChecker
	logger   *slog.Logger
}

func NewHandler(
	orders service.OrderService,
	charges service.ChargeService,
	webhooks service.WebhookService,
	health HealthChecker,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		orders:   orders,
		charges:  charges,
		webhooks: webhooks,
		health:   health,
		logger:   logger,
	}
}

// NewRouter wires every route. An empty allowedOrigins list allows any origin.
func NewRouter(h *Handler, allowedOrigins []string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", IdempotencyKeyHeader, SignatureHeader},
		ExposeHeaders:    []string{logging.RequestIDHeader},
		AllowCredentials: len(allowedOrigins) > 0,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.Health)

	r.GET("/products", h.ListProducts)

	r.POST("/orders", h.CreateOrder)
	r.GET("/orders", h.ListOrders)
	r.GET("/orders/:id", h.GetOrder)

	r.POST("/payments/charge", h.Charge)
	r.GET("/payments", h.ListPayments)

	r.POST("/webhooks/momo", h.MomoWebhook)

	r.GET("/dashboard/metrics", h.Metrics)

	return r
}
