package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"momo-checkout/internal/apperr"
	"momo-checkout/internal/domain"
	"momo-checkout/internal/repo"
	"momo-checkout/internal/service"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

type paginated struct {
	Data        any   `json:"data"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

func pageParams(c *gin.Context) (page, perPage int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err = strconv.Atoi(c.Query("per_page"))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	return page, min(perPage, maxPerPage)
}

func newPaginated(data any, page, perPage int, total int64) paginated {
	last := int(math.Ceil(float64(total) / float64(perPage)))
	return paginated{
		Data:        data,
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    max(last, 1),
	}
}

// paymentView renders amounts with their fixed two places.
type paymentView struct {
	ID                int64                `json:"id"`
	OrderID           int64                `json:"order_id"`
	Amount            string               `json:"amount"`
	Status            domain.PaymentStatus `json:"status"`
	IdempotencyKey    string               `json:"idempotency_key"`
	ProviderReference *string              `json:"provider_reference,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func newPaymentView(p *domain.Payment) paymentView {
	return paymentView{
		ID:                p.ID,
		OrderID:           p.OrderID,
		Amount:            p.Amount.StringFixed(2),
		Status:            p.Status,
		IdempotencyKey:    p.IdempotencyKey,
		ProviderReference: p.ProviderReference,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (h *Handler) Health(c *gin.Context) {
	stats := h.health.Health(c.Request.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}

func (h *Handler) ListProducts(c *gin.Context) {
	page, perPage := pageParams(c)
	products, total, err := h.orders.ListProducts(c.Request.Context(), repo.Page{Limit: perPage, Offset: (page - 1) * perPage})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPaginated(products, page, perPage, total))
}

type createOrderRequest struct {
	Items []domain.ItemRequest `json:"items" binding:"required,min=1,dive"`
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperr.InvalidRequest("Invalid order request: %v", err))
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), req.Items)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, apperr.NotFound("Order with ID %s does not exist in our system.", c.Param("id")))
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	page, perPage := pageParams(c)
	orders, total, err := h.orders.ListOrders(c.Request.Context(),
		repo.Page{Limit: perPage, Offset: (page - 1) * perPage}, c.Query("search"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPaginated(orders, page, perPage, total))
}

func (h *Handler) Charge(c *gin.Context) {
	res, err := h.charges.Charge(c.Request.Context(), c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}

	status, message := http.StatusCreated, "Payment created successfully"
	if res.Replayed {
		status, message = http.StatusOK, "Payment already exists (idempotency)"
	}
	c.JSON(status, gin.H{
		"payment":     newPaymentView(res.Payment),
		"x_signature": res.Signature,
		"payload":     string(res.Payload),
		"message":     message,
	})
}

func (h *Handler) ListPayments(c *gin.Context) {
	page, perPage := pageParams(c)
	payments, total, err := h.charges.ListPayments(c.Request.Context(), repo.Page{Limit: perPage, Offset: (page - 1) * perPage})
	if err != nil {
		h.writeError(c, err)
		return
	}

	views := make([]paymentView, len(payments))
	for i := range payments {
		views[i] = newPaymentView(&payments[i])
	}
	c.JSON(http.StatusOK, newPaginated(views, page, perPage, total))
}

func (h *Handler) MomoWebhook(c *gin.Context) {
	var cb service.WebhookCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		h.writeError(c, apperr.InvalidRequest("Invalid payload"))
		return
	}

	outcome, err := h.webhooks.Handle(c.Request.Context(), c.GetHeader(SignatureHeader), cb)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if outcome.AlreadyProcessed {
		c.JSON(http.StatusOK, gin.H{
			"message":    "Payment already processed successfully",
			"payment_id": outcome.Payment.ID,
			"status":     outcome.Payment.Status,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Payment verified successfully",
		"payment_id": outcome.Payment.ID,
		"status":     outcome.Payment.Status,
		"payload":    string(outcome.Payload),
	})
}

func (h *Handler) Metrics(c *gin.Context) {
	metrics, err := h.orders.Metrics(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}
