package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momo-checkout/internal/apperr"
	"momo-checkout/internal/dispatch"
	"momo-checkout/internal/domain"
	"momo-checkout/internal/logging"
	"momo-checkout/internal/repo"
	"momo-checkout/internal/signing"
)

const testSecret = "test-webhook-secret"

type memPaymentRepo struct {
	repo.PaymentRepo
	mu       sync.Mutex
	payments map[int64]*domain.Payment
	nextID   int64
}

func (r *memPaymentRepo) FindById(_ context.Context, _ *sql.Tx, id int64) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) MarkSucceeded(_ context.Context, _ *sql.Tx, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status == domain.PaymentSuccess {
		return false, nil
	}
	p.Status = domain.PaymentSuccess
	return true, nil
}

type memOrderRepo struct {
	repo.OrderRepo
	mu     sync.Mutex
	orders map[int64]*domain.Order
}

func (r *memOrderRepo) FindById(_ context.Context, _ *sql.Tx, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) AdvanceOrderStatus(_ context.Context, _ *sql.Tx, id int64, from, to domain.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

type memQueue struct {
	mu    sync.Mutex
	tasks []dispatch.Task
	err   error
}

func (q *memQueue) Enqueue(task dispatch.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type webhookFixture struct {
	svc      WebhookService
	signer   *signing.Signer
	payments *memPaymentRepo
	orders   *memOrderRepo
	queue    *memQueue
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	signer, err := signing.NewSigner(testSecret)
	require.NoError(t, err)

	f := &webhookFixture{
		signer: signer,
		payments: &memPaymentRepo{payments: map[int64]*domain.Payment{
			7: {ID: 7, OrderID: 42, Amount: decimal.RequireFromString("100.00"), Status: domain.PaymentInitiated, IdempotencyKey: "charge:42"},
		}},
		orders: &memOrderRepo{orders: map[int64]*domain.Order{
			42: {ID: 42, Status: domain.OrderPending, TotalAmount: decimal.RequireFromString("100.00")},
		}},
		queue: &memQueue{},
	}
	f.svc = NewWebhookService(f.orders, f.payments, signer, f.queue, "233000000000", logging.Discard())
	return f
}

func validCallback() WebhookCallback {
	return WebhookCallback{
		OrderID:        42,
		Amount:         decimal.RequireFromString("100.00"),
		Status:         "initiated",
		IdempotencyKey: "charge:42",
		PaymentID:      7,
	}
}

func (f *webhookFixture) sign(t *testing.T, cb WebhookCallback) string {
	t.Helper()
	_, sig, err := f.signer.SignFields(cb.fields())
	require.NoError(t, err)
	return sig
}

func TestWebhook_VerifiedCallbackPaysOrder(t *testing.T) {
	f := newWebhookFixture(t)
	cb := validCallback()

	outcome, err := f.svc.Handle(context.Background(), f.sign(t, cb), cb)
	require.NoError(t, err)

	assert.False(t, outcome.AlreadyProcessed)
	assert.Equal(t, domain.PaymentSuccess, outcome.Payment.Status)
	assert.Equal(t, domain.OrderPaid, outcome.Order.Status)
	assert.Equal(t,
		`{"v":1,"payment":{"order_id":42,"amount":"100.00","status":"initiated","idempotency_key":"charge:42","id":7}}`,
		string(outcome.Payload))

	assert.Equal(t, domain.OrderPaid, f.orders.orders[42].Status)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, int64(42), f.queue.tasks[0].OrderID)
	assert.Equal(t, "233000000000", f.queue.tasks[0].Recipient)
}

func TestWebhook_DuplicateDeliveryIsAlreadyProcessed(t *testing.T) {
	f := newWebhookFixture(t)
	cb := validCallback()
	sig := f.sign(t, cb)

	_, err := f.svc.Handle(context.Background(), sig, cb)
	require.NoError(t, err)

	outcome, err := f.svc.Handle(context.Background(), sig, cb)
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyProcessed)
	assert.Len(t, f.queue.tasks, 1, "duplicate must not enqueue again")
}

func TestWebhook_ConcurrentDeliveriesEnqueueOnce(t *testing.T) {
	f := newWebhookFixture(t)
	cb := validCallback()
	sig := f.sign(t, cb)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.svc.Handle(context.Background(), sig, cb)
			if !assert.NoError(t, err) {
				return
			}
			if !outcome.AlreadyProcessed {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Len(t, f.queue.tasks, 1)
}

func TestWebhook_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(cb *WebhookCallback, sig *string)
		kind   apperr.Kind
	}{
		{
			name:   "missing signature",
			mutate: func(_ *WebhookCallback, sig *string) { *sig = "" },
			kind:   apperr.KindSignatureMismatch,
		},
		{
			name:   "tampered amount",
			mutate: func(cb *WebhookCallback, _ *string) { cb.Amount = decimal.RequireFromString("1.00") },
			kind:   apperr.KindSignatureMismatch,
		},
		{
			name:   "tampered status",
			mutate: func(cb *WebhookCallback, _ *string) { cb.Status = "success" },
			kind:   apperr.KindSignatureMismatch,
		},
		{
			name:   "wrong secret",
			mutate: func(cb *WebhookCallback, sig *string) {
				other, _ := signing.NewSigner("other-secret")
				_, *sig, _ = other.SignFields(cb.fields())
			},
			kind: apperr.KindSignatureMismatch,
		},
		{
			name:   "amount with three decimals",
			mutate: func(cb *WebhookCallback, _ *string) { cb.Amount = decimal.RequireFromString("100.001") },
			kind:   apperr.KindInvalidRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newWebhookFixture(t)
			cb := validCallback()
			sig := f.sign(t, cb)
			tt.mutate(&cb, &sig)

			_, err := f.svc.Handle(context.Background(), sig, cb)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))

			assert.Equal(t, domain.PaymentInitiated, f.payments.payments[7].Status)
			assert.Equal(t, domain.OrderPending, f.orders.orders[42].Status)
			assert.Empty(t, f.queue.tasks)
		})
	}
}

func TestWebhook_SignedForAnotherPayment(t *testing.T) {
	f := newWebhookFixture(t)
	f.payments.payments[8] = &domain.Payment{ID: 8, OrderID: 43, Amount: decimal.RequireFromString("5.00"), Status: domain.PaymentInitiated, IdempotencyKey: "charge:43"}

	cb := validCallback()
	cb.PaymentID = 8

	_, err := f.svc.Handle(context.Background(), f.sign(t, cb), cb)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	assert.Equal(t, domain.PaymentInitiated, f.payments.payments[8].Status)
}

func TestWebhook_UnknownPayment(t *testing.T) {
	f := newWebhookFixture(t)
	cb := validCallback()
	cb.PaymentID = 999

	_, err := f.svc.Handle(context.Background(), f.sign(t, cb), cb)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWebhook_OrderMissingKeepsPaymentSuccess(t *testing.T) {
	f := newWebhookFixture(t)
	delete(f.orders.orders, 42)
	cb := validCallback()

	_, err := f.svc.Handle(context.Background(), f.sign(t, cb), cb)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, domain.PaymentSuccess, f.payments.payments[7].Status)
	assert.Empty(t, f.queue.tasks)
}

func TestWebhook_NeverRevertsPaidOrder(t *testing.T) {
	f := newWebhookFixture(t)
	f.orders.orders[42].Status = domain.OrderCompleted
	cb := validCallback()

	outcome, err := f.svc.Handle(context.Background(), f.sign(t, cb), cb)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, outcome.Order.Status)
	assert.Equal(t, domain.OrderCompleted, f.orders.orders[42].Status)
}

func TestWebhook_EnqueueFailureDoesNotFail(t *testing.T) {
	f := newWebhookFixture(t)
	f.queue.err = dispatch.ErrQueueFull
	cb := validCallback()

	outcome, err := f.svc.Handle(context.Background(), f.sign(t, cb), cb)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, outcome.Order.Status)
}

func TestWebhook_RepoErrorIsInternal(t *testing.T) {
	f := newWebhookFixture(t)
	f.svc = NewWebhookService(f.orders, failingPaymentRepo{}, f.signer, f.queue, "233000000000", logging.Discard())
	cb := validCallback()

	_, err := f.svc.Handle(context.Background(), f.sign(t, cb), cb)
	assert.ErrorIs(t, err, apperr.ErrInternal)
}

type failingPaymentRepo struct {
	repo.PaymentRepo
}

func (failingPaymentRepo) FindById(context.Context, *sql.Tx, int64) (*domain.Payment, error) {
	return nil, errors.New("connection reset")
}

type flakyOrderRepo struct {
	*memOrderRepo
	failures int
}

func (r *flakyOrderRepo) AdvanceOrderStatus(ctx context.Context, tx *sql.Tx, id int64, from, to domain.OrderStatus) (bool, error) {
	if r.failures > 0 {
		r.failures--
		return false, errors.New("connection reset")
	}
	return r.memOrderRepo.AdvanceOrderStatus(ctx, tx, id, from, to)
}

func TestWebhook_OrderUpdateFailureLeavesPaymentForReconciliation(t *testing.T) {
	f := newWebhookFixture(t)
	orders := &flakyOrderRepo{memOrderRepo: f.orders, failures: 1}
	f.svc = NewWebhookService(orders, f.payments, f.signer, f.queue, "233000000000", logging.Discard())
	cb := validCallback()
	sig := f.sign(t, cb)

	_, err := f.svc.Handle(context.Background(), sig, cb)
	assert.ErrorIs(t, err, apperr.ErrInternal)

	assert.Equal(t, domain.PaymentSuccess, f.payments.payments[7].Status)
	assert.Equal(t, domain.OrderPending, f.orders.orders[42].Status)
	assert.Empty(t, f.queue.tasks)

	// a redelivery sees the committed payment; the order is left to reconciliation
	outcome, err := f.svc.Handle(context.Background(), sig, cb)
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyProcessed)
	assert.Equal(t, 0, orders.failures)
}
