package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"momo-checkout/internal/dispatch"
	"momo-checkout/internal/domain"
	"momo-checkout/internal/repo"
)

type Enqueuer interface {
	Enqueue(task dispatch.Task) error
}

// ReconciliationWorker repairs what a failed webhook or a lost task left behind:
// pending orders whose payment already succeeded are moved to paid, and paid
// orders that still have no message after the grace period are re-enqueued.
type ReconciliationWorker struct {
	orderRepo repo.OrderRepo
	queue     Enqueuer
	recipient string
	interval  time.Duration
	grace     time.Duration
	batch     int
	logger    *slog.Logger

	mu sync.Mutex
	// orders whose confirmation used up its attempts; not re-enqueued until restart
	exhausted map[int64]struct{}
}

func NewReconciliationWorker(
	orderRepo repo.OrderRepo,
	queue Enqueuer,
	recipient string,
	interval time.Duration,
	grace time.Duration,
	logger *slog.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		orderRepo: orderRepo,
		queue:     queue,
		recipient: recipient,
		interval:  interval,
		grace:     grace,
		batch:     100,
		logger:    logger,
		exhausted: make(map[int64]struct{}),
	}
}

// MarkExhausted stops the worker from re-enqueuing the order's confirmation.
func (rw *ReconciliationWorker) MarkExhausted(orderID int64) {
	rw.mu.Lock()
	rw.exhausted[orderID] = struct{}{}
	rw.mu.Unlock()
}

func (rw *ReconciliationWorker) isExhausted(orderID int64) bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	_, ok := rw.exhausted[orderID]
	return ok
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("reconciliation worker started", "interval", rw.interval.String(), "grace", rw.grace.String())

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := rw.process(ctx); err != nil {
				rw.logger.Error("reconciliation failed", "error", err)
			}
		}
	}
}

// process returns how many confirmation tasks were enqueued.
func (rw *ReconciliationWorker) process(ctx context.Context) (int, error) {
	advanced, err := rw.advanceStuckOrders(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	seen := make(map[int64]bool, len(advanced))
	for _, id := range advanced {
		seen[id] = true
		if !rw.enqueue(id) {
			return enqueued, nil
		}
		enqueued++
	}

	orders, err := rw.orderRepo.FindPaidWithoutMessage(ctx, rw.grace, rw.batch)
	if err != nil {
		return enqueued, err
	}
	for _, order := range orders {
		if seen[order.ID] {
			continue
		}
		if rw.isExhausted(order.ID) {
			rw.logger.Debug("confirmation exhausted, not re-enqueued", "order_id", order.ID)
			continue
		}
		if !rw.enqueue(order.ID) {
			break
		}
		enqueued++
	}
	return enqueued, nil
}

// advanceStuckOrders moves pending orders with a succeeded payment to paid and
// returns the ids it moved.
func (rw *ReconciliationWorker) advanceStuckOrders(ctx context.Context) ([]int64, error) {
	stuck, err := rw.orderRepo.FindPendingWithSucceededPayment(ctx, rw.grace, rw.batch)
	if err != nil {
		return nil, err
	}

	var advanced []int64
	for _, order := range stuck {
		if !order.Status.CanAdvanceTo(domain.OrderPaid) {
			continue
		}
		ok, err := rw.orderRepo.AdvanceOrderStatus(ctx, nil, order.ID, order.Status, domain.OrderPaid)
		if err != nil {
			rw.logger.Error("advance stuck order failed", "order_id", order.ID, "error", err)
			continue
		}
		if ok {
			rw.logger.Warn("paid order was stuck in pending, advanced", "order_id", order.ID)
			advanced = append(advanced, order.ID)
		}
	}
	return advanced, nil
}

// enqueue reports false when the queue refused the task; the rest waits for the next tick.
func (rw *ReconciliationWorker) enqueue(orderID int64) bool {
	err := rw.queue.Enqueue(dispatch.Task{OrderID: orderID, Recipient: rw.recipient})
	if err != nil {
		rw.logger.Warn("re-enqueue failed", "order_id", orderID, "error", err)
		return false
	}
	return true
}
