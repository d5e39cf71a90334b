package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"momo-checkout/internal/app"
	"momo-checkout/internal/config"
	"momo-checkout/internal/database"
	"momo-checkout/internal/domain"
	"momo-checkout/internal/logging"
	"momo-checkout/internal/service"
)

const orders = 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.LogLevel)

	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal(err)
	}
	if _, err := database.Seed(ctx, db); err != nil {
		log.Fatal(err)
	}

	a, err := app.New(cfg, db, logger)
	if err != nil {
		log.Fatal(err)
	}

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		_ = a.RunWorkers(workersCtx)
	}()

	fmt.Printf("--- STARTING SIMULATION (%d ORDERS) ---\n", orders)
	var paid []int64
	for i := 0; i < orders; i++ {
		// 1. Create
		order, err := a.Orders.CreateOrder(ctx, randomItems())
		if err != nil {
			log.Printf("Create Failed: %v", err)
			continue
		}
		fmt.Printf("[%d] Order %d total %s\n", i+1, order.ID, order.TotalAmount.StringFixed(2))

		// 2. Charge, then retry with the same key as a flaky client would
		key := domain.ChargeKey(order.ID)
		charge, err := a.Charges.Charge(ctx, key)
		if err != nil {
			fmt.Printf("    charge FAILED: %v\n", err)
			continue
		}
		replay, err := a.Charges.Charge(ctx, key)
		if err != nil {
			fmt.Printf("    replay FAILED: %v\n", err)
			continue
		}
		fmt.Printf("    payment %d (replayed=%v, same payment=%v)\n",
			charge.Payment.ID, replay.Replayed, replay.Payment.ID == charge.Payment.ID)

		cb := service.WebhookCallback{
			OrderID:        charge.Payment.OrderID,
			Amount:         charge.Payment.Amount,
			Status:         string(charge.Payment.Status),
			IdempotencyKey: charge.Payment.IdempotencyKey,
			PaymentID:      charge.Payment.ID,
		}

		// 3. Deliveries: some tampered, every verified one delivered twice
		if rand.IntN(100) < 20 {
			tampered := cb
			tampered.Amount = tampered.Amount.Sub(decimal.NewFromInt(1))
			_, err := a.Webhooks.Handle(ctx, charge.Signature, tampered)
			fmt.Printf("    tampered webhook -> %v\n", err)
		}

		for attempt := 1; attempt <= 2; attempt++ {
			outcome, err := a.Webhooks.Handle(ctx, charge.Signature, cb)
			if err != nil {
				fmt.Printf("    webhook #%d FAILED: %v\n", attempt, err)
				continue
			}
			fmt.Printf("    webhook #%d -> payment %s (already processed=%v)\n",
				attempt, outcome.Payment.Status, outcome.AlreadyProcessed)
		}
		paid = append(paid, order.ID)
		fmt.Println("---------------------------------------------------")
		time.Sleep(100 * time.Millisecond)
	}

	// let the confirmation workers drain
	time.Sleep(2 * time.Second)
	stopWorkers()
	workers.Wait()

	// 4. Query the DB for the state the simulation left behind
	fmt.Println("--- RESULTS ---")
	for _, id := range paid {
		order, err := a.Orders.GetOrder(ctx, id)
		if err != nil {
			fmt.Printf("Order %d: %v\n", id, err)
			continue
		}
		msg, err := a.MessageRepo.FindByOrderID(ctx, id)
		if err != nil {
			fmt.Printf("Order %d: %v\n", id, err)
			continue
		}
		confirmation := "none"
		if msg != nil {
			confirmation = msg.ProviderMsgID
		}
		fmt.Printf("Order %d: status=%s payments=%d confirmation=%s\n", id, order.Status, len(order.Payments), confirmation)
	}
	fmt.Printf("Messages sent by provider: %d\n", len(a.Provider.Sent()))
}

// randomItems picks one to three products from the seeded catalog.
func randomItems() []domain.ItemRequest {
	n := 1 + rand.IntN(3)
	items := make([]domain.ItemRequest, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.ItemRequest{
			ProductID: int64(1 + rand.IntN(8)),
			Quantity:  1 + rand.IntN(3),
		})
	}
	return items
}
