package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrProviderUnavailable = errors.New("messaging: provider unavailable")

// Provider delivers a text message and returns the provider's id for it.
type Provider interface {
	Send(ctx context.Context, recipient, body string) (string, error)
}

// SentMessage is what the mock provider recorded for one delivery.
type SentMessage struct {
	ID        string
	Recipient string
	Body      string
	SentAt    time.Time
}

type MockProvider struct {
	mu   sync.RWMutex
	sent map[string]SentMessage
	// order of delivery, for Sent()
	ids []string

	node        *snowflake.Node
	failureRate int
	latency     time.Duration
}

type MockOption func(*MockProvider)

// WithFailureRate makes Send fail transiently for the given fraction (0..1) of calls.
func WithFailureRate(rate float64) MockOption {
	return func(p *MockProvider) {
		p.failureRate = int(rate * 100)
	}
}

func WithLatency(d time.Duration) MockOption {
	return func(p *MockProvider) {
		p.latency = d
	}
}

func NewMockProvider(nodeID int64, opts ...MockOption) (*MockProvider, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("messaging: snowflake node: %w", err)
	}
	p := &MockProvider{
		sent: make(map[string]SentMessage),
		node: node,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *MockProvider) Send(ctx context.Context, recipient, body string) (string, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if p.failureRate > 0 && rand.IntN(100) < p.failureRate {
		return "", ErrProviderUnavailable
	}

	id := "MSG-" + p.node.Generate().String()

	p.mu.Lock()
	p.sent[id] = SentMessage{ID: id, Recipient: recipient, Body: body, SentAt: time.Now()}
	p.ids = append(p.ids, id)
	p.mu.Unlock()

	return id, nil
}

// Sent returns every delivered message in send order.
func (p *MockProvider) Sent() []SentMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]SentMessage, 0, len(p.ids))
	for _, id := range p.ids {
		out = append(out, p.sent[id])
	}
	return out
}

func (p *MockProvider) Lookup(id string) (SentMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.sent[id]
	return m, ok
}
