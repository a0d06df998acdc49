package payment

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// MockClient simulates the payment gateway for local development and load
// testing. FailureRate in [0,1] controls how often a charge is declined.
type MockClient struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
}

// NewMockClient creates a mock gateway with the given decline rate
func NewMockClient(failureRate float64, seed int64) *MockClient {
	return &MockClient{
		rng:         rand.New(rand.NewSource(seed)),
		failureRate: failureRate,
	}
}

func (m *MockClient) Charge(ctx context.Context, bookingRef, userID string, amount float64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	declined := m.rng.Float64() < m.failureRate
	m.mu.Unlock()

	if declined {
		return &Result{
			Status:  StatusFailed,
			Message: "card declined",
		}, nil
	}
	return &Result{
		Status:    StatusSuccess,
		PaymentID: "mock-pay-" + uuid.New().String(),
	}, nil
}
