package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pleyazul/oraculo-api/internal/types"
)

// MockGateway fabricates payment handles locally and confirms captures only
// for handles it issued. Used in test mode instead of PayPal.
type MockGateway struct {
	mu      sync.Mutex
	handles map[string]string // reference -> order id
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		handles: make(map[string]string),
	}
}

func (g *MockGateway) CreatePayment(_ context.Context, order *types.Order, _ string) (*Handle, error) {
	reference := "MOCK_ORDER_" + uuid.New().String()

	g.mu.Lock()
	g.handles[reference] = order.OrderID
	g.mu.Unlock()

	log.Debug().
		Str("order_id", order.OrderID).
		Str("reference", reference).
		Msg("mock payment created")

	return &Handle{
		Reference:   reference,
		Status:      "CREATED",
		ApprovalURL: fmt.Sprintf("/api/v1/paypal/mock-payment?order_id=%s", order.OrderID),
		Mock:        true,
	}, nil
}

func (g *MockGateway) CapturePayment(_ context.Context, reference string) (*Capture, error) {
	g.mu.Lock()
	_, known := g.handles[reference]
	g.mu.Unlock()

	if !known {
		return &Capture{Confirmed: false, Status: "UNKNOWN_REFERENCE"}, nil
	}

	return &Capture{
		Confirmed: true,
		CaptureID: "MOCK_CAPTURE_" + uuid.New().String(),
		Status:    "COMPLETED",
	}, nil
}
