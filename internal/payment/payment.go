package payment

import (
	"context"

	"github.com/pleyazul/oraculo-api/internal/types"
)

// Handle is the provider-side payment order created for one of our orders.
// The Reference is what the client (or webhook) later presents for capture.
type Handle struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	ApprovalURL string `json:"approval_url,omitempty"`
	Mock        bool   `json:"mock,omitempty"`
}

// Capture is the outcome of a capture attempt. A gateway that answers at all
// reports Confirmed truthfully; transport-level failures surface as errors
// wrapping types.ErrGatewayUnavailable instead.
type Capture struct {
	Confirmed bool   `json:"confirmed"`
	CaptureID string `json:"capture_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Gateway abstracts the payment provider. The concrete implementation (real
// PayPal or the test-mode mock) is chosen once at startup.
type Gateway interface {
	CreatePayment(ctx context.Context, order *types.Order, description string) (*Handle, error)
	CapturePayment(ctx context.Context, reference string) (*Capture, error)
}
