package notify

import (
	"context"

	"github.com/pleyazul/oraculo-api/internal/oracle"
	"github.com/pleyazul/oraculo-api/internal/types"
)

// Notifier delivers a generated reading to the customer out-of-band.
// Delivery is best-effort: the fulfillment core logs failures and never
// propagates them.
type Notifier interface {
	SendReading(ctx context.Context, order *types.Order, result *oracle.Result) error
}

// NoopNotifier is used when no delivery channel is configured.
type NoopNotifier struct{}

func (NoopNotifier) SendReading(context.Context, *types.Order, *oracle.Result) error {
	return nil
}
