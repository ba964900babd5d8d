package types

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{OrderStatusCreated, OrderStatusAwaitingPayment},
		{OrderStatusAwaitingPayment, OrderStatusPaid},
		{OrderStatusAwaitingPayment, OrderStatusFailed},
	}
	for _, step := range allowed {
		if !CanTransition(step[0], step[1]) {
			t.Fatalf("expected %s -> %s to be legal", step[0], step[1])
		}
	}

	forbidden := [][2]string{
		{OrderStatusCreated, OrderStatusPaid},
		{OrderStatusCreated, OrderStatusFailed},
		{OrderStatusPaid, OrderStatusAwaitingPayment},
		{OrderStatusPaid, OrderStatusFailed},
		{OrderStatusFailed, OrderStatusPaid},
		{OrderStatusFailed, OrderStatusAwaitingPayment},
	}
	for _, step := range forbidden {
		if CanTransition(step[0], step[1]) {
			t.Fatalf("expected %s -> %s to be rejected", step[0], step[1])
		}
	}
}
