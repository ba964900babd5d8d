package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order statuses. An order moves CREATED -> AWAITING_PAYMENT -> PAID, with
// FAILED reachable from AWAITING_PAYMENT when payment verification fails.
const (
	OrderStatusCreated         = "CREATED"
	OrderStatusAwaitingPayment = "AWAITING_PAYMENT"
	OrderStatusPaid            = "PAID"
	OrderStatusFailed          = "FAILED"
)

type Order struct {
	gorm.Model       `json:"-"`
	OrderID          string          `gorm:"uniqueIndex" json:"order_id"`
	Email            string          `json:"email"`
	SpreadID         string          `json:"spread_id"`
	CustomQuestion   string          `json:"custom_question,omitempty"`
	Amount           decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"` // CREATED, AWAITING_PAYMENT, PAID, FAILED
	PaymentReference string          `json:"payment_reference,omitempty"`
	TestMode         bool            `json:"test_mode"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CanTransition reports whether moving an order from one status to the next
// is a legal step of the state machine. PAID is terminal; no step may skip
// AWAITING_PAYMENT.
func CanTransition(from, to string) bool {
	switch from {
	case OrderStatusCreated:
		return to == OrderStatusAwaitingPayment
	case OrderStatusAwaitingPayment:
		return to == OrderStatusPaid || to == OrderStatusFailed
	default:
		return false
	}
}

type Reading struct {
	gorm.Model  `json:"-"`
	ReadingID   string     `gorm:"uniqueIndex" json:"reading_id"`
	OrderID     string     `gorm:"index" json:"order_id"`
	ResultJSON  string     `json:"result_json"`
	IsDemo      bool       `json:"is_demo"`
	GeneratedAt time.Time  `json:"generated_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// OrderSummary is the shape returned by the order listing endpoint.
type OrderSummary struct {
	OrderID   string          `json:"order_id"`
	Email     string          `json:"email"`
	SpreadID  string          `json:"spread_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	TestMode  bool            `json:"test_mode"`
	CreatedAt time.Time       `json:"created_at"`
}

// Summary trims an order down to its listing fields.
func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		OrderID:   o.OrderID,
		Email:     o.Email,
		SpreadID:  o.SpreadID,
		Amount:    o.Amount,
		Status:    o.Status,
		TestMode:  o.TestMode,
		CreatedAt: o.CreatedAt,
	}
}
