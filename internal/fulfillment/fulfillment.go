package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pleyazul/oraculo-api/internal/content"
	"github.com/pleyazul/oraculo-api/internal/notify"
	"github.com/pleyazul/oraculo-api/internal/oracle"
	"github.com/pleyazul/oraculo-api/internal/payment"
	"github.com/pleyazul/oraculo-api/internal/types"
)

// Per-call budget for payment-gateway round trips.
const gatewayTimeout = 15 * time.Second

// Config carries the fulfillment policy decided once at startup.
type Config struct {
	// Price used when a spread carries no precio of its own.
	Price    decimal.Decimal
	Currency string
	// TestMode selects the mock gateway flow; checkout responses then tell
	// the caller a mock-payment confirmation call is required.
	TestMode bool
}

// Service owns the order state machine: spread validation, payment creation
// and capture, idempotent reading generation and the demo path.
type Service struct {
	db       *Database
	content  *content.Repository
	gateway  payment.Gateway
	notifier notify.Notifier
	cfg      Config
	locks    *orderLocks
	now      func() time.Time
}

func NewService(gormDB *gorm.DB, repo *content.Repository, gateway payment.Gateway, notifier notify.Notifier, cfg Config) *Service {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	return &Service{
		db:       NewDatabase(gormDB),
		content:  repo,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		locks:    newOrderLocks(),
		now:      time.Now,
	}
}

// CheckoutResult is returned from CreateOrder. When MockPaymentRequired is
// set the caller must follow up with the mock-payment endpoint; otherwise
// Payment carries the provider handle (approval URL) to complete out-of-band.
type CheckoutResult struct {
	OrderID             string          `json:"order_id"`
	Status              string          `json:"status"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	TestMode            bool            `json:"test_mode"`
	MockPaymentRequired bool            `json:"mock_payment_required,omitempty"`
	Payment             *payment.Handle `json:"payment,omitempty"`
}

// CreateOrder validates the spread, persists the order and creates the
// provider-side payment. The order is persisted in CREATED and advanced to
// AWAITING_PAYMENT before the gateway is called.
func (s *Service) CreateOrder(ctx context.Context, email, spreadID, customQuestion string) (*CheckoutResult, error) {
	if email == "" || spreadID == "" {
		return nil, types.ErrMissingField
	}

	spread, ok := s.content.Spread(spreadID)
	if !ok {
		return nil, types.ErrInvalidSpread
	}

	amount := spread.Precio
	if amount.IsZero() {
		amount = s.cfg.Price
	}

	order := &types.Order{
		OrderID:        uuid.New().String(),
		Email:          email,
		SpreadID:       spreadID,
		CustomQuestion: customQuestion,
		Amount:         amount,
		Currency:       s.cfg.Currency,
		Status:         types.OrderStatusCreated,
		TestMode:       s.cfg.TestMode,
	}

	if err := s.db.CreateOrder(order); err != nil {
		return nil, err
	}

	if err := s.transition(order, types.OrderStatusAwaitingPayment); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("order_id", order.OrderID).
		Str("spread_id", spreadID).
		Logger()

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	description := fmt.Sprintf("Lectura %s - Pleyazul Oráculos", spreadID)
	handle, err := s.gateway.CreatePayment(gwCtx, order, description)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create payment")
		return nil, err
	}

	order.PaymentReference = handle.Reference
	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}

	logger.Info().
		Str("payment_reference", handle.Reference).
		Bool("mock", handle.Mock).
		Msg("order created and awaiting payment")

	return &CheckoutResult{
		OrderID:             order.OrderID,
		Status:              order.Status,
		Amount:              order.Amount,
		Currency:            order.Currency,
		TestMode:            s.cfg.TestMode,
		MockPaymentRequired: handle.Mock,
		Payment:             handle,
	}, nil
}

// ConfirmResult reports the outcome of a payment confirmation.
type ConfirmResult struct {
	OrderID   string `json:"order_id"`
	Confirmed bool   `json:"confirmed"`
	Status    string `json:"status"`
}

// ConfirmPayment captures the payment for an order awaiting payment. A PAID
// order re-confirmed with its stored reference is a no-op success. A
// definitive rejection from the gateway fails the order; a gateway outage
// leaves its state untouched so the caller can retry.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, reference string) (*ConfirmResult, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrOrderNotFound
	}

	if reference == "" {
		reference = order.PaymentReference
	}

	if order.Status == types.OrderStatusPaid {
		if reference == order.PaymentReference {
			return &ConfirmResult{OrderID: orderID, Confirmed: true, Status: order.Status}, nil
		}
		return nil, types.ErrInvalidState
	}

	if order.Status != types.OrderStatusAwaitingPayment {
		return nil, types.ErrInvalidState
	}

	if reference != order.PaymentReference {
		return nil, types.ErrInvalidState
	}

	logger := log.With().
		Str("order_id", orderID).
		Str("reference", reference).
		Logger()

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	capture, err := s.gateway.CapturePayment(gwCtx, reference)
	if err != nil {
		// Retryable: the order stays in AWAITING_PAYMENT.
		logger.Error().Err(err).Msg("payment capture failed")
		return nil, err
	}

	if !capture.Confirmed {
		logger.Warn().Str("capture_status", capture.Status).Msg("payment verification rejected")
		if err := s.transition(order, types.OrderStatusFailed); err != nil {
			return nil, err
		}
		return nil, types.ErrPaymentNotConfirmed
	}

	paidAt := s.now()
	order.PaidAt = &paidAt
	if err := s.transition(order, types.OrderStatusPaid); err != nil {
		return nil, err
	}

	logger.Info().Str("capture_id", capture.CaptureID).Msg("payment confirmed")

	return &ConfirmResult{OrderID: orderID, Confirmed: true, Status: order.Status}, nil
}

// GenerateReading produces and persists the reading for a paid order. The
// operation is idempotent: an existing reading is returned unchanged, and the
// per-order lock guarantees concurrent calls cannot both draw.
func (s *Service) GenerateReading(ctx context.Context, orderID string) (*types.Reading, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrOrderNotFound
	}

	if order.Status != types.OrderStatusPaid {
		return nil, types.ErrPaymentNotConfirmed
	}

	existing, err := s.db.GetReadingByOrder(orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	spread, ok := s.content.Spread(order.SpreadID)
	if !ok {
		return nil, types.ErrInvalidSpread
	}

	src := oracle.NewSeededSource(oracle.OrderSeed(order.OrderID, order.Email))
	result, err := oracle.Generate(spread, s.content, src)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	reading := &types.Reading{
		ReadingID:   order.OrderID,
		OrderID:     order.OrderID,
		ResultJSON:  string(payload),
		GeneratedAt: s.now().UTC(),
	}

	if err := s.db.CreateReading(reading); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", orderID).
		Str("oracle", result.Type).
		Msg("reading generated")

	// Delivery runs in the background so the per-order lock is not held
	// across a slow notifier round trip.
	go s.deliver(context.Background(), order, result)

	return reading, nil
}

// GenerateDemoReading produces a preview reading for a spread without
// touching the order store. The synthesized id is prefixed demo_.
func (s *Service) GenerateDemoReading(spreadID string) (*types.Reading, error) {
	spread, ok := s.content.Spread(spreadID)
	if !ok {
		return nil, types.ErrInvalidSpread
	}

	result, err := oracle.Generate(spread, s.content, oracle.NewRandomSource())
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	demoID := "demo_" + uuid.New().String()
	return &types.Reading{
		ReadingID:   demoID,
		OrderID:     demoID,
		ResultJSON:  string(payload),
		IsDemo:      true,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// OrderDetails pairs an order with its reading, when one exists.
type OrderDetails struct {
	Order   *types.Order   `json:"order"`
	Reading *types.Reading `json:"reading,omitempty"`
}

func (s *Service) GetOrder(orderID string) (*OrderDetails, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrOrderNotFound
	}

	reading, err := s.db.GetReadingByOrder(orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetails{Order: order, Reading: reading}, nil
}

func (s *Service) GetReading(orderID string) (*types.Reading, error) {
	reading, err := s.db.GetReadingByOrder(orderID)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, types.ErrReadingNotFound
	}
	return reading, nil
}

// ListOrders returns up to 50 order summaries in insertion order.
func (s *Service) ListOrders() ([]types.OrderSummary, error) {
	orders, err := s.db.ListOrders(50)
	if err != nil {
		return nil, err
	}

	summaries := make([]types.OrderSummary, len(orders))
	for i := range orders {
		summaries[i] = orders[i].Summary()
	}
	return summaries, nil
}

// MockPaymentResult is the response of the test-mode mock-payment endpoint:
// the capture outcome plus the reading it generated.
type MockPaymentResult struct {
	OrderID   string         `json:"order_id"`
	Confirmed bool           `json:"confirmed"`
	Reading   *types.Reading `json:"reading,omitempty"`
}

// MockPayment confirms an order against the mock gateway and generates its
// reading in one step, mirroring the test-mode payment endpoint.
func (s *Service) MockPayment(ctx context.Context, orderID string) (*MockPaymentResult, error) {
	if !s.cfg.TestMode {
		return nil, types.ErrTestModeOnly
	}

	confirm, err := s.ConfirmPayment(ctx, orderID, "")
	if err != nil {
		return nil, err
	}

	reading, err := s.GenerateReading(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &MockPaymentResult{
		OrderID:   orderID,
		Confirmed: confirm.Confirmed,
		Reading:   reading,
	}, nil
}

// CompleteFromWebhook handles a provider capture-completed notification: the
// order matching the provider reference is marked paid and its reading is
// generated. Already-paid orders are a no-op.
func (s *Service) CompleteFromWebhook(ctx context.Context, providerReference string) error {
	order, err := s.db.GetOrderByPaymentReference(providerReference)
	if err != nil {
		return err
	}
	if order == nil {
		return types.ErrOrderNotFound
	}
	orderID := order.OrderID

	unlock := s.locks.lock(orderID)

	// Re-read under the lock; the state may have moved since the lookup.
	order, err = s.db.GetOrder(orderID)
	if err != nil || order == nil {
		unlock()
		if err != nil {
			return err
		}
		return types.ErrOrderNotFound
	}

	if order.Status == types.OrderStatusAwaitingPayment {
		paidAt := s.now()
		order.PaidAt = &paidAt
		if err := s.transition(order, types.OrderStatusPaid); err != nil {
			unlock()
			return err
		}
	}
	unlock()

	_, err = s.GenerateReading(ctx, orderID)
	return err
}

// transition applies a state-machine step and persists it. Illegal steps are
// rejected before anything is written.
func (s *Service) transition(order *types.Order, to string) error {
	if !types.CanTransition(order.Status, to) {
		return types.ErrInvalidState
	}

	from := order.Status
	order.Status = to
	if err := s.db.UpdateOrder(order); err != nil {
		order.Status = from
		return err
	}

	log.Debug().
		Str("order_id", order.OrderID).
		Str("from", from).
		Str("to", to).
		Msg("order state transition")

	return nil
}

// deliver sends the reading through the notifier. Failures are logged and
// never propagated; a completed reading stays valid whether or not delivery
// worked.
func (s *Service) deliver(ctx context.Context, order *types.Order, result *oracle.Result) {
	if _, noop := s.notifier.(notify.NoopNotifier); noop {
		return
	}

	if err := s.notifier.SendReading(ctx, order, result); err != nil {
		log.Warn().Err(err).Str("order_id", order.OrderID).Msg("reading delivery failed")
		return
	}

	if err := s.db.MarkReadingDelivered(order.OrderID, s.now().UTC()); err != nil {
		log.Warn().Err(err).Str("order_id", order.OrderID).Msg("failed to record delivery")
	}
}
