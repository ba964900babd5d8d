package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pleyazul/oraculo-api/internal/content"
	"github.com/pleyazul/oraculo-api/internal/database"
	"github.com/pleyazul/oraculo-api/internal/oracle"
	"github.com/pleyazul/oraculo-api/internal/payment"
	"github.com/pleyazul/oraculo-api/internal/types"
)

func testContentDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	fixtures := map[string]string{
		"spreads.json": `{
			"tarot_3_ppf": {
				"nombre": "Tarot: Pasado, Presente y Futuro",
				"oraculo": "tarot",
				"cartas": 3,
				"posiciones": ["Pasado", "Presente", "Futuro"],
				"precio": "19.99"
			},
			"iching_1": {
				"nombre": "I Ching: Hexagrama del Momento",
				"oraculo": "iching",
				"cartas": 1,
				"posiciones": ["El Momento"]
			},
			"rueda_3": {
				"nombre": "Rueda Medicinal: Tres Guías",
				"oraculo": "rueda",
				"cartas": 3,
				"posiciones": ["Guía interior", "Desafío", "Medicina"],
				"precio": "24.99"
			}
		}`,
		"tarot.json": `[
			{"name": "El Loco", "upright": "Comienzo", "reversed": "Imprudencia"},
			{"name": "El Mago", "upright": "Voluntad", "reversed": "Manipulación"},
			{"name": "La Sacerdotisa", "upright": "Intuición", "reversed": "Secretos"},
			{"name": "La Emperatriz", "upright": "Abundancia", "reversed": "Estancamiento"},
			{"name": "El Emperador", "upright": "Estructura", "reversed": "Rigidez"},
			{"name": "El Hierofante", "upright": "Tradición", "reversed": "Dogma"}
		]`,
		"iching.json": `[
			{"hex": 1, "nombre": "Lo Creativo", "consejo": "Persevera"},
			{"hex": 2, "nombre": "Lo Receptivo", "consejo": "Recibe"},
			{"hex": 3, "nombre": "La Dificultad Inicial", "consejo": "No avances solo"}
		]`,
		"rueda.json": `[
			{"animal": "Águila", "arquetipo": "La Visión", "medicina": "Mira el conjunto"},
			{"animal": "Lobo", "arquetipo": "El Maestro", "medicina": "Comparte"},
			{"animal": "Oso", "arquetipo": "La Introspección", "medicina": "Busca dentro"},
			{"animal": "Tortuga", "arquetipo": "La Madre Tierra", "medicina": "Calma"},
			{"animal": "Cuervo", "arquetipo": "La Magia", "medicina": "Nombra"}
		]`,
	}

	for name, data := range fixtures {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatalf("failed to write fixture %s: %v", name, err)
		}
	}
	return dir
}

func newTestService(t *testing.T, gateway payment.Gateway, testMode bool) (*Service, *gorm.DB) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	repo, err := content.Load(testContentDir(t))
	if err != nil {
		t.Fatalf("failed to load test content: %v", err)
	}

	svc := NewService(db, repo, gateway, nil, Config{
		Price:    decimal.RequireFromString("9.99"),
		Currency: "EUR",
		TestMode: testMode,
	})
	return svc, db
}

func TestCreateOrderAwaitsPayment(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	result, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "¿Qué me depara el camino?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != types.OrderStatusAwaitingPayment {
		t.Fatalf("expected status AWAITING_PAYMENT, got %s", result.Status)
	}
	if !result.MockPaymentRequired {
		t.Fatal("expected mock payment to be required in test mode")
	}
	if result.Amount.String() != "19.99" {
		t.Fatalf("expected spread price 19.99, got %s", result.Amount)
	}

	details, err := svc.GetOrder(result.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusAwaitingPayment {
		t.Fatalf("expected persisted status AWAITING_PAYMENT, got %s", details.Order.Status)
	}
	if details.Order.PaymentReference == "" {
		t.Fatal("expected a payment reference")
	}
	if details.Reading != nil {
		t.Fatal("no reading should exist before payment")
	}
}

func TestCreateOrderFallsBackToConfiguredPrice(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	// iching_1 carries no precio of its own.
	result, err := svc.CreateOrder(context.Background(), "ana@example.com", "iching_1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Amount.String() != "9.99" {
		t.Fatalf("expected fallback price 9.99, got %s", result.Amount)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	if _, err := svc.CreateOrder(context.Background(), "", "tarot_3_ppf", ""); !errors.Is(err, types.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), "ana@example.com", "", ""); !errors.Is(err, types.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), "ana@example.com", "no_such_spread", ""); !errors.Is(err, types.ErrInvalidSpread) {
		t.Fatalf("expected ErrInvalidSpread, got %v", err)
	}

	// Rejected checkouts must not leave orders behind.
	summaries, err := svc.ListOrders()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected no persisted orders, got %d", len(summaries))
	}
}

func TestMockPaymentFlow(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.MockPayment(context.Background(), created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Confirmed {
		t.Fatal("expected payment to confirm")
	}
	if result.Reading == nil {
		t.Fatal("expected a reading")
	}

	var reading oracle.Result
	if err := json.Unmarshal([]byte(result.Reading.ResultJSON), &reading); err != nil {
		t.Fatalf("invalid reading payload: %v", err)
	}
	if reading.Type != "tarot" {
		t.Fatalf("expected tarot reading, got %s", reading.Type)
	}
	if len(reading.Cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(reading.Cards))
	}

	details, err := svc.GetOrder(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", details.Order.Status)
	}
	if details.Order.PaidAt == nil {
		t.Fatal("expected paid_at to be set")
	}
}

func TestMockPaymentRequiresTestMode(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), false)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.MockPayment(context.Background(), created.OrderID); !errors.Is(err, types.ErrTestModeOnly) {
		t.Fatalf("expected ErrTestModeOnly, got %v", err)
	}
}

func TestGenerateReadingRequiresPayment(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.GenerateReading(context.Background(), created.OrderID); !errors.Is(err, types.ErrPaymentNotConfirmed) {
		t.Fatalf("expected ErrPaymentNotConfirmed, got %v", err)
	}
	if _, err := svc.GenerateReading(context.Background(), "no-such-order"); !errors.Is(err, types.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.GetReading(created.OrderID); !errors.Is(err, types.ErrReadingNotFound) {
		t.Fatalf("expected ErrReadingNotFound, got %v", err)
	}
}

func TestGenerateReadingIdempotent(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "rueda_3", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ConfirmPayment(context.Background(), created.OrderID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := svc.GenerateReading(context.Background(), created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.GenerateReading(context.Background(), created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ResultJSON != second.ResultJSON {
		t.Fatal("repeated generation must return the stored reading unchanged")
	}
	if first.ReadingID != second.ReadingID {
		t.Fatalf("reading ids differ: %s vs %s", first.ReadingID, second.ReadingID)
	}
}

func TestGenerateReadingConcurrent(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ConfirmPayment(context.Background(), created.OrderID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const callers = 4
	results := make([]*types.Reading, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GenerateReading(context.Background(), created.OrderID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].ResultJSON != results[0].ResultJSON {
			t.Fatalf("caller %d got a different reading", i)
		}
	}
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := svc.ConfirmPayment(context.Background(), created.OrderID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.ConfirmPayment(context.Background(), created.OrderID, "")
	if err != nil {
		t.Fatalf("re-confirming a paid order must be a no-op, got %v", err)
	}
	if !first.Confirmed || !second.Confirmed {
		t.Fatal("both confirmations must report confirmed")
	}
	if second.Status != types.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", second.Status)
	}
}

func TestConfirmPaymentWrongReference(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.ConfirmPayment(context.Background(), created.OrderID, "MOCK_ORDER_other"); !errors.Is(err, types.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.ConfirmPayment(context.Background(), "no-such-order", ""); !errors.Is(err, types.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

// stubGateway scripts capture outcomes for state-machine tests.
type stubGateway struct {
	captureErr error
	confirmed  bool
}

func (g *stubGateway) CreatePayment(_ context.Context, order *types.Order, _ string) (*payment.Handle, error) {
	return &payment.Handle{Reference: "STUB_" + order.OrderID, Status: "CREATED"}, nil
}

func (g *stubGateway) CapturePayment(_ context.Context, _ string) (*payment.Capture, error) {
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return &payment.Capture{Confirmed: g.confirmed, Status: "SCRIPTED"}, nil
}

func TestConfirmPaymentRejectionFailsOrder(t *testing.T) {
	svc, _ := newTestService(t, &stubGateway{confirmed: false}, false)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.ConfirmPayment(context.Background(), created.OrderID, ""); !errors.Is(err, types.ErrPaymentNotConfirmed) {
		t.Fatalf("expected ErrPaymentNotConfirmed, got %v", err)
	}

	details, err := svc.GetOrder(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusFailed {
		t.Fatalf("expected FAILED, got %s", details.Order.Status)
	}

	// FAILED is terminal: a later confirmation attempt is rejected.
	if _, err := svc.ConfirmPayment(context.Background(), created.OrderID, ""); !errors.Is(err, types.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestConfirmPaymentGatewayOutageKeepsState(t *testing.T) {
	gw := &stubGateway{captureErr: fmt.Errorf("%w: connection refused", types.ErrGatewayUnavailable)}
	svc, _ := newTestService(t, gw, false)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.ConfirmPayment(context.Background(), created.OrderID, ""); !errors.Is(err, types.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	details, err := svc.GetOrder(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusAwaitingPayment {
		t.Fatalf("an outage must leave the order retryable, got %s", details.Order.Status)
	}

	// The gateway recovers and the retry succeeds.
	gw.captureErr = nil
	gw.confirmed = true
	if _, err := svc.ConfirmPayment(context.Background(), created.OrderID, ""); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
}

func TestDemoReading(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	reading, err := svc.GenerateDemoReading("tarot_3_ppf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reading.IsDemo {
		t.Fatal("expected is_demo to be set")
	}
	if !strings.HasPrefix(reading.ReadingID, "demo_") {
		t.Fatalf("expected demo_ prefix, got %s", reading.ReadingID)
	}

	var result oracle.Result
	if err := json.Unmarshal([]byte(reading.ResultJSON), &result); err != nil {
		t.Fatalf("invalid reading payload: %v", err)
	}
	if len(result.Cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(result.Cards))
	}

	if _, err := svc.GenerateDemoReading("no_such_spread"); !errors.Is(err, types.ErrInvalidSpread) {
		t.Fatalf("expected ErrInvalidSpread, got %v", err)
	}

	// Demo readings are never persisted.
	summaries, err := svc.ListOrders()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected no persisted orders, got %d", len(summaries))
	}
}

func TestCompleteFromWebhook(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "iching_1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	details, err := svc.GetOrder(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.CompleteFromWebhook(context.Background(), details.Order.PaymentReference); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	details, err = svc.GetOrder(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", details.Order.Status)
	}
	if details.Reading == nil {
		t.Fatal("expected the webhook to generate the reading")
	}

	// Replayed notifications are a no-op.
	if err := svc.CompleteFromWebhook(context.Background(), details.Order.PaymentReference); err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}

	if err := svc.CompleteFromWebhook(context.Background(), "never-issued"); !errors.Is(err, types.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListOrders(t *testing.T) {
	svc, _ := newTestService(t, payment.NewMockGateway(), true)

	var ids []string
	for i := 0; i < 3; i++ {
		created, err := svc.CreateOrder(context.Background(), fmt.Sprintf("ana+%d@example.com", i), "tarot_3_ppf", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, created.OrderID)
	}

	summaries, err := svc.ListOrders()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(summaries))
	}
	for i, s := range summaries {
		if s.OrderID != ids[i] {
			t.Fatalf("expected insertion order, got %s at %d", s.OrderID, i)
		}
	}
}

func TestSeededReadingsSurviveRestart(t *testing.T) {
	svc, db := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.MockPayment(context.Background(), created.OrderID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reading, err := svc.GetReading(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulate a lost reading row; regeneration draws the same cards because
	// the source is seeded from the order id and email.
	if err := db.Unscoped().Where("order_id = ?", created.OrderID).Delete(&types.Reading{}).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	regenerated, err := svc.GenerateReading(context.Background(), created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var before, after oracle.Result
	if err := json.Unmarshal([]byte(reading.ResultJSON), &before); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := json.Unmarshal([]byte(regenerated.ResultJSON), &after); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range before.Cards {
		if before.Cards[i].Name != after.Cards[i].Name || before.Cards[i].Reversed != after.Cards[i].Reversed {
			t.Fatalf("card %d differs after regeneration", i)
		}
	}
}

func TestProcessorExpiresStaleOrders(t *testing.T) {
	svc, db := newTestService(t, payment.NewMockGateway(), true)

	stale, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh, err := svc.CreateOrder(context.Background(), "eva@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backdated := time.Now().Add(-2 * time.Hour)
	if err := db.Model(&types.Order{}).
		Where("order_id = ?", stale.OrderID).
		Update("created_at", backdated).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	processor := NewProcessor(NewDatabase(db), time.Minute, time.Hour)
	if err := processor.expireStaleOrders(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	details, err := svc.GetOrder(stale.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusFailed {
		t.Fatalf("expected stale order FAILED, got %s", details.Order.Status)
	}

	details, err = svc.GetOrder(fresh.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusAwaitingPayment {
		t.Fatalf("expected fresh order untouched, got %s", details.Order.Status)
	}
}

func TestExpirySkipsOrderPaidAfterListing(t *testing.T) {
	svc, db := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backdated := time.Now().Add(-2 * time.Hour)
	if err := db.Model(&types.Order{}).
		Where("order_id = ?", created.OrderID).
		Update("created_at", backdated).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store := NewDatabase(db)
	stale, err := store.ListStaleAwaitingPayment(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale order, got %d", len(stale))
	}

	// The payment lands between the listing and the expiry write.
	if _, err := svc.ConfirmPayment(context.Background(), created.OrderID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expired, err := store.ExpireOrder(stale[0].OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired {
		t.Fatal("a paid order must not be expired")
	}

	details, err := svc.GetOrder(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusPaid {
		t.Fatalf("expected order to stay PAID, got %s", details.Order.Status)
	}
}

func TestWebhookDoesNotResurrectFailedOrder(t *testing.T) {
	svc, db := newTestService(t, payment.NewMockGateway(), true)

	created, err := svc.CreateOrder(context.Background(), "ana@example.com", "tarot_3_ppf", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	details, err := svc.GetOrder(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reference := details.Order.PaymentReference

	// Hold the per-order lock so the webhook blocks after its reference
	// lookup, then fail the order while it waits.
	unlock := svc.locks.lock(created.OrderID)

	done := make(chan error, 1)
	go func() {
		done <- svc.CompleteFromWebhook(context.Background(), reference)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := db.Model(&types.Order{}).
		Where("order_id = ?", created.OrderID).
		Update("status", types.OrderStatusFailed).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unlock()

	if err := <-done; !errors.Is(err, types.ErrPaymentNotConfirmed) {
		t.Fatalf("expected ErrPaymentNotConfirmed, got %v", err)
	}

	details, err = svc.GetOrder(created.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Order.Status != types.OrderStatusFailed {
		t.Fatalf("a failed order must stay FAILED, got %s", details.Order.Status)
	}
	if details.Reading != nil {
		t.Fatal("no reading should exist for a failed order")
	}
}

func TestOrderLocksSerialize(t *testing.T) {
	locks := newOrderLocks()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("order-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 20 {
		t.Fatalf("expected 20 serialized increments, got %d", counter)
	}
	if len(locks.locks) != 0 {
		t.Fatalf("expected lock map drained, got %d entries", len(locks.locks))
	}
}
