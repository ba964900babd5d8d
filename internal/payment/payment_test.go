package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pleyazul/oraculo-api/internal/types"
)

func testOrder() *types.Order {
	return &types.Order{
		OrderID:  "order-123",
		Email:    "ana@example.com",
		SpreadID: "tarot_3_ppf",
		Amount:   decimal.RequireFromString("19.99"),
		Currency: "EUR",
		Status:   types.OrderStatusAwaitingPayment,
	}
}

func TestMockGatewayCreateAndCapture(t *testing.T) {
	gw := NewMockGateway()

	handle, err := gw.CreatePayment(context.Background(), testOrder(), "Lectura tarot_3_ppf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handle.Mock {
		t.Fatal("expected a mock handle")
	}
	if !strings.HasPrefix(handle.Reference, "MOCK_ORDER_") {
		t.Fatalf("unexpected reference: %s", handle.Reference)
	}

	capture, err := gw.CapturePayment(context.Background(), handle.Reference)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !capture.Confirmed {
		t.Fatal("expected capture of a known reference to confirm")
	}
	if capture.CaptureID == "" {
		t.Fatal("expected a capture id")
	}
}

func TestMockGatewayUnknownReference(t *testing.T) {
	gw := NewMockGateway()

	capture, err := gw.CapturePayment(context.Background(), "MOCK_ORDER_never-issued")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capture.Confirmed {
		t.Fatal("unknown reference must not confirm")
	}
	if capture.Status != "UNKNOWN_REFERENCE" {
		t.Fatalf("unexpected status: %s", capture.Status)
	}
}

// paypalStub fakes the token, create and capture endpoints of the Orders v2
// API. Setting failWith forces that HTTP status on the order endpoints.
type paypalStub struct {
	failWith int
}

func (s *paypalStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if !ok || user == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token"})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if s.failWith != 0 {
			w.WriteHeader(s.failWith)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{
			"id": "PAYPAL-ORDER-1",
			"status": "CREATED",
			"links": [
				{"href": "https://example.com/self", "rel": "self"},
				{"href": "https://example.com/approve", "rel": "approve"}
			]
		}`)
	})
	mux.HandleFunc("/v2/checkout/orders/PAYPAL-ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		if s.failWith != 0 {
			w.WriteHeader(s.failWith)
			return
		}
		fmt.Fprint(w, `{
			"id": "PAYPAL-ORDER-1",
			"status": "COMPLETED",
			"purchase_units": [
				{"payments": {"captures": [{"id": "CAPTURE-1", "status": "COMPLETED"}]}}
			]
		}`)
	})
	return mux
}

func TestPayPalCreatePayment(t *testing.T) {
	server := httptest.NewServer((&paypalStub{}).handler())
	defer server.Close()

	gw := NewPayPalGateway("client", "secret", "sandbox", server.URL)

	handle, err := gw.CreatePayment(context.Background(), testOrder(), "Lectura tarot_3_ppf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.Reference != "PAYPAL-ORDER-1" {
		t.Fatalf("unexpected reference: %s", handle.Reference)
	}
	if handle.ApprovalURL != "https://example.com/approve" {
		t.Fatalf("unexpected approval url: %s", handle.ApprovalURL)
	}
	if handle.Mock {
		t.Fatal("real gateway handles must not be marked mock")
	}
}

func TestPayPalCapturePayment(t *testing.T) {
	server := httptest.NewServer((&paypalStub{}).handler())
	defer server.Close()

	gw := NewPayPalGateway("client", "secret", "sandbox", server.URL)

	capture, err := gw.CapturePayment(context.Background(), "PAYPAL-ORDER-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !capture.Confirmed {
		t.Fatal("expected a completed capture to confirm")
	}
	if capture.CaptureID != "CAPTURE-1" {
		t.Fatalf("unexpected capture id: %s", capture.CaptureID)
	}
}

func TestPayPalServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer((&paypalStub{failWith: http.StatusServiceUnavailable}).handler())
	defer server.Close()

	gw := NewPayPalGateway("client", "secret", "sandbox", server.URL)

	_, err := gw.CreatePayment(context.Background(), testOrder(), "Lectura")
	if !errors.Is(err, types.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestPayPalClientErrorIsNotRetryable(t *testing.T) {
	server := httptest.NewServer((&paypalStub{failWith: http.StatusUnprocessableEntity}).handler())
	defer server.Close()

	gw := NewPayPalGateway("client", "secret", "sandbox", server.URL)

	_, err := gw.CreatePayment(context.Background(), testOrder(), "Lectura")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, types.ErrGatewayUnavailable) {
		t.Fatal("a definitive 4xx must not map to gateway-unavailable")
	}
}

func TestPayPalUnreachableHost(t *testing.T) {
	gw := NewPayPalGateway("client", "secret", "sandbox", "http://127.0.0.1:1")

	_, err := gw.CapturePayment(context.Background(), "PAYPAL-ORDER-1")
	if !errors.Is(err, types.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}
