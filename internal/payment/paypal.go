package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pleyazul/oraculo-api/internal/types"
)

const (
	paypalSandboxURL = "https://api-m.sandbox.paypal.com"
	paypalLiveURL    = "https://api-m.paypal.com"
)

// PayPalGateway talks to the PayPal Orders v2 API. All calls carry a timeout;
// transport failures and provider-side outages map to
// types.ErrGatewayUnavailable so callers can retry with backoff.
type PayPalGateway struct {
	baseURL  string
	clientID string
	secret   string
	client   *http.Client
}

// NewPayPalGateway builds a gateway against the sandbox or live environment.
// baseURL overrides the environment selection when non-empty (used in tests).
func NewPayPalGateway(clientID, secret, environment, baseURL string) *PayPalGateway {
	if baseURL == "" {
		baseURL = paypalSandboxURL
		if environment == "live" {
			baseURL = paypalLiveURL
		}
	}

	return &PayPalGateway{
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *PayPalGateway) CreatePayment(ctx context.Context, order *types.Order, description string) (*Handle, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": order.OrderID,
			"description":  description,
			"amount": map[string]string{
				"currency_code": order.Currency,
				"value":         order.Amount.StringFixed(2),
			},
		}},
	}

	var result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Links  []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}

	if err := g.post(ctx, "/v2/checkout/orders", token, payload, &result); err != nil {
		return nil, err
	}

	handle := &Handle{
		Reference: result.ID,
		Status:    result.Status,
	}
	for _, link := range result.Links {
		if link.Rel == "approve" {
			handle.ApprovalURL = link.Href
		}
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("paypal_order_id", result.ID).
		Str("status", result.Status).
		Msg("paypal order created")

	return handle, nil
}

func (g *PayPalGateway) CapturePayment(ctx context.Context, reference string) (*Capture, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var result struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}

	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(reference))
	if err := g.post(ctx, path, token, struct{}{}, &result); err != nil {
		return nil, err
	}

	capture := &Capture{
		Confirmed: result.Status == "COMPLETED",
		Status:    result.Status,
	}
	for _, unit := range result.PurchaseUnits {
		for _, c := range unit.Payments.Captures {
			capture.CaptureID = c.ID
		}
	}

	if !capture.Confirmed {
		log.Warn().
			Str("reference", reference).
			Str("status", result.Status).
			Msg("paypal capture not confirmed")
	}

	return capture, nil
}

// accessToken exchanges the client credentials for an OAuth bearer token.
func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed: %v", types.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", g.statusError(resp, "token request")
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: invalid token response: %v", types.ErrGatewayUnavailable, err)
	}
	return result.AccessToken, nil
}

func (g *PayPalGateway) post(ctx context.Context, path, token string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return g.statusError(resp, path)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("paypal API error on %s: status %d: %s", path, resp.StatusCode, msg)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError maps provider outages (5xx, throttling) to the retryable
// gateway-unavailable error.
func (g *PayPalGateway) statusError(resp *http.Response, op string) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%w: %s returned status %d: %s", types.ErrGatewayUnavailable, op, resp.StatusCode, msg)
}
