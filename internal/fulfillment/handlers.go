package fulfillment

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pleyazul/oraculo-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the fulfillment endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CheckoutHandler handles POST requests to create a new order
// Request body: email, spread_id and an optional custom_question
func (h *GinHandlers) CheckoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email          string `json:"email"`
			SpreadID       string `json:"spread_id"`
			CustomQuestion string `json:"custom_question"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.CreateOrder(c.Request.Context(), req.Email, req.SpreadID, req.CustomQuestion)
		response.Handle(c, result, err)
	}
}

// CapturePaymentHandler handles POST requests to confirm an order's payment
// URL parameter: order_id; body: the gateway reference to capture
func (h *GinHandlers) CapturePaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")

		var req struct {
			Reference string `json:"reference"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.ConfirmPayment(c.Request.Context(), orderID, req.Reference)
		response.Handle(c, result, err)
	}
}

// MockPaymentHandler handles the test-mode shortcut that confirms the mock
// payment and generates the reading in one call
func (h *GinHandlers) MockPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderID string `json:"order_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
			response.BadRequest(c, "order_id is required")
			return
		}

		result, err := h.service.MockPayment(c.Request.Context(), req.OrderID)
		response.Handle(c, result, err)
	}
}

// GenerateReadingHandler handles POST requests to generate a reading for a
// paid order
func (h *GinHandlers) GenerateReadingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderID string `json:"order_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
			response.BadRequest(c, "order_id is required")
			return
		}

		reading, err := h.service.GenerateReading(c.Request.Context(), req.OrderID)
		response.Handle(c, reading, err)
	}
}

// GetReadingHandler handles GET requests for a stored reading
// URL parameter: order_id
func (h *GinHandlers) GetReadingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reading, err := h.service.GetReading(c.Param("order_id"))
		response.Handle(c, reading, err)
	}
}

// DemoReadingHandler handles POST requests for stateless preview readings
func (h *GinHandlers) DemoReadingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SpreadID string `json:"spread_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.SpreadID == "" {
			response.BadRequest(c, "spread_id is required")
			return
		}

		reading, err := h.service.GenerateDemoReading(req.SpreadID)
		response.Handle(c, reading, err)
	}
}

// GetOrderHandler handles GET requests for an order and its reading
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		details, err := h.service.GetOrder(c.Param("order_id"))
		response.Handle(c, details, err)
	}
}

// ListOrdersHandler handles GET requests for the order listing
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.ListOrders()
		response.Handle(c, orders, err)
	}
}

// PayPalWebhookHandler handles provider capture-completed notifications. The
// provider retries on non-2xx, so unknown references are acknowledged and
// logged rather than erred.
func (h *GinHandlers) PayPalWebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var event struct {
			EventType string `json:"event_type"`
			Resource  struct {
				SupplementaryData struct {
					RelatedIDs struct {
						OrderID string `json:"order_id"`
					} `json:"related_ids"`
				} `json:"supplementary_data"`
			} `json:"resource"`
		}

		if err := json.NewDecoder(c.Request.Body).Decode(&event); err != nil {
			response.BadRequest(c, "invalid webhook payload")
			return
		}

		if event.EventType != "PAYMENT.CAPTURE.COMPLETED" {
			response.Success(c, gin.H{"status": "ignored"})
			return
		}

		reference := event.Resource.SupplementaryData.RelatedIDs.OrderID
		if err := h.service.CompleteFromWebhook(c.Request.Context(), reference); err != nil {
			log.Warn().Err(err).Str("reference", reference).Msg("webhook processing failed")
		}

		response.Success(c, gin.H{"status": "ok"})
	}
}
