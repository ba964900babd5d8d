package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pleyazul/oraculo-api/internal/types"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeMissingField        = "MISSING_FIELD"
	ErrCodeInvalidSpread       = "INVALID_SPREAD"
	ErrCodeOrderNotFound       = "ORDER_NOT_FOUND"
	ErrCodeReadingNotFound     = "READING_NOT_FOUND"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodePaymentNotConfirmed = "PAYMENT_NOT_CONFIRMED"
	ErrCodeGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	ErrCodeInsufficientCatalog = "INSUFFICIENT_CATALOG"
	ErrCodeTestModeOnly        = "TEST_MODE_ONLY"
)

// Handle maps a service error to its typed response, or sends the data when
// there is no error.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, types.ErrMissingField):
		fail(c, http.StatusBadRequest, ErrCodeMissingField, err.Error())
	case errors.Is(err, types.ErrInvalidSpread):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSpread, err.Error())
	case errors.Is(err, types.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeOrderNotFound, err.Error())
	case errors.Is(err, types.ErrReadingNotFound):
		fail(c, http.StatusNotFound, ErrCodeReadingNotFound, err.Error())
	case errors.Is(err, types.ErrInvalidState):
		fail(c, http.StatusConflict, ErrCodeInvalidState, err.Error())
	case errors.Is(err, types.ErrPaymentNotConfirmed):
		fail(c, http.StatusConflict, ErrCodePaymentNotConfirmed, err.Error())
	case errors.Is(err, types.ErrGatewayUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeGatewayUnavailable, err.Error())
	case errors.Is(err, types.ErrInsufficientCatalog):
		fail(c, http.StatusInternalServerError, ErrCodeInsufficientCatalog, err.Error())
	case errors.Is(err, types.ErrTestModeOnly):
		fail(c, http.StatusForbidden, ErrCodeTestModeOnly, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
