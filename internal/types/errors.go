package types

import "errors"

// Service error taxonomy. Validation and state errors are surfaced to the
// caller as client errors; gateway unavailability may be retried; an
// insufficient catalog is a configuration defect and is surfaced as an
// internal error.
var (
	ErrMissingField        = errors.New("email and spread_id are required")
	ErrInvalidSpread       = errors.New("invalid spread_id")
	ErrOrderNotFound       = errors.New("order not found")
	ErrReadingNotFound     = errors.New("reading not found")
	ErrInvalidState        = errors.New("order is not awaiting payment")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrInsufficientCatalog = errors.New("catalog has fewer items than the spread requires")
	ErrTestModeOnly        = errors.New("mock payment only available in test mode")
)
