package order

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CreatePayload is the order.create command payload.
type CreatePayload struct {
	CustomerID      string  `json:"customer_id"`
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	Amount          float64 `json:"amount"`
	ShippingAddress string  `json:"shipping_address"`
}

// CreatedPayload is the order.created event payload.
type CreatedPayload struct {
	CustomerID      string  `json:"customer_id"`
	ProductID       string  `json:"product_id"`
	Quantity        int     `json:"quantity"`
	Amount          float64 `json:"amount"`
	ShippingAddress string  `json:"shipping_address"`
	Status          Status  `json:"status"`
}

// ConfirmedPayload is the order.confirmed event payload.
type ConfirmedPayload struct {
	Status Status `json:"status"`
}

// CancelPayload is the order.cancel command payload.
type CancelPayload struct {
	Reason string `json:"reason"`
}

// CancelledPayload is the order.cancelled event payload.
type CancelledPayload struct {
	Reason string `json:"reason"`
	Status Status `json:"status"`
}

// CreatedFromCreate maps the accepted create command onto the created fact.
// The mapping is total: every event field is populated from the command or
// from the lifecycle constant.
func CreatedFromCreate(payload CreatePayload) CreatedPayload {
	return CreatedPayload{
		CustomerID:      strings.TrimSpace(payload.CustomerID),
		ProductID:       strings.TrimSpace(payload.ProductID),
		Quantity:        payload.Quantity,
		Amount:          payload.Amount,
		ShippingAddress: strings.TrimSpace(payload.ShippingAddress),
		Status:          StatusCreated,
	}
}

// CancelledFromCancel maps the accepted cancel command onto the cancelled fact.
func CancelledFromCancel(payload CancelPayload) CancelledPayload {
	return CancelledPayload{
		Reason: strings.TrimSpace(payload.Reason),
		Status: StatusCancelled,
	}
}

// ValidateCreatePayload checks order.create payload invariants.
func ValidateCreatePayload(raw json.RawMessage) error {
	var payload CreatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.CustomerID) == "" {
		return fmt.Errorf("customer_id is required")
	}
	if strings.TrimSpace(payload.ProductID) == "" {
		return fmt.Errorf("product_id is required")
	}
	if payload.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if payload.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}
