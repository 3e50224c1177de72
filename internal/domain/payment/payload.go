package payment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProcessPayload is the payment.process command payload.
type ProcessPayload struct {
	OrderID         string  `json:"order_id"`
	CustomerID      string  `json:"customer_id"`
	Amount          float64 `json:"amount"`
	ShippingAddress string  `json:"shipping_address"`
}

// ProcessedPayload is the payment.processed event payload.
type ProcessedPayload struct {
	OrderID         string  `json:"order_id"`
	CustomerID      string  `json:"customer_id"`
	Amount          float64 `json:"amount"`
	ShippingAddress string  `json:"shipping_address"`
	Status          Status  `json:"status"`
}

// FailedPayload is the payment.failed event payload.
type FailedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
	Status  Status `json:"status"`
}

// RefundPayload is the payment.refund command payload.
type RefundPayload struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

// RefundedPayload is the payment.refunded event payload.
type RefundedPayload struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
	Status  Status  `json:"status"`
}

// ProcessedFromProcess maps the accepted process command onto its fact.
func ProcessedFromProcess(payload ProcessPayload) ProcessedPayload {
	return ProcessedPayload{
		OrderID:         strings.TrimSpace(payload.OrderID),
		CustomerID:      strings.TrimSpace(payload.CustomerID),
		Amount:          payload.Amount,
		ShippingAddress: strings.TrimSpace(payload.ShippingAddress),
		Status:          StatusProcessed,
	}
}

// ValidateProcessPayload checks payment.process payload invariants.
func ValidateProcessPayload(raw json.RawMessage) error {
	var payload ProcessPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return fmt.Errorf("order_id is required")
	}
	if payload.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// ValidateRefundPayload checks payment.refund payload invariants.
func ValidateRefundPayload(raw json.RawMessage) error {
	var payload RefundPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return fmt.Errorf("order_id is required")
	}
	return nil
}
