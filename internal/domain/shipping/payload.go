package shipping

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ArrangePayload is the shipping.arrange command payload.
type ArrangePayload struct {
	OrderID         string `json:"order_id"`
	ProductID       string `json:"product_id"`
	Quantity        int    `json:"quantity"`
	ShippingAddress string `json:"shipping_address"`
}

// ArrangedPayload is the shipping.arranged event payload.
type ArrangedPayload struct {
	OrderID         string `json:"order_id"`
	ProductID       string `json:"product_id"`
	Quantity        int    `json:"quantity"`
	ShippingAddress string `json:"shipping_address"`
	Status          Status `json:"status"`
}

// FailedPayload is the shipping.failed event payload.
type FailedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
	Status  Status `json:"status"`
}

// ArrangedFromArrange maps the accepted arrange command onto its fact.
func ArrangedFromArrange(payload ArrangePayload) ArrangedPayload {
	return ArrangedPayload{
		OrderID:         strings.TrimSpace(payload.OrderID),
		ProductID:       strings.TrimSpace(payload.ProductID),
		Quantity:        payload.Quantity,
		ShippingAddress: strings.TrimSpace(payload.ShippingAddress),
		Status:          StatusArranged,
	}
}

// ValidateArrangePayload checks shipping.arrange payload invariants.
func ValidateArrangePayload(raw json.RawMessage) error {
	var payload ArrangePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return fmt.Errorf("order_id is required")
	}
	if payload.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	return nil
}
