package inventory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AddProductPayload is the inventory.add_product command payload.
type AddProductPayload struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ProductAddedPayload is the inventory.product_added event payload.
type ProductAddedPayload struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ReservePayload is the inventory.reserve command payload.
type ReservePayload struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Quantity   int    `json:"quantity"`
}

// ReservedPayload is the inventory.reserved event payload.
type ReservedPayload struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Quantity   int    `json:"quantity"`
}

// ReservationFailedPayload is the inventory.reservation_failed event payload.
type ReservationFailedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// ReleasePayload is the inventory.release command payload.
type ReleasePayload struct {
	OrderID  string `json:"order_id"`
	Quantity int    `json:"quantity"`
}

// ReleasedPayload is the inventory.released event payload.
type ReleasedPayload struct {
	OrderID  string `json:"order_id"`
	Quantity int    `json:"quantity"`
}

// ProductAddedFromAdd maps the accepted add_product command onto its fact.
func ProductAddedFromAdd(payload AddProductPayload) ProductAddedPayload {
	return ProductAddedPayload{
		Name:     strings.TrimSpace(payload.Name),
		Price:    payload.Price,
		Quantity: payload.Quantity,
	}
}

// ReservedFromReserve maps the accepted reserve command onto its fact.
func ReservedFromReserve(payload ReservePayload) ReservedPayload {
	return ReservedPayload{
		OrderID:    strings.TrimSpace(payload.OrderID),
		CustomerID: strings.TrimSpace(payload.CustomerID),
		Quantity:   payload.Quantity,
	}
}

// ValidateAddProductPayload checks inventory.add_product payload invariants.
func ValidateAddProductPayload(raw json.RawMessage) error {
	var payload AddProductPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if payload.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if payload.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative")
	}
	return nil
}

// ValidateReservePayload checks inventory.reserve payload invariants.
func ValidateReservePayload(raw json.RawMessage) error {
	var payload ReservePayload
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

// ValidateReleasePayload checks inventory.release payload invariants.
func ValidateReleasePayload(raw json.RawMessage) error {
	var payload ReleasePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		return fmt.Errorf("order_id is required")
	}
	return nil
}
