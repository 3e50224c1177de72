// Package errors provides structured error handling with machine-readable codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Order errors
	CodeOrderAlreadyExists     Code = "ORDER_ALREADY_EXISTS"
	CodeOrderNotFound          Code = "ORDER_NOT_FOUND"
	CodeOrderInvalidQuantity   Code = "ORDER_INVALID_QUANTITY"
	CodeOrderInvalidAmount     Code = "ORDER_INVALID_AMOUNT"
	CodeOrderCustomerMissing   Code = "ORDER_CUSTOMER_MISSING"
	CodeOrderProductMissing    Code = "ORDER_PRODUCT_MISSING"
	CodeOrderInvalidTransition Code = "ORDER_INVALID_STATUS_TRANSITION"

	// Inventory errors
	CodeInventoryProductExists   Code = "INVENTORY_PRODUCT_EXISTS"
	CodeInventoryProductUnknown  Code = "INVENTORY_PRODUCT_UNKNOWN"
	CodeInventoryInvalidQuantity Code = "INVENTORY_INVALID_QUANTITY"
	CodeInventoryInvalidPrice    Code = "INVENTORY_INVALID_PRICE"
	CodeInventoryNotReserved     Code = "INVENTORY_NOT_RESERVED"

	// Payment errors
	CodePaymentInvalidAmount Code = "PAYMENT_INVALID_AMOUNT"
	CodePaymentOrderMissing  Code = "PAYMENT_ORDER_MISSING"
	CodePaymentNotProcessed  Code = "PAYMENT_NOT_PROCESSED"

	// Shipping errors
	CodeShippingOrderMissing    Code = "SHIPPING_ORDER_MISSING"
	CodeShippingAddressMissing  Code = "SHIPPING_ADDRESS_MISSING"
	CodeShippingAlreadyArranged Code = "SHIPPING_ALREADY_ARRANGED"

	// Command errors
	CodeCommandRejected    Code = "COMMAND_REJECTED"
	CodeCommandTypeUnknown Code = "COMMAND_TYPE_UNKNOWN"

	// Saga errors
	CodeSagaInstanceEnded Code = "SAGA_INSTANCE_ENDED"

	// Storage errors
	CodeNotFound            Code = "NOT_FOUND"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeOrderInvalidQuantity,
		CodeOrderInvalidAmount,
		CodeOrderCustomerMissing,
		CodeOrderProductMissing,
		CodeInventoryInvalidQuantity,
		CodeInventoryInvalidPrice,
		CodePaymentInvalidAmount,
		CodePaymentOrderMissing,
		CodeShippingOrderMissing,
		CodeShippingAddressMissing,
		CodeCommandTypeUnknown:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeOrderInvalidTransition,
		CodeInventoryNotReserved,
		CodePaymentNotProcessed,
		CodeShippingAlreadyArranged,
		CodeCommandRejected,
		CodeSagaInstanceEnded:
		return codes.FailedPrecondition

	// AlreadyExists - duplicate creation
	case CodeOrderAlreadyExists,
		CodeInventoryProductExists:
		return codes.AlreadyExists

	// NotFound - missing entities
	case CodeOrderNotFound,
		CodeInventoryProductUnknown,
		CodeNotFound:
		return codes.NotFound

	// Aborted - optimistic concurrency losers
	case CodeConcurrencyConflict:
		return codes.Aborted

	default:
		return codes.Internal
	}
}
