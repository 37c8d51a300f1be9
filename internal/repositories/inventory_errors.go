package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for inventory operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates a movement would drive a count below zero.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorStockNotFound indicates no item exists for the code.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
	// InventoryErrorSizeNotFound indicates the item has no stock entry for the size.
	InventoryErrorSizeNotFound InventoryErrorCode = "inventory_size_not_found"
	// InventoryErrorInvalidMovement indicates a malformed movement (empty code, zero delta, missing size).
	InventoryErrorInvalidMovement InventoryErrorCode = "inventory_invalid_movement"
	// InventoryErrorDuplicate indicates an item with the same code already exists.
	InventoryErrorDuplicate InventoryErrorCode = "inventory_duplicate"
)

// InventoryError wraps inventory-specific failures with machine readable codes
// and, for stock failures, the offending item and size.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	Message   string
	Item      string
	Size      string
	Available int
	Requested int
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func (e *InventoryError) forLine(item, size string) *InventoryError {
	e.Item = item
	e.Size = size
	return e
}
