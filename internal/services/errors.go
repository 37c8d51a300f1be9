package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/orderdesk/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the order cannot take the requested action in its current status.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict indicates concurrent modification or duplicates.
	ErrOrderConflict = errors.New("order: conflict")

	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryNotFound indicates the item or size is not stocked.
	ErrInventoryNotFound = errors.New("inventory: not found")
	// ErrInventoryInsufficientStock indicates the requested quantity exceeds availability.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryConflict indicates an item with the same code already exists.
	ErrInventoryConflict = errors.New("inventory: conflict")

	// ErrPersistenceUnavailable indicates the backing store rejected or timed out the call.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// ValidationError reports per-field validation failures. It matches
// ErrOrderInvalidInput or ErrInventoryInvalidInput through errors.Is.
type ValidationError struct {
	Kind   error
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, e.Fields[key])
	}
	kind := e.Kind
	if kind == nil {
		kind = ErrOrderInvalidInput
	}
	return fmt.Sprintf("%v: %s", kind, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	if e == nil || e.Kind == nil {
		return ErrOrderInvalidInput
	}
	return e.Kind
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StockError consolidates a rejected stock plan into the first failing movement.
type StockError struct {
	Step      string
	Code      string
	Size      string
	Requested int
	Available int
	Err       error
}

func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	target := e.Code
	if e.Size != "" {
		target = e.Code + "/" + e.Size
	}
	if e.Step != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Step, e.Err, target)
	}
	return fmt.Sprintf("%v (%s)", e.Err, target)
}

func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// mapInventoryError converts repository failures into service sentinels.
// Stock failures become a *StockError naming step.
func mapInventoryError(step string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		var kind error
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			kind = ErrInventoryInsufficientStock
		case repositories.InventoryErrorStockNotFound, repositories.InventoryErrorSizeNotFound:
			kind = ErrInventoryNotFound
		case repositories.InventoryErrorInvalidMovement:
			kind = ErrInventoryInvalidInput
		case repositories.InventoryErrorDuplicate:
			return fmt.Errorf("%w: %s", ErrInventoryConflict, invErr.Message)
		default:
			return fmt.Errorf("%s: %w", step, err)
		}
		if invErr.Item == "" {
			return fmt.Errorf("%w: %s", kind, invErr.Message)
		}
		return &StockError{
			Step:      step,
			Code:      invErr.Item,
			Size:      invErr.Size,
			Requested: invErr.Requested,
			Available: invErr.Available,
			Err:       fmt.Errorf("%w: %s", kind, invErr.Message),
		}
	}
	return mapPersistenceError(err, ErrInventoryNotFound, ErrInventoryConflict)
}

func mapPersistenceError(err error, notFound, conflict error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
		}
	}
	return err
}

// unwrapTxError strips transaction wrapping from failures raised by the
// workflow itself so callers see the consolidated error.
func unwrapTxError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return stockErr
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}
	for inner := errors.Unwrap(err); inner != nil; inner = errors.Unwrap(inner) {
		for _, sentinel := range serviceSentinels {
			if errors.Is(inner, sentinel) {
				return inner
			}
		}
		if _, ok := inner.(repositories.RepositoryError); !ok {
			break
		}
	}
	return err
}

var serviceSentinels = []error{
	ErrOrderInvalidInput,
	ErrOrderNotFound,
	ErrOrderInvalidState,
	ErrOrderConflict,
	ErrInventoryInvalidInput,
	ErrInventoryNotFound,
	ErrInventoryInsufficientStock,
	ErrInventoryConflict,
	ErrPersistenceUnavailable,
}
