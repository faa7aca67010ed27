package orders

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Failure kinds callers branch on with errors.Is.
var (
	ErrValidationFailed    = errors.New("validation failed")
	ErrProductNotFound     = errors.New("product not found")
	ErrPromotionNotFound   = errors.New("promotion not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrGenerationExhausted = errors.New("booking id generation exhausted")
	ErrPersistenceFailed   = errors.New("order persistence failed")
	ErrCompensationFailed  = errors.New("stock compensation failed")
	ErrOrderNotFound       = errors.New("order not found")

	// Uniqueness violations reported by Tx.InsertOrder.
	ErrDuplicateBookingID = errors.New("booking id already taken")
	ErrDuplicateRequest   = errors.New("external id already placed")
)

// ValidationError lists the offending fields; it matches ErrValidationFailed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

type InsufficientStockError struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: required %d, available %d",
		e.ProductID, e.Required, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// CompensationError means a reservation could not be rolled back after the
// order insert failed. Stock may be lost; it must reach an operator.
type CompensationError struct {
	ProductID   string
	Quantity    int
	Cause       error
	RollbackErr error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("stock compensation failed for product %s (qty %d): persist: %v; rollback: %v",
		e.ProductID, e.Quantity, e.Cause, e.RollbackErr)
}

func (e *CompensationError) Unwrap() []error {
	return []error{ErrCompensationFailed, ErrPersistenceFailed, e.Cause, e.RollbackErr}
}
