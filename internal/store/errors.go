package store

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrRetentionWindow   = errors.New("not found or not old enough")
	ErrStorage           = errors.New("storage failure")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d %s", e.Entity, e.ID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientStockError names the product whose available stock could not
// cover the requested quantity.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s for product %d (%s): requested %d, available %d",
		ErrInsufficientStock, e.ProductID, e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type RetentionWindowError struct {
	ID int64
}

func (e *RetentionWindowError) Error() string {
	return fmt.Sprintf("history record %d %s", e.ID, ErrRetentionWindow)
}

func (e *RetentionWindowError) Is(target error) bool { return target == ErrRetentionWindow }

// Storage wraps a driver error so callers can tell it apart from domain errors.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func NonNegative(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return Invalid(field, "must not be negative")
	}
	return nil
}
