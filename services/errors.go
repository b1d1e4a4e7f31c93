package services

import "strings"

// ValidationError is bad input caught before any mutation is attempted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErr(msg string) error { return &ValidationError{Msg: msg} }

// NotFoundError names the missing records so staff can see which ids in a
// batch were stale.
type NotFoundError struct {
	Kind string
	IDs  []string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + strings.Join(e.IDs, ", ")
}

// StockError is returned when an order asks for more units than remain.
type StockError struct {
	Item string
}

func (e *StockError) Error() string { return "insufficient stock for " + e.Item }
