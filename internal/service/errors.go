package service

import (
	"errors"
	"fmt"

	"github.com/fjod/coffee-store/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrOutOfStock         = errors.New("out of stock")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrGateway            = errors.New("payment gateway error")
	ErrSignatureInvalid   = errors.New("webhook signature invalid")
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

type OutOfStockError struct {
	VarietyID int64
	Name      string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("variety %d", e.VarietyID)
	}
	return fmt.Sprintf("%s is out of stock: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

type InvalidTransitionError struct {
	TransactionID string
	Current       domain.Status
	Requested     domain.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transaction %s: cannot move from %s to %s", e.TransactionID, e.Current, e.Requested)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }
