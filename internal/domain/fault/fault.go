// Package fault defines the failure kinds shared by the fulfillment domain.
//
// Every error returned by a domain service either is, or wraps, exactly one of
// the sentinels below. Richer error types (see inventory.InsufficientStockError)
// unwrap to their sentinel so callers can branch with errors.Is.
package fault

import (
	"github.com/go-faster/errors"
)

var (
	// ErrNotFound reports a missing product, order, cart line, courier,
	// payment or shipment.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock reports a quantity larger than the available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidOrderItem reports a non-positive quantity or unit price.
	ErrInvalidOrderItem = errors.New("invalid order item")
	// ErrPaymentExists reports a second payment for the same order.
	ErrPaymentExists = errors.New("payment already exists for order")
	// ErrShipmentExists reports a second shipment for the same order.
	ErrShipmentExists = errors.New("shipment already exists for order")
	// ErrInvalidMethod reports a payment method outside the enumerated set.
	ErrInvalidMethod = errors.New("invalid payment method")
	// ErrInvalidStatus reports a status value outside the enumerated set.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrIllegalTransition reports a status change forbidden from the current state.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("validation failed")
)

// Kind classifies an error by the sentinel it wraps.
type Kind string

// Known kinds. KindInternal covers everything that wraps no sentinel, such as
// store outages.
const (
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidOrderItem  Kind = "invalid_order_item"
	KindPaymentExists     Kind = "payment_exists"
	KindShipmentExists    Kind = "shipment_exists"
	KindInvalidMethod     Kind = "invalid_method"
	KindInvalidStatus     Kind = "invalid_status"
	KindIllegalTransition Kind = "illegal_transition"
	KindValidation        Kind = "validation"
	KindInternal          Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrInvalidOrderItem, KindInvalidOrderItem},
	{ErrPaymentExists, KindPaymentExists},
	{ErrShipmentExists, KindShipmentExists},
	{ErrInvalidMethod, KindInvalidMethod},
	{ErrInvalidStatus, KindInvalidStatus},
	{ErrIllegalTransition, KindIllegalTransition},
	{ErrValidation, KindValidation},
}

// KindOf returns the kind of err. A nil error has an empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Validationf returns an ErrValidation wrapped with a formatted message.
func Validationf(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// NotFoundf returns an ErrNotFound wrapped with a formatted message.
func NotFoundf(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}
