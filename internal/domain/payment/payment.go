// Package payment records payments against orders. Confirmation is a status
// set by an external actor; no gateway is contacted.
package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/gmarket/internal/domain/fault"
)

// Method is an accepted payment method.
type Method string

const (
	MethodMTNMobileMoney  Method = "mtn_mobile_money"
	MethodVodafoneCash    Method = "vodafone_cash"
	MethodAirtelTigoMoney Method = "airteltigo_money"
	MethodBankTransfer    Method = "bank_transfer"
	MethodCashOnDelivery  Method = "cash_on_delivery"
	MethodCreditCard      Method = "credit_card"
)

var methodLabels = map[string]Method{
	"mtn mobile money": MethodMTNMobileMoney,
	"vodafone cash":    MethodVodafoneCash,
	"airteltigo money": MethodAirtelTigoMoney,
	"bank transfer":    MethodBankTransfer,
	"cash on delivery": MethodCashOnDelivery,
	"credit card":      MethodCreditCard,
}

// ParseMethod accepts a method code or its display label ("MTN Mobile Money").
func ParseMethod(raw string) (Method, error) {
	switch m := Method(raw); m {
	case MethodMTNMobileMoney, MethodVodafoneCash, MethodAirtelTigoMoney,
		MethodBankTransfer, MethodCashOnDelivery, MethodCreditCard:
		return m, nil
	}
	if m, ok := methodLabels[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return m, nil
	}
	return "", errors.Wrapf(fault.ErrInvalidMethod, "payment method %q", raw)
}

// Status is the state of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// ParseStatus validates raw as a payment status.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return s, nil
	default:
		return "", errors.Wrapf(fault.ErrInvalidStatus, "payment status %q", raw)
	}
}

// Payment is the single payment record of an order. Amount is copied from the
// order total at creation and never recomputed.
type Payment struct {
	ID                   string
	OrderID              string
	Amount               decimal.Decimal
	Fee                  decimal.Decimal
	Currency             string
	Method               Method
	Status               Status
	TransactionReference string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Repository defines persistence operations for payments.
//
// Create returns an error wrapping fault.ErrPaymentExists when the order
// already has a payment; the store enforces this with a unique constraint.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetForUpdate(ctx context.Context, id string) (*Payment, error)
	GetByOrder(ctx context.Context, orderID string) (*Payment, error)
	UpdateStatus(ctx context.Context, id string, status Status, reference string, at time.Time) error
}
