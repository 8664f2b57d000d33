// Package fulfillment owns the order lifecycle: which status changes are
// legal and what each one does to stock.
package fulfillment

import (
	"fmt"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
)

var transitions = map[order.Status][]order.Status{
	order.StatusPending:   {order.StatusConfirmed, order.StatusCancelled},
	order.StatusConfirmed: {order.StatusShipped, order.StatusCancelled},
	order.StatusShipped:   {order.StatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
// Delivered and cancelled orders are terminal.
func CanTransition(from, to order.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	OrderID string
	From    order.Status
	To      order.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
}

// Unwrap classifies the error as fault.ErrIllegalTransition.
func (e *TransitionError) Unwrap() error { return fault.ErrIllegalTransition }
