package fault

import (
	"fmt"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

type wrappedStock struct{}

func (wrappedStock) Error() string { return "only 2 left" }
func (wrappedStock) Unwrap() error { return ErrInsufficientStock }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "sentinel", err: ErrPaymentExists, want: KindPaymentExists},
		{name: "wrapped by go-faster", err: errors.Wrap(ErrIllegalTransition, "cancel order"), want: KindIllegalTransition},
		{name: "wrapped by fmt", err: fmt.Errorf("place: %w", ErrInvalidOrderItem), want: KindInvalidOrderItem},
		{name: "typed error unwrapping to sentinel", err: wrappedStock{}, want: KindInsufficientStock},
		{name: "validation helper", err: Validationf("city is required"), want: KindValidation},
		{name: "not found helper", err: NotFoundf("order %s", "o1"), want: KindNotFound},
		{name: "unknown error", err: errors.New("connection reset"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHelpersKeepMessage(t *testing.T) {
	err := NotFoundf("courier %s", "c-9")
	assert.Equal(t, "courier c-9: not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
}
