package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/storage/memory"
)

func newService(t *testing.T) *payment.Service {
	t.Helper()
	store := memory.New()
	now := time.Now().UTC()
	require.NoError(t, store.Orders().Create(context.Background(), &order.Order{
		ID:         "o1",
		Number:     "GM-2026-000001",
		CustomerID: "c1",
		Items: []order.Item{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("24.50"), Subtotal: decimal.RequireFromString("49.00")},
		},
		Subtotal:  decimal.RequireFromString("49.00"),
		Discount:  decimal.RequireFromString("4.00"),
		Total:     decimal.RequireFromString("45.00"),
		Currency:  "GHS",
		Status:    order.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	return payment.NewService(store, store.Orders(), store.Payments())
}

func TestInitiate(t *testing.T) {
	svc := newService(t)

	p, err := svc.Initiate(context.Background(), payment.InitiateRequest{
		OrderID: "o1",
		Method:  "MTN Mobile Money",
		Fee:     decimal.RequireFromString("0.45"),
	})
	require.NoError(t, err)

	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, payment.MethodMTNMobileMoney, p.Method)
	assert.True(t, decimal.RequireFromString("45.00").Equal(p.Amount), "amount %s", p.Amount)
	assert.Equal(t, "GHS", p.Currency)

	byOrder, err := svc.GetByOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byOrder.ID)
}

func TestInitiate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      payment.InitiateRequest
		wantKind fault.Kind
	}{
		{name: "unknown order", req: payment.InitiateRequest{OrderID: "nope", Method: "bank_transfer"}, wantKind: fault.KindNotFound},
		{name: "unknown method", req: payment.InitiateRequest{OrderID: "o1", Method: "bitcoin"}, wantKind: fault.KindInvalidMethod},
		{name: "negative fee", req: payment.InitiateRequest{OrderID: "o1", Method: "credit_card", Fee: decimal.NewFromInt(-1)}, wantKind: fault.KindValidation},
		{name: "sub-cent fee", req: payment.InitiateRequest{OrderID: "o1", Method: "credit_card", Fee: decimal.RequireFromString("0.125")}, wantKind: fault.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t)

			_, err := svc.Initiate(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, fault.KindOf(err))
		})
	}
}

func TestInitiate_OnePerOrder(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Initiate(ctx, payment.InitiateRequest{OrderID: "o1", Method: "vodafone_cash"})
	require.NoError(t, err)

	_, err = svc.Initiate(ctx, payment.InitiateRequest{OrderID: "o1", Method: "vodafone_cash"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrPaymentExists))
}

func TestInitiate_ConcurrentOnePerOrder(t *testing.T) {
	svc := newService(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		exists  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Initiate(context.Background(), payment.InitiateRequest{OrderID: "o1", Method: "cash_on_delivery"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, fault.ErrPaymentExists):
				exists++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 9, exists)
}

func TestUpdateStatus(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p, err := svc.Initiate(ctx, payment.InitiateRequest{OrderID: "o1", Method: "bank_transfer", TransactionReference: "ref-1"})
	require.NoError(t, err)

	ref := "ref-2"
	updated, err := svc.UpdateStatus(ctx, p.ID, "completed", &ref)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, updated.Status)
	assert.Equal(t, "ref-2", updated.TransactionReference)

	// Membership is the only rule: completed may go back to pending.
	updated, err = svc.UpdateStatus(ctx, p.ID, "pending", nil)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, updated.Status)
	assert.Equal(t, "ref-2", updated.TransactionReference)

	_, err = svc.UpdateStatus(ctx, p.ID, "settled", nil)
	assert.Equal(t, fault.KindInvalidStatus, fault.KindOf(err))

	_, err = svc.UpdateStatus(ctx, "missing", "failed", nil)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestCancel(t *testing.T) {
	tests := []struct {
		from     string
		wantKind fault.Kind
	}{
		{from: "pending"},
		{from: "failed"},
		{from: "completed", wantKind: fault.KindIllegalTransition},
		{from: "refunded", wantKind: fault.KindIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			svc := newService(t)
			ctx := context.Background()

			p, err := svc.Initiate(ctx, payment.InitiateRequest{OrderID: "o1", Method: "credit_card"})
			require.NoError(t, err)
			_, err = svc.UpdateStatus(ctx, p.ID, tt.from, nil)
			require.NoError(t, err)

			cancelled, err := svc.Cancel(ctx, p.ID)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, fault.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, payment.StatusFailed, cancelled.Status)
		})
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		raw  string
		want payment.Method
	}{
		{"mtn_mobile_money", payment.MethodMTNMobileMoney},
		{"Vodafone Cash", payment.MethodVodafoneCash},
		{"AirtelTigo Money", payment.MethodAirtelTigoMoney},
		{"Bank Transfer", payment.MethodBankTransfer},
		{"Cash on Delivery", payment.MethodCashOnDelivery},
		{"credit_card", payment.MethodCreditCard},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := payment.ParseMethod(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := payment.ParseMethod("paypal")
	assert.True(t, errors.Is(err, fault.ErrInvalidMethod))
}
