package shipping_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/shipping"
	"github.com/xenking/gmarket/internal/storage/memory"
)

func newService(t *testing.T, orderIDs ...string) *shipping.Service {
	t.Helper()
	store := memory.New()
	now := time.Now().UTC()
	for i, id := range orderIDs {
		require.NoError(t, store.Orders().Create(context.Background(), &order.Order{
			ID:         id,
			Number:     order.FormatNumber(2026, int64(i+1)),
			CustomerID: "c1",
			Subtotal:   decimal.NewFromInt(10),
			Total:      decimal.NewFromInt(10),
			Currency:   "GHS",
			Status:     order.StatusConfirmed,
			CreatedAt:  now,
			UpdatedAt:  now,
		}))
	}
	return shipping.NewService(store, store.Orders(), store.Shipments(), store.Shipments())
}

func newCourier(t *testing.T, svc *shipping.Service, phone string) *shipping.Courier {
	t.Helper()
	c, err := svc.CreateCourier(context.Background(), shipping.CourierRequest{
		Name:   "Kofi Express",
		Phone:  phone,
		Email:  "Dispatch+" + phone + "@Kofi.example",
		Region: "greater accra",
	})
	require.NoError(t, err)
	return c
}

func shipmentFor(orderID, courierID string) shipping.CreateRequest {
	return shipping.CreateRequest{
		OrderID:   orderID,
		CourierID: courierID,
		Address:   "12 Oxford Street",
		City:      "Accra",
		Region:    "Greater Accra",
	}
}

func TestCreateShipment(t *testing.T) {
	svc := newService(t, "o1")
	c := newCourier(t, svc, "0240000001")

	sh, err := svc.CreateShipment(context.Background(), shipmentFor("o1", c.ID))
	require.NoError(t, err)
	assert.Equal(t, shipping.StatusPending, sh.Status)
	assert.False(t, sh.ShippingDate.IsZero())
	assert.Nil(t, sh.DeliveryDate)

	_, err = svc.CreateShipment(context.Background(), shipmentFor("o1", c.ID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrShipmentExists))
}

func TestCreateShipment_Errors(t *testing.T) {
	svc := newService(t, "o1", "o2")
	ctx := context.Background()
	active := newCourier(t, svc, "0240000001")
	retired := newCourier(t, svc, "0240000002")
	_, err := svc.DeactivateCourier(ctx, retired.ID)
	require.NoError(t, err)

	missingCity := shipmentFor("o1", active.ID)
	missingCity.City = " "

	tests := []struct {
		name     string
		req      shipping.CreateRequest
		wantKind fault.Kind
	}{
		{name: "missing field", req: missingCity, wantKind: fault.KindValidation},
		{name: "unknown order", req: shipmentFor("nope", active.ID), wantKind: fault.KindNotFound},
		{name: "unknown courier", req: shipmentFor("o1", "nope"), wantKind: fault.KindNotFound},
		{name: "inactive courier", req: shipmentFor("o2", retired.ID), wantKind: fault.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateShipment(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, fault.KindOf(err))
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	svc := newService(t, "o1")
	ctx := context.Background()
	c := newCourier(t, svc, "0240000001")
	sh, err := svc.CreateShipment(ctx, shipmentFor("o1", c.ID))
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, sh.ID, "in_transit", nil)
	require.NoError(t, err)
	assert.Equal(t, shipping.StatusInTransit, updated.Status)
	assert.Nil(t, updated.DeliveryDate)

	updated, err = svc.UpdateStatus(ctx, sh.ID, "delivered", nil)
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveryDate, "delivered without a date is stamped")

	when := time.Date(2026, time.April, 2, 15, 0, 0, 0, time.UTC)
	updated, err = svc.UpdateStatus(ctx, sh.ID, "delivered", &when)
	require.NoError(t, err)
	assert.True(t, when.Equal(*updated.DeliveryDate))

	_, err = svc.UpdateStatus(ctx, sh.ID, "lost", nil)
	assert.Equal(t, fault.KindInvalidStatus, fault.KindOf(err))
}

func TestCancel(t *testing.T) {
	svc := newService(t, "o1")
	ctx := context.Background()
	c := newCourier(t, svc, "0240000001")
	sh, err := svc.CreateShipment(ctx, shipmentFor("o1", c.ID))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipping.StatusFailed, cancelled.Status)

	_, err = svc.UpdateStatus(ctx, sh.ID, "delivered", nil)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, sh.ID)
	assert.Equal(t, fault.KindIllegalTransition, fault.KindOf(err))
}

func TestCreateCourier(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	c := newCourier(t, svc, "0240000001")
	assert.Equal(t, "Greater Accra", c.Region)
	assert.Equal(t, "dispatch+0240000001@kofi.example", c.Email)
	assert.True(t, c.IsActive)

	tests := []struct {
		name string
		req  shipping.CourierRequest
	}{
		{name: "missing name", req: shipping.CourierRequest{Phone: "0240000009", Region: "Volta"}},
		{name: "bad region", req: shipping.CourierRequest{Name: "A", Phone: "0240000009", Region: "Lagos"}},
		{name: "duplicate phone", req: shipping.CourierRequest{Name: "B", Phone: "0240000001", Region: "Volta"}},
		{name: "duplicate email", req: shipping.CourierRequest{Name: "C", Phone: "0240000010", Email: "DISPATCH+0240000001@kofi.example", Region: "Oti"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateCourier(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, fault.KindValidation, fault.KindOf(err))
		})
	}
}

func TestDeactivateCourier(t *testing.T) {
	svc := newService(t, "o1")
	ctx := context.Background()
	c := newCourier(t, svc, "0240000001")
	sh, err := svc.CreateShipment(ctx, shipmentFor("o1", c.ID))
	require.NoError(t, err)

	for _, status := range []string{"pending", "shipped", "in_transit"} {
		_, err := svc.UpdateStatus(ctx, sh.ID, status, nil)
		require.NoError(t, err)

		_, err = svc.DeactivateCourier(ctx, c.ID)
		assert.Equal(t, fault.KindIllegalTransition, fault.KindOf(err), "status %s", status)
	}

	_, err = svc.UpdateStatus(ctx, sh.ID, "delivered", nil)
	require.NoError(t, err)

	retired, err := svc.DeactivateCourier(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, retired.IsActive)

	got, err := svc.GetCourier(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestDeactivateCourier_FailedShipments(t *testing.T) {
	svc := newService(t, "o1", "o2")
	ctx := context.Background()
	c := newCourier(t, svc, "0240000001")

	for _, orderID := range []string{"o1", "o2"} {
		sh, err := svc.CreateShipment(ctx, shipmentFor(orderID, c.ID))
		require.NoError(t, err)
		failed, err := svc.Cancel(ctx, sh.ID)
		require.NoError(t, err)
		require.Equal(t, shipping.StatusFailed, failed.Status)
	}

	retired, err := svc.DeactivateCourier(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, retired.IsActive)
}

func TestUpdateCourier(t *testing.T) {
	svc := newService(t, "o1")
	ctx := context.Background()
	c := newCourier(t, svc, "0240000001")
	other := newCourier(t, svc, "0240000002")

	str := func(v string) *string { return &v }
	flag := func(v bool) *bool { return &v }

	updated, err := svc.UpdateCourier(ctx, c.ID, shipping.CourierUpdate{
		Name:   str("  Kofi Rapid "),
		Email:  str("Ops@Kofi.Example"),
		Region: str("volta"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Kofi Rapid", updated.Name)
	assert.Equal(t, "ops@kofi.example", updated.Email)
	assert.Equal(t, "Volta", updated.Region)
	assert.Equal(t, "0240000001", updated.Phone)
	assert.True(t, updated.IsActive)

	got, err := svc.GetCourier(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Name, got.Name)
	assert.Equal(t, updated.Region, got.Region)

	tests := []struct {
		name string
		id   string
		upd  shipping.CourierUpdate
		kind fault.Kind
	}{
		{name: "empty name", id: c.ID, upd: shipping.CourierUpdate{Name: str(" ")}, kind: fault.KindValidation},
		{name: "empty phone", id: c.ID, upd: shipping.CourierUpdate{Phone: str("")}, kind: fault.KindValidation},
		{name: "bad region", id: c.ID, upd: shipping.CourierUpdate{Region: str("Lagos")}, kind: fault.KindValidation},
		{name: "duplicate phone", id: c.ID, upd: shipping.CourierUpdate{Phone: str(other.Phone)}, kind: fault.KindValidation},
		{name: "duplicate email", id: c.ID, upd: shipping.CourierUpdate{Email: str(strings.ToUpper(other.Email))}, kind: fault.KindValidation},
		{name: "unknown courier", id: "missing", upd: shipping.CourierUpdate{Name: str("X")}, kind: fault.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateCourier(ctx, tt.id, tt.upd)
			require.Error(t, err)
			assert.Equal(t, tt.kind, fault.KindOf(err))
		})
	}

	// Own phone and email do not collide with themselves.
	_, err = svc.UpdateCourier(ctx, c.ID, shipping.CourierUpdate{Phone: str(c.Phone), Email: str("ops@kofi.example")})
	require.NoError(t, err)

	sh, err := svc.CreateShipment(ctx, shipmentFor("o1", c.ID))
	require.NoError(t, err)
	_, err = svc.UpdateCourier(ctx, c.ID, shipping.CourierUpdate{Name: str("Busy"), IsActive: flag(false)})
	assert.Equal(t, fault.KindIllegalTransition, fault.KindOf(err))
	got, err = svc.GetCourier(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, "Kofi Rapid", got.Name)

	_, err = svc.UpdateStatus(ctx, sh.ID, "delivered", nil)
	require.NoError(t, err)
	retired, err := svc.UpdateCourier(ctx, c.ID, shipping.CourierUpdate{IsActive: flag(false)})
	require.NoError(t, err)
	assert.False(t, retired.IsActive)

	back, err := svc.UpdateCourier(ctx, c.ID, shipping.CourierUpdate{IsActive: flag(true)})
	require.NoError(t, err)
	assert.True(t, back.IsActive)
}

func TestListCouriers(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.CreateCourier(ctx, shipping.CourierRequest{Name: "Ama", Phone: "1", Region: "Ashanti"})
	require.NoError(t, err)
	_, err = svc.CreateCourier(ctx, shipping.CourierRequest{Name: "Yaw", Phone: "2", Region: "Volta"})
	require.NoError(t, err)

	list, err := svc.ListCouriers(ctx, shipping.CourierFilter{Region: "ashanti"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ama", list[0].Name)

	_, err = svc.ListCouriers(ctx, shipping.CourierFilter{Region: "Mars"})
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))
}
