package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/shipping"
)

const (
	insertShipmentSQL = `INSERT INTO shipments (
			id, order_id, courier_id, address, city, region, postal_code, status,
			shipping_date, delivery_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	shipmentColumns = `id::text, order_id::text, courier_id::text, address, city, region, postal_code,
		status, shipping_date, delivery_date, created_at, updated_at`

	getShipmentSQL = `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1`

	getShipmentForUpdateSQL = getShipmentSQL + ` FOR UPDATE`

	getShipmentByOrderSQL = `SELECT ` + shipmentColumns + ` FROM shipments WHERE order_id = $1`

	updateShipmentStatusSQL = `UPDATE shipments SET status = $2, delivery_date = $3, updated_at = $4
		WHERE id = $1`

	insertCourierSQL = `INSERT INTO couriers (id, name, phone, email, region, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	courierColumns = `id::text, name, phone, email, region, is_active, created_at, updated_at`

	getCourierSQL = `SELECT ` + courierColumns + ` FROM couriers WHERE id = $1`

	getCourierForShareSQL = getCourierSQL + ` FOR SHARE`

	getCourierForUpdateSQL = getCourierSQL + ` FOR UPDATE`

	listCouriersSQL = `SELECT ` + courierColumns + ` FROM couriers
		WHERE ($1 = '' OR region = $1) AND ($2::boolean IS NULL OR is_active = $2)
		ORDER BY name`

	countInFlightSQL = `SELECT count(*) FROM shipments WHERE courier_id = $1 AND status = ANY($2)`

	setCourierActiveSQL = `UPDATE couriers SET is_active = $2, updated_at = $3 WHERE id = $1`

	updateCourierSQL = `UPDATE couriers
		SET name = $2, phone = $3, email = $4, region = $5, is_active = $6, updated_at = $7
		WHERE id = $1`
)

var (
	_ shipping.Repository        = (*ShipmentRepository)(nil)
	_ shipping.CourierRepository = (*ShipmentRepository)(nil)
)

// ShipmentRepository implements shipping.Repository and
// shipping.CourierRepository backed by PostgreSQL.
type ShipmentRepository struct {
	db *DB
}

// NewShipmentRepository returns a ShipmentRepository that uses the given DB.
func NewShipmentRepository(db *DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// Create inserts a shipment. The unique index on order_id turns a concurrent
// duplicate into fault.ErrShipmentExists.
func (r *ShipmentRepository) Create(ctx context.Context, sh *shipping.Shipment) error {
	_, err := r.db.q(ctx).Exec(ctx, insertShipmentSQL,
		sh.ID, sh.OrderID, sh.CourierID, sh.Address, sh.City, sh.Region, sh.PostalCode,
		string(sh.Status), sh.ShippingDate, sh.DeliveryDate, sh.CreatedAt, sh.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case codeUniqueViolation:
		return errors.Wrapf(fault.ErrShipmentExists, "order %s", sh.OrderID)
	case codeForeignKeyViolation:
		return fault.NotFoundf("order %s or courier %s", sh.OrderID, sh.CourierID)
	default:
		return fmt.Errorf("creating shipment %q: %w", sh.ID, err)
	}
}

// Get returns a shipment by id.
func (r *ShipmentRepository) Get(ctx context.Context, id string) (*shipping.Shipment, error) {
	return r.getShipment(ctx, getShipmentSQL, id, "shipment "+id)
}

// GetForUpdate returns a shipment by id and locks its row.
func (r *ShipmentRepository) GetForUpdate(ctx context.Context, id string) (*shipping.Shipment, error) {
	return r.getShipment(ctx, getShipmentForUpdateSQL, id, "shipment "+id)
}

// GetByOrder returns the shipment of an order.
func (r *ShipmentRepository) GetByOrder(ctx context.Context, orderID string) (*shipping.Shipment, error) {
	return r.getShipment(ctx, getShipmentByOrderSQL, orderID, "shipment for order "+orderID)
}

// UpdateStatus sets status and delivery date.
func (r *ShipmentRepository) UpdateStatus(ctx context.Context, id string, status shipping.Status, delivered *time.Time, at time.Time) error {
	if !validUUID(id) {
		return fault.NotFoundf("shipment %s", id)
	}
	tag, err := r.db.q(ctx).Exec(ctx, updateShipmentStatusSQL, id, string(status), delivered, at)
	if err != nil {
		return fmt.Errorf("updating shipment %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("shipment %s", id)
	}
	return nil
}

// CreateCourier inserts a courier. Phone and email collisions are reported
// as validation failures.
func (r *ShipmentRepository) CreateCourier(ctx context.Context, c *shipping.Courier) error {
	var email *string
	if c.Email != "" {
		email = &c.Email
	}
	_, err := r.db.q(ctx).Exec(ctx, insertCourierSQL,
		c.ID, c.Name, c.Phone, email, c.Region, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	if pgCode(err) == codeUniqueViolation {
		return fault.Validationf("courier with this phone number or email already exists")
	}
	return fmt.Errorf("creating courier %q: %w", c.ID, err)
}

// GetCourier returns a courier by id.
func (r *ShipmentRepository) GetCourier(ctx context.Context, id string) (*shipping.Courier, error) {
	return r.getCourier(ctx, getCourierSQL, id)
}

// GetCourierForShare returns a courier and holds a shared row lock, which
// blocks a concurrent deactivation until the transaction ends.
func (r *ShipmentRepository) GetCourierForShare(ctx context.Context, id string) (*shipping.Courier, error) {
	return r.getCourier(ctx, getCourierForShareSQL, id)
}

// GetCourierForUpdate returns a courier and holds an exclusive row lock.
func (r *ShipmentRepository) GetCourierForUpdate(ctx context.Context, id string) (*shipping.Courier, error) {
	return r.getCourier(ctx, getCourierForUpdateSQL, id)
}

// ListCouriers returns couriers matching f ordered by name.
func (r *ShipmentRepository) ListCouriers(ctx context.Context, f shipping.CourierFilter) ([]shipping.Courier, error) {
	rows, err := r.db.q(ctx).Query(ctx, listCouriersSQL, f.Region, f.Active)
	if err != nil {
		return nil, fmt.Errorf("listing couriers: %w", err)
	}
	return pgx.CollectRows(rows, scanCourier)
}

// CountInFlight counts the courier's pending, shipped and in-transit
// shipments.
func (r *ShipmentRepository) CountInFlight(ctx context.Context, courierID string) (int, error) {
	statuses := make([]string, len(shipping.InFlightStatuses))
	for i, s := range shipping.InFlightStatuses {
		statuses[i] = string(s)
	}
	var n int
	if err := r.db.q(ctx).QueryRow(ctx, countInFlightSQL, courierID, statuses).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting shipments of courier %q: %w", courierID, err)
	}
	return n, nil
}

// SetCourierActive toggles the courier's active flag.
func (r *ShipmentRepository) SetCourierActive(ctx context.Context, id string, active bool, at time.Time) error {
	if !validUUID(id) {
		return fault.NotFoundf("courier %s", id)
	}
	tag, err := r.db.q(ctx).Exec(ctx, setCourierActiveSQL, id, active, at)
	if err != nil {
		return fmt.Errorf("updating courier %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("courier %s", id)
	}
	return nil
}

// UpdateCourier writes every mutable courier column.
func (r *ShipmentRepository) UpdateCourier(ctx context.Context, c *shipping.Courier) error {
	if !validUUID(c.ID) {
		return fault.NotFoundf("courier %s", c.ID)
	}
	var email *string
	if c.Email != "" {
		email = &c.Email
	}
	tag, err := r.db.q(ctx).Exec(ctx, updateCourierSQL,
		c.ID, c.Name, c.Phone, email, c.Region, c.IsActive, c.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return fault.Validationf("courier with this phone number or email already exists")
		}
		return fmt.Errorf("updating courier %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("courier %s", c.ID)
	}
	return nil
}

func (r *ShipmentRepository) getShipment(ctx context.Context, sql, key, what string) (*shipping.Shipment, error) {
	if !validUUID(key) {
		return nil, fault.NotFoundf("%s", what)
	}
	rows, err := r.db.q(ctx).Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", what, err)
	}
	sh, err := pgx.CollectExactlyOneRow(rows, scanShipment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("%s", what)
		}
		return nil, fmt.Errorf("getting %s: %w", what, err)
	}
	return &sh, nil
}

func (r *ShipmentRepository) getCourier(ctx context.Context, sql, id string) (*shipping.Courier, error) {
	if !validUUID(id) {
		return nil, fault.NotFoundf("courier %s", id)
	}
	rows, err := r.db.q(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting courier %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCourier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("courier %s", id)
		}
		return nil, fmt.Errorf("getting courier %q: %w", id, err)
	}
	return &c, nil
}

func scanShipment(row pgx.CollectableRow) (shipping.Shipment, error) {
	var (
		sh     shipping.Shipment
		status string
	)
	err := row.Scan(
		&sh.ID, &sh.OrderID, &sh.CourierID, &sh.Address, &sh.City, &sh.Region, &sh.PostalCode,
		&status, &sh.ShippingDate, &sh.DeliveryDate, &sh.CreatedAt, &sh.UpdatedAt,
	)
	sh.Status = shipping.Status(status)
	return sh, err
}

func scanCourier(row pgx.CollectableRow) (shipping.Courier, error) {
	var (
		c     shipping.Courier
		email *string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &email, &c.Region, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if email != nil {
		c.Email = *email
	}
	return c, err
}
