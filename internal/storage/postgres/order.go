package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
)

const (
	nextOrderNumberSQL = `SELECT nextval('order_number_seq')`

	insertOrderSQL = `INSERT INTO orders (
			id, order_number, customer_id, subtotal, discount_amount, total_amount,
			currency, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, line_no, product_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)`

	orderColumns = `id::text, order_number, customer_id, subtotal, discount_amount, total_amount,
		currency, status, notes, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC, order_number DESC`

	listOrderItemsSQL = `SELECT order_id::text, product_id, quantity, unit_price, subtotal
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, line_no`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

	updateOrderDetailsSQL = `UPDATE orders
		SET notes = $2, discount_amount = $3, total_amount = $4, updated_at = $5
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses the given DB.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// NextNumber draws the next value of order_number_seq.
func (r *OrderRepository) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.q(ctx).QueryRow(ctx, nextOrderNumberSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("drawing order number: %w", err)
	}
	return n, nil
}

// Create persists the order row and its items. Callers run it inside a
// transaction so the order never exists without its items.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.Number, o.CustomerID, o.Subtotal, o.Discount, o.Total,
		o.Currency, string(o.Status), o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	for i, it := range o.Items {
		b.Queue(insertOrderItemSQL, o.ID, i+1, it.ProductID, it.Quantity, it.UnitPrice, it.Subtotal)
	}

	if err := r.db.q(ctx).SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, id)
}

// GetForUpdate returns an order with its items and locks the order row until
// the surrounding transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderForUpdateSQL, id)
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.db.q(ctx).Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", customerID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	if !validUUID(id) {
		return fault.NotFoundf("order %s", id)
	}
	tag, err := r.db.q(ctx).Exec(ctx, updateOrderStatusSQL, id, string(status), at)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("order %s", id)
	}
	return nil
}

// UpdateDetails sets notes, discount and total.
func (r *OrderRepository) UpdateDetails(ctx context.Context, id, notes string, discount, total decimal.Decimal, at time.Time) error {
	if !validUUID(id) {
		return fault.NotFoundf("order %s", id)
	}
	tag, err := r.db.q(ctx).Exec(ctx, updateOrderDetailsSQL, id, notes, discount, total, at)
	if err != nil {
		return fmt.Errorf("updating order %q details: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("order %s", id)
	}
	return nil
}

func (r *OrderRepository) get(ctx context.Context, sql, id string) (*order.Order, error) {
	if !validUUID(id) {
		return nil, fault.NotFoundf("order %s", id)
	}
	rows, err := r.db.q(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("order %s", id)
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	idx := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		idx[o.ID] = i
	}

	rows, err := r.db.q(ctx).Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if i, ok := idx[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.Subtotal, &o.Discount, &o.Total,
		&o.Currency, &status, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
