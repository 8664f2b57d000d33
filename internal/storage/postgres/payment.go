package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (
			id, order_id, amount, fees, currency, method, status, transaction_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	paymentColumns = `id::text, order_id::text, amount, fees, currency, method, status,
		transaction_reference, created_at, updated_at`

	getPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	getPaymentForUpdateSQL = getPaymentSQL + ` FOR UPDATE`

	getPaymentByOrderSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`

	updatePaymentStatusSQL = `UPDATE payments SET status = $2, transaction_reference = $3, updated_at = $4
		WHERE id = $1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository returns a PaymentRepository that uses the given DB.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment. The unique index on order_id turns a concurrent
// duplicate into fault.ErrPaymentExists.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db.q(ctx).Exec(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.Amount, p.Fee, p.Currency, string(p.Method), string(p.Status),
		p.TransactionReference, p.CreatedAt, p.UpdatedAt,
	)
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case codeUniqueViolation:
		return errors.Wrapf(fault.ErrPaymentExists, "order %s", p.OrderID)
	case codeForeignKeyViolation:
		return fault.NotFoundf("order %s", p.OrderID)
	default:
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
}

// Get returns a payment by id.
func (r *PaymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return r.get(ctx, getPaymentSQL, id, "payment "+id)
}

// GetForUpdate returns a payment by id and locks its row.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, id string) (*payment.Payment, error) {
	return r.get(ctx, getPaymentForUpdateSQL, id, "payment "+id)
}

// GetByOrder returns the payment of an order.
func (r *PaymentRepository) GetByOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.get(ctx, getPaymentByOrderSQL, orderID, "payment for order "+orderID)
}

// UpdateStatus sets status and transaction reference.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status payment.Status, reference string, at time.Time) error {
	if !validUUID(id) {
		return fault.NotFoundf("payment %s", id)
	}
	tag, err := r.db.q(ctx).Exec(ctx, updatePaymentStatusSQL, id, string(status), reference, at)
	if err != nil {
		return fmt.Errorf("updating payment %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("payment %s", id)
	}
	return nil
}

func (r *PaymentRepository) get(ctx context.Context, sql, key, what string) (*payment.Payment, error) {
	if !validUUID(key) {
		return nil, fault.NotFoundf("%s", what)
	}
	rows, err := r.db.q(ctx).Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", what, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("%s", what)
		}
		return nil, fmt.Errorf("getting %s: %w", what, err)
	}
	return &p, nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p              payment.Payment
		method, status string
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Fee, &p.Currency, &method, &status,
		&p.TransactionReference, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	return p, err
}
