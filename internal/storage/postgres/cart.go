package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/gmarket/internal/domain/cart"
	"github.com/xenking/gmarket/internal/domain/fault"
)

const (
	ensureCartSQL = `INSERT INTO carts (id, customer_id) VALUES ($1, $2)
		ON CONFLICT (customer_id) DO NOTHING`

	getCartSQL = `SELECT id::text, customer_id, created_at, updated_at FROM carts WHERE customer_id = $1`

	getCartForUpdateSQL = getCartSQL + ` FOR UPDATE`

	listCartLinesSQL = `SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY position`

	// Repeat adds merge in the statement itself so concurrent adds both count.
	addCartLineSQL = `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING quantity`

	setCartLineSQL = `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`

	removeCartLineSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository that uses the given DB.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

// GetOrCreate returns the customer's cart with its lines in insertion order,
// creating the cart on first access.
func (r *CartRepository) GetOrCreate(ctx context.Context, customerID string) (*cart.Cart, error) {
	return r.getOrCreate(ctx, getCartSQL, customerID)
}

// GetOrCreateForUpdate is GetOrCreate holding a row lock on the cart until the
// surrounding transaction ends. A second locker blocks and then reads the
// lines as the first one left them.
func (r *CartRepository) GetOrCreateForUpdate(ctx context.Context, customerID string) (*cart.Cart, error) {
	return r.getOrCreate(ctx, getCartForUpdateSQL, customerID)
}

func (r *CartRepository) getOrCreate(ctx context.Context, getSQL, customerID string) (*cart.Cart, error) {
	q := r.db.q(ctx)
	if _, err := q.Exec(ctx, ensureCartSQL, uuid.New().String(), customerID); err != nil {
		return nil, fmt.Errorf("creating cart for %q: %w", customerID, err)
	}

	var c cart.Cart
	err := q.QueryRow(ctx, getSQL, customerID).Scan(&c.ID, &c.CustomerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting cart for %q: %w", customerID, err)
	}

	rows, err := q.Query(ctx, listCartLinesSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing cart lines: %w", err)
	}
	c.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Quantity)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning cart lines: %w", err)
	}
	return &c, nil
}

// AddQuantity creates or increments the line for productID.
func (r *CartRepository) AddQuantity(ctx context.Context, cartID, productID string, qty int) (int, error) {
	if !validUUID(cartID) {
		return 0, fault.NotFoundf("cart %s", cartID)
	}
	var total int
	err := r.db.q(ctx).QueryRow(ctx, addCartLineSQL, cartID, productID, qty).Scan(&total)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return 0, fault.NotFoundf("cart %s or product %s", cartID, productID)
		}
		return 0, fmt.Errorf("adding cart line: %w", err)
	}
	return total, r.touch(ctx, cartID)
}

// SetQuantity replaces the quantity of an existing line.
func (r *CartRepository) SetQuantity(ctx context.Context, cartID, productID string, qty int) error {
	return r.execLine(ctx, setCartLineSQL, cartID, productID, qty)
}

// RemoveLine deletes the line for productID.
func (r *CartRepository) RemoveLine(ctx context.Context, cartID, productID string) error {
	return r.execLine(ctx, removeCartLineSQL, cartID, productID)
}

// Clear removes every line from the cart.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	if !validUUID(cartID) {
		return fault.NotFoundf("cart %s", cartID)
	}
	if _, err := r.db.q(ctx).Exec(ctx, clearCartSQL, cartID); err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	return r.touch(ctx, cartID)
}

func (r *CartRepository) execLine(ctx context.Context, sql, cartID, productID string, args ...any) error {
	if !validUUID(cartID) {
		return fault.NotFoundf("cart %s", cartID)
	}
	tag, err := r.db.q(ctx).Exec(ctx, sql, append([]any{cartID, productID}, args...)...)
	if err != nil {
		return fmt.Errorf("updating cart line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("product %s in cart %s", productID, cartID)
	}
	return r.touch(ctx, cartID)
}

func (r *CartRepository) touch(ctx context.Context, cartID string) error {
	if _, err := r.db.q(ctx).Exec(ctx, touchCartSQL, cartID); err != nil {
		return fmt.Errorf("touching cart %q: %w", cartID, err)
	}
	return nil
}
