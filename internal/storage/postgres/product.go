package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/inventory"
	"github.com/xenking/gmarket/internal/domain/product"
)

const (
	productColumns = `id, name, price, stock_quantity, is_active`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	stockLevelSQL = `SELECT stock_quantity FROM products WHERE id = $1`

	// The WHERE guard makes check and decrement one atomic statement.
	decrementStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity`

	incrementStockSQL = `UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING stock_quantity`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock_quantity, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock_quantity = EXCLUDED.stock_quantity,
			is_active = EXCLUDED.is_active,
			updated_at = now()`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ inventory.Store    = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and inventory.Store backed
// by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses the given DB.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Get returns a single product by its identifier.
func (r *ProductRepository) Get(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.NotFoundf("product %s", id)
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts or replaces a catalog entry.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.db.q(ctx).Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.StockQuantity, p.IsActive)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// StockLevel returns the product's current stock.
func (r *ProductRepository) StockLevel(ctx context.Context, id string) (int, error) {
	var level int
	err := r.db.q(ctx).QueryRow(ctx, stockLevelSQL, id).Scan(&level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fault.NotFoundf("product %s", id)
		}
		return 0, fmt.Errorf("reading stock of %q: %w", id, err)
	}
	return level, nil
}

// DecrementStock removes qty units in a single conditional UPDATE. When the
// guard rejects the update it reports the level it then reads.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) (int, bool, error) {
	var remaining int
	err := r.db.q(ctx).QueryRow(ctx, decrementStockSQL, id, qty).Scan(&remaining)
	if err == nil {
		return remaining, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("decrementing stock of %q: %w", id, err)
	}

	level, err := r.StockLevel(ctx, id)
	if err != nil {
		return 0, false, err
	}
	return level, false, nil
}

// IncrementStock adds qty units.
func (r *ProductRepository) IncrementStock(ctx context.Context, id string, qty int) (int, error) {
	var level int
	err := r.db.q(ctx).QueryRow(ctx, incrementStockSQL, id, qty).Scan(&level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fault.NotFoundf("product %s", id)
		}
		return 0, fmt.Errorf("incrementing stock of %q: %w", id, err)
	}
	return level, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.IsActive)
	return p, err
}
