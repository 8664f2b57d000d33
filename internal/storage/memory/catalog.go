package memory

import (
	"context"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/inventory"
	"github.com/xenking/gmarket/internal/domain/product"
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ inventory.Store    = (*ProductRepository)(nil)
)

// ProductRepository serves the catalog and stock counts.
type ProductRepository struct {
	s *Store
}

// Products returns the store's product repository.
func (s *Store) Products() *ProductRepository {
	return &ProductRepository{s: s}
}

// Put inserts or replaces a product.
func (r *ProductRepository) Put(ctx context.Context, p product.Product) {
	defer r.s.lock(ctx)()
	r.s.st.products[p.ID] = p
}

// Get returns a product by id.
func (r *ProductRepository) Get(ctx context.Context, id string) (*product.Product, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.products[id]
	if !ok {
		return nil, fault.NotFoundf("product %s", id)
	}
	return &p, nil
}

// GetByIDs returns the products matching ids, skipping unknown ones.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	defer r.s.lock(ctx)()
	seen := make(map[string]struct{}, len(ids))
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.s.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// StockLevel returns the product's current stock.
func (r *ProductRepository) StockLevel(ctx context.Context, id string) (int, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.products[id]
	if !ok {
		return 0, fault.NotFoundf("product %s", id)
	}
	return p.StockQuantity, nil
}

// DecrementStock removes qty units when at least qty are in stock.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) (int, bool, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.products[id]
	if !ok {
		return 0, false, fault.NotFoundf("product %s", id)
	}
	if p.StockQuantity < qty {
		return p.StockQuantity, false, nil
	}
	p.StockQuantity -= qty
	r.s.st.products[id] = p
	return p.StockQuantity, true, nil
}

// IncrementStock adds qty units.
func (r *ProductRepository) IncrementStock(ctx context.Context, id string, qty int) (int, error) {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.products[id]
	if !ok {
		return 0, fault.NotFoundf("product %s", id)
	}
	p.StockQuantity += qty
	r.s.st.products[id] = p
	return p.StockQuantity, nil
}
