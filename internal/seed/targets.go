package seed

import (
	"context"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/product"
	"github.com/xenking/gmarket/internal/domain/shipping"
	"github.com/xenking/gmarket/internal/storage/memory"
	"github.com/xenking/gmarket/internal/storage/postgres"
)

type memoryTarget struct {
	store *memory.Store
}

// MemoryTarget seeds an in-memory store.
func MemoryTarget(store *memory.Store) Target {
	return memoryTarget{store: store}
}

func (t memoryTarget) UpsertProduct(ctx context.Context, p product.Product) error {
	t.store.Products().Put(ctx, p)
	return nil
}

func (t memoryTarget) CreateCourier(ctx context.Context, c *shipping.Courier) error {
	return t.store.Shipments().CreateCourier(ctx, c)
}

func (t memoryTarget) UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error {
	t.store.APIKeys().Put(ctx, k)
	return nil
}

type postgresTarget struct {
	products  *postgres.ProductRepository
	shipments *postgres.ShipmentRepository
	apikeys   *postgres.APIKeyRepository
}

// PostgresTarget seeds the PostgreSQL schema behind db.
func PostgresTarget(db *postgres.DB) Target {
	return postgresTarget{
		products:  postgres.NewProductRepository(db),
		shipments: postgres.NewShipmentRepository(db),
		apikeys:   postgres.NewAPIKeyRepository(db),
	}
}

func (t postgresTarget) UpsertProduct(ctx context.Context, p product.Product) error {
	return t.products.Upsert(ctx, p)
}

func (t postgresTarget) CreateCourier(ctx context.Context, c *shipping.Courier) error {
	return t.shipments.CreateCourier(ctx, c)
}

func (t postgresTarget) UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error {
	return t.apikeys.Upsert(ctx, k)
}
