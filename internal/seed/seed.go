// Package seed loads catalog, courier and API key fixtures into a store.
//
// Fixtures are JSON documents; files ending in .gz are gunzipped on the fly.
// Large catalogs can instead be split into NDJSON shards, see ImportShards.
package seed

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/product"
	"github.com/xenking/gmarket/internal/domain/shipping"
)

// Fixture is the seed document.
type Fixture struct {
	Products []Product `json:"products"`
	Couriers []Courier `json:"couriers"`
	APIKeys  []APIKey  `json:"api_keys"`
}

// Product is a catalog entry. Missing is_active means active.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      *bool           `json:"is_active"`
}

func (p Product) domain() (product.Product, error) {
	if p.ID == "" || p.Name == "" {
		return product.Product{}, errors.Errorf("product %q: id and name are required", p.ID)
	}
	if !p.Price.IsPositive() {
		return product.Product{}, errors.Errorf("product %q: price must be positive", p.ID)
	}
	if p.StockQuantity < 0 {
		return product.Product{}, errors.Errorf("product %q: stock must not be negative", p.ID)
	}
	active := p.IsActive == nil || *p.IsActive
	return product.Product{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		IsActive:      active,
	}, nil
}

// Courier is registered as active.
type Courier struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Region string `json:"region"`
}

// APIKey is stored as its HMAC under the configured pepper; the raw key
// never reaches the store.
type APIKey struct {
	ID         string   `json:"id"`
	Key        string   `json:"key"`
	Name       string   `json:"name"`
	CustomerID string   `json:"customer_id"`
	Scopes     []string `json:"scopes"`
}

// Target receives seeded records.
type Target interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	CreateCourier(ctx context.Context, c *shipping.Courier) error
	UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error
}

// Stats counts what Apply wrote.
type Stats struct {
	Products int
	Couriers int
	Skipped  int
	APIKeys  int
}

// Open opens path for reading, gunzipping it when the name ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "gzip reader for %s", path)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	gzErr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return gzErr
}

// Load reads a fixture file.
func Load(path string) (*Fixture, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var f Fixture
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return &f, nil
}

// Apply writes f to t. Products are upserted concurrently; couriers whose
// phone or email is already registered are skipped, so seeding twice is
// harmless.
func Apply(ctx context.Context, lg *zap.Logger, t Target, f *Fixture, pepper []byte) (Stats, error) {
	var stats Stats

	products := make([]product.Product, len(f.Products))
	for i, p := range f.Products {
		dp, err := p.domain()
		if err != nil {
			return stats, err
		}
		products[i] = dp
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, p := range products {
		g.Go(func() error {
			if err := t.UpsertProduct(gctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Products = len(products)
	lg.Info("Seeded products", zap.Int("count", stats.Products))

	now := time.Now().UTC()
	for _, c := range f.Couriers {
		region, ok := shipping.CanonicalRegion(c.Region)
		if !ok {
			return stats, errors.Errorf("courier %q: unknown region %q", c.Name, c.Region)
		}
		err := t.CreateCourier(ctx, &shipping.Courier{
			ID:        uuid.NewString(),
			Name:      c.Name,
			Phone:     c.Phone,
			Email:     strings.ToLower(c.Email),
			Region:    region,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		switch {
		case errors.Is(err, fault.ErrValidation):
			lg.Debug("Courier already registered", zap.String("phone", c.Phone))
			stats.Skipped++
		case err != nil:
			return stats, errors.Wrapf(err, "create courier %q", c.Name)
		default:
			stats.Couriers++
		}
	}
	lg.Info("Seeded couriers", zap.Int("created", stats.Couriers), zap.Int("skipped", stats.Skipped))

	for _, k := range f.APIKeys {
		if k.Key == "" || k.CustomerID == "" {
			return stats, errors.Errorf("api key %q: key and customer_id are required", k.ID)
		}
		id := k.ID
		if id == "" {
			id = uuid.NewString()
		}
		scopes := k.Scopes
		if len(scopes) == 0 {
			scopes = []string{auth.ScopeCustomer}
		}
		if err := t.UpsertAPIKey(ctx, auth.APIKeyInfo{
			ID:         id,
			KeyHash:    auth.HashKey(pepper, k.Key),
			Name:       k.Name,
			CustomerID: k.CustomerID,
			Scopes:     scopes,
		}); err != nil {
			return stats, errors.Wrapf(err, "upsert api key %s", id)
		}
		stats.APIKeys++
	}
	lg.Info("Seeded API keys", zap.Int("count", stats.APIKeys))

	return stats, nil
}
