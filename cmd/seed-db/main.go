// Command seed-db loads a fixture, and optionally NDJSON product shards, into
// PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/gmarket/internal/seed"
	"github.com/xenking/gmarket/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		fixtureFile  string
		shards       string
		apiKeyPepper string
		expected     uint
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture", "db/seed/fixture.json", "path to the JSON fixture, empty to skip")
	flag.StringVar(&shards, "shards", "", "comma-separated NDJSON product shards (.gz allowed)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or GMARKET_API_KEY_PEPPER env)")
	flag.UintVar(&expected, "shard-size", seed.DefaultShardConfig.ExpectedProducts, "expected products per shard")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("GMARKET_API_KEY_PEPPER")
	}

	var shardPaths []string
	if shards != "" {
		shardPaths = strings.Split(shards, ",")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := seed.DefaultShardConfig
	cfg.ExpectedProducts = expected
	if err := run(ctx, lg, databaseURL, fixtureFile, shardPaths, cfg, []byte(apiKeyPepper)); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, fixtureFile string, shards []string, cfg seed.ShardConfig, pepper []byte) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	target := seed.PostgresTarget(postgres.New(pool))

	if fixtureFile != "" {
		fixture, err := seed.Load(fixtureFile)
		if err != nil {
			return err
		}
		stats, err := seed.Apply(ctx, lg, target, fixture, pepper)
		if err != nil {
			return errors.Wrap(err, "apply fixture")
		}
		lg.Info("Fixture applied",
			zap.Int("products", stats.Products),
			zap.Int("couriers", stats.Couriers),
			zap.Int("couriers_skipped", stats.Skipped),
			zap.Int("api_keys", stats.APIKeys),
		)
	}

	if len(shards) > 0 {
		n, err := seed.ImportShards(ctx, lg, target, cfg, shards)
		if err != nil {
			return errors.Wrap(err, "import shards")
		}
		lg.Info("Shards imported", zap.Int("shards", len(shards)), zap.Int("products", n))
	}
	return nil
}
