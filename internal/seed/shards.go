package seed

import (
	"bufio"
	"context"
	"encoding/json"
	"math/bits"
	"sort"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ShardConfig sizes the per-shard filters used to find product ids listed in
// more than one shard.
type ShardConfig struct {
	// ExpectedProducts per shard.
	ExpectedProducts uint
	// FalsePositiveRate of each filter.
	FalsePositiveRate float64
}

// DefaultShardConfig suits shards of up to a million products.
var DefaultShardConfig = ShardConfig{
	ExpectedProducts:  1_000_000,
	FalsePositiveRate: 0.001,
}

// StreamProducts calls fn for every product of an NDJSON shard, one JSON
// object per line. Blank lines are skipped.
func StreamProducts(ctx context.Context, path string, fn func(p Product) error) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var p Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(p); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// DuplicateIDs returns the product ids that appear in two or more shards,
// sorted. It reads every shard twice: first into a bloom filter per shard,
// then checking each id against the other shards' filters. Only filter hits
// are kept in memory and a hit counts only when a second shard confirms it.
func DuplicateIDs(ctx context.Context, cfg ShardConfig, paths []string) ([]string, error) {
	if len(paths) < 2 {
		return nil, nil
	}
	if len(paths) > bits.UintSize {
		return nil, errors.Errorf("at most %d shards are supported", bits.UintSize)
	}

	filters := make([]*bloom.BloomFilter, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			f := bloom.NewWithEstimates(cfg.ExpectedProducts, cfg.FalsePositiveRate)
			if err := StreamProducts(gctx, path, func(p Product) error {
				f.AddString(p.ID)
				return nil
			}); err != nil {
				return err
			}
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "build filters")
	}

	// candidates[i] maps ids of shard i that may occur elsewhere to the bit
	// of shard i.
	candidates := make([]map[string]uint, len(paths))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			found := make(map[string]uint)
			err := StreamProducts(gctx, path, func(p Product) error {
				for j, f := range filters {
					if j != i && f.TestString(p.ID) {
						found[p.ID] |= 1 << uint(i)
						return nil
					}
				}
				return nil
			})
			candidates[i] = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	merged := make(map[string]uint)
	for _, found := range candidates {
		for id, mask := range found {
			merged[id] |= mask
		}
	}
	var dups []string
	for id, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups, nil
}

// ImportShards upserts the products of every shard, shards in parallel. It
// refuses to write anything when a product id occurs in more than one shard,
// since the surviving row would depend on scheduling.
func ImportShards(ctx context.Context, lg *zap.Logger, t Target, cfg ShardConfig, paths []string) (int, error) {
	dups, err := DuplicateIDs(ctx, cfg, paths)
	if err != nil {
		return 0, err
	}
	if len(dups) > 0 {
		lg.Warn("Duplicate product ids across shards", zap.Strings("ids", dups))
		return 0, errors.Errorf("%d product ids occur in more than one shard", len(dups))
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			var n int
			err := StreamProducts(gctx, path, func(p Product) error {
				dp, err := p.domain()
				if err != nil {
					return err
				}
				if err := t.UpsertProduct(gctx, dp); err != nil {
					return errors.Wrapf(err, "upsert product %s", p.ID)
				}
				n++
				return nil
			})
			total.Add(int64(n))
			lg.Info("Shard imported", zap.String("path", path), zap.Int("products", n))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return int(total.Load()), err
	}
	return int(total.Load()), nil
}
