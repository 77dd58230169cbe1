package pairing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DiscoveryConfig controls how listings are fetched and cached.
type DiscoveryConfig struct {
	Leagues  []string
	CacheTTL time.Duration
}

// Outcome summarizes a discovery run applied to the table.
type Outcome struct {
	Result
	Generation uint64
	Changed    bool
	FromCache  bool
}

// Discoverer fetches venue catalogs, builds pairs and swaps them into the
// table. Cache and store are optional.
type Discoverer struct {
	sources []domain.ListingSource
	builder *Builder
	table   *Table
	cache   domain.PairCache
	store   domain.PairStore
	cfg     DiscoveryConfig
	logger  *slog.Logger
}

// NewDiscoverer wires a Discoverer.
func NewDiscoverer(
	sources []domain.ListingSource,
	builder *Builder,
	table *Table,
	cache domain.PairCache,
	store domain.PairStore,
	cfg DiscoveryConfig,
	logger *slog.Logger,
) *Discoverer {
	return &Discoverer{
		sources: sources,
		builder: builder,
		table:   table,
		cache:   cache,
		store:   store,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "discovery")),
	}
}

// Discover runs one discovery pass. Unless force is set, a cached pair set
// is used when present.
func (d *Discoverer) Discover(ctx context.Context, force bool) (Outcome, error) {
	if !force && d.cache != nil {
		pairs, err := d.cache.GetPairs(ctx)
		if err == nil && len(pairs) > 0 {
			gen, changed, err := d.table.Replace(pairs)
			if err == nil {
				return Outcome{Result: Result{Pairs: pairs}, Generation: gen, Changed: changed, FromCache: true}, nil
			}
			d.logger.WarnContext(ctx, "discovery: cached pairs rejected", slog.String("error", err.Error()))
		}
	}

	listings, err := d.fetch(ctx)
	if err != nil {
		return Outcome{}, err
	}

	res := d.builder.Build(listings)
	gen, changed, err := d.table.Replace(res.Pairs)
	if err != nil {
		return Outcome{}, fmt.Errorf("pairing: replace table: %w", err)
	}

	if d.cache != nil && len(res.Pairs) > 0 {
		if err := d.cache.SetPairs(ctx, res.Pairs, d.cfg.CacheTTL); err != nil {
			d.logger.WarnContext(ctx, "discovery: cache pairs failed", slog.String("error", err.Error()))
		}
	}
	if d.store != nil && changed {
		if err := d.store.ReplaceAll(ctx, res.Pairs); err != nil {
			d.logger.WarnContext(ctx, "discovery: persist pairs failed", slog.String("error", err.Error()))
		}
	}

	return Outcome{Result: res, Generation: gen, Changed: changed}, nil
}

// fetch pulls every venue catalog concurrently.
func (d *Discoverer) fetch(ctx context.Context) ([]domain.Listing, error) {
	var (
		mu  sync.Mutex
		all []domain.Listing
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range d.sources {
		g.Go(func() error {
			listings, err := src.Listings(gctx, d.cfg.Leagues)
			if err != nil {
				return fmt.Errorf("pairing: %s listings: %w", src.Venue(), err)
			}
			mu.Lock()
			all = append(all, listings...)
			mu.Unlock()
			d.logger.InfoContext(gctx, "discovery: listings fetched",
				slog.String("venue", string(src.Venue())),
				slog.Int("count", len(listings)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}
