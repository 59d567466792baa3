// Package indexer assembles the configured sources, catalog, resolver, registry
// and routes into one runnable unit.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/client"
	"github.com/devblac/indexkit/internal/config"
	"github.com/devblac/indexkit/internal/engine"
	"github.com/devblac/indexkit/internal/health"
	"github.com/devblac/indexkit/internal/metrics"
	"github.com/devblac/indexkit/internal/payload"
	"github.com/devblac/indexkit/internal/registry"
	"github.com/devblac/indexkit/internal/resolver"
	"github.com/devblac/indexkit/internal/sink"
	"github.com/devblac/indexkit/internal/source"
	"github.com/devblac/indexkit/internal/storage"
	"github.com/devblac/indexkit/internal/storage/postgres"
)

const defaultSQLitePath = "indexkit.db"

// Project is a compiled configuration: normalized sources and their catalog.
// It needs no store or network.
type Project struct {
	Config  *config.Config
	Sources *source.Set
	Catalog *catalog.Catalog

	contexts *resolver.Resolver
}

// Compile normalizes cfg and builds its catalog.
func Compile(cfg *config.Config, logger *zap.Logger) (*Project, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	set, err := source.Normalize(cfg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Build(set, logger)
	if err != nil {
		return nil, err
	}
	contexts, err := resolver.New(set, cat, nil, nil)
	if err != nil {
		return nil, err
	}
	return &Project{Config: cfg, Sources: set, Catalog: cat, contexts: contexts}, nil
}

// Context returns the static handler context of name, without db or client.
func (p *Project) Context(name string) (*resolver.Static, error) {
	return p.contexts.Static(name)
}

// UnionContext returns the context of a handler subscribed to every name.
func (p *Project) UnionContext() *resolver.Static {
	return p.contexts.Union()
}

// Options tunes New.
type Options struct {
	// DryRun evaluates routes without recording matches or sending.
	DryRun  bool
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Indexer owns the store, chain clients and registry for one configuration.
type Indexer struct {
	project  *Project
	store    storage.Backend
	pool     *client.Pool
	registry *registry.Registry
	router   *engine.Router
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New compiles cfg, opens its store, dials its chains and registers its routes.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Indexer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	project, err := Compile(cfg, logger)
	if err != nil {
		return nil, err
	}
	recordCatalog(project.Catalog, opts.Metrics)

	builder, err := payload.NewBuilder(project.Catalog)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg.Global.Database, cfg.Dir)
	if err != nil {
		return nil, err
	}
	pool, err := client.NewPool(ctx, cfg.Chains, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ix := &Indexer{project: project, store: store, pool: pool, logger: logger, metrics: opts.Metrics}
	if err := ix.wire(builder, cfg, opts.DryRun); err != nil {
		_ = ix.Close()
		return nil, err
	}
	logger.Info("indexer ready",
		zap.Int("sources", len(project.Sources.All())),
		zap.Int("names", project.Catalog.Len()),
		zap.Strings("routed", ix.router.Events()),
		zap.Bool("dry_run", opts.DryRun),
	)
	return ix, nil
}

func (ix *Indexer) wire(builder *payload.Builder, cfg *config.Config, dryRun bool) error {
	res, err := resolver.New(ix.project.Sources, ix.project.Catalog, ix.store, ix.pool)
	if err != nil {
		return err
	}
	ix.registry = registry.New(ix.project.Catalog, builder, res,
		registry.WithLogger(ix.logger),
		registry.WithMetrics(ix.metrics),
	)

	sinks, err := sink.FromConfig(cfg.Sinks)
	if err != nil {
		return err
	}
	ix.router, err = engine.NewRouter(ix.store, cfg.Routes, sinks, dryRun, ix.logger, ix.metrics)
	if err != nil {
		return err
	}
	return ix.router.Register(ix.registry)
}

// OpenStore opens the configured database. A relative SQLite path resolves against dir.
func OpenStore(ctx context.Context, db config.Database, dir string) (storage.Backend, error) {
	switch strings.ToLower(db.Driver) {
	case "", "sqlite":
		path := db.DSN
		if path == "" {
			path = defaultSQLitePath
		}
		if path != ":memory:" && !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		st, err := storage.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, nil
	case "postgres":
		st, err := postgres.NewStore(ctx, db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", db.Driver)
	}
}

func recordCatalog(cat *catalog.Catalog, m *metrics.Metrics) {
	counts := map[catalog.Kind]int{}
	for _, e := range cat.Entries() {
		counts[e.Kind]++
	}
	for k := catalog.KindSetup; k <= catalog.KindBlockTick; k++ {
		m.CatalogSize(k.String(), counts[k])
	}
}

// Project returns the compiled configuration.
func (ix *Indexer) Project() *Project { return ix.project }

// Registry exposes the handler registry for in-process Go handlers.
func (ix *Indexer) Registry() *registry.Registry { return ix.registry }

// On registers a Go handler next to the configured routes. A name that is also
// routed replaces the route handler.
func (ix *Indexer) On(name string, h registry.Handler) error {
	return ix.registry.On(name, h)
}

// Setup fires every setup handler once per deployment chain.
func (ix *Indexer) Setup(ctx context.Context) error {
	return ix.registry.DispatchSetup(ctx)
}

// Checker probes the store and every chain with an rpc endpoint.
func (ix *Indexer) Checker() health.Checker {
	return health.Checker{DBPing: ix.store.Ping, RPCPing: ix.pool.Ping}
}

// Close releases the store and chain clients.
func (ix *Indexer) Close() error {
	ix.pool.Close()
	if ix.store == nil {
		return nil
	}
	if err := ix.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
