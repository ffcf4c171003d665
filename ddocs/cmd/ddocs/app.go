package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fileverse/ddocs-stack/common/logging"
	natsclient "github.com/fileverse/ddocs-stack/common/messaging/nats"
	"github.com/fileverse/ddocs-stack/ddocs/internal/auth"
	"github.com/fileverse/ddocs-stack/ddocs/internal/config"
	"github.com/fileverse/ddocs-stack/ddocs/internal/ledger"
	"github.com/fileverse/ddocs-stack/ddocs/internal/mcp"
	ddocsnats "github.com/fileverse/ddocs-stack/ddocs/internal/nats"
	"github.com/fileverse/ddocs-stack/ddocs/internal/repository"
	"github.com/fileverse/ddocs-stack/ddocs/internal/scheduler"
	"github.com/fileverse/ddocs-stack/ddocs/internal/search"
	"github.com/fileverse/ddocs-stack/ddocs/internal/service"
	"github.com/fileverse/ddocs-stack/ddocs/migrations"
)

// app holds the components every command is built from.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	repo      repository.Repository
	resolver  *auth.Resolver
	svc       *service.Service
	catalog   *mcp.Catalog
	engine    *scheduler.Engine
	scheduler *scheduler.Scheduler
	broker    *natsclient.Client

	closers []func() error
}

// newApp connects the store and optional backends described by cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	if err := a.openStore(ctx); err != nil {
		return err
	}

	var (
		cache *redis.Client
		err   error
	)
	if cfg.Redis.Enabled {
		cache, err = auth.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, cache.Close)
		logger.Info("credential cache enabled")
	}
	a.resolver = auth.NewResolver(a.repo, cache, cfg.Auth.CacheTTL, logger)
	if cfg.Auth.APIKey != "" {
		if _, err := a.resolver.Register(ctx, cfg.Auth.APIKey, cfg.Auth.PortalAddress); err != nil {
			return fmt.Errorf("failed to register configured api key: %w", err)
		}
	}

	var index service.Index
	if cfg.OpenSearch.Enabled {
		idx, err := search.NewOpenSearchIndex(search.Config{
			URL:      cfg.OpenSearch.URL,
			Username: cfg.OpenSearch.Username,
			Password: cfg.OpenSearch.Password,
			Insecure: cfg.OpenSearch.Insecure,
			Index:    cfg.OpenSearch.Index,
		})
		if err != nil {
			return err
		}
		if err := idx.EnsureIndex(ctx); err != nil {
			return err
		}
		index = idx
		logger.Info("search index enabled", "index", cfg.OpenSearch.Index)
	}
	a.svc = service.NewService(a.repo, index, logger)
	a.catalog = mcp.MustDefaultCatalog()

	var notifier scheduler.Notifier
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		a.broker, err = natsclient.NewClient(natsCfg, logger.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.closers = append(a.closers, a.broker.Drain)
		notifier = ddocsnats.NewPublisher(a.broker, logger)
		logger.Info("connected to NATS", "url", cfg.NATS.URL)
	}

	a.engine = scheduler.NewEngine(a.repo, a.newLedger(), notifier, scheduler.Config{
		MaxSubmitPerRun:  cfg.Sync.MaxSubmitPerRun,
		MaxResolvePerRun: cfg.Sync.MaxResolvePerRun,
		ExplorerURL:      cfg.Ledger.ExplorerURL,
	}, logger)
	a.scheduler = scheduler.NewScheduler(a.engine, cfg.Sync.SubmitInterval, cfg.Sync.ResolveInterval, logger)
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	opts := repository.Options{ClaimLease: a.cfg.Sync.ClaimLease, MaxRetries: a.cfg.Sync.MaxRetries}

	switch a.cfg.Database.Driver {
	case config.DriverMemory:
		a.logger.Warn("using in-memory store, data is lost on exit")
		a.repo = repository.NewInMemoryRepository(opts)
	default:
		connString := a.cfg.Database.Postgres.ConnString()
		a.logger.Info("running database migrations")
		if err := migrations.Up(connString); err != nil {
			return err
		}
		repo, err := repository.NewPostgresRepository(ctx, connString, a.cfg.Database.MaxConns, opts)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		a.repo = repo
	}
	a.closers = append(a.closers, a.repo.Close)
	return nil
}

func (a *app) newLedger() ledger.Ledger {
	if a.cfg.Ledger.RPCURL != "" {
		a.logger.Info("using RPC ledger", "url", a.cfg.Ledger.RPCURL)
		return ledger.NewRPCLedger(a.cfg.Ledger.RPCURL, a.cfg.Ledger.Timeout).
			WithRateLimit(a.cfg.Ledger.RateLimit, a.cfg.Ledger.RateBurst)
	}
	a.logger.Warn("ledger.rpc_url not set, anchoring to the in-process ledger")
	return ledger.NewLocalLedger()
}

// dispatcher builds the MCP dispatcher over the app's service.
func (a *app) dispatcher() *mcp.Dispatcher {
	return mcp.NewDispatcher(mcp.Config{
		ProtocolVersion:  a.cfg.MCP.ProtocolVersion,
		ServerName:       a.cfg.MCP.ServerName,
		ServerVersion:    a.cfg.MCP.ServerVersion,
		BatchConcurrency: a.cfg.MCP.BatchConcurrency,
	}, a.catalog, mcp.NewServiceExecutor(a.svc), a.resolver, a.logger)
}

// triggerHandler subscribes the scheduler to remote triggers. It returns
// nil when NATS is disabled.
func (a *app) triggerHandler(ctx context.Context) (*ddocsnats.Handler, error) {
	if a.broker == nil {
		return nil, nil
	}
	h := ddocsnats.NewHandler(a.broker, a.scheduler, a.logger)
	if err := h.Start(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
