// Package app wires configuration into a ready resolution engine. The HTTP
// server and the CLI both start from here.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/unison/internal/config"
	"github.com/agenthands/unison/internal/core"
	"github.com/agenthands/unison/internal/core/cardinality"
	"github.com/agenthands/unison/internal/diag"
	"github.com/agenthands/unison/internal/driver"
)

type App struct {
	Config *config.Config
	Engine *core.Engine
	Store  driver.Store
	Loader driver.Loader
	Logger *zap.Logger

	closers []func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	catalog, err := cardinality.CatalogFromConfig(cfg.RelationshipTypes)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to build cardinality catalog: %w", err)
	}

	sink := diag.NewAsyncSink(diag.NewZapSink(logger.Named("diag")), cfg.Duplicates.DiagnosticBuffer)
	a.closers = append(a.closers, func(context.Context) error {
		sink.Close()
		return nil
	})

	a.Engine = core.NewEngine(a.Store, catalog, sink, core.Settings{
		ConsolidationThreshold: cfg.Duplicates.ConsolidationThreshold,
		PeerThreshold:          cfg.Duplicates.PeerThreshold,
		PageSize:               cfg.Store.PageSize,
		MaxPages:               cfg.Store.MaxPages,
	}, logger.Named("engine"))

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Backend {
	case config.BackendSQLite:
		s, err := driver.OpenSQLiteStore(ctx, a.Config.Store.SQLitePath, a.Logger.Named("sqlite"))
		if err != nil {
			return err
		}
		a.Store, a.Loader = s, s
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })

	case config.BackendMemgraph:
		m := a.Config.Memgraph
		d, err := driver.NewMemgraphDriver(ctx, m.URI, m.User, m.Password, a.Logger.Named("memgraph"))
		if err != nil {
			return fmt.Errorf("failed to connect to memgraph: %w", err)
		}
		if err := d.BuildIndices(ctx); err != nil {
			_ = d.Close(ctx)
			return err
		}
		s := driver.NewMemgraphStore(d, a.Logger.Named("memgraph"))
		a.Store, a.Loader = s, s
		a.closers = append(a.closers, d.Close)

	default:
		return fmt.Errorf("unknown store backend %q", a.Config.Store.Backend)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
