// Package app is the composition root: it turns the run settings into a started connection
// manager and ties the manager to the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/config"
	"github.com/smartcontractkit/chainlink-connections/connection"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// Module provides the logger, registry, metrics, manager and facade from *config.Settings.
var Module = fx.Module("chainconn",
	fx.Provide(
		ProvideLogger,
		ProvideManifest,
		ProvideRegistry,
		ProvideMetrics,
		ProvideManager,
		connection.NewFacade,
	),
	fx.Invoke(registerLifecycle),
)

// New returns an application for settings. Extra options are appended, typically fx.Invoke or
// fx.Populate calls of the command being run, or fx.Replace overrides in tests.
func New(settings *config.Settings, opts ...fx.Option) *fx.App {
	base := []fx.Option{
		fx.Supply(settings),
		Module,
		fx.WithLogger(newFxLogger),
	}

	return fx.New(append(base, opts...)...)
}

// ProvideLogger builds the runtime logger from the settings.
func ProvideLogger(settings *config.Settings) (logger.Logger, error) {
	cfg, err := settings.LoggerConfig()
	if err != nil {
		return nil, err
	}

	return cfg.New()
}

// ProvideManifest loads the configured manifest, or the built in one.
func ProvideManifest(settings *config.Settings) (*config.Manifest, error) {
	return config.ManifestFor(settings.Registry.ManifestPath)
}

// RegistryResult is the output of ProvideRegistry.
type RegistryResult struct {
	fx.Out

	Registry *chain.Registry
	Keys     Keys
}

// ProvideRegistry builds the chain registry of the manifest.
func ProvideRegistry(settings *config.Settings, m *config.Manifest, lggr logger.Logger) (RegistryResult, error) {
	reg, keys, err := BuildRegistry(m, settings.DialConfig(), logger.Named(lggr, "registry"))
	if err != nil {
		return RegistryResult{}, err
	}

	return RegistryResult{Registry: reg, Keys: keys}, nil
}

// MetricsParams is the input of ProvideMetrics.
type MetricsParams struct {
	fx.In

	Registerer prometheus.Registerer `optional:"true"`
}

// ProvideMetrics registers the manager metrics. Without a supplied prometheus.Registerer no
// metrics are recorded.
func ProvideMetrics(p MetricsParams) (*connection.Metrics, error) {
	if p.Registerer == nil {
		return nil, nil
	}

	return connection.NewMetrics(p.Registerer)
}

// ProvideManager creates the connection manager.
func ProvideManager(settings *config.Settings, reg *chain.Registry, metrics *connection.Metrics, lggr logger.Logger) (*connection.Manager, error) {
	return connection.NewManager(connection.Config{
		Registry:       reg,
		Dev:            settings.Registry.Dev,
		ConnectTimeout: settings.Connection.ConnectTimeout,
		Logger:         lggr,
		Metrics:        metrics,
	})
}

// LifecycleOptions tunes the lifecycle hooks.
type LifecycleOptions struct {
	// SkipAutoConnect leaves the default chain idle on start.
	SkipAutoConnect bool
}

// WithoutAutoConnect starts the application without connecting the default chain. Commands that
// choose their own chains use it.
func WithoutAutoConnect() fx.Option {
	return fx.Supply(LifecycleOptions{SkipAutoConnect: true})
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Manager   *connection.Manager
	Logger    logger.Logger
	Options   LifecycleOptions `optional:"true"`
}

// registerLifecycle connects the default chain on start and releases every connection on stop.
func registerLifecycle(p lifecycleParams) {
	m, lggr := p.Manager, p.Logger

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if p.Options.SkipAutoConnect {
				return nil
			}

			id := m.DefaultChain()
			if err := m.Activate(id); err != nil {
				return fmt.Errorf("failed to activate default chain %s: %w", id, err)
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := m.Close(ctx)
			if serr := lggr.Sync(); serr != nil {
				lggr.Debugw("Failed to sync logger", "error", serr)
			}

			return err
		},
	})
}

// Run starts an application for settings, calls fn with its facade and keys, and stops the
// application again. The error of fn and the stop error are joined.
func Run(ctx context.Context, settings *config.Settings, fn func(context.Context, *connection.Facade, Keys) error, opts ...fx.Option) error {
	var (
		facade *connection.Facade
		keys   Keys
	)
	a := New(settings, append(opts[:len(opts):len(opts)], fx.Populate(&facade, &keys))...)
	if err := a.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	runErr := fn(ctx, facade, keys)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.StopTimeout())
	defer cancel()

	return errors.Join(runErr, a.Stop(stopCtx))
}
