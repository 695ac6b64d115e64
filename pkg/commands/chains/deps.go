package chains

import (
	"context"

	"go.uber.org/fx"

	"github.com/smartcontractkit/chainlink-connections/config"
	"github.com/smartcontractkit/chainlink-connections/connection"
	"github.com/smartcontractkit/chainlink-connections/internal/app"
)

// SettingsLoaderFunc returns the run settings. It is called when a subcommand runs, after flag
// parsing.
type SettingsLoaderFunc func() (*config.Settings, error)

// AppRunnerFunc starts the connection manager, runs fn against it and shuts it down.
type AppRunnerFunc func(
	ctx context.Context,
	settings *config.Settings,
	fn func(context.Context, *connection.Facade, app.Keys) error,
	opts ...fx.Option,
) error

// Deps holds the injectable dependencies for chain commands.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// SettingsLoader loads the run settings.
	// Default: config.LoadEnv
	SettingsLoader SettingsLoaderFunc

	// AppRunner runs the connection manager.
	// Default: app.Run
	AppRunner AppRunnerFunc

	// AppOptions are appended to every application the commands start.
	AppOptions []fx.Option
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.SettingsLoader == nil {
		d.SettingsLoader = config.LoadEnv
	}
	if d.AppRunner == nil {
		d.AppRunner = app.Run
	}
}
