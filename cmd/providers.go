package cmd

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/actor-node/internal/adapter/adminapi"
	"github.com/webitel/actor-node/internal/adapter/cmdbus"
	"github.com/webitel/actor-node/internal/adapter/httpapi"
	"github.com/webitel/actor-node/internal/config"
	"github.com/webitel/actor-node/internal/coordinator"
	"github.com/webitel/actor-node/internal/core"
	"github.com/webitel/actor-node/internal/logging"
)

// ProvideLogger builds the shared slog.Logger and registers its OTel
// LoggerProvider shutdown as an fx OnStop hook.
func ProvideLogger(lc fx.Lifecycle, cfg *config.Config) *slog.Logger {
	log, shutdown := logging.NewLogger(cfg.Logging)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return shutdown(ctx) },
	})
	return log
}

// ProvideModuleRegistry builds the module loader and registers every
// builtin module this repository ships, then — if the node ran off a
// config file — watches it so editing node.search_paths re-resolves
// future module lookups without a restart.
func ProvideModuleRegistry(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *core.ModuleRegistry {
	modules := core.NewModuleRegistry(cfg.Node.SearchPaths)
	coordinator.RegisterBuiltinModules(modules, log)

	watcher, err := config.WatchSearchPaths(cfg.Path, log, modules.SetSearchPaths)
	if err != nil {
		log.Warn("module search path hot-reload unavailable", "err", err)
	} else if watcher != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return watcher.Close() },
		})
	}
	return modules
}

// ProvideNode assembles the coordinator.Node and wires its Start/Stop into
// the fx lifecycle, including the configured bootstrap service list.
func ProvideNode(lc fx.Lifecycle, cfg *config.Config, modules *core.ModuleRegistry, log *slog.Logger) (*coordinator.Node, error) {
	node, err := coordinator.New(cfg, modules, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := node.Start(ctx); err != nil {
				return err
			}
			return node.Bootstrap(cfg)
		},
		OnStop: func(ctx context.Context) error {
			return node.Stop(ctx)
		},
	})
	return node, nil
}

// ProvideAdminAPI builds the admin gRPC surface when cfg.Admin.Enabled,
// serving in its own goroutine and stopping gracefully on fx shutdown.
func ProvideAdminAPI(lc fx.Lifecycle, cfg *config.Config, node *coordinator.Node, log *slog.Logger) (*adminapi.Server, error) {
	if !cfg.Admin.Enabled {
		return nil, nil
	}
	srv, err := adminapi.New(cfg.Admin.Addr, node.Registry, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Serve(); err != nil {
					log.Error("admin api serve error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop()
			return nil
		},
	})
	return srv, nil
}

// ProvideHTTPAPI builds the HTTP introspection plane when cfg.HTTP.Enabled.
func ProvideHTTPAPI(lc fx.Lifecycle, cfg *config.Config, node *coordinator.Node, log *slog.Logger) (*httpapi.Server, error) {
	if !cfg.HTTP.Enabled {
		return nil, nil
	}
	srv, err := httpapi.New(cfg.HTTP.Addr, node.Registry, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Serve(); err != nil {
					log.Error("http api serve error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv, nil
}

// ProvideCmdBus builds the AMQP command-bus transport when cfg.CmdBus.Enabled.
func ProvideCmdBus(lc fx.Lifecycle, cfg *config.Config, node *coordinator.Node, log *slog.Logger) (*cmdbus.Bus, error) {
	bus, err := cmdbus.New(cfg.CmdBus, node.Registry, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := bus.Run(context.Background()); err != nil {
					log.Error("cmdbus run error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return bus.Close()
		},
	})
	return bus, nil
}
