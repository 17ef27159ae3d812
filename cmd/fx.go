package cmd

import (
	"github.com/webitel/actor-node/internal/adapter/adminapi"
	"github.com/webitel/actor-node/internal/adapter/cmdbus"
	"github.com/webitel/actor-node/internal/adapter/httpapi"
	"github.com/webitel/actor-node/internal/config"
	"go.uber.org/fx"
)

// NewApp assembles the node's fx.App: config is supplied as a fixed value,
// everything else is built lazily as fx resolves ProvideNode's dependents.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideModuleRegistry,
			ProvideNode,
			ProvideAdminAPI,
			ProvideHTTPAPI,
			ProvideCmdBus,
		),
		fx.Invoke(func(*adminapi.Server, *httpapi.Server, *cmdbus.Bus) {}),
	)
}
