package coordinator

import (
	"log/slog"

	"github.com/webitel/actor-node/internal/core"
	"github.com/webitel/actor-node/internal/servicemod"
)

// RegisterBuiltinModules binds every module this repository ships directly
// (as opposed to one a deployment supplies of its own) into modules. Call
// once during startup wiring, before any bootstrap or on-demand Create.
func RegisterBuiltinModules(modules *core.ModuleRegistry, log *slog.Logger) {
	modules.Register("logger", servicemod.NewLoggerModule(log))
	modules.Register("echo", servicemod.NewEchoModule())
	modules.Register("recorder", servicemod.NewRecorderModule())
	modules.Register(servicemod.StreamWatcherModuleName, servicemod.NewStreamWatcherModule())
}
