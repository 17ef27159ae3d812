// Package servicemod holds the node's builtin service modules: ones every
// deployment can bootstrap directly rather than supplying its own, the
// Go-native substitute for the original's bundled .service/.lua modules
// (spec.md section 1's scripting runtime is explicitly out of scope, but a
// couple of built-ins still earn their keep as reference modules).
package servicemod

import (
	"log/slog"

	"github.com/webitel/actor-node/internal/core"
)

// loggerModule is the "logger" service: every MessageText it receives is
// logged at info level and nothing else. Grounded on the original's
// logger service, the conventional first service any skynet-family node
// starts so every other service has somewhere to send free-form text.
type loggerModule struct {
	log *slog.Logger
}

// NewLoggerModule returns a core.ModuleFactory for the "logger" module,
// bound to the node's shared logger.
func NewLoggerModule(log *slog.Logger) core.ModuleFactory {
	return func() core.Module { return &loggerModule{log: log} }
}

func (m *loggerModule) Create() any { return nil }

func (m *loggerModule) Init(ctx *core.Context, userData any, args string) error {
	if args != "" {
		m.log.Info("logger service started", "handle", ctx.Handle(), "args", args)
	}
	return nil
}

func (m *loggerModule) Release(ctx *core.Context, userData any) {}

func (m *loggerModule) Signal(ctx *core.Context, userData any, n int) {}

func (m *loggerModule) Callback(ctx *core.Context, userData any, msgType core.MessageType, session uint32, source core.Handle, payload []byte) bool {
	switch msgType {
	case core.MessageText:
		m.log.Info(string(payload), "source", source, "session", session)
	default:
		m.log.Debug("logger received non-text message", "type", msgType.String(), "source", source)
	}
	return false
}
