package servicemod

import (
	"github.com/webitel/actor-node/internal/core"
)

// StreamWatcherModuleName is the fixed module name the coordinator
// registers streamWatcherModule under; internal/adapter/httpapi creates one
// instance per open /stream websocket connection.
const StreamWatcherModuleName = "_stream_watcher"

// streamWatcherModule relays every MessageSystem notification it receives
// (a MONITOR exit notice, spec.md section 6) onto an unbuffered-from-the-
// caller's-perspective channel the httpapi handler reads from.
type streamWatcherModule struct{}

// NewStreamWatcherModule returns a core.ModuleFactory for
// StreamWatcherModuleName.
func NewStreamWatcherModule() core.ModuleFactory {
	return func() core.Module { return &streamWatcherModule{} }
}

// StreamWatcherState is the module's userData: the channel httpapi reads
// exit notifications from.
type StreamWatcherState struct {
	Events chan []byte
}

func (m *streamWatcherModule) Create() any {
	return &StreamWatcherState{Events: make(chan []byte, 64)}
}

func (m *streamWatcherModule) Init(ctx *core.Context, userData any, args string) error { return nil }

func (m *streamWatcherModule) Release(ctx *core.Context, userData any) {
	st := userData.(*StreamWatcherState)
	close(st.Events)
}

func (m *streamWatcherModule) Signal(ctx *core.Context, userData any, n int) {}

func (m *streamWatcherModule) Callback(ctx *core.Context, userData any, msgType core.MessageType, session uint32, source core.Handle, payload []byte) bool {
	st := userData.(*StreamWatcherState)
	if msgType != core.MessageSystem {
		return false
	}
	select {
	case st.Events <- append([]byte(nil), payload...):
	default:
		// a slow websocket client drops notifications rather than blocking
		// the scheduler worker delivering them
	}
	return false
}
