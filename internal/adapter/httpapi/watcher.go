package httpapi

import (
	"fmt"

	"github.com/webitel/actor-node/internal/core"
	"github.com/webitel/actor-node/internal/servicemod"
)

// newStreamWatcher creates one streamWatcherModule instance, issues a
// MONITOR-all command on its own behalf, and returns its handle plus the
// channel its Callback forwards exit notifications onto.
func newStreamWatcher(reg *core.Registry) (core.Handle, <-chan []byte, error) {
	h, err := reg.Create(servicemod.StreamWatcherModuleName, "")
	if err != nil {
		return 0, nil, fmt.Errorf("httpapi: create stream watcher: %w", err)
	}
	if _, err := reg.ExecCommand(h, "MONITOR", ""); err != nil {
		_ = reg.Retire(h)
		return 0, nil, fmt.Errorf("httpapi: register monitor: %w", err)
	}
	svc := reg.PeekSlot(h)
	st := svc.UserData().(*servicemod.StreamWatcherState)
	return h, st.Events, nil
}
