package servicemod

import (
	"fmt"

	"github.com/webitel/actor-node/internal/core"
)

// echoModule forwards every text message it receives to the peer handle
// given as its Init arg, used by the echo-pair scenario (spec.md section
// 8): service A is given B's handle string as args and relays whatever it
// is sent straight to B with a freshly allocated session.
type echoModule struct{}

// NewEchoModule returns a core.ModuleFactory for the "echo" module.
func NewEchoModule() core.ModuleFactory {
	return func() core.Module { return &echoModule{} }
}

type echoState struct {
	peer core.Handle
}

func (m *echoModule) Create() any { return &echoState{} }

func (m *echoModule) Init(ctx *core.Context, userData any, args string) error {
	st := userData.(*echoState)
	if args == "" {
		return nil // a pure sink, e.g. service B in the echo-pair scenario
	}
	h, ok := core.ParseHandle(args)
	if !ok {
		return fmt.Errorf("echo: bad peer handle %q", args)
	}
	st.peer = h
	return nil
}

func (m *echoModule) Release(ctx *core.Context, userData any) {}

func (m *echoModule) Signal(ctx *core.Context, userData any, n int) {}

func (m *echoModule) Callback(ctx *core.Context, userData any, msgType core.MessageType, session uint32, source core.Handle, payload []byte) bool {
	st := userData.(*echoState)
	if st.peer == 0 || msgType != core.MessageText {
		return false
	}
	_, _ = ctx.Send(0, st.peer, core.NewSendType(core.MessageText, core.FlagAllocSession), session, payload)
	return false
}
