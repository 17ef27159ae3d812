package servicemod_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webitel/actor-node/internal/core"
	"github.com/webitel/actor-node/internal/servicemod"
)

// TestEchoPairRelaysThroughRecorder exercises the echo-pair scenario: an
// echo service forwards everything it receives to a peer, and a recorder
// captures the relayed payload for the test to inspect.
func TestEchoPairRelaysThroughRecorder(t *testing.T) {
	modules := core.NewModuleRegistry(nil)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	modules.Register("recorder", servicemod.NewRecorderModule())
	modules.Register("echo", servicemod.NewEchoModule())

	reg := core.NewRegistry(modules, log, false)
	sched := core.NewScheduler(reg, log, 4)
	sched.Start()
	defer sched.Stop()

	recorderHandle, err := reg.Create("recorder", "")
	require.NoError(t, err)

	echoHandle, err := reg.Create("echo", recorderHandle.String())
	require.NoError(t, err)

	_, err = reg.Send(0, echoHandle, core.NewSendType(core.MessageText, 0), 7, []byte("ping"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		svc := reg.PeekSlot(recorderHandle)
		if svc == nil {
			return false
		}
		st := svc.UserData().(*servicemod.RecorderState)
		_, _, _, payload, count := st.Snapshot()
		return count == 1 && string(payload) == "ping"
	}, time.Second, time.Millisecond)
}
