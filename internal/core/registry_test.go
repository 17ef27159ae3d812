package core_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webitel/actor-node/internal/core"
	"github.com/webitel/actor-node/internal/servicemod"
)

func newTestRegistry(t *testing.T) *core.Registry {
	t.Helper()
	modules := core.NewModuleRegistry(nil)
	modules.Register("recorder", servicemod.NewRecorderModule())
	modules.Register("echo", servicemod.NewEchoModule())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return core.NewRegistry(modules, log, false)
}

func TestRegistryCreateAssignsDistinctHandles(t *testing.T) {
	reg := newTestRegistry(t)

	a, err := reg.Create("recorder", "")
	require.NoError(t, err)
	require.NotZero(t, a)

	b, err := reg.Create("recorder", "")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	require.Equal(t, 2, reg.Count())
}

func TestRegistryCreateUnknownModuleFails(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create("does-not-exist", "")
	require.Error(t, err)
	require.Equal(t, 0, reg.Count())
}

func TestRegistrySendDeliversToRecorder(t *testing.T) {
	reg := newTestRegistry(t)
	h, err := reg.Create("recorder", "")
	require.NoError(t, err)

	_, err = reg.Send(0, h, core.NewSendType(core.MessageText, 0), 0, []byte("hello"))
	require.NoError(t, err)

	svc := reg.PeekSlot(h)
	require.NotNil(t, svc)
}

func TestRegistrySendToUnknownDestFails(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Send(0, core.Handle(0xDEAD), core.NewSendType(core.MessageText, 0), 0, []byte("x"))
	require.ErrorIs(t, err, core.ErrUnknownDest)
}

func TestRegistryRetireIsIdempotentlySafe(t *testing.T) {
	reg := newTestRegistry(t)
	h, err := reg.Create("recorder", "")
	require.NoError(t, err)

	require.NoError(t, reg.Retire(h))
	require.Error(t, reg.Retire(h), "retiring an already-retired handle must report not-found, not panic")

	require.Nil(t, reg.PeekSlot(h))
}

func TestRegistrySetNameAndFindByName(t *testing.T) {
	reg := newTestRegistry(t)
	h, err := reg.Create("recorder", "")
	require.NoError(t, err)

	require.NoError(t, reg.SetName("launcher", h))
	got, ok := reg.FindByName("launcher")
	require.True(t, ok)
	require.Equal(t, h, got)

	require.NoError(t, reg.Retire(h))
	_, ok = reg.FindByName("launcher")
	require.False(t, ok, "retiring a service must clear its aliases")
}

func TestRegistryGrowsSlotTableUnderLoad(t *testing.T) {
	reg := newTestRegistry(t)
	var handles []core.Handle
	for i := 0; i < 50; i++ {
		h, err := reg.Create("recorder", "")
		require.NoError(t, err)
		handles = append(handles, h)
	}
	require.Equal(t, 50, reg.Count())
	for _, h := range handles {
		require.NotNil(t, reg.PeekSlot(h))
	}
}
