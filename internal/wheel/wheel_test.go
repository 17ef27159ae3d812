package wheel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	mu  sync.Mutex
	got []entry
}

func (f *fakeResponder) Respond(handle uint32, session uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, entry{handle: handle, session: session})
}

func (f *fakeResponder) snapshot() []entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entry(nil), f.got...)
}

func TestWheelImmediateDeliveryBypassesBuckets(t *testing.T) {
	r := &fakeResponder{}
	w := New(r)

	w.Add(1, 0, 42)

	got := r.snapshot()
	require.Len(t, got, 1)
	require.Equal(t, uint32(1), got[0].handle)
	require.Equal(t, uint32(42), got[0].session)
}

func TestWheelNearRingFiresAfterExactTickCount(t *testing.T) {
	r := &fakeResponder{}
	w := New(r)

	w.Add(7, 3, 99)
	require.Empty(t, r.snapshot())

	w.tick()
	require.Empty(t, r.snapshot())
	w.tick()
	require.Empty(t, r.snapshot())
	w.tick()
	require.Len(t, r.snapshot(), 1, "entry must fire exactly on its third tick")
	require.Equal(t, uint32(7), r.snapshot()[0].handle)
}

func TestWheelCascadesFromFarLevelIntoNear(t *testing.T) {
	r := &fakeResponder{}
	w := New(r)

	// Past nearSize ticks out, this entry must be filed into a far bucket
	// and cascade down as the wheel advances.
	const ticks = nearSize + 10
	w.Add(5, ticks, 1)

	for i := 0; i < ticks-1; i++ {
		w.tick()
	}
	require.Empty(t, r.snapshot(), "must not fire before its deadline")

	w.tick()
	require.Len(t, r.snapshot(), 1)
	require.Equal(t, uint32(5), r.snapshot()[0].handle)
}

func TestWheelOrdersMultipleEntriesInSameBucketByInsertion(t *testing.T) {
	r := &fakeResponder{}
	w := New(r)

	w.Add(1, 5, 1)
	w.Add(2, 5, 2)
	w.Add(3, 5, 3)

	for i := 0; i < 5; i++ {
		w.tick()
	}

	got := r.snapshot()
	require.Len(t, got, 3)
	require.Equal(t, []uint32{1, 2, 3}, []uint32{got[0].handle, got[1].handle, got[2].handle})
}
