package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdaptReadSizeDoublesOnFullRead(t *testing.T) {
	s := newSocket(1, -1, kindTCPStream, 0)
	require.Equal(t, minReadBuffer, s.readBufSize)

	s.adaptReadSize(s.readBufSize)
	require.Equal(t, minReadBuffer*2, s.readBufSize)

	s.adaptReadSize(s.readBufSize)
	require.Equal(t, minReadBuffer*4, s.readBufSize)
}

func TestAdaptReadSizeHalvesOnSmallRead(t *testing.T) {
	s := newSocket(1, -1, kindTCPStream, 0)
	s.readBufSize = minReadBuffer * 4

	// a read under half capacity shrinks the buffer
	s.adaptReadSize(minReadBuffer - 1)
	require.Equal(t, minReadBuffer*2, s.readBufSize)
}

func TestAdaptReadSizeFloorsAtMinReadBuffer(t *testing.T) {
	s := newSocket(1, -1, kindTCPStream, 0)
	s.readBufSize = minReadBuffer

	s.adaptReadSize(1)
	require.Equal(t, minReadBuffer, s.readBufSize)
}

func TestAdaptReadSizeLeavesMidRangeReadsAlone(t *testing.T) {
	s := newSocket(1, -1, kindTCPStream, 0)
	s.readBufSize = 256

	// neither a full read nor under half capacity
	s.adaptReadSize(200)
	require.Equal(t, 256, s.readBufSize)
}

func TestCheckWarningFiresOnceAtWatermarkAndDoublesNextTarget(t *testing.T) {
	s := newSocket(1, -1, kindTCPStream, 0)

	s.wbSize = warningSize - 1
	warn, _ := s.checkWarning()
	require.False(t, warn)

	s.wbSize = warningSize
	warn, size := s.checkWarning()
	require.True(t, warn)
	require.Equal(t, int64(warningSize), size)
	require.Equal(t, int64(warningSize*2), s.warnAt)

	// below the doubled watermark, no repeat warning
	s.wbSize = warningSize + 1
	warn, _ = s.checkWarning()
	require.False(t, warn)

	s.wbSize = warningSize * 2
	warn, _ = s.checkWarning()
	require.True(t, warn)
	require.Equal(t, int64(warningSize*4), s.warnAt)
}

func TestClearWarningResetsRatchetOnlyWhenPreviouslyWarned(t *testing.T) {
	s := newSocket(1, -1, kindTCPStream, 0)

	require.False(t, s.clearWarning(), "nothing to clear before any warning fired")

	s.wbSize = warningSize
	warn, _ := s.checkWarning()
	require.True(t, warn)

	require.True(t, s.clearWarning())
	require.Equal(t, int64(0), s.warnAt)
	require.False(t, s.clearWarning(), "second clear is a no-op")

	// the ratchet restarts from warningSize, not wherever it last reached
	s.wbSize = warningSize
	warn, _ = s.checkWarning()
	require.True(t, warn)
	require.Equal(t, int64(warningSize*2), s.warnAt)
}

func TestTableAllocGetFree(t *testing.T) {
	tbl := newTable()

	s := tbl.alloc(42, kindTCPStream, 7)
	require.NotNil(t, s)
	require.Equal(t, 1, tbl.count())

	got := tbl.get(s.id)
	require.Same(t, s, got)

	tbl.free(s.id)
	require.Equal(t, 0, tbl.count())
	require.Nil(t, tbl.get(s.id))
}

func TestTableGetRejectsStaleIDAfterSlotReuse(t *testing.T) {
	tbl := newTable()

	first := tbl.alloc(1, kindTCPStream, 0)
	tbl.free(first.id)

	second := tbl.alloc(2, kindTCPStream, 0)
	require.NotEqual(t, first.id, second.id, "ids keep incrementing past a freed slot")
	require.Nil(t, tbl.get(first.id), "a stale id must not alias the slot's new occupant")
	require.Same(t, second, tbl.get(second.id))
}
