package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxFIFOOrder(t *testing.T) {
	mb := newMailbox(Handle(1))
	rq := newReadyQueue()

	for i := 0; i < 5; i++ {
		require.NoError(t, mb.push(Message{Session: uint32(i)}, rq))
	}

	for i := 0; i < 5; i++ {
		msg, ok := mb.pop()
		require.True(t, ok)
		require.Equal(t, uint32(i), msg.Session)
	}

	_, ok := mb.pop()
	require.False(t, ok)
}

func TestMailboxGrowsPastInitialCapacity(t *testing.T) {
	mb := newMailbox(Handle(1))
	rq := newReadyQueue()

	n := mailboxDefaultCapacity * 3
	for i := 0; i < n; i++ {
		require.NoError(t, mb.push(Message{Session: uint32(i)}, rq))
	}
	require.GreaterOrEqual(t, len(mb.ring), n+1)

	for i := 0; i < n; i++ {
		msg, ok := mb.pop()
		require.True(t, ok)
		require.Equal(t, uint32(i), msg.Session)
	}
}

func TestMailboxLinksIntoReadyQueueOnlyOnce(t *testing.T) {
	mb := newMailbox(Handle(1))
	rq := newReadyQueue()

	require.NoError(t, mb.push(Message{Session: 1}, rq))
	require.NoError(t, mb.push(Message{Session: 2}, rq))

	require.Same(t, mb, rq.pop())
	require.Nil(t, rq.pop(), "mailbox must only be linked once no matter how many pushes happened first")
}

func TestMailboxFinishDrainRelinkSemantics(t *testing.T) {
	mb := newMailbox(Handle(1))
	rq := newReadyQueue()
	require.NoError(t, mb.push(Message{Session: 1}, rq))
	rq.pop()

	_, _ = mb.pop()
	require.False(t, mb.finishDrain(), "mailbox drained to empty must clear inGlobal")

	require.NoError(t, mb.push(Message{Session: 2}, rq))
	rq.pop()
	require.True(t, mb.finishDrain(), "mailbox still holding a message must report it needs relinking")
}

func TestMailboxOverloadWatermarkTracksPeak(t *testing.T) {
	mb := newMailbox(Handle(1))
	rq := newReadyQueue()

	for i := 0; i < mailboxDefaultOverload+1; i++ {
		require.NoError(t, mb.push(Message{}, rq))
	}
	require.Greater(t, mb.overloadCounter(), mailboxDefaultOverload)

	for i := 0; i < mailboxDefaultOverload+1; i++ {
		mb.pop()
	}
	require.Equal(t, mb.overloadCounter(), mb.peakOverload)
}

func TestMailboxDrainToErrorsBouncesEverySender(t *testing.T) {
	mb := newMailbox(Handle(1))
	rq := newReadyQueue()
	require.NoError(t, mb.push(Message{Source: Handle(10)}, rq))
	require.NoError(t, mb.push(Message{Source: Handle(20)}, rq))

	var bounced []Handle
	mb.drainToErrors(func(source Handle) {
		bounced = append(bounced, source)
	})

	require.Equal(t, []Handle{Handle(10), Handle(20)}, bounced)
	_, ok := mb.pop()
	require.False(t, ok)
}
