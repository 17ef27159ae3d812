package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadyQueuePushPopFIFO(t *testing.T) {
	q := newReadyQueue()
	a := &Mailbox{owner: Handle(1)}
	b := &Mailbox{owner: Handle(2)}

	q.push(a)
	q.push(b)

	require.Same(t, a, q.pop())
	require.Same(t, b, q.pop())
	require.Nil(t, q.pop())
}

func TestReadyQueueWaitPopWakesOnPush(t *testing.T) {
	q := newReadyQueue()
	a := &Mailbox{owner: Handle(1)}

	done := make(chan *Mailbox, 1)
	go func() { done <- q.waitPop() }()

	// Give the goroutine a chance to block in cond.Wait before pushing.
	time.Sleep(10 * time.Millisecond)
	q.push(a)

	select {
	case mb := <-done:
		require.Same(t, a, mb)
	case <-time.After(time.Second):
		t.Fatal("waitPop never woke up after push")
	}
}

func TestReadyQueueCloseUnblocksWaiters(t *testing.T) {
	q := newReadyQueue()

	done := make(chan *Mailbox, 1)
	go func() { done <- q.waitPop() }()

	time.Sleep(10 * time.Millisecond)
	q.closeAndBroadcast()

	select {
	case mb := <-done:
		require.Nil(t, mb)
	case <-time.After(time.Second):
		t.Fatal("waitPop never woke up after close")
	}
}
