package core

import "sync"

// readyQueue is the global intrusive singly-linked list of mailboxes
// currently known to hold pending messages (spec.md section 3). It never
// owns a Mailbox — it only borrows the next pointer — so freeing a mailbox
// is always the registry's business, never the queue's.
type readyQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	head   *Mailbox
	tail   *Mailbox
	closed bool
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push links a newly-ready mailbox onto the tail and wakes one sleeping
// worker.
func (q *readyQueue) push(mb *Mailbox) {
	q.mu.Lock()
	mb.next = nil
	if q.tail == nil {
		q.head = mb
	} else {
		q.tail.next = mb
	}
	q.tail = mb
	q.mu.Unlock()
	q.cond.Signal()
}

// relink re-appends a mailbox that a worker already popped and is handing
// back (step 6 of the worker loop, or the dead-owner fallback). It does not
// touch mb.inGlobal — the flag was never cleared for a mailbox taking this
// path.
func (q *readyQueue) relink(mb *Mailbox) {
	q.push(mb)
}

// pop removes and returns the head mailbox, or nil if the queue is empty.
// Non-blocking; used by worker-loop step 6 to look ahead without sleeping.
func (q *readyQueue) pop() *Mailbox {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *readyQueue) popLocked() *Mailbox {
	mb := q.head
	if mb == nil {
		return nil
	}
	q.head = mb.next
	if q.head == nil {
		q.tail = nil
	}
	mb.next = nil
	return mb
}

// waitPop blocks until a mailbox is ready or the queue is closed for
// shutdown, in which case it returns nil.
func (q *readyQueue) waitPop() *Mailbox {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head == nil && !q.closed {
		q.cond.Wait()
	}
	if q.head == nil {
		return nil
	}
	return q.popLocked()
}

// closeAndBroadcast wakes every worker blocked in waitPop so they can
// observe shutdown, per spec.md section 4.5.
func (q *readyQueue) closeAndBroadcast() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
