package core

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// weightTable mirrors spec.md section 4.2's fairness table: worker i is
// assigned weightTable[i % len(weightTable)], which decides how many
// messages it drains from one ready mailbox before yielding the worker to
// the next mailbox, so one chatty service cannot starve its neighbors.
var weightTable = []int{-1, -1, -1, -1, 0, 0, 0, 0, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 3}

// drainCount computes how many messages a worker pops in one visit to a
// mailbox of the given length, given its assigned weight: -1 always drains
// exactly one message, 0 drains the mailbox dry, and a positive k drains
// length>>k, floored at one whenever the mailbox is non-empty.
func drainCount(weight, length int) int {
	switch {
	case length <= 0:
		return 0
	case weight < 0:
		return 1
	case weight == 0:
		return length
	default:
		n := length >> uint(weight)
		if n < 1 {
			n = 1
		}
		return n
	}
}

// workerHeartbeat records the message a worker is currently dispatching, so
// Monitor can detect a callback that never returns. version is bumped
// immediately before and immediately after a callback runs: an odd value
// observed across two consecutive monitor samples, with dest unchanged,
// means the callback that started it has not returned in that whole
// interval.
type workerHeartbeat struct {
	version atomic.Uint64
	dest    atomic.Uint32
}

// Scheduler owns the fixed-size worker pool draining the registry's global
// ready-queue, per spec.md section 4.2.
type Scheduler struct {
	reg        *Registry
	log        *slog.Logger
	heartbeats []*workerHeartbeat
	wg         sync.WaitGroup
}

// NewScheduler builds a scheduler with n workers, not yet started.
func NewScheduler(reg *Registry, log *slog.Logger, n int) *Scheduler {
	if n < 1 {
		n = 1
	}
	hbs := make([]*workerHeartbeat, n)
	for i := range hbs {
		hbs[i] = &workerHeartbeat{}
	}
	return &Scheduler{reg: reg, log: log, heartbeats: hbs}
}

// Heartbeats exposes the per-worker heartbeat slice for Monitor.
func (s *Scheduler) Heartbeats() []*workerHeartbeat { return s.heartbeats }

// Start launches one goroutine per configured worker. Each blocks on the
// ready-queue until Stop closes it.
func (s *Scheduler) Start() {
	for i := range s.heartbeats {
		s.wg.Add(1)
		go s.runWorker(i)
	}
}

// Stop wakes every blocked worker and waits for them to exit their loops.
func (s *Scheduler) Stop() {
	s.reg.readyQueuePtr().closeAndBroadcast()
	s.wg.Wait()
}

func (s *Scheduler) bounce(source Handle) {
	_, _ = s.reg.Send(0, source, NewSendType(MessageError, 0), 0, nil)
}

// runWorker implements spec.md section 4.2's worker loop: pop a ready
// mailbox, grab its owning service, drain a weight-determined slice of
// pending messages through the service's callback, and either relink the
// mailbox (more work remains) or let it go idle.
func (s *Scheduler) runWorker(idx int) {
	defer s.wg.Done()
	weight := weightTable[idx%len(weightTable)]
	hb := s.heartbeats[idx]
	rq := s.reg.readyQueuePtr()

	for {
		mb := rq.waitPop()
		if mb == nil {
			return
		}

		svc := s.reg.Grab(mb.owner)
		if svc == nil {
			mb.handleDeadOwner(rq, s.bounce)
			continue
		}

		if !svc.initialized.Load() {
			// Constructed but Init hasn't returned yet (e.g. a service
			// sending itself a message from within its own Init hook).
			// Hand the mailbox straight back without touching it.
			rq.relink(mb)
			s.reg.Release(svc)
			continue
		}

		n := drainCount(weight, mb.peekLength())
		s.dispatch(svc, mb, n, hb)
		if mb.finishDrain() {
			rq.relink(mb)
		}
		s.reg.Release(svc)
	}
}

// dispatch pops up to n messages from mb and runs each through the
// service's module callback, recovering from a panicking callback so one
// bad service cannot take a worker down with it.
func (s *Scheduler) dispatch(svc *Service, mb *Mailbox, n int, hb *workerHeartbeat) {
	ctx := &Context{reg: s.reg, handle: svc.handle}
	for i := 0; i < n; i++ {
		msg, ok := mb.pop()
		if !ok {
			return
		}

		hb.dest.Store(uint32(svc.handle))
		hb.version.Add(1) // odd: callback in flight

		start := time.Now()
		s.runCallback(ctx, svc, msg)
		if svc.profiling {
			svc.profileNanos.Add(int64(time.Since(start)))
		}
		svc.msgCount.Add(1)

		hb.version.Add(1) // even: callback returned
		hb.dest.Store(0)
	}
}

func (s *Scheduler) runCallback(ctx *Context, svc *Service, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("service callback panicked", "handle", svc.handle, "panic", r)
		}
	}()
	svc.module.Callback(ctx, svc.userData, msg.Type, msg.Session, msg.Source, msg.Payload)
}
