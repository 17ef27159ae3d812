package core

import (
	"sync/atomic"
	"time"
)

// Service is the unit of isolation: private state plus a mailbox plus a
// handle, per spec.md section 3.
type Service struct {
	handle Handle

	module   Module
	userData any
	mailbox  *Mailbox

	refcount atomic.Int32

	initialized atomic.Bool
	blocked     atomic.Bool

	msgCount atomic.Uint64

	profiling    bool
	profileNanos atomic.Int64 // accumulated callback CPU time, wall-clock approximation

	nextSession atomic.Uint32

	// logWriter is the optional per-service log destination toggled by
	// LOG_ON/LOG_OFF; nil means "use the shared node logger only".
	logWriter atomic.Pointer[LogSink]

	// name is not written by the registry and stays nil; the diagnostic
	// reverse lookup lives in Registry.DiagnosticName, and the registry's
	// alias table remains the source of truth for resolution.
	name atomic.Pointer[string]
}

// LogSink is the per-service log destination LOG_ON attaches and LOG_OFF
// detaches. Implemented by internal/logging's rotating file writer; core
// only attaches and closes one, and does not write dispatched messages to it.
type LogSink interface {
	Write(p []byte) (int, error)
	Close() error
}

func newService(h Handle, mod Module, userData any, profiling bool) *Service {
	s := &Service{
		handle:   h,
		module:   mod,
		userData: userData,
		mailbox:  newMailbox(h),
		profiling: profiling,
	}
	s.refcount.Store(1) // the registry's own strong reference
	return s
}

// allocSession returns this service's next positive session id, wrapping
// back to 1 on overflow — spec.md section 3's "next-session counter".
func (s *Service) allocSession() uint32 {
	for {
		cur := s.nextSession.Load()
		next := cur + 1
		if next == 0 {
			next = 1
		}
		if s.nextSession.CompareAndSwap(cur, next) {
			if next == 0 {
				return 1
			}
			return next
		}
	}
}

// Handle returns the service's stable handle.
func (s *Service) Handle() Handle { return s.handle }

// UserData returns the private state Module.Create produced for this
// service, exposed so tests (and diagnostics) can inspect module-owned
// state without the module needing to publish its own accessor through
// the message protocol.
func (s *Service) UserData() any { return s.userData }

// IsBlocked reports whether the monitor has flagged this service as stuck
// in a callback.
func (s *Service) IsBlocked() bool { return s.blocked.Load() }

// MessageCount returns the number of messages dispatched to this service so
// far (STAT "message").
func (s *Service) MessageCount() uint64 { return s.msgCount.Load() }

// CPUTime returns the accumulated wall-clock approximation of time spent
// inside this service's callback (STAT "cpu"); zero if profiling is off.
func (s *Service) CPUTime() time.Duration { return time.Duration(s.profileNanos.Load()) }

// MailboxLength returns the current queue depth (STAT "mqlen").
func (s *Service) MailboxLength() int { return s.mailbox.peekLength() }

// OverloadPeak returns the highest overload watermark reached since the
// mailbox last fully drained.
func (s *Service) OverloadPeak() int { return s.mailbox.overloadCounter() }
