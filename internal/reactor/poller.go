// Package reactor implements the socket I/O reactor of spec.md section 4.3:
// a single poller goroutine multiplexing every listening, connected, and
// UDP socket through epoll (Linux) or kqueue (BSD/macOS), fed by a command
// channel from arbitrary caller goroutines and delivering inbound data and
// connection-lifecycle events through an injected Deliver closure rather
// than a concrete dependency on internal/core, keeping the two packages
// free of an import cycle.
package reactor

// eventKind classifies one readiness notification from the platform poller.
type eventKind uint8

const (
	eventReadable eventKind = 1 << iota
	eventWritable
	eventError
	eventHangup
)

// pollEvent is the platform-independent readiness notification the epoll
// and kqueue backends normalize to.
type pollEvent struct {
	fd   int
	kind eventKind
}

// poller is the seam between the reactor loop and the OS-specific
// readiness mechanism, implemented by poller_epoll.go (linux) and
// poller_kqueue.go (darwin/bsd). A poller is not safe for concurrent Wait
// calls, but Add/Modify/Remove may be called from any goroutine provided
// Wait is not concurrently running against the same poller.
type poller interface {
	// Add begins watching fd for the given interest (read/write).
	Add(fd int, wantRead, wantWrite bool) error
	// Modify updates the interest set for an already-watched fd.
	Modify(fd int, wantRead, wantWrite bool) error
	// Remove stops watching fd.
	Remove(fd int) error
	// Wait blocks until at least one event is ready or the poller is
	// closed, appending ready events to out and returning the extended
	// slice.
	Wait(out []pollEvent) ([]pollEvent, error)
	// Close releases the underlying OS resource.
	Close() error
}
