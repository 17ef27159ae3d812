package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// EventKind tags what happened to a socket, delivered through Deliver.
// Values mirror the original's socket_event enum (spec.md section 4.3).
type EventKind uint8

const (
	EventData EventKind = iota
	EventClose
	EventOpen
	EventAccept
	EventError
	EventExit
	EventUDP
	EventWarning
)

// Event is one notification the reactor hands to Deliver.
type Event struct {
	ID      SocketID
	Owner   uint32
	Kind    EventKind
	Data    []byte
	UDPAddr []byte
	Err     error
}

// Deliver hands one reactor event to the runtime. Implemented by an
// adapter over core.Registry.Send in the coordinator wiring layer, so this
// package stays free of any dependency on internal/core.
type Deliver func(ev Event)

// commandKind names a control request after the original's one-letter
// control-pipe tags (spec.md section 4.3).
type commandKind byte

const (
	cmdListen     commandKind = 'L'
	cmdOpen       commandKind = 'O'
	cmdBind       commandKind = 'B'
	cmdResume     commandKind = 'R'
	cmdPause      commandKind = 'S'
	cmdClose      commandKind = 'K'
	cmdExit       commandKind = 'X'
	cmdSendHigh   commandKind = 'D'
	cmdSendLow    commandKind = 'P'
	cmdTrigger    commandKind = 'W'
	cmdSetOpt     commandKind = 'T'
	cmdUDPSocket  commandKind = 'U'
	cmdSendUDP    commandKind = 'A'
	cmdSetUDPAddr commandKind = 'C'
)

type command struct {
	kind    commandKind
	owner   uint32
	id      SocketID
	addr    string
	port    int
	fd      int
	data    []byte
	udpAddr []byte
	opt     int
	value   int
	force   bool // cmdClose only: shutdown=1 (force) vs shutdown=0 (graceful drain-then-close)
	resp    chan result
}

type result struct {
	id  SocketID
	err error
}

// Reactor is the single socket I/O loop: one poller goroutine, fed by a
// command channel from arbitrary caller goroutines and a self-pipe used to
// interrupt a blocked Wait when a command arrives.
type Reactor struct {
	log     *slog.Logger
	deliver Deliver

	p   poller
	tbl *table

	cmdCh      chan command
	wakeR      int
	wakeW      int
	wakeNotify chan struct{}

	mu   sync.Mutex
	done chan struct{}
}

// New builds a reactor backed by the platform poller. deliver must be
// non-blocking or cheap: it runs on the reactor's single goroutine.
func New(log *slog.Logger, deliver Deliver) (*Reactor, error) {
	p, err := newPlatformPoller()
	if err != nil {
		return nil, fmt.Errorf("reactor: create poller: %w", err)
	}
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("reactor: create wake pipe: %w", err)
	}
	r := &Reactor{
		log:        log,
		deliver:    deliver,
		p:          p,
		tbl:        newTable(),
		cmdCh:      make(chan command, 256),
		wakeR:      fds[0],
		wakeW:      fds[1],
		wakeNotify: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	if err := p.Add(r.wakeR, true, false); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("reactor: watch wake pipe: %w", err)
	}
	return r, nil
}

func (r *Reactor) wake() {
	select {
	case r.wakeNotify <- struct{}{}:
		_, _ = unix.Write(r.wakeW, []byte{0})
	default:
	}
}

func (r *Reactor) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// submit enqueues a command and blocks until the reactor goroutine has
// processed it, returning whatever socket id and error it produced.
func (r *Reactor) submit(c command) (SocketID, error) {
	c.resp = make(chan result, 1)
	r.cmdCh <- c
	r.wake()
	res := <-c.resp
	return res.id, res.err
}

// Run drives the reactor until ctx is cancelled. Intended to be launched
// as its own goroutine by the coordinator.
func (r *Reactor) Run(ctx context.Context) {
	defer close(r.done)
	defer r.p.Close()
	go func() {
		<-ctx.Done()
		r.wake()
	}()

	events := make([]pollEvent, 0, 256)
	for {
		if ctx.Err() != nil {
			return
		}
		var err error
		events, err = r.p.Wait(events[:0])
		if err != nil {
			r.log.Error("reactor poll failed", "err", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		for _, ev := range events {
			if ev.fd == r.wakeR {
				r.drainWake()
				r.drainCommands()
				continue
			}
			r.handleEvent(ev)
		}
	}
}

func (r *Reactor) drainCommands() {
	for {
		select {
		case c := <-r.cmdCh:
			r.handleCommand(c)
		default:
			return
		}
	}
}

func (r *Reactor) handleCommand(c command) {
	switch c.kind {
	case cmdListen:
		r.doListen(c)
	case cmdOpen:
		r.doOpen(c)
	case cmdBind:
		r.doBind(c)
	case cmdUDPSocket:
		r.doUDPSocket(c)
	case cmdResume:
		r.doResume(c)
	case cmdPause:
		r.doPause(c)
	case cmdClose:
		r.doClose(c)
	case cmdSendHigh:
		r.doSend(c, true)
	case cmdSendLow:
		r.doSend(c, false)
	case cmdSendUDP:
		r.doSendUDP(c)
	case cmdSetUDPAddr:
		r.doSetUDPAddr(c)
	case cmdTrigger:
		r.doTrigger(c)
	case cmdSetOpt:
		r.doSetOpt(c)
	case cmdExit:
		close(c.resp)
	}
}

// --- public API -----------------------------------------------------

// Listen opens a TCP listener bound to addr on behalf of owner.
func (r *Reactor) Listen(owner uint32, addr string) (SocketID, error) {
	return r.submit(command{kind: cmdListen, owner: owner, addr: addr})
}

// Connect dials host:port asynchronously; the outcome arrives as an
// EventOpen or EventError through Deliver.
func (r *Reactor) Connect(owner uint32, host string, port int) (SocketID, error) {
	return r.submit(command{kind: cmdOpen, owner: owner, addr: host, port: port})
}

// Bind adopts an already-open OS file descriptor (e.g. inherited stdin)
// as a readable stream socket.
func (r *Reactor) Bind(owner uint32, fd int) (SocketID, error) {
	return r.submit(command{kind: cmdBind, owner: owner, fd: fd})
}

// NewUDPSocket opens a UDP socket bound to addr (empty for an ephemeral
// client port).
func (r *Reactor) NewUDPSocket(owner uint32, addr string) (SocketID, error) {
	return r.submit(command{kind: cmdUDPSocket, owner: owner, addr: addr})
}

// Resume re-enables read events for a paused socket.
func (r *Reactor) Resume(id SocketID) error {
	_, err := r.submit(command{kind: cmdResume, id: id})
	return err
}

// Pause disables read events without closing the socket.
func (r *Reactor) Pause(id SocketID) error {
	_, err := r.submit(command{kind: cmdPause, id: id})
	return err
}

// Close tears down a socket immediately, discarding any writes still
// queued — the 'K' command's shutdown=1 (force) path.
func (r *Reactor) Close(id SocketID) error {
	_, err := r.submit(command{kind: cmdClose, id: id, force: true})
	return err
}

// CloseGraceful lets any writes already queued on id drain before closing
// it — the 'K' command's shutdown=0 path. Safe to call right after a Send
// of a final message: the close will not jump ahead of it.
func (r *Reactor) CloseGraceful(id SocketID) error {
	_, err := r.submit(command{kind: cmdClose, id: id})
	return err
}

// Send queues data on the high-priority write queue. It first attempts a
// direct, synchronous write on the caller's own goroutine (spec.md section
// 4.3); only a short write's unwritten remainder, if any, is staged onto
// the queue and handed to the reactor loop.
func (r *Reactor) Send(id SocketID, data []byte) error {
	if rem, ok := r.tryDirectWrite(id, data); ok {
		if rem == nil {
			return nil
		}
		data = rem
	}
	_, err := r.submit(command{kind: cmdSendHigh, id: id, data: data})
	return err
}

// SendLow queues data on the low-priority write queue, drained only once
// the high-priority queue is empty. Like Send, it first attempts a direct
// write on the caller's own goroutine when both queues are currently
// empty.
func (r *Reactor) SendLow(id SocketID, data []byte) error {
	if rem, ok := r.tryDirectWrite(id, data); ok {
		if rem == nil {
			return nil
		}
		data = rem
	}
	_, err := r.submit(command{kind: cmdSendLow, id: id, data: data})
	return err
}

// SendUDP sends one datagram to the given wire-encoded peer address.
func (r *Reactor) SendUDP(id SocketID, data, udpAddr []byte) error {
	_, err := r.submit(command{kind: cmdSendUDP, id: id, data: data, udpAddr: udpAddr})
	return err
}

// SetUDPAddress pins a UDP socket's default peer for subsequent Sends that
// omit an explicit address.
func (r *Reactor) SetUDPAddress(id SocketID, udpAddr []byte) error {
	_, err := r.submit(command{kind: cmdSetUDPAddr, id: id, udpAddr: udpAddr})
	return err
}

// TriggerWrite forces a write-readiness check even if nothing is queued
// yet (used after a Send racing a not-yet-registered write interest).
func (r *Reactor) TriggerWrite(id SocketID) error {
	_, err := r.submit(command{kind: cmdTrigger, id: id})
	return err
}

// Shutdown submits the exit command and returns once the reactor loop has
// processed it and every command queued before it. It does not stop the
// loop: Run keeps going until its context is cancelled.
func (r *Reactor) Shutdown() {
	_, _ = r.submit(command{kind: cmdExit})
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
