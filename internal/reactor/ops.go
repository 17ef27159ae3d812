package reactor

import (
	"net"

	"golang.org/x/sys/unix"
)

func respond(c command, id SocketID, err error) {
	if c.resp != nil {
		c.resp <- result{id: id, err: err}
	}
}

// sockaddrFromAddr converts a resolved address into the raw form
// unix.Bind/unix.Connect expect, supporting both IPv4 and IPv6.
func sockaddrFromAddr(ip net.IP, port int) unix.Sockaddr {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa
	}
	ip6 := ip.To16()
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip6)
	return sa
}

func newRawSocket(ip net.IP, sockType int) (int, error) {
	domain := unix.AF_INET
	if ip != nil && ip.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, sockType|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	return fd, nil
}

func (r *Reactor) doListen(c command) {
	host, portStr, err := net.SplitHostPort(c.addr)
	if err != nil {
		respond(c, 0, err)
		return
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, portStr))
	if err != nil {
		respond(c, 0, err)
		return
	}
	fd, err := newRawSocket(tcpAddr.IP, unix.SOCK_STREAM)
	if err != nil {
		respond(c, 0, err)
		return
	}
	ip := tcpAddr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	if err := unix.Bind(fd, sockaddrFromAddr(ip, tcpAddr.Port)); err != nil {
		_ = unix.Close(fd)
		respond(c, 0, err)
		return
	}
	if err := unix.Listen(fd, 1024); err != nil {
		_ = unix.Close(fd)
		respond(c, 0, err)
		return
	}
	s := r.tbl.alloc(fd, kindTCPListen, c.owner)
	if s == nil {
		_ = unix.Close(fd)
		respond(c, 0, errCapacity)
		return
	}
	if err := r.p.Add(fd, true, false); err != nil {
		r.tbl.free(s.id)
		_ = unix.Close(fd)
		respond(c, 0, err)
		return
	}
	respond(c, s.id, nil)
}

func (r *Reactor) doOpen(c command) {
	addr, err := net.ResolveTCPAddr("tcp", joinHostPort(c.addr, c.port))
	if err != nil {
		respond(c, 0, err)
		return
	}
	fd, err := newRawSocket(addr.IP, unix.SOCK_STREAM)
	if err != nil {
		respond(c, 0, err)
		return
	}
	s := r.tbl.alloc(fd, kindTCPStream, c.owner)
	if s == nil {
		_ = unix.Close(fd)
		respond(c, 0, errCapacity)
		return
	}
	if err := r.p.Add(fd, true, true); err != nil {
		r.tbl.free(s.id)
		_ = unix.Close(fd)
		respond(c, 0, err)
		return
	}
	s.connecting = true
	connErr := unix.Connect(fd, sockaddrFromAddr(addr.IP, addr.Port))
	if connErr != nil && connErr != unix.EINPROGRESS {
		r.closeSocket(s, EventError, connErr)
		respond(c, 0, connErr)
		return
	}
	respond(c, s.id, nil)
}

func (r *Reactor) doBind(c command) {
	_ = unix.SetNonblock(c.fd, true)
	s := r.tbl.alloc(c.fd, kindTCPStream, c.owner)
	if s == nil {
		respond(c, 0, errCapacity)
		return
	}
	if err := r.p.Add(c.fd, true, false); err != nil {
		r.tbl.free(s.id)
		respond(c, 0, err)
		return
	}
	respond(c, s.id, nil)
}

func (r *Reactor) doUDPSocket(c command) {
	var ip net.IP
	var port int
	if c.addr != "" {
		addr, err := net.ResolveUDPAddr("udp", c.addr)
		if err != nil {
			respond(c, 0, err)
			return
		}
		ip, port = addr.IP, addr.Port
	}
	fd, err := newRawSocket(ip, unix.SOCK_DGRAM)
	if err != nil {
		respond(c, 0, err)
		return
	}
	if c.addr != "" {
		bindIP := ip
		if bindIP == nil {
			bindIP = net.IPv4zero
		}
		if err := unix.Bind(fd, sockaddrFromAddr(bindIP, port)); err != nil {
			_ = unix.Close(fd)
			respond(c, 0, err)
			return
		}
	}
	s := r.tbl.alloc(fd, kindUDP, c.owner)
	if s == nil {
		_ = unix.Close(fd)
		respond(c, 0, errCapacity)
		return
	}
	if err := r.p.Add(fd, true, false); err != nil {
		r.tbl.free(s.id)
		respond(c, 0, err)
		return
	}
	respond(c, s.id, nil)
}

func (r *Reactor) doResume(c command) {
	s := r.tbl.get(c.id)
	if s == nil {
		respond(c, 0, errUnknownSocket)
		return
	}
	_ = r.p.Modify(s.fd, true, !s.highQueue.empty() || !s.lowQueue.empty())
	respond(c, s.id, nil)
}

func (r *Reactor) doPause(c command) {
	s := r.tbl.get(c.id)
	if s == nil {
		respond(c, 0, errUnknownSocket)
		return
	}
	_ = r.p.Modify(s.fd, false, !s.highQueue.empty() || !s.lowQueue.empty())
	respond(c, s.id, nil)
}

// doClose implements the 'K' command's shutdown flag (spec.md section
// 4.3): force (c.force true) tears the socket down immediately, discarding
// anything still queued; graceful (c.force false) lets already-queued
// writes drain first and only then closes, via flushWrites' drained
// branch, so a caller can queue a final message and close without racing
// its own flush.
func (r *Reactor) doClose(c command) {
	s := r.tbl.get(c.id)
	if s == nil {
		respond(c, 0, errUnknownSocket)
		return
	}
	if c.force {
		r.closeSocket(s, EventClose, nil)
		respond(c, s.id, nil)
		return
	}

	s.mu.Lock()
	pending := !s.highQueue.empty() || !s.lowQueue.empty()
	if pending {
		s.closing = true
	}
	s.mu.Unlock()

	if !pending {
		r.closeSocket(s, EventClose, nil)
	}
	respond(c, s.id, nil)
}

func (r *Reactor) closeSocket(s *socket, kind EventKind, cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = r.p.Remove(s.fd)
	_ = unix.Close(s.fd)
	r.tbl.free(s.id)
	r.deliver(Event{ID: s.id, Owner: s.owner, Kind: kind, Err: cause})
}

// tryDirectWrite attempts a synchronous, non-blocking write on the
// calling goroutine before anything is queued — spec.md section 4.3's
// direct-write fast path, exercised by the section 8 "TCP partial write"
// scenario. table.get and a socket's own mutex are already safe to touch
// from any goroutine, and the write itself never touches the poller, so
// this needs no trip through the command channel at all.
//
// It only fires when both write queues are already empty, so a direct
// write can never jump ahead of data a previous Send is still waiting to
// flush. ok is false when the fast path does not apply (unknown socket,
// not a connected TCP stream, or something already queued) and the caller
// must fall back to the normal queued path unchanged. When ok is true,
// remaining is whatever the kernel did not accept — nil if every byte
// went out — which is all the caller still needs to stage.
func (r *Reactor) tryDirectWrite(id SocketID, data []byte) (remaining []byte, ok bool) {
	if len(data) == 0 {
		return nil, false
	}
	s := r.tbl.get(id)
	if s == nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.closing || s.connecting || s.kind != kindTCPStream {
		return nil, false
	}
	if !s.highQueue.empty() || !s.lowQueue.empty() {
		return nil, false
	}

	n, err := unix.Write(s.fd, data)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return data, true
		}
		// Let the normal queued path observe and report this error through
		// its usual close-on-write-failure handling.
		return nil, false
	}
	if n == len(data) {
		return nil, true
	}
	return data[n:], true
}

func (r *Reactor) doSend(c command, high bool) {
	s := r.tbl.get(c.id)
	if s == nil {
		respond(c, 0, errUnknownSocket)
		return
	}
	s.mu.Lock()
	if high {
		s.highQueue.push(c.data, nil)
	} else {
		s.lowQueue.push(c.data, nil)
	}
	s.wbSize += int64(len(c.data))
	warn, size := s.checkWarning()
	s.mu.Unlock()

	if warn {
		r.deliver(Event{ID: s.id, Owner: s.owner, Kind: EventWarning, Data: encodeSize(size)})
	}
	_ = r.p.Modify(s.fd, true, true)
	r.flushWrites(s)
	respond(c, s.id, nil)
}

func encodeSize(size int64) []byte {
	return []byte{
		byte(size >> 56), byte(size >> 48), byte(size >> 40), byte(size >> 32),
		byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size),
	}
}

func (r *Reactor) doSendUDP(c command) {
	s := r.tbl.get(c.id)
	if s == nil {
		respond(c, 0, errUnknownSocket)
		return
	}
	addr := c.udpAddr
	if addr == nil {
		addr = s.udpDefaultAddr
	}
	s.mu.Lock()
	s.highQueue.push(c.data, addr)
	s.mu.Unlock()
	_ = r.p.Modify(s.fd, true, true)
	r.flushWrites(s)
	respond(c, s.id, nil)
}

func (r *Reactor) doSetUDPAddr(c command) {
	s := r.tbl.get(c.id)
	if s == nil {
		respond(c, 0, errUnknownSocket)
		return
	}
	s.mu.Lock()
	s.udpDefaultAddr = c.udpAddr
	s.mu.Unlock()
	respond(c, s.id, nil)
}

func (r *Reactor) doTrigger(c command) {
	s := r.tbl.get(c.id)
	if s == nil {
		respond(c, 0, errUnknownSocket)
		return
	}
	_ = r.p.Modify(s.fd, true, true)
	respond(c, s.id, nil)
}

func (r *Reactor) doSetOpt(c command) {
	s := r.tbl.get(c.id)
	if s == nil {
		respond(c, 0, errUnknownSocket)
		return
	}
	if c.opt == optNoDelay {
		_ = unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, c.value)
	}
	respond(c, s.id, nil)
}

const optNoDelay = 1
