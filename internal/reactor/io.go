package reactor

import (
	"golang.org/x/sys/unix"
)

func (r *Reactor) handleEvent(ev pollEvent) {
	s := r.socketByFD(ev.fd)
	if s == nil {
		return
	}

	if s.connecting {
		r.finishConnect(s, ev)
		return
	}

	if ev.kind&(eventError|eventHangup) != 0 && ev.kind&eventReadable == 0 {
		r.closeSocket(s, EventClose, nil)
		return
	}
	if ev.kind&eventReadable != 0 {
		switch s.kind {
		case kindTCPListen:
			r.acceptLoop(s)
		case kindTCPStream:
			r.readStream(s)
		case kindUDP:
			r.readUDP(s)
		}
	}
	if ev.kind&eventWritable != 0 {
		r.flushWrites(s)
	}
}

// socketByFD is a linear scan fallback used only by handleEvent, which
// receives bare fds from the poller; id-based lookups (table.get) are used
// everywhere a SocketID is already in hand.
func (r *Reactor) socketByFD(fd int) *socket {
	r.tbl.mu.Lock()
	defer r.tbl.mu.Unlock()
	for _, s := range r.tbl.slots {
		if s != nil && s.fd == fd {
			return s
		}
	}
	return nil
}

// finishConnect handles the write-ready notification a non-blocking
// connect() finishes with: SO_ERROR is zero on success, set to the
// connect failure otherwise.
func (r *Reactor) finishConnect(s *socket, ev pollEvent) {
	s.connecting = false
	if ev.kind&(eventError|eventHangup) != 0 {
		r.closeSocket(s, EventError, unix.ECONNREFUSED)
		return
	}
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		r.closeSocket(s, EventError, unix.Errno(errno))
		return
	}
	_ = r.p.Modify(s.fd, true, !s.highQueue.empty() || !s.lowQueue.empty())
	r.deliver(Event{ID: s.id, Owner: s.owner, Kind: EventOpen})
}

func (r *Reactor) acceptLoop(s *socket) {
	for {
		connFD, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.ECONNABORTED || err == unix.EINTR {
				continue
			}
			r.log.Warn("accept failed", "err", err)
			return
		}
		ns := r.tbl.alloc(connFD, kindTCPStream, s.owner)
		if ns == nil {
			_ = unix.Close(connFD)
			continue
		}
		if err := r.p.Add(connFD, true, false); err != nil {
			r.tbl.free(ns.id)
			_ = unix.Close(connFD)
			continue
		}
		r.deliver(Event{ID: ns.id, Owner: s.owner, Kind: EventAccept})
	}
}

func (r *Reactor) readStream(s *socket) {
	s.mu.Lock()
	bufSize := s.readBufSize
	s.mu.Unlock()

	buf := make([]byte, bufSize)
	n, err := unix.Read(s.fd, buf)
	switch {
	case n > 0:
		s.mu.Lock()
		s.adaptReadSize(n)
		s.mu.Unlock()
		r.deliver(Event{ID: s.id, Owner: s.owner, Kind: EventData, Data: buf[:n]})
	case n == 0:
		r.closeSocket(s, EventClose, nil)
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR:
		// spurious wakeup, nothing to do
	case err != nil:
		r.closeSocket(s, EventError, err)
	}
}

func (r *Reactor) readUDP(s *socket) {
	buf := make([]byte, 65536)
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return
		}
		return
	}
	addr := encodeSockaddr(from)
	if addr == nil {
		return
	}
	r.deliver(Event{ID: s.id, Owner: s.owner, Kind: EventUDP, Data: buf[:n], UDPAddr: addr})
}

func encodeSockaddr(sa unix.Sockaddr) []byte {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		buf := make([]byte, 7)
		buf[0] = byte(udpProtoV4)
		buf[1] = byte(a.Port >> 8)
		buf[2] = byte(a.Port)
		copy(buf[3:], a.Addr[:])
		return buf
	case *unix.SockaddrInet6:
		buf := make([]byte, 19)
		buf[0] = byte(udpProtoV6)
		buf[1] = byte(a.Port >> 8)
		buf[2] = byte(a.Port)
		copy(buf[3:], a.Addr[:])
		return buf
	default:
		return nil
	}
}

// flushWrites drains as much of the high- then low-priority write queues
// as the socket will currently accept, disabling write-readiness once both
// queues empty (spec.md section 4.3's high/low priority discipline: the
// low queue is never touched while the high queue holds anything). Once
// both queues are empty it also clears a standing backpressure warning
// (emitting the matching clearing WARNING event) and completes a pending
// graceful close (the 'K' command's shutdown=0 path, set by doClose).
func (r *Reactor) flushWrites(s *socket) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var failErr error
	for {
		q := s.highQueue
		if q.empty() {
			q = s.lowQueue
		}
		chunk := q.front()
		if chunk == nil {
			break
		}
		n, err := r.writeChunkLocked(s, chunk)
		if n > 0 {
			chunk.advance(n)
			s.wbSize -= int64(n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				break
			}
			failErr = err
			break
		}
		if chunk.done() {
			q.popFront()
			continue
		}
		break
	}
	stillPending := !s.highQueue.empty() || !s.lowQueue.empty()
	drained := failErr == nil && !stillPending
	clearWarn := drained && s.clearWarning()
	closeNow := drained && s.closing
	s.mu.Unlock()

	// closeSocket takes s.mu itself, so it must run only after flushWrites
	// has released it; this runs on the reactor's own goroutine, same as
	// every other caller of closeSocket, so ordering against other socket
	// operations is preserved.
	if failErr != nil {
		r.closeSocket(s, EventError, failErr)
		return
	}
	if clearWarn {
		r.deliver(Event{ID: s.id, Owner: s.owner, Kind: EventWarning, Data: encodeSize(0)})
	}
	if closeNow {
		r.closeSocket(s, EventClose, nil)
		return
	}
	_ = r.p.Modify(s.fd, true, stillPending)
}

func (r *Reactor) writeChunkLocked(s *socket, c *writeChunk) (int, error) {
	if s.kind == kindUDP && c.udpTo != nil {
		addr, err := DecodeUDPAddress(c.udpTo)
		if err != nil {
			return len(c.remaining()), nil // drop an unparseable address rather than wedge the queue
		}
		if err := unix.Sendto(s.fd, c.remaining(), 0, sockaddrFromAddr(addr.IP, addr.Port)); err != nil {
			return 0, err
		}
		return len(c.remaining()), nil
	}
	n, err := unix.Write(s.fd, c.remaining())
	return n, err
}
