//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// epollPoller backs the reactor on Linux via golang.org/x/sys/unix, the
// same epoll vocabulary the original socket_server.cpp drives directly
// through the raw syscalls.
type epollPoller struct {
	fd int
}

func newPlatformPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{fd: fd}, nil
}

func interestMask(wantRead, wantWrite bool) uint32 {
	var mask uint32 = unix.EPOLLRDHUP
	if wantRead {
		mask |= unix.EPOLLIN
	}
	if wantWrite {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (p *epollPoller) Add(fd int, wantRead, wantWrite bool) error {
	ev := unix.EpollEvent{Events: interestMask(wantRead, wantWrite), Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, wantRead, wantWrite bool) error {
	ev := unix.EpollEvent{Events: interestMask(wantRead, wantWrite), Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(out []pollEvent) ([]pollEvent, error) {
	var raw [256]unix.EpollEvent
	n, err := unix.EpollWait(p.fd, raw[:], -1)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, err
	}
	for i := 0; i < n; i++ {
		var kind eventKind
		events := raw[i].Events
		if events&unix.EPOLLIN != 0 {
			kind |= eventReadable
		}
		if events&unix.EPOLLOUT != 0 {
			kind |= eventWritable
		}
		if events&(unix.EPOLLERR) != 0 {
			kind |= eventError
		}
		if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			kind |= eventHangup
		}
		out = append(out, pollEvent{fd: int(raw[i].Fd), kind: kind})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
