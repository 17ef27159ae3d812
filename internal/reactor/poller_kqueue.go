//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller backs the reactor on BSD/macOS. Unlike epoll, kqueue tracks
// read and write interest as separate filter registrations per fd, so
// Add/Modify must add or delete each filter independently.
type kqueuePoller struct {
	fd int
}

func newPlatformPoller() (poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	_, err = unix.Kevent(fd, nil, nil, nil)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &kqueuePoller{fd: fd}, nil
}

func (p *kqueuePoller) changeFilter(fd int, filter int16, enable bool) error {
	flags := uint16(unix.EV_DELETE)
	if enable {
		flags = unix.EV_ADD | unix.EV_ENABLE
	}
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{ev}, nil, nil)
	if err != nil && enable == false && err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *kqueuePoller) Add(fd int, wantRead, wantWrite bool) error {
	return p.Modify(fd, wantRead, wantWrite)
}

func (p *kqueuePoller) Modify(fd int, wantRead, wantWrite bool) error {
	if err := p.changeFilter(fd, unix.EVFILT_READ, wantRead); err != nil {
		return err
	}
	return p.changeFilter(fd, unix.EVFILT_WRITE, wantWrite)
}

func (p *kqueuePoller) Remove(fd int) error {
	_ = p.changeFilter(fd, unix.EVFILT_READ, false)
	_ = p.changeFilter(fd, unix.EVFILT_WRITE, false)
	return nil
}

func (p *kqueuePoller) Wait(out []pollEvent) ([]pollEvent, error) {
	var raw [256]unix.Kevent_t
	n, err := unix.Kevent(p.fd, nil, raw[:], nil)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, err
	}
	for i := 0; i < n; i++ {
		var kind eventKind
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			kind |= eventReadable
		case unix.EVFILT_WRITE:
			kind |= eventWritable
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			kind |= eventHangup
		}
		if raw[i].Flags&unix.EV_ERROR != 0 {
			kind |= eventError
		}
		out = append(out, pollEvent{fd: int(raw[i].Ident), kind: kind})
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.fd)
}
