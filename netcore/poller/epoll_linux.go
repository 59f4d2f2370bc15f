//go:build linux

package poller

import "golang.org/x/sys/unix"

// epollPoller is grounded on the teacher's core/poller/epoll.go, ported
// from bare syscall to golang.org/x/sys/unix so the same poller logic
// runs unmodified against any kernel Go's syscall package doesn't
// track (unix pins constants per-arch correctly, syscall doesn't
// always). Edge-triggered per SPEC_FULL.md §4.3: every registration
// carries EPOLLET, and write interest is toggled explicitly via
// SetWritable rather than left permanently armed, since a
// level-triggered EPOLLOUT would fire on every tick once the send
// buffer has room, whether or not there's anything queued to write.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

const baseEvents = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLET | unix.EPOLLERR | unix.EPOLLHUP

// New builds the platform poller. Linux gets epoll; see kqueue_darwin.go.
func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd, events: make([]unix.EpollEvent, 1024)}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := unix.EpollEvent{Events: baseEvents, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) SetWritable(fd int, writable bool) error {
	events := uint32(baseEvents)
	if writable {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMillis int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		flags := p.events[i].Events
		events = append(events, Event{
			Fd:       int(p.events[i].Fd),
			Readable: flags&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLERR|unix.EPOLLHUP) != 0,
			Writable: flags&unix.EPOLLOUT != 0,
		})
	}
	return events, nil
}

func (p *epollPoller) Close() error { return unix.Close(p.epfd) }

// SetNonblock puts fd into non-blocking mode, required before handing
// it to the poller.
func SetNonblock(fd int) error { return unix.SetNonblock(fd, true) }
