package unix

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stealthrocket/linux-go"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// sharedState is the part of a socket shared between the copies of a
// descriptor held by forked systems.
type sharedState struct {
	refs       atomic.Int32
	events     atomic.Uint32 // linux.Events
	connectErr atomic.Uint32 // host errno of the last completed connect
	connecting atomic.Bool
	listening  atomic.Bool
	family     linux.Family
	socketType linux.SocketType
}

func newSharedState(family linux.Family, socketType linux.SocketType) *sharedState {
	state := &sharedState{family: family, socketType: socketType.Type()}
	state.refs.Store(1)
	return state
}

func (st *sharedState) acquire() {
	st.refs.Add(1)
}

// release drops a reference to the state. The readiness set and the
// connect and listen flags are cleared when the last reference is dropped,
// so the state never reports events for a host socket which was closed. It
// returns true if this was the last reference.
func (st *sharedState) release() bool {
	if st.refs.Add(-1) != 0 {
		return false
	}
	st.events.Store(0)
	st.connectErr.Store(0)
	st.connecting.Store(false)
	st.listening.Store(false)
	return true
}

func (st *sharedState) load() linux.Events {
	return linux.Events(st.events.Load())
}

// set adds events to the readiness set and returns the events which were not
// set before.
func (st *sharedState) set(events linux.Events) linux.Events {
	for {
		old := st.events.Load()
		if st.events.CompareAndSwap(old, old|uint32(events)) {
			return events &^ linux.Events(old)
		}
	}
}

// replace clears the events of mask and sets those of events.
func (st *sharedState) replace(mask, events linux.Events) {
	for {
		old := st.events.Load()
		if st.events.CompareAndSwap(old, (old&^uint32(mask))|uint32(events&mask)) {
			return
		}
	}
}

// consumeConnect clears the Connected event and returns the error of the
// connection attempt that caused it. The boolean is false if no connection
// completed since the last call.
func (st *sharedState) consumeConnect() (unix.Errno, bool) {
	for {
		old := st.events.Load()
		if (linux.Events(old) & linux.Connected) == 0 {
			return 0, false
		}
		if st.events.CompareAndSwap(old, old&^uint32(linux.Connected)) {
			return unix.Errno(st.connectErr.Swap(0)), true
		}
	}
}

// socket is the host side of a guest socket descriptor.
//
// Host sockets are always in non-blocking mode, blocking guest calls wait
// for the readiness of the socket on an epoll instance which also watches
// the kick eventfd and the shutdown eventfd of the system.
type socket struct {
	// mutex serializes the guest operations on the socket.
	mutex    sync.Mutex
	fd       int
	nonblock bool
	name     linux.SocketAddress // bound path of unix sockets
	peer     linux.SocketAddress // connected path of unix sockets
	state    *sharedState

	// The poller is created on first use so that forked sockets only
	// allocate host resources if the child uses them.
	once   sync.Once
	err    error
	epfd   int
	kickfd int
	shutfd int

	// lifetime protects the host descriptors against being closed while Poll
	// or fork use them, neither acquires the operation mutex. Updates of
	// nonblock, name and peer hold both locks.
	lifetime sync.RWMutex
	closing  atomic.Bool
	closed   bool
}

func newSocket(fd, shutfd int, state *sharedState, nonblock bool) *socket {
	return &socket{
		fd:       fd,
		nonblock: nonblock,
		state:    state,
		epfd:     -1,
		kickfd:   -1,
		shutfd:   shutfd,
	}
}

func (s *socket) poller() error {
	s.once.Do(func() { s.err = s.openPoller() })
	return s.err
}

func (s *socket) openPoller() (err error) {
	epfd, err := epollCreate()
	if err != nil {
		return err
	}
	kickfd, err := eventfd()
	if err != nil {
		unix.Close(epfd)
		return err
	}
	defer func() {
		if err != nil {
			unix.Close(epfd)
			unix.Close(kickfd)
		}
	}()
	if err := epollAdd(epfd, kickfd, eventfdEvents); err != nil {
		return err
	}
	if s.shutfd >= 0 {
		if err := epollAdd(epfd, s.shutfd, eventfdEvents); err != nil {
			return err
		}
	}
	if err := epollAdd(epfd, s.fd, socketEvents); err != nil {
		return err
	}
	s.epfd, s.kickfd = epfd, kickfd
	return nil
}

// kick interrupts a goroutine blocked waiting on the socket.
func (s *socket) kick() {
	if s.poller() == nil {
		signal(s.kickfd)
	}
}

// hostEvents translates epoll events to readiness events.
func (s *socket) hostEvents(ev uint32) (events linux.Events) {
	if (ev & unix.EPOLLIN) != 0 {
		if s.state.listening.Load() {
			events |= linux.Acceptable
		} else {
			events |= linux.Readable
		}
	}
	if (ev & unix.EPOLLOUT) != 0 {
		events |= linux.Writable
	}
	if (ev & (unix.EPOLLRDHUP | unix.EPOLLHUP)) != 0 {
		events |= linux.Closed
	}
	if (ev & (unix.EPOLLERR | unix.EPOLLHUP)) != 0 {
		events |= linux.Readable | linux.Writable
	}
	return events
}

// levelEvents returns the current readiness of the host socket.
func (s *socket) levelEvents() (linux.Events, error) {
	revents, err := pollLevel(s.fd)
	if err != nil {
		return 0, err
	}
	var ev uint32
	if (revents & unix.POLLIN) != 0 {
		ev |= unix.EPOLLIN
	}
	if (revents & unix.POLLOUT) != 0 {
		ev |= unix.EPOLLOUT
	}
	if (revents & unix.POLLRDHUP) != 0 {
		ev |= unix.EPOLLRDHUP
	}
	if (revents & unix.POLLHUP) != 0 {
		ev |= unix.EPOLLHUP
	}
	if (revents & unix.POLLERR) != 0 {
		ev |= unix.EPOLLERR
	}
	return s.hostEvents(ev), nil
}

// recheck replaces the events of mask with the level readiness of the host
// socket. Operations which consume readiness call it to clear the events
// that no longer hold.
func (s *socket) recheck(mask linux.Events) {
	events, err := s.levelEvents()
	if err != nil {
		return
	}
	s.state.replace(mask, events)
}

// process applies epoll events to the readiness set. The boolean is true if
// the shutdown eventfd of the system was signaled.
//
// Only the goroutine holding the operation mutex consumes kicks, a kick
// consumed by Poll would be lost for the waiter it was intended to.
func (s *socket) process(events []unix.EpollEvent, owner bool) (shutdown bool) {
	for i := range events {
		ev := &events[i]
		switch int(ev.Fd) {
		case s.fd:
			ready := s.hostEvents(ev.Events)
			if (ev.Events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP)) != 0 && s.state.connecting.CompareAndSwap(true, false) {
				soerr, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
				if err != nil {
					soerr = int(unix.EIO)
					if errno, ok := err.(unix.Errno); ok {
						soerr = int(errno)
					}
				}
				s.state.connectErr.Store(uint32(soerr))
				s.state.set(ready | linux.Connected)
				// The hang up reported by sockets before they were connected
				// does not apply anymore.
				s.recheck(linux.Readable | linux.Closed)
			} else {
				s.state.set(ready)
			}
		case s.kickfd:
			if owner {
				consume(s.kickfd)
			}
		case s.shutfd:
			shutdown = true
		}
	}
	return shutdown
}

// drain collects the pending epoll events without blocking.
func (s *socket) drain(owner bool) (shutdown bool, err error) {
	var events [4]unix.EpollEvent
	for {
		n, err := epollWait(s.epfd, events[:], 0)
		if err != nil {
			return shutdown, err
		}
		if s.process(events[:n], owner) {
			shutdown = true
		}
		if n < len(events) {
			return shutdown, nil
		}
	}
}

// block waits until the epoll instance reports events, the context is
// canceled or the socket is kicked.
func (s *socket) block(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.kick)
	defer stop()

	var events [4]unix.EpollEvent
	n, err := epollWait(s.epfd, events[:], -1)
	if err != nil {
		return err
	}
	s.process(events[:n], true)
	return nil
}

// wait returns the events of interest present in the readiness set, blocking
// until one of them is set unless nonblock is true.
//
// The caller must hold the socket mutex.
func (s *socket) wait(ctx context.Context, interest linux.Events, nonblock bool) (linux.Events, linux.Errno) {
	if err := s.poller(); err != nil {
		return 0, linux.MakeErrno(err)
	}
	for {
		if s.closing.Load() {
			return 0, linux.EBADF
		}
		shutdown, err := s.drain(true)
		if err != nil {
			return 0, linux.MakeErrno(err)
		}
		if events := s.state.load() & interest; events != 0 {
			return events, linux.ESUCCESS
		}
		if nonblock {
			return 0, linux.EAGAIN
		}
		if shutdown {
			return 0, linux.ECANCELED
		}
		if err := ctx.Err(); err != nil {
			return 0, linux.MakeErrno(err)
		}
		// The shutdown eventfd is level-triggered, the next drain observes
		// it again.
		if err := s.block(ctx); err != nil {
			return 0, linux.MakeErrno(err)
		}
	}
}

// poll refreshes the readiness set and returns it. It does not acquire the
// operation mutex so it can observe a socket that another goroutine is
// blocked on.
func (s *socket) poll() (linux.Events, linux.Errno) {
	s.lifetime.RLock()
	defer s.lifetime.RUnlock()
	if s.closed {
		return 0, linux.EBADF
	}
	if err := s.poller(); err != nil {
		return 0, linux.MakeErrno(err)
	}
	before := s.state.load()
	if _, err := s.drain(false); err != nil {
		return 0, linux.MakeErrno(err)
	}
	if level, err := s.levelEvents(); err == nil {
		s.state.set(level)
	}
	after := s.state.load()
	if (after &^ before) != 0 {
		// Draining consumed the edge that a blocked waiter would have
		// observed.
		signal(s.kickfd)
	}
	return after, linux.ESUCCESS
}

func (s *socket) nonblocking(flags linux.MsgFlags) bool {
	return s.nonblock || flags.Has(linux.MsgDontWait)
}

// recv runs a receive operation, waiting for the socket to become readable
// and retrying when the host reports that it would block.
func (s *socket) recv(ctx context.Context, flags linux.MsgFlags, op func() error) linux.Errno {
	nonblock := s.nonblocking(flags)
	for {
		if _, errno := s.wait(ctx, linux.Readable|linux.Closed, nonblock); errno != linux.ESUCCESS {
			return errno
		}
		err := ignoreEINTR(op)
		s.recheck(linux.Readable | linux.Closed)
		if err != unix.EAGAIN || nonblock {
			return linux.MakeErrno(err)
		}
	}
}

// send runs a send operation, waiting for the socket to become writable and
// retrying when the host reports that it would block.
func (s *socket) send(ctx context.Context, flags linux.MsgFlags, op func() error) linux.Errno {
	nonblock := s.nonblocking(flags)
	for {
		if _, errno := s.wait(ctx, linux.Writable, nonblock); errno != linux.ESUCCESS {
			return errno
		}
		err := ignoreEINTR(op)
		if err != unix.EAGAIN {
			return linux.MakeErrno(err)
		}
		s.state.replace(linux.Writable, 0)
		s.recheck(linux.Writable)
		if nonblock {
			return linux.EAGAIN
		}
	}
}

// close releases the host resources of the socket. Goroutines blocked on the
// socket are interrupted and return EBADF.
func (s *socket) close() error {
	s.closing.Store(true)
	// Prevent the creation of a poller if none existed yet.
	s.once.Do(func() { s.err = unix.EBADF })
	if s.err == nil {
		signal(s.kickfd)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lifetime.Lock()
	defer s.lifetime.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.state.release()

	err := unix.Close(s.fd)
	if s.epfd >= 0 {
		err = multierr.Append(err, unix.Close(s.epfd))
		err = multierr.Append(err, unix.Close(s.kickfd))
	}
	return err
}

// update applies f to the socket while holding the lifetime lock. The caller
// must hold the operation mutex.
func (s *socket) update(f func()) {
	s.lifetime.Lock()
	f()
	s.lifetime.Unlock()
}

// fork duplicates the socket for a child system. The copy shares the
// readiness state of s and creates its own poller on first use.
//
// Goroutines blocked in operations on s keep the operation mutex, fork only
// synchronizes with close and update.
func (s *socket) fork(shutfd int) (*socket, error) {
	s.lifetime.RLock()
	defer s.lifetime.RUnlock()
	if s.closed {
		return nil, unix.EBADF
	}
	fd, err := dup(s.fd)
	if err != nil {
		return nil, err
	}
	s.state.acquire()
	c := newSocket(fd, shutfd, s.state, s.nonblock)
	c.name, c.peer = s.name, s.peer
	return c, nil
}
