package unix

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stealthrocket/linux-go"
	"github.com/stealthrocket/linux-go/internal/descriptor"
	"github.com/stealthrocket/linux-go/internal/futex"
	"github.com/stealthrocket/linux-go/internal/logging"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// System is an implementation of linux.System on a Linux host.
//
// Guest sockets are backed by non-blocking host sockets, blocking calls are
// emulated by waiting on a per-socket epoll instance. Unix sockets are
// emulated with loopback sockets whose addresses are registered in
// FileSystem.
//
// System is safe for concurrent use, each goroutine calling its methods
// stands for a guest thread.
type System struct {
	// FileSystem is where unix socket addresses are registered. Creating
	// unix sockets fails with EAFNOSUPPORT if FileSystem is nil.
	FileSystem SocketFileSystem

	// Logger receives the warnings of the system, the logrus standard logger
	// is used if nil.
	Logger logrus.FieldLogger

	// LogRate is the minimum interval between repeated warnings caused by
	// the guest, such as unsupported socket options. Defaults to 10 seconds.
	LogRate time.Duration

	mutex sync.RWMutex
	fds   descriptor.Table[linux.FD, *socket]
	futex futex.Table

	// shutfd is an eventfd registered in the epoll instance of every socket.
	// Signaling it causes all blocking calls to return ECANCELED.
	initMutex   sync.Mutex
	initialized bool
	shutfd      int

	logOnce sync.Once
	rateLog *logging.RateLimitedLogger
}

var _ linux.System = (*System)(nil)

const defaultLogRate = 10 * time.Second

func (s *System) logger() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

func (s *System) limited() *logging.RateLimitedLogger {
	s.logOnce.Do(func() {
		every := s.LogRate
		if every <= 0 {
			every = defaultLogRate
		}
		s.rateLog = logging.RateLimited(s.logger(), every)
	})
	return s.rateLog
}

func (s *System) init() (int, error) {
	s.initMutex.Lock()
	defer s.initMutex.Unlock()
	if !s.initialized {
		fd, err := eventfd()
		if err != nil {
			return -1, err
		}
		s.shutfd, s.initialized = fd, true
	}
	if s.shutfd < 0 {
		return -1, unix.EBADF
	}
	return s.shutfd, nil
}

func (s *System) insert(sock *socket) linux.FD {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.fds.Insert(sock)
}

func (s *System) lookup(fd linux.FD) (*socket, linux.Errno) {
	s.mutex.RLock()
	sock, ok := s.fds.Lookup(fd)
	s.mutex.RUnlock()
	if !ok {
		return nil, linux.EBADF
	}
	return sock, linux.ESUCCESS
}

// acquire returns the socket of fd with its mutex locked.
func (s *System) acquire(fd linux.FD) (*socket, linux.Errno) {
	sock, errno := s.lookup(fd)
	if errno != linux.ESUCCESS {
		return nil, errno
	}
	sock.mutex.Lock()
	if sock.closed {
		sock.mutex.Unlock()
		return nil, linux.EBADF
	}
	return sock, linux.ESUCCESS
}

// open wraps a host socket into a guest descriptor.
func (s *System) open(fd int, state *sharedState, nonblock bool) (linux.FD, error) {
	shutfd, err := s.init()
	if err != nil {
		return -1, err
	}
	sock := newSocket(fd, shutfd, state, nonblock)
	if err := sock.poller(); err != nil {
		// The readiness of the socket cannot be tracked, which the guest
		// sees as running out of file table entries.
		s.logger().WithError(err).WithField("hostfd", fd).Warn("registering socket poller")
		return -1, linux.ENFILE
	}
	return s.insert(sock), nil
}

// Adopt registers a host socket in the descriptor table of the guest, the
// system takes ownership of hostfd. It is used to pass sockets opened by the
// host, such as listeners, to the guest.
func (s *System) Adopt(hostfd int) (linux.FD, error) {
	domain, err := unix.GetsockoptInt(hostfd, unix.SOL_SOCKET, unix.SO_DOMAIN)
	if err != nil {
		return -1, fmt.Errorf("adopting host socket %d: %w", hostfd, err)
	}
	socktype, err := unix.GetsockoptInt(hostfd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		return -1, fmt.Errorf("adopting host socket %d: %w", hostfd, err)
	}
	acceptconn, err := unix.GetsockoptInt(hostfd, unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	if err != nil {
		return -1, fmt.Errorf("adopting host socket %d: %w", hostfd, err)
	}
	var family linux.Family
	switch domain {
	case unix.AF_INET:
		family = linux.InetFamily
	case unix.AF_INET6:
		family = linux.Inet6Family
	default:
		return -1, fmt.Errorf("adopting host socket %d: unsupported address family %d", hostfd, domain)
	}
	if err := setNonblock(hostfd, true); err != nil {
		return -1, fmt.Errorf("adopting host socket %d: %w", hostfd, err)
	}
	state := newSharedState(family, linux.SocketType(socktype))
	state.listening.Store(acceptconn != 0)

	fd, err := s.open(hostfd, state, false)
	if err != nil {
		return -1, fmt.Errorf("adopting host socket %d: %w", hostfd, err)
	}
	return fd, nil
}

func (s *System) Socket(ctx context.Context, family linux.Family, socketType linux.SocketType, protocol linux.Protocol) (linux.FD, linux.Errno) {
	if (socketType.Flags() &^ (linux.SocketNonBlock | linux.SocketCloseOnExec)) != 0 {
		return -1, linux.EINVAL
	}
	hostFamily, errno := hostFamily(family)
	if errno != linux.ESUCCESS {
		return -1, errno
	}
	if family == linux.UnixFamily {
		if s.FileSystem == nil {
			return -1, linux.EAFNOSUPPORT
		}
		if socketType.Type() == linux.RawSocket {
			return -1, linux.ESOCKTNOSUPPORT
		}
	}
	hostType, errno := hostSocketType(socketType)
	if errno != linux.ESUCCESS {
		return -1, errno
	}
	hostProtocol, errno := hostProtocol(family, protocol)
	if errno != linux.ESUCCESS {
		return -1, errno
	}

	hostfd, err := hostSocket(hostFamily, hostType, hostProtocol)
	if err != nil {
		return -1, linux.MakeErrno(err)
	}
	state := newSharedState(family, socketType)
	fd, err := s.open(hostfd, state, socketType.Has(linux.SocketNonBlock))
	if err != nil {
		unix.Close(hostfd)
		return -1, linux.MakeErrno(err)
	}
	return fd, linux.ESUCCESS
}

func (s *System) Bind(ctx context.Context, fd linux.FD, addr linux.SocketAddress) linux.Errno {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return errno
	}
	defer sock.mutex.Unlock()

	if sock.state.family == linux.UnixFamily {
		unixAddr, ok := addr.(*linux.UnixAddress)
		if !ok {
			return linux.EINVAL
		}
		return s.bindUnix(sock, unixAddr)
	}
	sa, errno := toHostSockaddr(addr)
	if errno != linux.ESUCCESS {
		return errno
	}
	if sa == nil {
		return linux.EINVAL
	}
	return linux.MakeErrno(unix.Bind(sock.fd, sa))
}

func (s *System) Connect(ctx context.Context, fd linux.FD, addr linux.SocketAddress) linux.Errno {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return errno
	}
	defer sock.mutex.Unlock()

	if addr == nil {
		return linux.EINVAL
	}
	if addr.Family() == linux.UnspecFamily {
		if err := connectUnspec(sock.fd); err != nil {
			return linux.MakeErrno(err)
		}
		sock.update(func() { sock.peer = nil })
		return linux.ESUCCESS
	}

	var sa unix.Sockaddr
	var peer linux.SocketAddress
	if sock.state.family == linux.UnixFamily {
		unixAddr, ok := addr.(*linux.UnixAddress)
		if !ok {
			return linux.EAFNOSUPPORT
		}
		sa, errno = s.resolveUnix(unixAddr)
		peer = &linux.UnixAddress{Name: unixAddr.Name}
	} else {
		sa, errno = toHostSockaddr(addr)
	}
	if errno != linux.ESUCCESS {
		return errno
	}

	sock.state.connecting.Store(true)
	err := ignoreEINTR(func() error { return unix.Connect(sock.fd, sa) })
	if err != unix.EINPROGRESS {
		sock.state.connecting.Store(false)
		if err == nil {
			sock.update(func() { sock.peer = peer })
			sock.recheck(linux.Readable | linux.Writable | linux.Closed)
		}
		return linux.MakeErrno(err)
	}
	sock.update(func() { sock.peer = peer })
	if sock.nonblock {
		return linux.EINPROGRESS
	}
	if _, errno := sock.wait(ctx, linux.Connected, false); errno != linux.ESUCCESS {
		return errno
	}
	soerr, _ := sock.state.consumeConnect()
	return errnoValue(soerr)
}

func (s *System) Listen(ctx context.Context, fd linux.FD, backlog int) linux.Errno {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return errno
	}
	defer sock.mutex.Unlock()

	if err := unix.Listen(sock.fd, backlog); err != nil {
		return linux.MakeErrno(err)
	}
	sock.state.listening.Store(true)
	sock.recheck(linux.Readable | linux.Writable | linux.Acceptable | linux.Closed)
	return linux.ESUCCESS
}

func (s *System) Accept4(ctx context.Context, fd linux.FD, flags linux.SocketType) (linux.FD, linux.SocketAddress, linux.Errno) {
	if (flags &^ (linux.SocketNonBlock | linux.SocketCloseOnExec)) != 0 {
		return -1, nil, linux.EINVAL
	}
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return -1, nil, errno
	}
	defer sock.mutex.Unlock()

	if !sock.state.listening.Load() {
		return -1, nil, linux.EINVAL
	}

	var conn int
	var sa unix.Sockaddr
	for {
		if _, errno := sock.wait(ctx, linux.Acceptable, sock.nonblock); errno != linux.ESUCCESS {
			return -1, nil, errno
		}
		var err error
		conn, sa, err = accept(sock.fd)
		sock.recheck(linux.Acceptable)
		if err == nil {
			break
		}
		if err != unix.EAGAIN || sock.nonblock {
			return -1, nil, linux.MakeErrno(err)
		}
	}

	var addr linux.SocketAddress
	if sock.state.family == linux.UnixFamily {
		addr = &linux.UnixAddress{}
	} else {
		addr, errno = fromHostSockaddr(sa)
		if errno != linux.ESUCCESS {
			unix.Close(conn)
			return -1, nil, errno
		}
	}

	state := newSharedState(sock.state.family, sock.state.socketType)
	newfd, err := s.open(conn, state, flags.Has(linux.SocketNonBlock))
	if err != nil {
		unix.Close(conn)
		return -1, nil, linux.MakeErrno(err)
	}
	return newfd, addr, linux.ESUCCESS
}

func (s *System) GetSockName(ctx context.Context, fd linux.FD) (linux.SocketAddress, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return nil, errno
	}
	defer sock.mutex.Unlock()

	if sock.state.family == linux.UnixFamily {
		if sock.name != nil {
			return sock.name, linux.ESUCCESS
		}
		return &linux.UnixAddress{}, linux.ESUCCESS
	}
	sa, err := unix.Getsockname(sock.fd)
	if err != nil {
		if err == unix.EINVAL {
			return zeroAddress(sock.state.family)
		}
		return nil, linux.MakeErrno(err)
	}
	return fromHostSockaddr(sa)
}

func (s *System) GetPeerName(ctx context.Context, fd linux.FD) (linux.SocketAddress, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return nil, errno
	}
	defer sock.mutex.Unlock()

	sa, err := unix.Getpeername(sock.fd)
	if err != nil {
		return nil, linux.MakeErrno(err)
	}
	if sock.state.family == linux.UnixFamily {
		if sock.peer != nil {
			return sock.peer, linux.ESUCCESS
		}
		return &linux.UnixAddress{}, linux.ESUCCESS
	}
	return fromHostSockaddr(sa)
}

// destination returns the host address to send messages to.
func (s *System) destination(sock *socket, addr linux.SocketAddress) (unix.Sockaddr, linux.Errno) {
	if unixAddr, ok := addr.(*linux.UnixAddress); ok && sock.state.family == linux.UnixFamily {
		return s.resolveUnix(unixAddr)
	}
	return toHostSockaddr(addr)
}

// source returns the guest address of the sender of a message.
func (s *System) source(sock *socket, sa unix.Sockaddr) linux.SocketAddress {
	if sock.state.family == linux.UnixFamily {
		if sock.peer != nil {
			return sock.peer
		}
		return &linux.UnixAddress{}
	}
	addr, _ := fromHostSockaddr(sa)
	return addr
}

func (s *System) Read(ctx context.Context, fd linux.FD, iovs [][]byte) (int, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	defer sock.mutex.Unlock()

	var n int
	errno = sock.recv(ctx, 0, func() (err error) {
		n, err = unix.Readv(sock.fd, iovs)
		return err
	})
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	return n, linux.ESUCCESS
}

func (s *System) Write(ctx context.Context, fd linux.FD, iovs [][]byte) (int, linux.Errno) {
	return s.SendTo(ctx, fd, iovs, 0, nil)
}

func (s *System) SendTo(ctx context.Context, fd linux.FD, iovs [][]byte, flags linux.MsgFlags, addr linux.SocketAddress) (int, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	defer sock.mutex.Unlock()
	return s.sendmsg(ctx, sock, iovs, nil, addr, flags)
}

func (s *System) RecvFrom(ctx context.Context, fd linux.FD, iovs [][]byte, flags linux.MsgFlags) (int, linux.MsgFlags, linux.SocketAddress, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return 0, 0, nil, errno
	}
	defer sock.mutex.Unlock()

	n, _, rflags, addr, errno := s.recvmsg(ctx, sock, iovs, nil, flags)
	return n, rflags, addr, errno
}

func (s *System) SendMsg(ctx context.Context, fd linux.FD, msg *linux.Msghdr, flags linux.MsgFlags) (int, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	defer sock.mutex.Unlock()
	return s.sendmsg(ctx, sock, msg.Iov, msg.Control, msg.Name, flags)
}

func (s *System) RecvMsg(ctx context.Context, fd linux.FD, msg *linux.Msghdr, flags linux.MsgFlags) (int, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	defer sock.mutex.Unlock()

	n, oobn, rflags, addr, errno := s.recvmsg(ctx, sock, msg.Iov, msg.Control, flags)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	msg.Name = addr
	msg.Control = msg.Control[:oobn]
	msg.Flags = rflags
	return n, linux.ESUCCESS
}

// SendMMsg sends the messages one at a time. The first failure is reported
// as an error only if no message was sent, a message sent partially ends the
// batch without being counted.
func (s *System) SendMMsg(ctx context.Context, fd linux.FD, msgs []linux.Mmsghdr, flags linux.MsgFlags) (int, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	defer sock.mutex.Unlock()

	for i := range msgs {
		m := &msgs[i]
		n, errno := s.sendmsg(ctx, sock, m.Hdr.Iov, m.Hdr.Control, m.Hdr.Name, flags)
		m.Len = n
		if errno != linux.ESUCCESS {
			if i == 0 {
				return 0, errno
			}
			return i, linux.ESUCCESS
		}
		if n < m.Hdr.Size() {
			if i == 0 && n == 0 {
				return 0, linux.EAGAIN
			}
			return i, linux.ESUCCESS
		}
	}
	return len(msgs), linux.ESUCCESS
}

func (s *System) sendmsg(ctx context.Context, sock *socket, iovs [][]byte, control []byte, addr linux.SocketAddress, flags linux.MsgFlags) (int, linux.Errno) {
	sa, errno := s.destination(sock, addr)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	var n int
	errno = sock.send(ctx, flags, func() (err error) {
		n, err = unix.SendmsgBuffers(sock.fd, iovs, control, sa, hostMsgFlags(flags)|unix.MSG_NOSIGNAL)
		return err
	})
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	return n, linux.ESUCCESS
}

func (s *System) recvmsg(ctx context.Context, sock *socket, iovs [][]byte, control []byte, flags linux.MsgFlags) (n, oobn int, rflags linux.MsgFlags, addr linux.SocketAddress, errno linux.Errno) {
	var hostFlags int
	var from unix.Sockaddr
	errno = sock.recv(ctx, flags, func() (err error) {
		n, oobn, hostFlags, from, err = unix.RecvmsgBuffers(sock.fd, iovs, control, hostMsgFlags(flags))
		return err
	})
	if errno != linux.ESUCCESS {
		return 0, 0, 0, nil, errno
	}
	return n, oobn, guestMsgFlags(hostFlags), s.source(sock, from), linux.ESUCCESS
}

func (s *System) Shutdown(ctx context.Context, fd linux.FD, how linux.ShutdownHow) linux.Errno {
	var sysHow int
	switch how {
	case linux.ShutdownRD:
		sysHow = unix.SHUT_RD
	case linux.ShutdownWR:
		sysHow = unix.SHUT_WR
	case linux.ShutdownRDWR:
		sysHow = unix.SHUT_RDWR
	default:
		return linux.EINVAL
	}
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return errno
	}
	defer sock.mutex.Unlock()

	if err := unix.Shutdown(sock.fd, sysHow); err != nil {
		return linux.MakeErrno(err)
	}
	sock.recheck(linux.Readable | linux.Writable | linux.Closed)
	return linux.ESUCCESS
}

func (s *System) Poll(ctx context.Context, fd linux.FD, interest linux.PollEvents) (linux.PollEvents, linux.Errno) {
	sock, errno := s.lookup(fd)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	events, errno := sock.poll()
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	revents := events.PollEvents()
	if events.Has(linux.Connected) && sock.state.connectErr.Load() != 0 {
		revents |= linux.POLLERR
	}
	return revents & (interest | linux.POLLHUP | linux.POLLERR), linux.ESUCCESS
}

func (s *System) SetNonBlock(ctx context.Context, fd linux.FD, nonblock bool) linux.Errno {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return errno
	}
	sock.update(func() { sock.nonblock = nonblock })
	sock.mutex.Unlock()
	return linux.ESUCCESS
}

func (s *System) Close(ctx context.Context, fd linux.FD) linux.Errno {
	s.mutex.Lock()
	sock, ok := s.fds.Delete(fd)
	s.mutex.Unlock()
	if !ok {
		return linux.EBADF
	}
	if err := sock.close(); err != nil {
		s.logger().WithError(err).WithField("fd", fd).Warn("closing socket")
		return linux.MakeErrno(multierr.Errors(err)[0])
	}
	return linux.ESUCCESS
}

func (s *System) FutexWait(ctx context.Context, mem linux.Memory, addr, val uint32, timeout time.Duration) linux.Errno {
	if (addr % 4) != 0 {
		return linux.EINVAL
	}
	return linux.MakeErrno(s.futex.Wait(ctx, mem, addr, val, timeout))
}

func (s *System) FutexWake(ctx context.Context, addr uint32, n int) (int, linux.Errno) {
	if (addr % 4) != 0 {
		return 0, linux.EINVAL
	}
	return s.futex.Wake(addr, n), linux.ESUCCESS
}

func (s *System) FutexRequeue(ctx context.Context, mem linux.Memory, addr uint32, n int, target uint32, expected *uint32) (int, linux.Errno) {
	if (addr%4) != 0 || (target%4) != 0 {
		return 0, linux.EINVAL
	}
	n, err := s.futex.Requeue(mem, addr, n, target, expected)
	return n, linux.MakeErrno(err)
}

// sizeofRobustListHead is the size of struct robust_list_head on wasm32.
const sizeofRobustListHead = 12

func (s *System) SetRobustList(ctx context.Context, head, length uint32) linux.Errno {
	if length != sizeofRobustListHead {
		return linux.EINVAL
	}
	s.limited().Debugf("set_robust_list: robust futex lists are not maintained (head=%#x)", head)
	return linux.ESUCCESS
}

// Fork returns a copy of the system where every socket shares the host
// socket and the readiness state of the socket of the parent.
func (s *System) Fork(ctx context.Context) (linux.System, linux.Errno) {
	child := &System{
		FileSystem: s.FileSystem,
		Logger:     s.Logger,
		LogRate:    s.LogRate,
	}
	shutfd, err := child.init()
	if err != nil {
		return nil, linux.MakeErrno(err)
	}

	// Sockets are duplicated without holding the table lock.
	s.mutex.RLock()
	parent := descriptor.Clone(&s.fds, func(fd linux.FD, sock *socket) (*socket, bool) {
		return sock, true
	})
	s.mutex.RUnlock()

	errno := linux.ESUCCESS
	parent.Range(func(fd linux.FD, sock *socket) bool {
		c, err := sock.fork(shutfd)
		switch {
		case err == unix.EBADF:
			// Closed after the table was copied.
			return true
		case err != nil:
			errno = linux.MakeErrno(err)
			return false
		}
		child.fds.Assign(fd, c)
		return true
	})
	if errno != linux.ESUCCESS {
		if err := child.CloseSystem(ctx); err != nil {
			s.logger().WithError(err).Warn("closing forked system")
		}
		return nil, errno
	}
	return child, linux.ESUCCESS
}

// ShutdownSystem cancels all blocking operations on the system, causing them
// to return ECANCELED. Operations which start after the shutdown return
// ECANCELED as well when they would block.
func (s *System) ShutdownSystem(ctx context.Context) error {
	shutfd, err := s.init()
	if err != nil {
		return err
	}
	return signal(shutfd)
}

func (s *System) CloseSystem(ctx context.Context) error {
	var sockets []*socket
	s.mutex.Lock()
	s.fds.Range(func(fd linux.FD, sock *socket) bool {
		sockets = append(sockets, sock)
		return true
	})
	s.fds.Reset()
	s.mutex.Unlock()

	var err error
	for _, sock := range sockets {
		err = multierr.Append(err, sock.close())
	}

	s.initMutex.Lock()
	initialized, shutfd := s.initialized, s.shutfd
	if initialized {
		s.shutfd = -1
	}
	s.initMutex.Unlock()

	if initialized && shutfd >= 0 {
		err = multierr.Append(err, unix.Close(shutfd))
	}
	return err
}
