package linux

import (
	"context"
	"time"
)

// System is the socket and futex subset of the Linux system call interface,
// as seen by a guest program.
//
// Methods take a context which carries the cancellation of blocking calls:
// canceling the context interrupts the call, which then returns EINTR.
// Methods never panic on guest input, errors are reported as Errno values.
type System interface {
	// Socket creates an endpoint for communication.
	//
	// The type may be combined with SocketNonBlock and SocketCloseOnExec.
	//
	// Note: This is similar to socket in POSIX.
	Socket(ctx context.Context, family Family, socketType SocketType, protocol Protocol) (FD, Errno)

	// Bind assigns an address to a socket.
	//
	// Note: This is similar to bind in POSIX.
	Bind(ctx context.Context, fd FD, addr SocketAddress) Errno

	// Connect initiates a connection on a socket.
	//
	// Non-blocking sockets return EINPROGRESS when the connection cannot be
	// completed immediately; the outcome is later reported by the Writable
	// readiness event and the QuerySocketError option.
	//
	// Note: This is similar to connect in POSIX.
	Connect(ctx context.Context, fd FD, addr SocketAddress) Errno

	// Listen marks the socket as accepting connections.
	//
	// Note: This is similar to listen in POSIX.
	Listen(ctx context.Context, fd FD, backlog int) Errno

	// Accept4 accepts a connection on a socket. The flags may contain
	// SocketNonBlock and SocketCloseOnExec.
	//
	// Note: This is similar to accept4 in Linux.
	Accept4(ctx context.Context, fd FD, flags SocketType) (FD, SocketAddress, Errno)

	// GetSockName returns the address that the socket is bound to.
	//
	// Note: This is similar to getsockname in POSIX.
	GetSockName(ctx context.Context, fd FD) (SocketAddress, Errno)

	// GetPeerName returns the address of the peer connected to the socket.
	//
	// Note: This is similar to getpeername in POSIX.
	GetPeerName(ctx context.Context, fd FD) (SocketAddress, Errno)

	// Read reads data from a socket into iovs.
	//
	// Note: This is similar to readv in POSIX.
	Read(ctx context.Context, fd FD, iovs [][]byte) (int, Errno)

	// Write writes data from iovs to a socket.
	//
	// Note: This is similar to writev in POSIX.
	Write(ctx context.Context, fd FD, iovs [][]byte) (int, Errno)

	// SendTo sends a message on a socket, addr may be nil for connected
	// sockets.
	//
	// Note: This is similar to sendto in POSIX.
	SendTo(ctx context.Context, fd FD, iovs [][]byte, flags MsgFlags, addr SocketAddress) (int, Errno)

	// RecvFrom receives a message from a socket, returning the flags of the
	// received message and the address of the sender.
	//
	// Note: This is similar to recvfrom in POSIX.
	RecvFrom(ctx context.Context, fd FD, iovs [][]byte, flags MsgFlags) (int, MsgFlags, SocketAddress, Errno)

	// SendMsg sends a message on a socket.
	//
	// Note: This is similar to sendmsg in POSIX.
	SendMsg(ctx context.Context, fd FD, msg *Msghdr, flags MsgFlags) (int, Errno)

	// RecvMsg receives a message from a socket. The Name, Control and Flags
	// fields of msg are updated.
	//
	// Note: This is similar to recvmsg in POSIX.
	RecvMsg(ctx context.Context, fd FD, msg *Msghdr, flags MsgFlags) (int, Errno)

	// SendMMsg sends multiple messages on a socket, returning the number of
	// messages fully transmitted. The Len field of each attempted message is
	// set to the number of bytes sent.
	//
	// Note: This is similar to sendmmsg in Linux.
	SendMMsg(ctx context.Context, fd FD, msgs []Mmsghdr, flags MsgFlags) (int, Errno)

	// Shutdown shuts down part of a full-duplex connection.
	//
	// Note: This is similar to shutdown in POSIX.
	Shutdown(ctx context.Context, fd FD, how ShutdownHow) Errno

	// GetSockOptInt gets the value of an integer socket option.
	//
	// Note: This is similar to getsockopt in POSIX.
	GetSockOptInt(ctx context.Context, fd FD, level SocketOptionLevel, option SocketOption) (int, Errno)

	// SetSockOptInt sets the value of an integer socket option.
	//
	// Note: This is similar to setsockopt in POSIX.
	SetSockOptInt(ctx context.Context, fd FD, level SocketOptionLevel, option SocketOption, value int) Errno

	// GetSockOptLinger gets the value of the SO_LINGER option.
	GetSockOptLinger(ctx context.Context, fd FD) (LingerValue, Errno)

	// SetSockOptLinger sets the value of the SO_LINGER option.
	SetSockOptLinger(ctx context.Context, fd FD, value LingerValue) Errno

	// Poll returns the readiness of the socket, filtered by the interest
	// set. POLLHUP and POLLERR are reported regardless of the interest.
	//
	// Poll never blocks.
	Poll(ctx context.Context, fd FD, interest PollEvents) (PollEvents, Errno)

	// SetNonBlock sets or clears the non-blocking mode of a socket.
	//
	// Note: This is similar to fcntl(F_SETFL, O_NONBLOCK) in POSIX.
	SetNonBlock(ctx context.Context, fd FD, nonblock bool) Errno

	// Close closes a file descriptor.
	//
	// Note: This is similar to close in POSIX.
	Close(ctx context.Context, fd FD) Errno

	// FutexWait blocks until the futex word at addr is woken, if it still
	// contains val. EAGAIN is returned if the value differs, ETIMEDOUT when
	// the timeout expires and EINTR when the context is canceled. Pass
	// InfiniteTimeout to wait without a deadline.
	FutexWait(ctx context.Context, mem Memory, addr, val uint32, timeout time.Duration) Errno

	// FutexWake wakes at most n waiters of the futex word at addr and
	// returns the number of waiters woken.
	FutexWake(ctx context.Context, addr uint32, n int) (int, Errno)

	// FutexRequeue wakes at most n waiters of the futex word at addr, and
	// moves the remaining ones to wait on target. If expected is not nil,
	// the word at addr must contain the expected value or the call fails
	// with EAGAIN without side effects. The number of waiters woken or
	// moved is returned.
	FutexRequeue(ctx context.Context, mem Memory, addr uint32, n int, target uint32, expected *uint32) (int, Errno)

	// SetRobustList registers the robust futex list of the calling thread.
	// The list is not maintained, the call only exists so guest runtimes
	// which register one at startup do not fail.
	SetRobustList(ctx context.Context, head, length uint32) Errno

	// Fork returns a duplicate of the system, as seen by the child of a
	// fork(2) call. Sockets of the child share their readiness state with
	// the sockets of the parent.
	Fork(ctx context.Context) (System, Errno)

	// ShutdownSystem may be called to asynchronously cancel all blocking
	// operations on the system, causing them to return ECANCELED.
	ShutdownSystem(ctx context.Context) error

	// CloseSystem closes all the descriptors and releases the resources held
	// by the system.
	CloseSystem(ctx context.Context) error
}
