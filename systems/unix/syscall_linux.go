package unix

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// Events registered for host sockets. EPOLLERR and EPOLLHUP are always
	// reported by the kernel.
	socketEvents = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET

	// Level-triggered events registered for the kick and shutdown eventfds.
	eventfdEvents = unix.EPOLLIN
)

func hostSocket(family, socktype, protocol int) (int, error) {
	return ignoreEINTR2(func() (int, error) {
		return unix.Socket(family, socktype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, protocol)
	})
}

func accept(fd int) (int, unix.Sockaddr, error) {
	for {
		conn, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != unix.EINTR {
			return conn, sa, err
		}
	}
}

func dup(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

func eventfd() (int, error) {
	return unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
}

// signal increments the counter of an eventfd, making it readable.
func signal(fd int) error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, err := ignoreEINTR2(func() (int, error) { return unix.Write(fd, b[:]) })
	if err == unix.EAGAIN { // counter overflow, already readable
		err = nil
	}
	return err
}

// consume resets the counter of an eventfd.
func consume(fd int) error {
	var b [8]byte
	_, err := ignoreEINTR2(func() (int, error) { return unix.Read(fd, b[:]) })
	if err == unix.EAGAIN {
		err = nil
	}
	return err
}

func epollCreate() (int, error) {
	return unix.EpollCreate1(unix.EPOLL_CLOEXEC)
}

func epollAdd(epfd, fd int, events uint32) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

func epollWait(epfd int, events []unix.EpollEvent, timeout int) (int, error) {
	return ignoreEINTR2(func() (int, error) {
		return unix.EpollWait(epfd, events, timeout)
	})
}

// pollLevel returns the level-triggered readiness of fd without blocking.
func pollLevel(fd int) (int16, error) {
	fds := [1]unix.PollFd{{
		Fd:     int32(fd),
		Events: unix.POLLIN | unix.POLLOUT | unix.POLLRDHUP,
	}}
	_, err := ignoreEINTR2(func() (int, error) { return unix.Poll(fds[:], 0) })
	return fds[0].Revents, err
}

// connectUnspec dissolves the association of a datagram socket. The
// sockaddr types of x/sys/unix cannot represent AF_UNSPEC.
func connectUnspec(fd int) error {
	sa := unix.RawSockaddr{Family: unix.AF_UNSPEC}
	_, _, errno := unix.Syscall(
		uintptr(unix.SYS_CONNECT),
		uintptr(fd),
		uintptr(unsafe.Pointer(&sa)),
		uintptr(unsafe.Sizeof(sa)),
	)
	if errno != 0 {
		return errno
	}
	return nil
}

func setNonblock(fd int, nonblock bool) error {
	return unix.SetNonblock(fd, nonblock)
}

func ignoreEINTR(f func() error) error {
	for {
		if err := f(); err != unix.EINTR {
			return err
		}
	}
}

func ignoreEINTR2[F func() (R, error), R any](f F) (R, error) {
	for {
		v, err := f()
		if err != unix.EINTR {
			return v, err
		}
	}
}
