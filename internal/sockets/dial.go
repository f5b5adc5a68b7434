package sockets

import "golang.org/x/sys/unix"

const EINPROGRESS = unix.EINPROGRESS

// Dial creates a socket and connects to the specified address. The socket is
// non-blocking unless the nonblock option is false, in which case EINPROGRESS
// is never returned.
func Dial(rawAddr string) (int, error) {
	addr, sa, fd, err := Socket(rawAddr)
	if err != nil {
		return -1, err
	}
	opt := addr.Query()
	noDelay := intopt(opt, "nodelay", 1)
	if err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, noDelay); err != nil {
		Close(fd)
		return -1, err
	}
	nonBlock := boolopt(opt, "nonblock", true)
	if err := unix.SetNonblock(fd, nonBlock); err != nil {
		Close(fd)
		return -1, err
	}
	err = unix.Connect(fd, sa)
	if err != nil && err != EINPROGRESS {
		Close(fd)
		return -1, err
	}
	return fd, err
}
