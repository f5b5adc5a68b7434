package sockets

import "golang.org/x/sys/unix"

// Listen creates a socket that listens on the specified address.
func Listen(rawAddr string) (int, error) {
	addr, sa, fd, err := Socket(rawAddr)
	if err != nil {
		return -1, err
	}
	opt := addr.Query()
	if err := unix.Bind(fd, sa); err != nil {
		Close(fd)
		return -1, err
	}
	backlog := intopt(opt, "backlog", 128)
	if err := unix.Listen(fd, backlog); err != nil {
		Close(fd)
		return -1, err
	}
	return fd, nil
}
