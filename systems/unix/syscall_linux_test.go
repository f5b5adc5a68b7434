package unix_test

import sysunix "golang.org/x/sys/unix"

func dup(fd int) (int, error) {
	return sysunix.FcntlInt(uintptr(fd), sysunix.F_DUPFD_CLOEXEC, 0)
}

func pipe() (r, w int, err error) {
	var fds [2]int
	err = sysunix.Pipe2(fds[:], sysunix.O_CLOEXEC)
	return fds[0], fds[1], err
}

func closeAll(fds ...int) {
	for _, fd := range fds {
		sysunix.Close(fd)
	}
}
