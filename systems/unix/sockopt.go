package unix

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/stealthrocket/linux-go"
	"golang.org/x/sys/unix"
)

type sockopt struct {
	level, option int
	readOnly      bool
}

// hostSocketOption returns the host equivalent of integer socket options.
// Options that are not listed are rejected rather than passed through to the
// host, their value may not have the same meaning for the emulated sockets.
func hostSocketOption(level linux.SocketOptionLevel, option linux.SocketOption) (sockopt, bool) {
	switch level {
	case linux.IPLevel:
		switch option {
		case linux.IPHeaderIncluded:
			return sockopt{level: unix.IPPROTO_IP, option: unix.IP_HDRINCL}, true
		}
	case linux.SocketLevel:
		switch option {
		case linux.ReuseAddress:
			return sockopt{level: unix.SOL_SOCKET, option: unix.SO_REUSEADDR}, true
		case linux.QuerySocketType:
			return sockopt{level: unix.SOL_SOCKET, option: unix.SO_TYPE, readOnly: true}, true
		case linux.QuerySocketError:
			return sockopt{level: unix.SOL_SOCKET, option: unix.SO_ERROR, readOnly: true}, true
		case linux.Broadcast:
			return sockopt{level: unix.SOL_SOCKET, option: unix.SO_BROADCAST}, true
		case linux.SendBufferSize:
			return sockopt{level: unix.SOL_SOCKET, option: unix.SO_SNDBUF}, true
		case linux.RecvBufferSize:
			return sockopt{level: unix.SOL_SOCKET, option: unix.SO_RCVBUF}, true
		case linux.KeepAlive:
			return sockopt{level: unix.SOL_SOCKET, option: unix.SO_KEEPALIVE}, true
		}
	case linux.TCPLevel:
		switch option {
		case linux.TCPNoDelay:
			return sockopt{level: unix.IPPROTO_TCP, option: unix.TCP_NODELAY}, true
		}
	}
	return sockopt{}, false
}

func (s *System) unsupportedOption(op string, level linux.SocketOptionLevel, option linux.SocketOption) linux.Errno {
	if entry := s.limited().WithFields(logrus.Fields{
		"level":  level.String(),
		"option": linux.OptionName(level, option),
	}); entry != nil {
		entry.Warnf("%s: unsupported socket option", op)
	}
	return linux.EINVAL
}

func (s *System) GetSockOptInt(ctx context.Context, fd linux.FD, level linux.SocketOptionLevel, option linux.SocketOption) (int, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return 0, errno
	}
	defer sock.mutex.Unlock()

	opt, ok := hostSocketOption(level, option)
	if !ok {
		return 0, s.unsupportedOption("getsockopt", level, option)
	}

	switch {
	case opt.option == unix.SO_TYPE && opt.level == unix.SOL_SOCKET:
		return int(sock.state.socketType), linux.ESUCCESS

	case opt.option == unix.SO_ERROR && opt.level == unix.SOL_SOCKET:
		// A connection which completed in the background has its error
		// recorded in the shared state, the host already cleared it.
		if err := sock.poller(); err != nil {
			return 0, linux.MakeErrno(err)
		}
		if _, err := sock.drain(true); err != nil {
			return 0, linux.MakeErrno(err)
		}
		if soerr, ok := sock.state.consumeConnect(); ok {
			return int(errnoValue(soerr)), linux.ESUCCESS
		}
		value, err := unix.GetsockoptInt(sock.fd, opt.level, opt.option)
		if err != nil {
			return 0, linux.MakeErrno(err)
		}
		return int(errnoValue(unix.Errno(value))), linux.ESUCCESS
	}

	value, err := unix.GetsockoptInt(sock.fd, opt.level, opt.option)
	if err != nil {
		return 0, linux.MakeErrno(err)
	}
	return value, linux.ESUCCESS
}

func (s *System) SetSockOptInt(ctx context.Context, fd linux.FD, level linux.SocketOptionLevel, option linux.SocketOption, value int) linux.Errno {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return errno
	}
	defer sock.mutex.Unlock()

	opt, ok := hostSocketOption(level, option)
	if !ok {
		return s.unsupportedOption("setsockopt", level, option)
	}
	if opt.readOnly {
		return linux.ENOPROTOOPT
	}
	err := unix.SetsockoptInt(sock.fd, opt.level, opt.option, value)
	return linux.MakeErrno(err)
}

func (s *System) GetSockOptLinger(ctx context.Context, fd linux.FD) (linux.LingerValue, linux.Errno) {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return linux.LingerValue{}, errno
	}
	defer sock.mutex.Unlock()

	l, err := unix.GetsockoptLinger(sock.fd, unix.SOL_SOCKET, unix.SO_LINGER)
	if err != nil {
		return linux.LingerValue{}, linux.MakeErrno(err)
	}
	return linux.LingerValue{OnOff: l.Onoff, Linger: l.Linger}, linux.ESUCCESS
}

func (s *System) SetSockOptLinger(ctx context.Context, fd linux.FD, value linux.LingerValue) linux.Errno {
	sock, errno := s.acquire(fd)
	if errno != linux.ESUCCESS {
		return errno
	}
	defer sock.mutex.Unlock()

	err := unix.SetsockoptLinger(sock.fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{
		Onoff:  value.OnOff,
		Linger: value.Linger,
	})
	return linux.MakeErrno(err)
}

// errnoValue translates a host error code stored in a socket option.
func errnoValue(errno unix.Errno) linux.Errno {
	if errno == 0 {
		return linux.ESUCCESS
	}
	return linux.MakeErrno(errno)
}
