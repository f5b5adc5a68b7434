package linuxtest

import (
	"context"
	"testing"

	"github.com/stealthrocket/linux-go"
)

var sockets = testSuite{
	"can create a tcp socket for ipv4": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.InetFamily, linux.StreamSocket, linux.TCPProtocol)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, sys.Close(ctx, fd), linux.ESUCCESS)
	},

	"can create a udp socket for ipv4": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.InetFamily, linux.DatagramSocket, linux.UDPProtocol)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, sys.Close(ctx, fd), linux.ESUCCESS)
	},

	"can create a tcp socket for ipv6": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.Inet6Family, linux.StreamSocket, linux.TCPProtocol)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, sys.Close(ctx, fd), linux.ESUCCESS)
	},

	"can create a non-blocking socket": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.InetFamily, linux.StreamSocket|linux.SocketNonBlock|linux.SocketCloseOnExec, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, sys.Close(ctx, fd), linux.ESUCCESS)
	},

	"can create a stream socket for unix with the default protocol": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.UnixFamily, linux.StreamSocket, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, sys.Close(ctx, fd), linux.ESUCCESS)
	},

	"cannot create a socket of an unknown family": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.Family(42), linux.StreamSocket, 0)
		assertEqual(t, fd, -1)
		assertEqual(t, errno, linux.EAFNOSUPPORT)
	},

	"cannot create a sequential packet socket": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.InetFamily, linux.SeqPacketSocket, 0)
		assertEqual(t, fd, -1)
		assertEqual(t, errno, linux.ESOCKTNOSUPPORT)
	},

	"cannot create a socket with unknown flags": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.InetFamily, linux.StreamSocket|0x100, 0)
		assertEqual(t, fd, -1)
		assertEqual(t, errno, linux.EINVAL)
	},

	"cannot create a unix stream socket with the tcp protocol": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd, errno := sys.Socket(ctx, linux.UnixFamily, linux.StreamSocket, linux.TCPProtocol)
		assertEqual(t, fd, -1)
		assertEqual(t, errno, linux.EPROTONOSUPPORT)
	},

	"tcp sockets are of stream type": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket|linux.SocketNonBlock, linux.TCPProtocol)

		value, errno := sys.GetSockOptInt(ctx, fd, linux.SocketLevel, linux.QuerySocketType)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, linux.SocketType(value), linux.StreamSocket)
	},

	"udp sockets are of datagram type": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.Inet6Family, linux.DatagramSocket, linux.UDPProtocol)

		value, errno := sys.GetSockOptInt(ctx, fd, linux.SocketLevel, linux.QuerySocketType)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, linux.SocketType(value), linux.DatagramSocket)
	},

	"the socket type option is read-only": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.SetSockOptInt(ctx, fd, linux.SocketLevel, linux.QuerySocketType, 2), linux.ENOPROTOOPT)
	},

	"unsupported socket options are invalid": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)

		_, errno := sys.GetSockOptInt(ctx, fd, linux.SocketLevel, linux.SocketOption(42))
		assertEqual(t, errno, linux.EINVAL)
		assertEqual(t, sys.SetSockOptInt(ctx, fd, linux.TCPLevel, linux.SocketOption(42), 1), linux.EINVAL)
		assertEqual(t, sys.SetSockOptInt(ctx, fd, linux.SocketOptionLevel(255), linux.ReuseAddress, 1), linux.EINVAL)
	},

	"integer socket options can be set and read back": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)

		for _, opt := range []struct {
			level  linux.SocketOptionLevel
			option linux.SocketOption
		}{
			{linux.SocketLevel, linux.ReuseAddress},
			{linux.SocketLevel, linux.KeepAlive},
			{linux.TCPLevel, linux.TCPNoDelay},
		} {
			assertEqual(t, sys.SetSockOptInt(ctx, fd, opt.level, opt.option, 1), linux.ESUCCESS)
			value, errno := sys.GetSockOptInt(ctx, fd, opt.level, opt.option)
			assertEqual(t, errno, linux.ESUCCESS)
			assertEqual(t, value, 1)
		}
	},

	"the linger option can be set and read back": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)

		assertEqual(t, sys.SetSockOptLinger(ctx, fd, linux.LingerValue{OnOff: 1, Linger: 5}), linux.ESUCCESS)
		value, errno := sys.GetSockOptLinger(ctx, fd)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, value, linux.LingerValue{OnOff: 1, Linger: 5})
	},

	"getsockname of an unbound ipv4 socket returns the zero address": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.DatagramSocket, 0)

		addr, errno := sys.GetSockName(ctx, fd)
		assertEqual(t, errno, linux.ESUCCESS)
		assertDeepEqual(t, addr, &linux.Inet4Address{})
	},

	"getpeername of an unconnected socket fails": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)

		_, errno := sys.GetPeerName(ctx, fd)
		assertEqual(t, errno, linux.ENOTCONN)
	},

	"operations on closed descriptors fail with EBADF": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Close(ctx, fd), linux.ESUCCESS)

		assertEqual(t, sys.Close(ctx, fd), linux.EBADF)
		assertEqual(t, sys.Listen(ctx, fd, 1), linux.EBADF)
		_, errno := sys.Read(ctx, fd, [][]byte{make([]byte, 1)})
		assertEqual(t, errno, linux.EBADF)
		_, errno = sys.Poll(ctx, fd, linux.POLLIN)
		assertEqual(t, errno, linux.EBADF)
	},

	"descriptors are reused lowest first": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd0 := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)
		fd1 := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Close(ctx, fd0), linux.ESUCCESS)

		fd2 := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)
		assertEqual(t, fd2, fd0)
		assertEqual(t, fd1 != fd2, true)
	},

	"accept on a socket which is not listening is invalid": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)

		_, _, errno := sys.Accept4(ctx, fd, 0)
		assertEqual(t, errno, linux.EINVAL)
	},

	"shutdown with an unknown direction is invalid": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Shutdown(ctx, fd, linux.ShutdownHow(3)), linux.EINVAL)
	},
}
