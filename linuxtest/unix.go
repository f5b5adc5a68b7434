package linuxtest

import (
	"context"
	"testing"

	"github.com/stealthrocket/linux-go"
)

var unixSocket = testSuite{
	"unix stream sockets can be bound and connected": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		addr := &linux.UnixAddress{Name: "/server.sock"}

		lfd := socket(t, ctx, sys, linux.UnixFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Bind(ctx, lfd, addr), linux.ESUCCESS)
		assertEqual(t, sys.Listen(ctx, lfd, 1), linux.ESUCCESS)

		name, errno := sys.GetSockName(ctx, lfd)
		assertEqual(t, errno, linux.ESUCCESS)
		assertDeepEqual(t, name, linux.SocketAddress(addr))

		client := connect(t, ctx, sys, linux.UnixFamily, addr)
		conn, peer, errno := sys.Accept4(ctx, lfd, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertDeepEqual(t, peer, linux.SocketAddress(&linux.UnixAddress{}))

		remote, errno := sys.GetPeerName(ctx, client)
		assertEqual(t, errno, linux.ESUCCESS)
		assertDeepEqual(t, remote, linux.SocketAddress(addr))

		local, errno := sys.GetSockName(ctx, client)
		assertEqual(t, errno, linux.ESUCCESS)
		assertDeepEqual(t, local, linux.SocketAddress(&linux.UnixAddress{}))

		write(t, ctx, sys, client, "Hello, World!")
		assertEqual(t, read(t, ctx, sys, conn, 64), "Hello, World!")
		write(t, ctx, sys, conn, "Bye!")
		assertEqual(t, read(t, ctx, sys, client, 64), "Bye!")
	},

	"unix datagram sockets exchange messages": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		addr := &linux.UnixAddress{Name: "/dgram.sock"}

		server := socket(t, ctx, sys, linux.UnixFamily, linux.DatagramSocket, 0)
		assertEqual(t, sys.Bind(ctx, server, addr), linux.ESUCCESS)

		client := socket(t, ctx, sys, linux.UnixFamily, linux.DatagramSocket, 0)
		n, errno := sys.SendTo(ctx, client, [][]byte{[]byte("ping")}, 0, addr)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, n, 4)

		buf := make([]byte, 16)
		n, _, from, errno := sys.RecvFrom(ctx, server, [][]byte{buf}, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, string(buf[:n]), "ping")
		assertDeepEqual(t, from, linux.SocketAddress(&linux.UnixAddress{}))
	},

	"connecting to a path without a socket is refused": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.UnixFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Connect(ctx, fd, &linux.UnixAddress{Name: "/nowhere.sock"}), linux.ECONNREFUSED)
	},

	"binding a path twice fails with EEXIST": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		addr := &linux.UnixAddress{Name: "/twice.sock"}

		fd1 := socket(t, ctx, sys, linux.UnixFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Bind(ctx, fd1, addr), linux.ESUCCESS)

		fd2 := socket(t, ctx, sys, linux.UnixFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Bind(ctx, fd2, addr), linux.EEXIST)

		// The path remains bound after the socket is closed.
		assertEqual(t, sys.Close(ctx, fd1), linux.ESUCCESS)
		assertEqual(t, sys.Bind(ctx, fd2, addr), linux.EEXIST)
	},

	"binding a path in a missing directory fails with ENOENT": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.UnixFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Bind(ctx, fd, &linux.UnixAddress{Name: "/missing/dir.sock"}), linux.ENOENT)
	},

	"binding an abstract address is invalid": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.UnixFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Bind(ctx, fd, &linux.UnixAddress{Name: "\x00abstract"}), linux.EINVAL)
		assertEqual(t, sys.Bind(ctx, fd, &linux.UnixAddress{}), linux.EINVAL)
	},

	"binding an inet address to a unix socket is invalid": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		fd := socket(t, ctx, sys, linux.UnixFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Bind(ctx, fd, &linux.Inet4Address{Addr: localhost}), linux.EINVAL)
	},
}
