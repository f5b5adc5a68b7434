package linuxtest

import (
	"context"
	"testing"

	"github.com/stealthrocket/linux-go"
)

var poll = testSuite{
	"poll of an unknown descriptor fails with EBADF": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		_, errno := sys.Poll(ctx, 1234, linux.POLLIN)
		assertEqual(t, errno, linux.EBADF)
	},

	"connected sockets are writable": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)

		for _, fd := range []linux.FD{client, server} {
			revents := waitForEvents(t, ctx, sys, fd, linux.POLLIN|linux.POLLOUT)
			assertEqual(t, revents, linux.POLLOUT)
		}
	},

	"readiness is reported until it is consumed": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)

		write(t, ctx, sys, client, "Hello, World!")
		want := waitForEvents(t, ctx, sys, server, linux.POLLIN)
		assertEqual(t, want, linux.POLLIN)

		for i := 0; i < 10; i++ {
			revents, errno := sys.Poll(ctx, server, linux.POLLIN)
			assertEqual(t, errno, linux.ESUCCESS)
			assertEqual(t, revents, want)
		}

		assertEqual(t, read(t, ctx, sys, server, 64), "Hello, World!")
		revents, errno := sys.Poll(ctx, server, linux.POLLIN)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, 0)
	},

	"partial receives leave the socket readable": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)

		write(t, ctx, sys, client, "0123456789")
		waitForEvents(t, ctx, sys, server, linux.POLLIN)

		assertEqual(t, read(t, ctx, sys, server, 4), "0123")
		revents, errno := sys.Poll(ctx, server, linux.POLLIN)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, linux.POLLIN)

		assertEqual(t, read(t, ctx, sys, server, 16), "456789")
		revents, errno = sys.Poll(ctx, server, linux.POLLIN)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, 0)
	},

	"listeners stay acceptable while connections are pending": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		lfd, addr := listenTCP(t, ctx, sys)

		revents, errno := sys.Poll(ctx, lfd, linux.POLLIN|linux.POLLOUT)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, 0)

		connect(t, ctx, sys, linux.InetFamily, addr)
		connect(t, ctx, sys, linux.InetFamily, addr)

		waitForEvents(t, ctx, sys, lfd, linux.POLLIN)
		conn1 := accept(t, ctx, sys, lfd)

		// The second connection keeps the listener readable after the first
		// one was accepted.
		waitForEvents(t, ctx, sys, lfd, linux.POLLIN)
		conn2 := accept(t, ctx, sys, lfd)
		assertEqual(t, conn1 != conn2, true)

		revents, errno = sys.Poll(ctx, lfd, linux.POLLIN)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, 0)

		assertEqual(t, sys.SetNonBlock(ctx, lfd, true), linux.ESUCCESS)
		_, _, errno = sys.Accept4(ctx, lfd, 0)
		assertEqual(t, errno, linux.EAGAIN)
	},

	"accepted sockets have their own readiness": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		lfd, addr := listenTCP(t, ctx, sys)
		client := connect(t, ctx, sys, linux.InetFamily, addr)
		other := connect(t, ctx, sys, linux.InetFamily, addr)

		clientAddr, errno := sys.GetSockName(ctx, client)
		assertEqual(t, errno, linux.ESUCCESS)

		// Connections are accepted in the order the handshakes completed,
		// the peer address tells which one belongs to client.
		conn1, peer1, errno := sys.Accept4(ctx, lfd, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		conn2, _, errno := sys.Accept4(ctx, lfd, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		if peer1.String() != clientAddr.String() {
			conn1, conn2 = conn2, conn1
		}

		write(t, ctx, sys, client, "one")
		waitForEvents(t, ctx, sys, conn1, linux.POLLIN)

		revents, errno := sys.Poll(ctx, conn2, linux.POLLIN)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, 0)
		assertEqual(t, read(t, ctx, sys, conn1, 16), "one")

		write(t, ctx, sys, other, "two")
		waitForEvents(t, ctx, sys, conn2, linux.POLLIN)
		assertEqual(t, read(t, ctx, sys, conn2, 16), "two")
	},

	"poll interest filters the reported events": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)

		write(t, ctx, sys, client, "data")
		waitForEvents(t, ctx, sys, server, linux.POLLIN)

		revents, errno := sys.Poll(ctx, server, linux.POLLOUT)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, linux.POLLOUT)

		revents, errno = sys.Poll(ctx, server, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, 0)
	},
}
