package linuxtest

import (
	"context"
	"testing"
	"time"

	"github.com/stealthrocket/linux-go"
)

var stream = testSuite{
	"connected sockets exchange data": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)

		write(t, ctx, sys, client, "Hello, World!")
		assertEqual(t, read(t, ctx, sys, server, 64), "Hello, World!")

		write(t, ctx, sys, server, "How are you?")
		assertEqual(t, read(t, ctx, sys, client, 64), "How are you?")
	},

	"accepted connections report the address of the peer": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		lfd, addr := listenTCP(t, ctx, sys)
		client := connect(t, ctx, sys, linux.InetFamily, addr)

		_, peer, errno := sys.Accept4(ctx, lfd, linux.SocketNonBlock)
		assertEqual(t, errno, linux.ESUCCESS)

		local, errno := sys.GetSockName(ctx, client)
		assertEqual(t, errno, linux.ESUCCESS)
		assertDeepEqual(t, peer, local)

		remote, errno := sys.GetPeerName(ctx, client)
		assertEqual(t, errno, linux.ESUCCESS)
		assertDeepEqual(t, remote, linux.SocketAddress(addr))
	},

	"non-blocking receive without data returns EAGAIN": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		_, server := connectedPair(t, ctx, sys)
		assertEqual(t, sys.SetNonBlock(ctx, server, true), linux.ESUCCESS)

		n, errno := sys.Read(ctx, server, [][]byte{make([]byte, 16)})
		assertEqual(t, errno, linux.EAGAIN)
		assertEqual(t, n, 0)

		n, _, _, errno = sys.RecvFrom(ctx, server, [][]byte{make([]byte, 16)}, 0)
		assertEqual(t, errno, linux.EAGAIN)
		assertEqual(t, n, 0)
	},

	"receive with MSG_DONTWAIT on a blocking socket returns EAGAIN": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, _ := connectedPair(t, ctx, sys)

		_, _, _, errno := sys.RecvFrom(ctx, client, [][]byte{make([]byte, 16)}, linux.MsgDontWait)
		assertEqual(t, errno, linux.EAGAIN)
	},

	"non-blocking accept without pending connections returns EAGAIN": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		lfd, _ := listenTCP(t, ctx, sys)
		assertEqual(t, sys.SetNonBlock(ctx, lfd, true), linux.ESUCCESS)

		_, _, errno := sys.Accept4(ctx, lfd, 0)
		assertEqual(t, errno, linux.EAGAIN)
	},

	"non-blocking connect completes in the background": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		lfd, addr := listenTCP(t, ctx, sys)

		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket|linux.SocketNonBlock, 0)
		switch errno := sys.Connect(ctx, fd, addr); errno {
		case linux.ESUCCESS, linux.EINPROGRESS:
		default:
			t.Fatalf("connect failed: %s", errno.Name())
		}

		waitForEvents(t, ctx, sys, fd, linux.POLLOUT)
		soerr, errno := sys.GetSockOptInt(ctx, fd, linux.SocketLevel, linux.QuerySocketError)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, linux.Errno(soerr), linux.ESUCCESS)

		conn := accept(t, ctx, sys, lfd)
		write(t, ctx, sys, fd, "ping")
		assertEqual(t, read(t, ctx, sys, conn, 4), "ping")
	},

	"connecting to a closed port is refused": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		lfd, addr := listenTCP(t, ctx, sys)
		assertEqual(t, sys.Close(ctx, lfd), linux.ESUCCESS)

		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, 0)
		assertEqual(t, sys.Connect(ctx, fd, addr), linux.ECONNREFUSED)
	},

	"blocking receive is interrupted by the cancellation of the context": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		_, server := connectedPair(t, ctx, sys)

		ctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(20*time.Millisecond, cancel)

		_, errno := sys.Read(ctx, server, [][]byte{make([]byte, 16)})
		assertEqual(t, errno, linux.EINTR)
	},

	"blocking receive times out with the deadline of the context": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		_, server := connectedPair(t, ctx, sys)

		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, errno := sys.Read(ctx, server, [][]byte{make([]byte, 16)})
		assertEqual(t, errno, linux.ETIMEDOUT)
	},

	"shutting down the system cancels blocking receives": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		_, server := connectedPair(t, ctx, sys)

		time.AfterFunc(20*time.Millisecond, func() {
			if err := sys.ShutdownSystem(ctx); err != nil {
				t.Error(err)
			}
		})

		_, errno := sys.Read(ctx, server, [][]byte{make([]byte, 16)})
		assertEqual(t, errno, linux.ECANCELED)
	},

	"closing a socket interrupts blocking receives": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		_, server := connectedPair(t, ctx, sys)

		time.AfterFunc(20*time.Millisecond, func() { sys.Close(ctx, server) })

		_, errno := sys.Read(ctx, server, [][]byte{make([]byte, 16)})
		assertEqual(t, errno, linux.EBADF)
	},

	"peer shutdown is reported as end of stream": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)

		assertEqual(t, sys.Shutdown(ctx, client, linux.ShutdownWR), linux.ESUCCESS)

		revents := waitForEvents(t, ctx, sys, server, linux.POLLIN)
		assertEqual(t, revents, linux.POLLIN|linux.POLLHUP)
		assertEqual(t, read(t, ctx, sys, server, 16), "")
	},

	"operations on a socket are serialized": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)

		received := make(chan string)
		go func() {
			buf := make([]byte, 16)
			n, _ := sys.Read(ctx, server, [][]byte{buf})
			received <- string(buf[:n])
		}()
		time.Sleep(20 * time.Millisecond)

		// The write is queued behind the blocked read, unlike on Linux where
		// both would proceed concurrently.
		written := make(chan linux.Errno)
		go func() {
			_, errno := sys.Write(ctx, server, [][]byte{[]byte("pong")})
			written <- errno
		}()

		select {
		case <-written:
			t.Fatal("write completed while a read was blocked on the socket")
		case <-time.After(50 * time.Millisecond):
		}

		// Poll does not wait for the blocked operation.
		revents, errno := sys.Poll(ctx, server, linux.POLLOUT)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, linux.POLLOUT)

		write(t, ctx, sys, client, "ping")
		assertEqual(t, <-received, "ping")
		assertEqual(t, <-written, linux.ESUCCESS)
		assertEqual(t, read(t, ctx, sys, client, 16), "pong")
	},
}
