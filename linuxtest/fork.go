package linuxtest

import (
	"context"
	"testing"
	"time"

	"github.com/stealthrocket/linux-go"
)

func forkSystem(t *testing.T, ctx context.Context, sys linux.System) linux.System {
	t.Helper()
	child, errno := sys.Fork(ctx)
	assertEqual(t, errno, linux.ESUCCESS)
	t.Cleanup(func() {
		if err := child.CloseSystem(context.Background()); err != nil {
			t.Errorf("child system closure failed: %s", err)
		}
	})
	return child
}

var fork = testSuite{
	"forked systems share sockets with their parent": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)
		child := forkSystem(t, ctx, sys)

		write(t, ctx, sys, client, "ping")
		assertEqual(t, read(t, ctx, child, server, 16), "ping")

		// The data was consumed through the child descriptor.
		revents, errno := sys.Poll(ctx, server, linux.POLLIN)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, 0)

		write(t, ctx, child, server, "pong")
		assertEqual(t, read(t, ctx, sys, client, 16), "pong")
	},

	"closing a forked descriptor leaves the parent socket open": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)
		child := forkSystem(t, ctx, sys)

		assertEqual(t, child.Close(ctx, server), linux.ESUCCESS)
		assertEqual(t, child.Close(ctx, client), linux.ESUCCESS)

		write(t, ctx, sys, client, "still open")
		assertEqual(t, read(t, ctx, sys, server, 16), "still open")
	},

	"forked sockets observe readiness recorded by the parent": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)
		child := forkSystem(t, ctx, sys)

		write(t, ctx, sys, client, "data")
		waitForEvents(t, ctx, sys, server, linux.POLLIN)

		revents, errno := child.Poll(ctx, server, linux.POLLIN)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, linux.POLLIN)
	},

	"forked listeners accept connections": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		lfd, addr := listenTCP(t, ctx, sys)
		child := forkSystem(t, ctx, sys)

		client := connect(t, ctx, sys, linux.InetFamily, addr)
		conn := accept(t, ctx, child, lfd)

		write(t, ctx, sys, client, "hello child")
		assertEqual(t, read(t, ctx, child, conn, 16), "hello child")
	},

	"forking does not wait for reads blocked on a socket": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client, server := connectedPair(t, ctx, sys)

		type readResult struct {
			data  string
			errno linux.Errno
		}
		reads := make(chan readResult, 1)
		go func() {
			buf := make([]byte, 16)
			n, errno := sys.Read(ctx, server, [][]byte{buf})
			if n < 0 {
				n = 0
			}
			reads <- readResult{string(buf[:n]), errno}
		}()
		// Let the reader block on the socket before forking.
		time.Sleep(50 * time.Millisecond)

		type forkResult struct {
			child linux.System
			errno linux.Errno
		}
		forks := make(chan forkResult, 1)
		go func() {
			child, errno := sys.Fork(ctx)
			forks <- forkResult{child, errno}
		}()

		var child linux.System
		select {
		case f := <-forks:
			assertEqual(t, f.errno, linux.ESUCCESS)
			child = f.child
			t.Cleanup(func() {
				if err := child.CloseSystem(context.Background()); err != nil {
					t.Errorf("child system closure failed: %s", err)
				}
			})
		case <-time.After(5 * time.Second):
			t.Fatal("fork did not complete while a read was blocked")
		}

		// The descriptor table remains usable, and writing to the peer
		// releases the reader.
		fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, linux.TCPProtocol)
		assertEqual(t, sys.Close(ctx, fd), linux.ESUCCESS)
		write(t, ctx, sys, client, "hi")

		select {
		case r := <-reads:
			assertEqual(t, r.errno, linux.ESUCCESS)
			assertEqual(t, r.data, "hi")
		case <-time.After(5 * time.Second):
			t.Fatal("blocked read did not complete after the peer wrote")
		}

		write(t, ctx, sys, client, "child")
		assertEqual(t, read(t, ctx, child, server, 16), "child")
	},
}
