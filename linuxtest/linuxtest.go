// Package linuxtest is a test suite validating the behavior of linux.System
// implementations.
package linuxtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stealthrocket/linux-go"
)

// TestConfig is the configuration of the systems created by the test suite.
type TestConfig struct {
	// SocketRoot is a host directory where the system may register unix
	// socket addresses. The suite sets it to a temporary directory.
	SocketRoot string
}

// MakeSystem constructs a system for a test.
type MakeSystem func(TestConfig) (linux.System, error)

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	ctx, cancel := context.Background(), func() {}
	if deadline, ok := t.Deadline(); ok {
		ctx, cancel = context.WithDeadline(ctx, deadline)
	}
	return ctx, cancel
}

func assertEqual[T comparable](t *testing.T, got, want T) {
	if got != want {
		t.Helper()
		t.Fatalf("%T values mismatch\nwant = %+v\ngot  = %+v", want, want, got)
	}
}

func assertDeepEqual(t *testing.T, got, want any) {
	if diff := cmp.Diff(want, got); diff != "" {
		t.Helper()
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

var localhost = [4]byte{127, 0, 0, 1}

func socket(t *testing.T, ctx context.Context, sys linux.System, family linux.Family, socketType linux.SocketType, protocol linux.Protocol) linux.FD {
	t.Helper()
	fd, errno := sys.Socket(ctx, family, socketType, protocol)
	assertEqual(t, errno, linux.ESUCCESS)
	return fd
}

// listenTCP creates a listening socket bound to an ephemeral port of the
// loopback interface.
func listenTCP(t *testing.T, ctx context.Context, sys linux.System) (linux.FD, *linux.Inet4Address) {
	t.Helper()
	fd := socket(t, ctx, sys, linux.InetFamily, linux.StreamSocket, linux.TCPProtocol)
	assertEqual(t, sys.Bind(ctx, fd, &linux.Inet4Address{Addr: localhost}), linux.ESUCCESS)
	assertEqual(t, sys.Listen(ctx, fd, 8), linux.ESUCCESS)

	addr, errno := sys.GetSockName(ctx, fd)
	assertEqual(t, errno, linux.ESUCCESS)
	inet, ok := addr.(*linux.Inet4Address)
	assertEqual(t, ok, true)
	return fd, inet
}

func connect(t *testing.T, ctx context.Context, sys linux.System, family linux.Family, addr linux.SocketAddress) linux.FD {
	t.Helper()
	fd := socket(t, ctx, sys, family, linux.StreamSocket, 0)
	assertEqual(t, sys.Connect(ctx, fd, addr), linux.ESUCCESS)
	return fd
}

func accept(t *testing.T, ctx context.Context, sys linux.System, fd linux.FD) linux.FD {
	t.Helper()
	conn, _, errno := sys.Accept4(ctx, fd, 0)
	assertEqual(t, errno, linux.ESUCCESS)
	return conn
}

// connectedPair returns the client and server ends of a loopback TCP
// connection.
func connectedPair(t *testing.T, ctx context.Context, sys linux.System) (client, server linux.FD) {
	t.Helper()
	lfd, addr := listenTCP(t, ctx, sys)
	client = connect(t, ctx, sys, linux.InetFamily, addr)
	server = accept(t, ctx, sys, lfd)
	assertEqual(t, sys.Close(ctx, lfd), linux.ESUCCESS)
	return client, server
}

func write(t *testing.T, ctx context.Context, sys linux.System, fd linux.FD, data string) {
	t.Helper()
	n, errno := sys.Write(ctx, fd, [][]byte{[]byte(data)})
	assertEqual(t, errno, linux.ESUCCESS)
	assertEqual(t, n, len(data))
}

func read(t *testing.T, ctx context.Context, sys linux.System, fd linux.FD, size int) string {
	t.Helper()
	buf := make([]byte, size)
	n, errno := sys.Read(ctx, fd, [][]byte{buf})
	assertEqual(t, errno, linux.ESUCCESS)
	return string(buf[:n])
}

// waitForEvents polls fd until one of the events of interest is reported.
func waitForEvents(t *testing.T, ctx context.Context, sys linux.System, fd linux.FD, interest linux.PollEvents) linux.PollEvents {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		revents, errno := sys.Poll(ctx, fd, interest)
		assertEqual(t, errno, linux.ESUCCESS)
		if (revents & interest) != 0 {
			return revents
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s on fd %d", interest, fd)
		}
		time.Sleep(time.Millisecond)
	}
}
