package linuxtest

import (
	"context"
	"testing"

	"github.com/stealthrocket/linux-go"
)

// bindUDP creates a datagram socket bound to an ephemeral port of the
// loopback interface.
func bindUDP(t *testing.T, ctx context.Context, sys linux.System) (linux.FD, *linux.Inet4Address) {
	t.Helper()
	fd := socket(t, ctx, sys, linux.InetFamily, linux.DatagramSocket, linux.UDPProtocol)
	assertEqual(t, sys.Bind(ctx, fd, &linux.Inet4Address{Addr: localhost}), linux.ESUCCESS)

	addr, errno := sys.GetSockName(ctx, fd)
	assertEqual(t, errno, linux.ESUCCESS)
	inet, ok := addr.(*linux.Inet4Address)
	assertEqual(t, ok, true)
	return fd, inet
}

var datagram = testSuite{
	"datagrams carry the address of the sender": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		server, serverAddr := bindUDP(t, ctx, sys)
		client, clientAddr := bindUDP(t, ctx, sys)

		n, errno := sys.SendTo(ctx, client, [][]byte{[]byte("Hello, "), []byte("World!")}, 0, serverAddr)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, n, 13)

		buf := make([]byte, 32)
		n, flags, addr, errno := sys.RecvFrom(ctx, server, [][]byte{buf}, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, string(buf[:n]), "Hello, World!")
		assertEqual(t, flags, linux.MsgFlags(0))
		assertDeepEqual(t, addr, linux.SocketAddress(clientAddr))
	},

	"truncated datagrams are flagged": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		server, serverAddr := bindUDP(t, ctx, sys)
		client, _ := bindUDP(t, ctx, sys)

		_, errno := sys.SendTo(ctx, client, [][]byte{[]byte("0123456789")}, 0, serverAddr)
		assertEqual(t, errno, linux.ESUCCESS)

		msg := &linux.Msghdr{Iov: [][]byte{make([]byte, 4)}}
		n, errno := sys.RecvMsg(ctx, server, msg, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, n, 4)
		assertEqual(t, msg.Flags, linux.MsgTrunc)
		assertEqual(t, len(msg.Control), 0)
	},

	"sendmsg to a connected socket uses the peer address": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		server, serverAddr := bindUDP(t, ctx, sys)
		client := socket(t, ctx, sys, linux.InetFamily, linux.DatagramSocket, 0)
		assertEqual(t, sys.Connect(ctx, client, serverAddr), linux.ESUCCESS)

		n, errno := sys.SendMsg(ctx, client, &linux.Msghdr{Iov: [][]byte{[]byte("ping")}}, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, n, 4)
		assertEqual(t, read(t, ctx, sys, server, 16), "ping")

		// Connecting to AF_UNSPEC dissolves the association.
		assertEqual(t, sys.Connect(ctx, client, &linux.UnspecAddress{}), linux.ESUCCESS)
		_, errno = sys.SendMsg(ctx, client, &linux.Msghdr{Iov: [][]byte{[]byte("ping")}}, 0)
		assertEqual(t, errno, linux.EDESTADDRREQ)
	},

	"sendmmsg sends all the messages of a batch": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		server, serverAddr := bindUDP(t, ctx, sys)
		client := socket(t, ctx, sys, linux.InetFamily, linux.DatagramSocket, 0)

		msgs := []linux.Mmsghdr{
			{Hdr: linux.Msghdr{Name: serverAddr, Iov: [][]byte{[]byte("one")}}},
			{Hdr: linux.Msghdr{Name: serverAddr, Iov: [][]byte{[]byte("two")}}},
			{Hdr: linux.Msghdr{Name: serverAddr, Iov: [][]byte{[]byte("three")}}},
		}
		n, errno := sys.SendMMsg(ctx, client, msgs, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, n, 3)
		assertEqual(t, msgs[0].Len, 3)
		assertEqual(t, msgs[1].Len, 3)
		assertEqual(t, msgs[2].Len, 5)

		assertEqual(t, read(t, ctx, sys, server, 16), "one")
		assertEqual(t, read(t, ctx, sys, server, 16), "two")
		assertEqual(t, read(t, ctx, sys, server, 16), "three")
	},

	"sendmmsg returns the number of messages sent before a failure": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		server, serverAddr := bindUDP(t, ctx, sys)
		client := socket(t, ctx, sys, linux.InetFamily, linux.DatagramSocket, 0)

		msgs := []linux.Mmsghdr{
			{Hdr: linux.Msghdr{Name: serverAddr, Iov: [][]byte{[]byte("one")}}},
			// An ipv6 destination cannot be reached from an ipv4 socket.
			{Hdr: linux.Msghdr{Name: &linux.Inet6Address{Port: serverAddr.Port}, Iov: [][]byte{[]byte("two")}}},
			{Hdr: linux.Msghdr{Name: serverAddr, Iov: [][]byte{[]byte("three")}}},
		}
		n, errno := sys.SendMMsg(ctx, client, msgs, 0)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, n, 1)
		assertEqual(t, msgs[0].Len, 3)
		assertEqual(t, msgs[1].Len, 0)

		assertEqual(t, read(t, ctx, sys, server, 16), "one")
		revents, errno := sys.Poll(ctx, server, linux.POLLIN)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, revents, 0)
	},

	"sendmmsg reports the failure of the first message": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		client := socket(t, ctx, sys, linux.InetFamily, linux.DatagramSocket, 0)

		msgs := []linux.Mmsghdr{
			{Hdr: linux.Msghdr{Name: &linux.Inet6Address{Port: 4242}, Iov: [][]byte{[]byte("one")}}},
		}
		n, errno := sys.SendMMsg(ctx, client, msgs, 0)
		assertEqual(t, errno, linux.EAFNOSUPPORT)
		assertEqual(t, n, 0)
	},
}
