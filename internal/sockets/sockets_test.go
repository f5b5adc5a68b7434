package sockets

import (
	"net"
	"strconv"
	"testing"

	"golang.org/x/sys/unix"
)

func TestListenAndDial(t *testing.T) {
	lfd, err := Listen("127.0.0.1:0?backlog=4")
	if err != nil {
		t.Fatal(err)
	}
	defer Close(lfd)

	sa, err := unix.Getsockname(lfd)
	if err != nil {
		t.Fatal(err)
	}
	port := sa.(*unix.SockaddrInet4).Port

	accepting, err := unix.GetsockoptInt(lfd, unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	if err != nil {
		t.Fatal(err)
	}
	if accepting == 0 {
		t.Fatal("socket is not listening")
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	fd, err := Dial("tcp://" + addr + "?nonblock=false")
	if err != nil {
		t.Fatal(err)
	}
	defer Close(fd)

	peer, err := unix.Getpeername(fd)
	if err != nil {
		t.Fatal(err)
	}
	if got := peer.(*unix.SockaddrInet4).Port; got != port {
		t.Errorf("connected to the wrong port: %d", got)
	}
}

func TestSocketAddress(t *testing.T) {
	tests := []struct {
		network string
		addr    string
		family  int
	}{
		{"tcp", "127.0.0.1:80", unix.AF_INET},
		{"tcp4", ":8080", unix.AF_INET},
		{"tcp6", "[::1]:443", unix.AF_INET6},
		{"tcp6", ":443", unix.AF_INET6},
	}

	for _, test := range tests {
		t.Run(test.network+"://"+test.addr, func(t *testing.T) {
			family, _, err := socketAddress(test.network, test.addr)
			if err != nil {
				t.Fatal(err)
			}
			if family != test.family {
				t.Errorf("wrong family: got %d, want %d", family, test.family)
			}
		})
	}

	if _, _, err := socketAddress("udp", "127.0.0.1:53"); err == nil {
		t.Error("udp addresses are not supported")
	}
	if _, _, err := socketAddress("tcp4", "[::1]:80"); err == nil {
		t.Error("tcp4 network with an IPv6 address did not fail")
	}
}
