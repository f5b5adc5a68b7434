package unix_test

import (
	"context"
	"net"
	"testing"

	"github.com/stealthrocket/linux-go"
	"github.com/stealthrocket/linux-go/linuxtest"
	"github.com/stealthrocket/linux-go/systems/unix"
)

func TestSystem(t *testing.T) {
	linuxtest.TestSystem(t, func(config linuxtest.TestConfig) (linux.System, error) {
		return &unix.System{FileSystem: unix.DirFileSystem(config.SocketRoot)}, nil
	})
}

func TestUnixSocketsWithoutFileSystem(t *testing.T) {
	ctx := context.Background()
	s := &unix.System{}
	defer s.CloseSystem(ctx)

	_, errno := s.Socket(ctx, linux.UnixFamily, linux.StreamSocket, 0)
	if errno != linux.EAFNOSUPPORT {
		t.Errorf("socket: wrong error: got %s, want %s", errno.Name(), linux.EAFNOSUPPORT.Name())
	}
}

func TestAdoptListener(t *testing.T) {
	ctx := context.Background()
	s := &unix.System{}
	defer s.CloseSystem(ctx)

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	f, err := l.(*net.TCPListener).File()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	hostfd, err := dup(int(f.Fd()))
	if err != nil {
		t.Fatal(err)
	}
	fd, err := s.Adopt(hostfd)
	if err != nil {
		t.Fatal(err)
	}

	socktype, errno := s.GetSockOptInt(ctx, fd, linux.SocketLevel, linux.QuerySocketType)
	if errno != linux.ESUCCESS {
		t.Fatal(errno)
	}
	if linux.SocketType(socktype) != linux.StreamSocket {
		t.Errorf("wrong socket type: %s", linux.SocketType(socktype))
	}

	done := make(chan error, 1)
	go func() {
		c, err := net.Dial("tcp4", l.Addr().String())
		if err == nil {
			_, err = c.Write([]byte("adopted"))
			c.Close()
		}
		done <- err
	}()

	conn, _, errno := s.Accept4(ctx, fd, 0)
	if errno != linux.ESUCCESS {
		t.Fatal(errno)
	}
	buf := make([]byte, 16)
	n, errno := s.Read(ctx, conn, [][]byte{buf})
	if errno != linux.ESUCCESS {
		t.Fatal(errno)
	}
	if string(buf[:n]) != "adopted" {
		t.Errorf("wrong data: %q", buf[:n])
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestAdoptNonSocket(t *testing.T) {
	s := &unix.System{}
	defer s.CloseSystem(context.Background())

	r, w, err := pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer closeAll(r, w)

	if _, err := s.Adopt(r); err == nil {
		t.Error("adopting a pipe did not fail")
	}
}
