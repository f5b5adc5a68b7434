package unix

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stealthrocket/linux-go"
	"golang.org/x/sys/unix"
)

func TestOpenUnpollableDescriptor(t *testing.T) {
	ctx := context.Background()
	s := &System{}
	defer s.CloseSystem(ctx)

	f, err := os.Create(filepath.Join(t.TempDir(), "regular"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// epoll refuses regular files, the poller of the socket cannot be
	// registered.
	hostfd, err := dup(int(f.Fd()))
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(hostfd)

	_, err = s.open(hostfd, newSharedState(linux.InetFamily, linux.StreamSocket), false)
	if !errors.Is(err, linux.ENFILE) {
		t.Fatalf("wrong error: got %v, want %v", err, linux.ENFILE)
	}
	if errno := s.Close(ctx, 0); errno != linux.EBADF {
		t.Errorf("descriptor was inserted in the table: %s", errno.Name())
	}
}

func TestSharedStateRelease(t *testing.T) {
	st := newSharedState(linux.InetFamily, linux.StreamSocket)
	st.listening.Store(true)
	st.set(linux.Acceptable | linux.Writable)
	st.acquire()

	if st.release() {
		t.Fatal("first release dropped the last reference")
	}
	if events := st.load(); events != linux.Acceptable|linux.Writable {
		t.Errorf("events changed while references remain: %s", events)
	}
	if !st.listening.Load() {
		t.Error("listening flag cleared while references remain")
	}

	if !st.release() {
		t.Fatal("second release did not drop the last reference")
	}
	if events := st.load(); events != 0 {
		t.Errorf("events remain after the last release: %s", events)
	}
	if st.listening.Load() || st.connecting.Load() {
		t.Error("flags remain after the last release")
	}
}

func TestForkClosedSocket(t *testing.T) {
	ctx := context.Background()
	s := &System{}
	defer s.CloseSystem(ctx)

	fd, errno := s.Socket(ctx, linux.InetFamily, linux.DatagramSocket, linux.UDPProtocol)
	if errno != linux.ESUCCESS {
		t.Fatal(errno)
	}
	sock, errno := s.lookup(fd)
	if errno != linux.ESUCCESS {
		t.Fatal(errno)
	}

	if err := sock.close(); err != nil {
		t.Fatal(err)
	}
	if _, err := sock.fork(-1); err != unix.EBADF {
		t.Errorf("wrong error forking a closed socket: %v", err)
	}

	// A socket closed after the descriptor table was copied is left out of
	// the child.
	child, errno := s.Fork(ctx)
	if errno != linux.ESUCCESS {
		t.Fatal(errno)
	}
	defer child.CloseSystem(ctx)

	if _, errno := child.Poll(ctx, fd, linux.POLLIN); errno != linux.EBADF {
		t.Errorf("closed socket was forked: %s", errno.Name())
	}
}
