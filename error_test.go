package linux_test

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stealthrocket/linux-go"
)

func TestErrno(t *testing.T) {
	for errno := linux.Errno(1); errno <= linux.ENOTRECOVERABLE; errno++ {
		if errno.Name() == "" {
			continue // hole in the errno numbering
		}
		t.Run(errno.Name(), func(t *testing.T) {
			e1 := errno.Syscall()
			e2 := linux.MakeErrno(e1)
			if e2 != errno {
				t.Errorf("conversion to syscall.Errno did not yield the same error code: want=%d got=%d", errno, e2)
			}
			if errno.Error() == "" {
				t.Errorf("missing error string for %s", errno.Name())
			}
		})
	}
}

func TestErrnoAliases(t *testing.T) {
	if linux.EWOULDBLOCK.Name() != "EAGAIN" {
		t.Errorf("EWOULDBLOCK is not an alias of EAGAIN: %s", linux.EWOULDBLOCK.Name())
	}
	if linux.ENOTSUP.Name() != "EOPNOTSUPP" {
		t.Errorf("ENOTSUP is not an alias of EOPNOTSUPP: %s", linux.ENOTSUP.Name())
	}
	if name := linux.Errno(41).Name(); name != "" {
		t.Errorf("unexpected name for unassigned error code 41: %q", name)
	}
}

func TestMakeErrno(t *testing.T) {
	tests := []struct {
		error error
		errno linux.Errno
	}{
		{nil, linux.ESUCCESS},
		{syscall.EAGAIN, linux.EAGAIN},
		{context.Canceled, linux.EINTR},
		{context.DeadlineExceeded, linux.ETIMEDOUT},
		{io.ErrUnexpectedEOF, linux.EIO},
		{fs.ErrClosed, linux.EIO},
		{net.ErrClosed, linux.EIO},
		{fs.ErrNotExist, linux.ENOENT},
		{fs.ErrExist, linux.EEXIST},
		{syscall.EPERM, linux.EPERM},
		{syscall.ECONNREFUSED, linux.ECONNREFUSED},
		{syscall.EINPROGRESS, linux.EINPROGRESS},
		{syscall.Errno(0), linux.ESUCCESS},
		{syscall.Errno(0xfff), linux.EIO},
		{linux.EAGAIN, linux.EAGAIN},
		{fmt.Errorf("wrapped: %w", linux.EPIPE), linux.EPIPE},
		{os.ErrDeadlineExceeded, linux.ETIMEDOUT},
		{&os.PathError{Op: "open", Path: "/", Err: syscall.ENOENT}, linux.ENOENT},
	}

	for _, test := range tests {
		t.Run(fmt.Sprint(test.error), func(t *testing.T) {
			if errno := linux.MakeErrno(test.error); errno != test.errno {
				t.Errorf("error mismatch: want=%d got=%d (%s)", test.errno, errno, errno)
			}
		})
	}
}
