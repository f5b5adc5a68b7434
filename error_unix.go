package linux

import (
	"context"
	"errors"
	"io/fs"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stealthrocket/linux-go/internal/logging"
)

var unmappedErrnoLog = logging.RateLimited(logrus.StandardLogger(), 10*time.Second)

// MakeErrno converts a Go error to the guest error code that best represents
// it.
//
// The function never fails: host error codes without a guest equivalent are
// reported as EIO and a warning is logged.
func MakeErrno(err error) Errno {
	if err == nil {
		return ESUCCESS
	}
	if err == syscall.EAGAIN {
		return EAGAIN
	}
	return makeErrnoSlow(err)
}

func makeErrnoSlow(err error) Errno {
	switch err {
	case context.Canceled:
		return EINTR
	case context.DeadlineExceeded:
		return ETIMEDOUT
	}
	var errno Errno
	if errors.As(err, &errno) {
		return errno
	}
	var sysErrno syscall.Errno
	if errors.As(err, &sysErrno) {
		if sysErrno == 0 {
			return ESUCCESS
		}
		if errno, ok := syscallErrnoToLinux(sysErrno); ok {
			return errno
		}
		if entry := unmappedErrnoLog.WithFields(logrus.Fields{"errno": int(sysErrno)}); entry != nil {
			entry.Warnf("unmapped host error: %v", sysErrno)
		}
		return EIO
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) {
		if timeout.Timeout() {
			return ETIMEDOUT
		}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ENOENT
	case errors.Is(err, fs.ErrExist):
		return EEXIST
	case errors.Is(err, fs.ErrPermission):
		return EPERM
	}
	return EIO
}
