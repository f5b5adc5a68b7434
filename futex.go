package linux

import (
	"fmt"
	"time"
)

// FutexOp is the operation argument of futex(2).
type FutexOp int32

const (
	FutexWait       FutexOp = 0 // FUTEX_WAIT
	FutexWake       FutexOp = 1 // FUTEX_WAKE
	FutexFD         FutexOp = 2 // FUTEX_FD
	FutexRequeue    FutexOp = 3 // FUTEX_REQUEUE
	FutexCmpRequeue FutexOp = 4 // FUTEX_CMP_REQUEUE

	FutexPrivateFlag   FutexOp = 128 // FUTEX_PRIVATE_FLAG
	FutexClockRealtime FutexOp = 256 // FUTEX_CLOCK_REALTIME

	futexCmdMask = ^(FutexPrivateFlag | FutexClockRealtime)
)

// Cmd returns the operation without its option flags.
func (op FutexOp) Cmd() FutexOp {
	return op & futexCmdMask
}

func (op FutexOp) String() (s string) {
	switch op.Cmd() {
	case FutexWait:
		s = "FutexWait"
	case FutexWake:
		s = "FutexWake"
	case FutexFD:
		s = "FutexFD"
	case FutexRequeue:
		s = "FutexRequeue"
	case FutexCmpRequeue:
		s = "FutexCmpRequeue"
	default:
		s = fmt.Sprintf("FutexOp(%d)", op.Cmd())
	}
	if (op & FutexPrivateFlag) != 0 {
		s += "|FutexPrivateFlag"
	}
	if (op & FutexClockRealtime) != 0 {
		s += "|FutexClockRealtime"
	}
	return s
}

// Timespec is the guest struct timespec.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Duration converts ts to a time.Duration. EINVAL is returned for negative
// or out of range values, like Linux does for relative timeouts.
func (ts Timespec) Duration() (time.Duration, Errno) {
	if ts.Sec < 0 || ts.Nsec < 0 || ts.Nsec >= int64(time.Second) {
		return 0, EINVAL
	}
	if ts.Sec > int64(InfiniteTimeout/time.Second)-1 {
		return InfiniteTimeout, ESUCCESS
	}
	return time.Duration(ts.Sec)*time.Second + time.Duration(ts.Nsec), ESUCCESS
}

// InfiniteTimeout is the timeout of futex waits which never expire.
const InfiniteTimeout time.Duration = 1<<63 - 1

// Memory is the read access to the guest address space needed by the futex
// operations to compare the value of a futex word.
type Memory interface {
	// LoadUint32 reads the 32 bits word at addr, the boolean is false if the
	// address is not accessible.
	LoadUint32(addr uint32) (uint32, bool)
}
