package linux_syscalls

import (
	"context"

	"github.com/stealthrocket/linux-go"
	. "github.com/stealthrocket/wazergo/types"
)

// Futex dispatches futex(2) calls on the operation, ignoring the private and
// realtime clock flags. The timeout argument carries a pointer to a relative
// timespec for waits; requeue operations move every waiter past the first
// val, so the requeue limit passed in its place is not used.
func (m *Module) Futex(ctx context.Context, uaddr Uint32, op Int32, val Uint32, timeout Pointer[Uint8], uaddr2, val3 Uint32, result Pointer[Int32]) Errno {
	memory := guestMemory{timeout.Memory()}

	switch cmd := linux.FutexOp(op).Cmd(); cmd {
	case linux.FutexWait:
		d := linux.InfiniteTimeout
		if timeout.Offset() != 0 {
			ts, errno := readTimespec(memory.memory, timeout.Offset())
			if errno != linux.ESUCCESS {
				return Errno(errno)
			}
			if d, errno = ts.Duration(); errno != linux.ESUCCESS {
				return Errno(errno)
			}
		}
		errno := m.System.FutexWait(ctx, memory, uint32(uaddr), uint32(val), d)
		if errno != linux.ESUCCESS {
			return Errno(errno)
		}
		result.Store(0)
		return Errno(linux.ESUCCESS)

	case linux.FutexWake:
		n, errno := m.System.FutexWake(ctx, uint32(uaddr), int(int32(val)))
		if errno != linux.ESUCCESS {
			return Errno(errno)
		}
		result.Store(Int32(n))
		return Errno(linux.ESUCCESS)

	case linux.FutexRequeue, linux.FutexCmpRequeue:
		var expected *uint32
		if cmd == linux.FutexCmpRequeue {
			v := uint32(val3)
			expected = &v
		}
		n, errno := m.System.FutexRequeue(ctx, memory, uint32(uaddr), int(int32(val)), uint32(uaddr2), expected)
		if errno != linux.ESUCCESS {
			return Errno(errno)
		}
		result.Store(Int32(n))
		return Errno(linux.ESUCCESS)

	default:
		return Errno(linux.ENOSYS)
	}
}
