package linuxtest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stealthrocket/linux-go"
)

type memory []uint32

func (m memory) LoadUint32(addr uint32) (uint32, bool) {
	if i := addr / 4; int(i) < len(m) {
		return atomic.LoadUint32(&m[i]), true
	}
	return 0, false
}

var futex = testSuite{
	"wait with a different value returns EAGAIN": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		mem := memory{0, 1}
		assertEqual(t, sys.FutexWait(ctx, mem, 4, 0, linux.InfiniteTimeout), linux.EAGAIN)
	},

	"wait on an address outside of memory returns EFAULT": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		mem := memory{0}
		assertEqual(t, sys.FutexWait(ctx, mem, 64, 0, linux.InfiniteTimeout), linux.EFAULT)
	},

	"wait on an unaligned address is invalid": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		mem := memory{0, 0}
		assertEqual(t, sys.FutexWait(ctx, mem, 2, 0, linux.InfiniteTimeout), linux.EINVAL)
		_, errno := sys.FutexWake(ctx, 3, 1)
		assertEqual(t, errno, linux.EINVAL)
	},

	"wait times out": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		mem := memory{0}
		assertEqual(t, sys.FutexWait(ctx, mem, 0, 0, 10*time.Millisecond), linux.ETIMEDOUT)
	},

	"wait is interrupted by the cancellation of the context": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		mem := memory{0}
		ctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(10*time.Millisecond, cancel)
		assertEqual(t, sys.FutexWait(ctx, mem, 0, 0, linux.InfiniteTimeout), linux.EINTR)
	},

	"wake without waiters returns zero": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		n, errno := sys.FutexWake(ctx, 0, 1)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, n, 0)
	},

	"wake unblocks a waiter": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		mem := memory{0}

		done := make(chan linux.Errno, 1)
		go func() { done <- sys.FutexWait(ctx, mem, 0, 0, linux.InfiniteTimeout) }()

		atomic.StoreUint32(&mem[0], 1)
		deadline := time.Now().Add(10 * time.Second)
		for {
			n, errno := sys.FutexWake(ctx, 0, 1)
			assertEqual(t, errno, linux.ESUCCESS)
			if n == 1 {
				break
			}
			select {
			case errno := <-done:
				// The waiter observed the new value before queuing.
				assertEqual(t, errno, linux.EAGAIN)
				return
			default:
			}
			if time.Now().After(deadline) {
				t.Fatal("timeout waiting for the futex waiter")
			}
			time.Sleep(time.Millisecond)
		}
		assertEqual(t, <-done, linux.ESUCCESS)
	},

	"requeue with a different value returns EAGAIN": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		mem := memory{3, 0}
		expected := uint32(2)
		n, errno := sys.FutexRequeue(ctx, mem, 0, 1, 4, &expected)
		assertEqual(t, errno, linux.EAGAIN)
		assertEqual(t, n, 0)

		expected = 3
		n, errno = sys.FutexRequeue(ctx, mem, 0, 1, 4, &expected)
		assertEqual(t, errno, linux.ESUCCESS)
		assertEqual(t, n, 0)
	},

	"set_robust_list accepts the size of the list head": func(t *testing.T, ctx context.Context, newSystem newSystem) {
		sys := newSystem(TestConfig{})
		assertEqual(t, sys.SetRobustList(ctx, 1024, 12), linux.ESUCCESS)
		assertEqual(t, sys.SetRobustList(ctx, 1024, 24), linux.EINVAL)
	},
}
