package futex_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stealthrocket/linux-go"
	"github.com/stealthrocket/linux-go/internal/futex"
	"golang.org/x/sync/errgroup"
)

// memory is a guest address space of 32 bits words.
type memory []uint32

func (m memory) LoadUint32(addr uint32) (uint32, bool) {
	if i := addr / 4; int(i) < len(m) {
		return atomic.LoadUint32(&m[i]), true
	}
	return 0, false
}

func (m memory) store(addr, value uint32) {
	atomic.StoreUint32(&m[addr/4], value)
}

const infinite = linux.InfiniteTimeout

// waitQueued blocks until n waiters are queued on addr.
func waitQueued(t *testing.T, table *futex.Table, addr uint32, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for table.Waiters(addr) != n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d waiters on %#x (got %d)", n, addr, table.Waiters(addr))
		}
		time.Sleep(time.Millisecond)
	}
}

func startWaiter(ctx context.Context, table *futex.Table, mem memory, addr, val uint32) <-chan error {
	done := make(chan error, 1)
	go func() { done <- table.Wait(ctx, mem, addr, val, infinite) }()
	return done
}

func TestWaitValueMismatch(t *testing.T) {
	table := new(futex.Table)
	mem := make(memory, 4)
	mem.store(8, 42)

	for _, val := range []uint32{0, 1, 41, 43, ^uint32(0)} {
		if err := table.Wait(context.Background(), mem, 8, val, infinite); err != linux.EAGAIN {
			t.Errorf("wrong error for value %d: want=EAGAIN got=%v", val, err)
		}
	}
	if n := table.Waiters(8); n != 0 {
		t.Errorf("waiters left in the queue: %d", n)
	}
}

func TestWaitFault(t *testing.T) {
	table := new(futex.Table)
	mem := make(memory, 1)

	if err := table.Wait(context.Background(), mem, 64, 0, infinite); err != linux.EFAULT {
		t.Errorf("wrong error: want=EFAULT got=%v", err)
	}
}

func TestWaitWake(t *testing.T) {
	ctx := context.Background()
	table := new(futex.Table)
	mem := make(memory, 1)

	done := startWaiter(ctx, table, mem, 0, 0)
	waitQueued(t, table, 0, 1)

	mem.store(0, 1)
	if n := table.Wake(0, 1); n != 1 {
		t.Fatalf("wrong number of waiters woken: want=1 got=%d", n)
	}
	if err := <-done; err != nil {
		t.Fatalf("wait returned an error: %v", err)
	}
	if n := table.Wake(0, 1); n != 0 {
		t.Errorf("wake without waiters returned %d", n)
	}
}

func TestWakeCount(t *testing.T) {
	ctx := context.Background()
	table := new(futex.Table)
	mem := make(memory, 2)

	var waiters []<-chan error
	for i := 0; i < 5; i++ {
		waiters = append(waiters, startWaiter(ctx, table, mem, 4, 0))
	}
	// A waiter on another address of the same bucket is not woken.
	other := make(memory, 128)
	foreign := startWaiter(ctx, table, other, 4+futex.BucketCount, 0)

	waitQueued(t, table, 4, 5)
	waitQueued(t, table, 4+futex.BucketCount, 1)

	if n := table.Wake(4, 2); n != 2 {
		t.Errorf("wrong number of waiters woken: want=2 got=%d", n)
	}
	if n := table.Wake(4, 10); n != 3 {
		t.Errorf("wrong number of waiters woken: want=3 got=%d", n)
	}
	for _, done := range waiters {
		if err := <-done; err != nil {
			t.Errorf("wait returned an error: %v", err)
		}
	}

	if n := table.Waiters(4 + futex.BucketCount); n != 1 {
		t.Errorf("waiter of another address was woken")
	}
	table.Wake(4+futex.BucketCount, 1)
	<-foreign
}

func TestWakeOrder(t *testing.T) {
	ctx := context.Background()
	table := new(futex.Table)
	mem := make(memory, 1)

	const N = 8
	woken := make(chan int, N)
	for i := 0; i < N; i++ {
		go func(i int) {
			if err := table.Wait(ctx, mem, 0, 0, infinite); err == nil {
				woken <- i
			}
		}(i)
		waitQueued(t, table, 0, i+1)
	}

	for i := 0; i < N; i++ {
		if n := table.Wake(0, 1); n != 1 {
			t.Fatalf("wrong number of waiters woken: want=1 got=%d", n)
		}
		if j := <-woken; j != i {
			t.Fatalf("waiters woken out of order: want=%d got=%d", i, j)
		}
	}
}

func TestWaitTimeout(t *testing.T) {
	table := new(futex.Table)
	mem := make(memory, 1)

	start := time.Now()
	if err := table.Wait(context.Background(), mem, 0, 0, 20*time.Millisecond); err != linux.ETIMEDOUT {
		t.Fatalf("wrong error: want=ETIMEDOUT got=%v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("wait returned too early: %s", elapsed)
	}
	if n := table.Waiters(0); n != 0 {
		t.Errorf("timed out waiter left in the queue")
	}
}

func TestWaitInterrupted(t *testing.T) {
	table := new(futex.Table)
	mem := make(memory, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := startWaiter(ctx, table, mem, 0, 0)
	waitQueued(t, table, 0, 1)
	cancel()

	if err := <-done; err != linux.EINTR {
		t.Fatalf("wrong error: want=EINTR got=%v", err)
	}
	if n := table.Waiters(0); n != 0 {
		t.Errorf("interrupted waiter left in the queue")
	}
}

func TestWakeRacesWithTimeout(t *testing.T) {
	table := new(futex.Table)
	mem := make(memory, 1)

	for i := 0; i < 500; i++ {
		done := make(chan error, 1)
		go func() { done <- table.Wait(context.Background(), mem, 0, 0, 50*time.Microsecond) }()

		time.Sleep(time.Duration(i%100) * time.Microsecond)
		n := table.Wake(0, 1)
		err := <-done

		switch {
		case n == 1 && err != nil:
			t.Fatalf("iteration %d: wake up lost, wait returned %v", i, err)
		case n == 0 && err != linux.ETIMEDOUT:
			t.Fatalf("iteration %d: wait returned %v without being woken", i, err)
		}
	}
}

func TestRequeue(t *testing.T) {
	ctx := context.Background()
	table := new(futex.Table)
	mem := make(memory, 4)

	const a, b = 0, 12
	var waiters []<-chan error
	for i := 0; i < 3; i++ {
		waiters = append(waiters, startWaiter(ctx, table, mem, a, 0))
		waitQueued(t, table, a, i+1)
	}

	n, err := table.Requeue(mem, a, 1, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("wrong number of waiters woken or moved: want=3 got=%d", n)
	}
	if err := <-waiters[0]; err != nil {
		t.Errorf("first waiter was not woken: %v", err)
	}
	if n := table.Waiters(a); n != 0 {
		t.Errorf("waiters left on the source address: %d", n)
	}
	if n := table.Waiters(b); n != 2 {
		t.Errorf("wrong number of waiters on the target address: want=2 got=%d", n)
	}
	if n := table.Wake(a, 10); n != 0 {
		t.Errorf("requeued waiters woken through the source address: %d", n)
	}
	if n := table.Wake(b, 10); n != 2 {
		t.Errorf("wrong number of requeued waiters woken: want=2 got=%d", n)
	}
	for _, done := range waiters[1:] {
		if err := <-done; err != nil {
			t.Errorf("requeued waiter returned an error: %v", err)
		}
	}
}

func TestRequeueValueMismatch(t *testing.T) {
	ctx := context.Background()
	table := new(futex.Table)
	mem := make(memory, 4)
	mem.store(0, 7)

	const a, b = 0, 4
	var waiters []<-chan error
	for i := 0; i < 2; i++ {
		waiters = append(waiters, startWaiter(ctx, table, mem, a, 7))
		waitQueued(t, table, a, i+1)
	}

	expected := uint32(8)
	n, err := table.Requeue(mem, a, 1, b, &expected)
	if err != linux.EAGAIN {
		t.Fatalf("wrong error: want=EAGAIN got=%v", err)
	}
	if n != 0 {
		t.Errorf("requeue reported changes: %d", n)
	}
	if n := table.Waiters(a); n != 2 {
		t.Errorf("source queue modified: want=2 got=%d", n)
	}
	if n := table.Waiters(b); n != 0 {
		t.Errorf("target queue modified: want=0 got=%d", n)
	}

	expected = 7
	if n, err := table.Requeue(mem, a, 2, b, &expected); err != nil || n != 2 {
		t.Errorf("requeue with the expected value failed: n=%d err=%v", n, err)
	}
	for _, done := range waiters {
		<-done
	}
}

func TestRequeueSameBucket(t *testing.T) {
	ctx := context.Background()
	table := new(futex.Table)
	mem := make(memory, 2*futex.BucketCount)

	const a, b = 8, 8 + futex.BucketCount
	var waiters []<-chan error
	for i := 0; i < 4; i++ {
		waiters = append(waiters, startWaiter(ctx, table, mem, a, 0))
		waitQueued(t, table, a, i+1)
	}

	n, err := table.Requeue(mem, a, 0, b, nil)
	if err != nil || n != 4 {
		t.Fatalf("requeue failed: n=%d err=%v", n, err)
	}
	if n := table.Waiters(b); n != 4 {
		t.Errorf("wrong number of waiters on the target address: want=4 got=%d", n)
	}

	// Requeueing an address onto itself keeps the waiters queued.
	if n, err := table.Requeue(mem, b, 1, b, nil); err != nil || n != 4 {
		t.Errorf("requeue onto the same address failed: n=%d err=%v", n, err)
	}
	if n := table.Wake(b, 10); n != 3 {
		t.Errorf("wrong number of waiters woken: want=3 got=%d", n)
	}
	for _, done := range waiters {
		if err := <-done; err != nil {
			t.Errorf("wait returned an error: %v", err)
		}
	}
}

func TestConcurrentRequeueDoesNotDeadlock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	table := new(futex.Table)
	mem := make(memory, 2*futex.BucketCount)

	const a, b = 4, 40
	group, ctx := errgroup.WithContext(ctx)

	for i := 0; i < 4; i++ {
		addr := uint32(a)
		if i%2 == 1 {
			addr = b
		}
		group.Go(func() error {
			for ctx.Err() == nil {
				err := table.Wait(ctx, mem, addr, 0, time.Millisecond)
				if err != nil && err != linux.ETIMEDOUT && err != linux.EINTR {
					return err
				}
			}
			return nil
		})
	}

	for i, pair := range [][2]uint32{{a, b}, {b, a}} {
		from, to := pair[0], pair[1]
		last := i == 1
		group.Go(func() error {
			for j := 0; j < 10000; j++ {
				if _, err := table.Requeue(mem, from, 1, to, nil); err != nil {
					return err
				}
			}
			if last {
				cancel()
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		t.Fatal(err)
	}
}
