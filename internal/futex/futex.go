// Package futex implements the user space wait queues backing the futex
// system call.
//
// Waiters are hashed by the address of the futex word into a fixed number of
// buckets, each protected by its own lock and holding a FIFO list of waiters.
// Operations on a single address only ever lock one bucket; operations on two
// addresses (requeue) lock both buckets in ascending index order, which is
// the only rule preventing deadlocks between concurrent requeues.
package futex

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stealthrocket/linux-go"
)

// BucketCount is the number of buckets of a Table.
const BucketCount = 256

// Table is a futex wait table. The zero value is ready to use.
type Table struct {
	buckets [BucketCount]bucket
}

type bucket struct {
	mu      sync.Mutex
	waiters waiterList
}

// Waiter is the record queued in a bucket for the duration of a wait.
//
// A waiter is queued while its bucket pointer is non-nil. The pointer, the
// list links and the address are protected by the lock of the bucket the
// waiter is queued in; the pointer is also read without the lock to detect
// that a waker already dequeued the waiter.
type Waiter struct {
	next, prev *Waiter

	bucket atomic.Pointer[bucket]

	// C receives a value when the waiter is woken.
	C chan struct{}

	addr uint32
}

var waiterPool = sync.Pool{
	New: func() any { return &Waiter{C: make(chan struct{}, 1)} },
}

func (t *Table) bucketIndex(addr uint32) int {
	return int(addr % BucketCount)
}

func (t *Table) bucket(addr uint32) *bucket {
	return &t.buckets[t.bucketIndex(addr)]
}

// Wait blocks until the waiter is woken by Wake or Requeue, or until the
// timeout expires or the context is canceled.
//
// If the word at addr does not contain val when the bucket lock is held, Wait
// returns EAGAIN without blocking. Expiration of the timeout returns
// ETIMEDOUT, cancellation of the context returns EINTR. A waiter which was
// already dequeued by a waker when it timed out is considered woken.
func (t *Table) Wait(ctx context.Context, mem linux.Memory, addr, val uint32, timeout time.Duration) error {
	w := waiterPool.Get().(*Waiter)
	defer waiterPool.Put(w)

	b := t.bucket(addr)
	b.mu.Lock()
	v, ok := mem.LoadUint32(addr)
	if !ok {
		b.mu.Unlock()
		return linux.EFAULT
	}
	if v != val {
		b.mu.Unlock()
		return linux.EAGAIN
	}
	w.addr = addr
	b.waiters.pushBack(w)
	w.bucket.Store(b)
	b.mu.Unlock()

	var expired <-chan time.Time
	if timeout != linux.InfiniteTimeout {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var err error
	select {
	case <-w.C:
		return nil
	case <-expired:
		err = linux.ETIMEDOUT
	case <-ctx.Done():
		err = linux.EINTR
	}

	if !t.dequeue(w) {
		// A waker removed the waiter before it could remove itself, the
		// wake up must not be lost.
		<-w.C
		return nil
	}
	return err
}

// dequeue removes w from the bucket it is queued in. The method returns false
// if w was no longer queued.
func (t *Table) dequeue(w *Waiter) bool {
	for {
		b := w.bucket.Load()
		if b == nil {
			return false
		}
		// The waiter may be moved to another bucket by a requeue until the
		// lock of its current bucket is held.
		b.mu.Lock()
		if b != w.bucket.Load() {
			b.mu.Unlock()
			continue
		}
		b.waiters.remove(w)
		w.bucket.Store(nil)
		b.mu.Unlock()
		return true
	}
}

// Wake wakes at most n waiters of addr, in the order they started waiting,
// and returns the number of waiters woken.
func (t *Table) Wake(addr uint32, n int) int {
	b := t.bucket(addr)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wakeLocked(addr, n)
}

func (b *bucket) wakeLocked(addr uint32, n int) int {
	done := 0
	for w := b.waiters.front(); done < n && w != nil; {
		if w.addr != addr {
			w = w.next
			continue
		}
		woke := w
		w = w.next
		b.waiters.remove(woke)
		woke.bucket.Store(nil)
		woke.C <- struct{}{}
		done++
	}
	return done
}

// Requeue wakes at most nwake waiters of addr and moves all the remaining
// waiters of addr to wait on target instead, preserving their order.
//
// If expected is not nil, the word at addr is compared to it while the
// bucket locks are held; on mismatch Requeue returns EAGAIN and neither
// queue is modified. The number of waiters woken or moved is returned.
func (t *Table) Requeue(mem linux.Memory, addr uint32, nwake int, target uint32, expected *uint32) (int, error) {
	from, to := t.lockBuckets(addr, target)
	defer t.unlockBuckets(from, to)

	if expected != nil {
		v, ok := mem.LoadUint32(addr)
		if !ok {
			return 0, linux.EFAULT
		}
		if v != *expected {
			return 0, linux.EAGAIN
		}
	}

	done := from.wakeLocked(addr, nwake)

	var moved waiterList
	for w := from.waiters.front(); w != nil; {
		if w.addr != addr {
			w = w.next
			continue
		}
		requeued := w
		w = w.next
		from.waiters.remove(requeued)
		requeued.addr = target
		moved.pushBack(requeued)
		requeued.bucket.Store(to)
		done++
	}
	to.waiters.pushBackList(&moved)
	return done, nil
}

// lockBuckets locks the buckets of the two addresses in ascending index order,
// or a single bucket when both addresses share it.
func (t *Table) lockBuckets(addr1, addr2 uint32) (b1, b2 *bucket) {
	i, j := t.bucketIndex(addr1), t.bucketIndex(addr2)
	b1, b2 = &t.buckets[i], &t.buckets[j]
	switch {
	case i < j:
		b1.mu.Lock()
		b2.mu.Lock()
	case i > j:
		b2.mu.Lock()
		b1.mu.Lock()
	default:
		b1.mu.Lock()
	}
	return b1, b2
}

func (t *Table) unlockBuckets(b1, b2 *bucket) {
	b1.mu.Unlock()
	if b1 != b2 {
		b2.mu.Unlock()
	}
}

// Waiters returns the number of waiters queued on addr.
func (t *Table) Waiters(addr uint32) (n int) {
	b := t.bucket(addr)
	b.mu.Lock()
	defer b.mu.Unlock()
	for w := b.waiters.front(); w != nil; w = w.next {
		if w.addr == addr {
			n++
		}
	}
	return n
}
