package futex

// waiterList is an intrusive doubly linked list of waiters.
type waiterList struct {
	head, tail *Waiter
}

func (l *waiterList) front() *Waiter {
	return l.head
}

func (l *waiterList) pushBack(w *Waiter) {
	w.next = nil
	w.prev = l.tail
	if l.tail != nil {
		l.tail.next = w
	} else {
		l.head = w
	}
	l.tail = w
}

// pushBackList moves all the waiters of m to the back of l.
func (l *waiterList) pushBackList(m *waiterList) {
	if m.head == nil {
		return
	}
	if l.tail != nil {
		l.tail.next = m.head
		m.head.prev = l.tail
	} else {
		l.head = m.head
	}
	l.tail = m.tail
	m.head, m.tail = nil, nil
}

func (l *waiterList) remove(w *Waiter) {
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		l.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		l.tail = w.prev
	}
	w.next, w.prev = nil, nil
}
