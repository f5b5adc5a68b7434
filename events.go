package linux

import "fmt"

// Events is the set of readiness conditions accumulated for a socket.
//
// Conditions are sticky: once observed they remain in the set until an
// operation consumes them, which gives level-triggered semantics to guests
// on top of host notifications that are only delivered on transitions.
type Events uint32

const (
	// Readable indicates that data can be received.
	Readable Events = 1 << iota

	// Writable indicates that data can be sent.
	Writable

	// Acceptable indicates that a listening socket has pending connections.
	Acceptable

	// Connected indicates that a pending connection attempt has completed,
	// successfully or not.
	Connected

	// Closed indicates that the peer closed the connection.
	Closed
)

// Has is true if all the events of e are set.
func (events Events) Has(e Events) bool {
	return (events & e) == e
}

// HasAny is true if any of the events of e is set.
func (events Events) HasAny(e Events) bool {
	return (events & e) != 0
}

var eventsStrings = [...]string{
	"Readable",
	"Writable",
	"Acceptable",
	"Connected",
	"Closed",
}

func (events Events) String() (s string) {
	if events == 0 {
		return "Events(0)"
	}
	for i, name := range eventsStrings {
		if !events.Has(1 << i) {
			continue
		}
		if len(s) > 0 {
			s += "|"
		}
		s += name
	}
	if len(s) == 0 {
		return fmt.Sprintf("Events(%d)", events)
	}
	return
}

// PollEvents returns the poll(2) bits that represent the readiness set.
func (events Events) PollEvents() (poll PollEvents) {
	if events.HasAny(Readable | Acceptable) {
		poll |= POLLIN
	}
	if events.Has(Closed) {
		poll |= POLLIN | POLLHUP
	}
	if events.Has(Writable) {
		poll |= POLLOUT
	}
	return poll
}

// PollEvents are the event bits of struct pollfd.
type PollEvents int16

const (
	POLLIN    PollEvents = 0x1
	POLLPRI   PollEvents = 0x2
	POLLOUT   PollEvents = 0x4
	POLLERR   PollEvents = 0x8
	POLLHUP   PollEvents = 0x10
	POLLNVAL  PollEvents = 0x20
	POLLRDHUP PollEvents = 0x2000
)

// Has is true if all the events of e are set.
func (events PollEvents) Has(e PollEvents) bool {
	return (events & e) == e
}

var pollEventsStrings = [...]struct {
	event PollEvents
	name  string
}{
	{POLLIN, "POLLIN"},
	{POLLPRI, "POLLPRI"},
	{POLLOUT, "POLLOUT"},
	{POLLERR, "POLLERR"},
	{POLLHUP, "POLLHUP"},
	{POLLNVAL, "POLLNVAL"},
	{POLLRDHUP, "POLLRDHUP"},
}

func (events PollEvents) String() (s string) {
	if events == 0 {
		return "PollEvents(0)"
	}
	for _, e := range pollEventsStrings {
		if !events.Has(e.event) {
			continue
		}
		if len(s) > 0 {
			s += "|"
		}
		s += e.name
	}
	if len(s) == 0 {
		return fmt.Sprintf("PollEvents(%#x)", int16(events))
	}
	return
}
