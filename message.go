package linux

import "sync"

// Msghdr is the guest struct msghdr, with guest pointers resolved to slices
// of host memory.
type Msghdr struct {
	// Name is the destination address of sends (nil for connected sockets),
	// and receives the source address of received messages.
	Name SocketAddress

	// Iov is the scatter/gather list of the message payload.
	Iov [][]byte

	// Control is the ancillary data buffer. After a receive, its length is
	// adjusted to the amount of control data written.
	Control []byte

	// Flags receives the MSG_* flags of received messages.
	Flags MsgFlags
}

// Size returns the total length of the payload of m.
func (m *Msghdr) Size() (n int) {
	for _, iov := range m.Iov {
		n += len(iov)
	}
	return n
}

// Mmsghdr is one entry of the vectors passed to sendmmsg and recvmmsg.
type Mmsghdr struct {
	Hdr Msghdr
	// Len is set to the number of bytes transmitted for the message.
	Len int
}

var iovecPool sync.Pool // [][]byte

// GetIOVecs gets a [][]byte with at least the specified capacity.
func GetIOVecs(capacity int) [][]byte {
	if c := iovecPool.Get(); c != nil {
		if iovecs := c.([][]byte); cap(iovecs) >= capacity {
			return iovecs[:0]
		}
	}
	return make([][]byte, 0, capacity)
}

// PutIOVecs returns a [][]byte to the pool.
func PutIOVecs(iovecs [][]byte) {
	clear(iovecs)
	iovecPool.Put(iovecs[:0])
}
