package linux_syscalls

import (
	"encoding/binary"

	"github.com/stealthrocket/linux-go"
	"github.com/tetratelabs/wazero/api"
)

// Sizes of the wasm32 structures exchanged with the guest.
const (
	sizeofIOVec    = 8
	sizeofMsghdr   = 28
	sizeofMmsghdr  = 32
	sizeofTimespec = 16
	sizeofLinger   = 8
	sizeofInt      = 4

	// maxIOVecs is UIO_MAXIOV.
	maxIOVecs = 1024
)

// guestMemory adapts the memory of a module instance to linux.Memory.
type guestMemory struct {
	memory api.Memory
}

func (m guestMemory) LoadUint32(addr uint32) (uint32, bool) {
	return m.memory.ReadUint32Le(addr)
}

// readIOVecs appends the buffers of the count iovec structures at ptr to iovs.
func readIOVecs(memory api.Memory, ptr, count uint32, iovs [][]byte) ([][]byte, linux.Errno) {
	if count > maxIOVecs {
		return iovs, linux.EINVAL
	}
	b, ok := memory.Read(ptr, count*sizeofIOVec)
	if !ok {
		return iovs, linux.EFAULT
	}
	for i := uint32(0); i < count; i++ {
		iov := b[i*sizeofIOVec:]
		base := binary.LittleEndian.Uint32(iov[0:])
		size := binary.LittleEndian.Uint32(iov[4:])
		buf, ok := memory.Read(base, size)
		if !ok {
			return iovs, linux.EFAULT
		}
		iovs = append(iovs, buf)
	}
	return iovs, linux.ESUCCESS
}

// readSockaddr decodes the socket address of length bytes at ptr. A null
// pointer is decoded as a nil address.
func readSockaddr(memory api.Memory, ptr, length uint32) (linux.SocketAddress, linux.Errno) {
	if ptr == 0 {
		return nil, linux.ESUCCESS
	}
	if length > linux.SizeofSockaddrAny {
		return nil, linux.EINVAL
	}
	b, ok := memory.Read(ptr, length)
	if !ok {
		return nil, linux.EFAULT
	}
	return linux.DecodeSocketAddress(b)
}

// writeSockaddr stores addr at ptr, truncated to the capacity held in the
// socklen_t at lenptr, then stores the full length of the address at lenptr.
// Nothing is written if ptr is null.
func writeSockaddr(memory api.Memory, ptr, lenptr uint32, addr linux.SocketAddress) linux.Errno {
	if ptr == 0 || addr == nil {
		return linux.ESUCCESS
	}
	capacity, ok := memory.ReadUint32Le(lenptr)
	if !ok {
		return linux.EFAULT
	}
	b, ok := memory.Read(ptr, min(capacity, linux.SizeofSockaddrAny))
	if !ok {
		return linux.EFAULT
	}
	n := linux.EncodeSocketAddress(b, addr)
	if !memory.WriteUint32Le(lenptr, uint32(n)) {
		return linux.EFAULT
	}
	return linux.ESUCCESS
}

// msghdr is the wasm32 layout of struct msghdr.
type msghdr struct {
	name       uint32
	namelen    uint32
	iov        uint32
	iovlen     uint32
	control    uint32
	controllen uint32
	flags      int32
}

func readMsghdr(memory api.Memory, ptr uint32) (h msghdr, errno linux.Errno) {
	b, ok := memory.Read(ptr, sizeofMsghdr)
	if !ok {
		return h, linux.EFAULT
	}
	h.name = binary.LittleEndian.Uint32(b[0:])
	h.namelen = binary.LittleEndian.Uint32(b[4:])
	h.iov = binary.LittleEndian.Uint32(b[8:])
	h.iovlen = binary.LittleEndian.Uint32(b[12:])
	h.control = binary.LittleEndian.Uint32(b[16:])
	h.controllen = binary.LittleEndian.Uint32(b[20:])
	h.flags = int32(binary.LittleEndian.Uint32(b[24:]))
	return h, linux.ESUCCESS
}

// load resolves the guest pointers of h into msg. The destination address is
// only decoded for sends; receives use the name buffer as output.
func (h *msghdr) load(memory api.Memory, msg *linux.Msghdr, send bool) linux.Errno {
	var errno linux.Errno
	if send {
		msg.Name, errno = readSockaddr(memory, h.name, h.namelen)
		if errno != linux.ESUCCESS {
			return errno
		}
	}
	msg.Iov, errno = readIOVecs(memory, h.iov, h.iovlen, msg.Iov[:0])
	if errno != linux.ESUCCESS {
		return errno
	}
	msg.Control = nil
	if h.controllen > 0 {
		control, ok := memory.Read(h.control, h.controllen)
		if !ok {
			return linux.EFAULT
		}
		msg.Control = control
	}
	return linux.ESUCCESS
}

// store writes the results of a receive back to the guest msghdr at ptr.
func (h *msghdr) store(memory api.Memory, ptr uint32, msg *linux.Msghdr) linux.Errno {
	namelen := uint32(0)
	if h.name != 0 && msg.Name != nil {
		b, ok := memory.Read(h.name, min(h.namelen, linux.SizeofSockaddrAny))
		if !ok {
			return linux.EFAULT
		}
		namelen = uint32(linux.EncodeSocketAddress(b, msg.Name))
	}
	b, ok := memory.Read(ptr, sizeofMsghdr)
	if !ok {
		return linux.EFAULT
	}
	binary.LittleEndian.PutUint32(b[4:], namelen)
	binary.LittleEndian.PutUint32(b[20:], uint32(len(msg.Control)))
	binary.LittleEndian.PutUint32(b[24:], uint32(msg.Flags))
	return linux.ESUCCESS
}

func readTimespec(memory api.Memory, ptr uint32) (ts linux.Timespec, errno linux.Errno) {
	b, ok := memory.Read(ptr, sizeofTimespec)
	if !ok {
		return ts, linux.EFAULT
	}
	ts.Sec = int64(binary.LittleEndian.Uint64(b[0:]))
	ts.Nsec = int64(binary.LittleEndian.Uint64(b[8:]))
	return ts, linux.ESUCCESS
}

func readLinger(b []byte) linux.LingerValue {
	return linux.LingerValue{
		OnOff:  int32(binary.LittleEndian.Uint32(b[0:])),
		Linger: int32(binary.LittleEndian.Uint32(b[4:])),
	}
}

func putLinger(b []byte, l linux.LingerValue) {
	binary.LittleEndian.PutUint32(b[0:], uint32(l.OnOff))
	binary.LittleEndian.PutUint32(b[4:], uint32(l.Linger))
}
