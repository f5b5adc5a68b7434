package linux_syscalls

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stealthrocket/linux-go"
	"github.com/stealthrocket/linux-go/systems/unix"
	. "github.com/stealthrocket/wazergo/types"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// memoryModule is a WebAssembly module exporting a single page of memory.
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
}

func newMemory(t *testing.T) api.Memory {
	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)
	t.Cleanup(func() { runtime.Close(ctx) })

	mod, err := runtime.Instantiate(ctx, memoryModule)
	if err != nil {
		t.Fatal(err)
	}
	return mod.Memory()
}

func newModule(t *testing.T) *Module {
	system := &unix.System{FileSystem: unix.DirFileSystem(t.TempDir())}
	t.Cleanup(func() { system.CloseSystem(context.Background()) })
	return &Module{System: system}
}

func ptr[T Object[T]](memory api.Memory, offset uint32) Pointer[T] {
	var p Pointer[T]
	return p.LoadValue(memory, []uint64{uint64(offset)})
}

func assertErrno(t *testing.T, got Errno, want linux.Errno) {
	t.Helper()
	if got != Errno(want) {
		t.Fatalf("wrong errno: got %s, want %s", linux.Errno(got).Name(), want.Name())
	}
}

func load32(t *testing.T, memory api.Memory, offset uint32) uint32 {
	t.Helper()
	v, ok := memory.ReadUint32Le(offset)
	if !ok {
		t.Fatalf("out of bounds read at %#x", offset)
	}
	return v
}

func store32(t *testing.T, memory api.Memory, offset, value uint32) {
	t.Helper()
	if !memory.WriteUint32Le(offset, value) {
		t.Fatalf("out of bounds write at %#x", offset)
	}
}

func storeSockaddr(t *testing.T, memory api.Memory, offset uint32, addr linux.SocketAddress) uint32 {
	t.Helper()
	b, _ := memory.Read(offset, linux.SizeofSockaddrAny)
	return uint32(linux.EncodeSocketAddress(b, addr))
}

func loadSockaddr(t *testing.T, memory api.Memory, offset, length uint32) linux.SocketAddress {
	t.Helper()
	b, _ := memory.Read(offset, length)
	addr, errno := linux.DecodeSocketAddress(b)
	if errno != linux.ESUCCESS {
		t.Fatal(errno)
	}
	return addr
}

// storeIOVecs writes the iovec array at offset pointing to the buffers.
func storeIOVecs(t *testing.T, memory api.Memory, offset uint32, buffers ...[2]uint32) {
	t.Helper()
	for i, buf := range buffers {
		store32(t, memory, offset+uint32(i)*sizeofIOVec, buf[0])
		store32(t, memory, offset+uint32(i)*sizeofIOVec+4, buf[1])
	}
}

const (
	addrOffset    = 0x100
	addrlenOffset = 0x200
	resultOffset  = 0x210
	iovOffset     = 0x300
	msgOffset     = 0x400
	dataOffset    = 0x1000
)

func socket(t *testing.T, m *Module, memory api.Memory, family linux.Family, socketType linux.SocketType) Int32 {
	t.Helper()
	ctx := context.Background()
	assertErrno(t, m.Socket(ctx, Int32(family), Int32(socketType), 0, ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	return Int32(load32(t, memory, resultOffset))
}

func TestInstantiateWithoutSystem(t *testing.T) {
	if _, err := HostModule.Instantiate(context.Background()); err == nil {
		t.Error("instantiating the host module without a system did not fail")
	}
}

func TestStreamSockets(t *testing.T) {
	ctx := context.Background()
	memory := newMemory(t)
	m := newModule(t)

	lfd := socket(t, m, memory, linux.InetFamily, linux.StreamSocket)
	n := storeSockaddr(t, memory, addrOffset, &linux.Inet4Address{Addr: [4]byte{127, 0, 0, 1}})
	assertErrno(t, m.Bind(ctx, lfd, ptr[Uint8](memory, addrOffset), Uint32(n)), linux.ESUCCESS)
	assertErrno(t, m.Listen(ctx, lfd, 8), linux.ESUCCESS)

	store32(t, memory, addrlenOffset, linux.SizeofSockaddrAny)
	assertErrno(t, m.GetSockName(ctx, lfd, ptr[Uint8](memory, addrOffset), ptr[Uint32](memory, addrlenOffset)), linux.ESUCCESS)
	addrlen := load32(t, memory, addrlenOffset)
	if addrlen != linux.SizeofSockaddrInet4 {
		t.Fatalf("wrong address length: %d", addrlen)
	}
	local := loadSockaddr(t, memory, addrOffset, addrlen).(*linux.Inet4Address)
	if local.Port == 0 {
		t.Fatal("listener bound to port zero")
	}

	client := socket(t, m, memory, linux.InetFamily, linux.StreamSocket)
	assertErrno(t, m.Connect(ctx, client, ptr[Uint8](memory, addrOffset), Uint32(addrlen)), linux.ESUCCESS)

	store32(t, memory, addrlenOffset, linux.SizeofSockaddrAny)
	assertErrno(t, m.Accept4(ctx, lfd, ptr[Uint8](memory, addrOffset), ptr[Uint32](memory, addrlenOffset), 0, ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	conn := Int32(load32(t, memory, resultOffset))
	if peer := loadSockaddr(t, memory, addrOffset, load32(t, memory, addrlenOffset)); peer.Family() != linux.InetFamily {
		t.Errorf("wrong peer address: %s", peer)
	}

	data, _ := memory.Read(dataOffset, 16)
	copy(data, "Hello, World!")
	storeIOVecs(t, memory, iovOffset, [2]uint32{dataOffset, 7}, [2]uint32{dataOffset + 7, 6})
	assertErrno(t, m.Write(ctx, client, ptr[Uint8](memory, iovOffset), 2, ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	if n := load32(t, memory, resultOffset); n != 13 {
		t.Fatalf("wrong write size: %d", n)
	}

	storeIOVecs(t, memory, iovOffset, [2]uint32{dataOffset + 0x100, 64})
	assertErrno(t, m.Read(ctx, conn, ptr[Uint8](memory, iovOffset), 1, ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	size := load32(t, memory, resultOffset)
	if b, _ := memory.Read(dataOffset+0x100, size); string(b) != "Hello, World!" {
		t.Errorf("wrong data: %q", b)
	}

	assertErrno(t, m.Shutdown(ctx, client, Int32(linux.ShutdownWR)), linux.ESUCCESS)
	assertErrno(t, m.Read(ctx, conn, ptr[Uint8](memory, iovOffset), 1, ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	if n := load32(t, memory, resultOffset); n != 0 {
		t.Errorf("wrong read size after shutdown: %d", n)
	}
	assertErrno(t, m.Poll(ctx, conn, Int32(linux.POLLIN), ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	if revents := linux.PollEvents(load32(t, memory, resultOffset)); !revents.Has(linux.POLLIN) {
		t.Errorf("wrong poll events after shutdown: %s", revents)
	}

	assertErrno(t, m.CloseFD(ctx, conn), linux.ESUCCESS)
	assertErrno(t, m.CloseFD(ctx, conn), linux.EBADF)
}

func TestDatagramMessages(t *testing.T) {
	ctx := context.Background()
	memory := newMemory(t)
	m := newModule(t)

	server := socket(t, m, memory, linux.InetFamily, linux.DatagramSocket)
	n := storeSockaddr(t, memory, addrOffset, &linux.Inet4Address{Addr: [4]byte{127, 0, 0, 1}})
	assertErrno(t, m.Bind(ctx, server, ptr[Uint8](memory, addrOffset), Uint32(n)), linux.ESUCCESS)
	store32(t, memory, addrlenOffset, linux.SizeofSockaddrAny)
	assertErrno(t, m.GetSockName(ctx, server, ptr[Uint8](memory, addrOffset), ptr[Uint32](memory, addrlenOffset)), linux.ESUCCESS)

	client := socket(t, m, memory, linux.InetFamily, linux.DatagramSocket)

	data, _ := memory.Read(dataOffset, 8)
	copy(data, "datagram")
	storeIOVecs(t, memory, iovOffset, [2]uint32{dataOffset, 8})

	// struct msghdr {name, namelen, iov, iovlen, control, controllen, flags}
	for i, v := range []uint32{addrOffset, linux.SizeofSockaddrInet4, iovOffset, 1, 0, 0, 0} {
		store32(t, memory, msgOffset+uint32(i)*4, v)
	}
	assertErrno(t, m.SendMsg(ctx, client, ptr[Uint8](memory, msgOffset), 0, ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	if n := load32(t, memory, resultOffset); n != 8 {
		t.Fatalf("wrong send size: %d", n)
	}

	// Receive into a 4 bytes buffer to observe the truncation flag.
	const nameOffset = addrOffset + 0x80
	storeIOVecs(t, memory, iovOffset, [2]uint32{dataOffset + 0x100, 4})
	for i, v := range []uint32{nameOffset, linux.SizeofSockaddrAny, iovOffset, 1, 0, 0, 0} {
		store32(t, memory, msgOffset+uint32(i)*4, v)
	}
	assertErrno(t, m.RecvMsg(ctx, server, ptr[Uint8](memory, msgOffset), 0, ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	if n := load32(t, memory, resultOffset); n != 4 {
		t.Errorf("wrong receive size: %d", n)
	}
	if b, _ := memory.Read(dataOffset+0x100, 4); string(b) != "data" {
		t.Errorf("wrong data: %q", b)
	}
	namelen := load32(t, memory, msgOffset+4)
	if namelen != linux.SizeofSockaddrInet4 {
		t.Errorf("wrong name length: %d", namelen)
	}
	if from := loadSockaddr(t, memory, nameOffset, namelen); from.Family() != linux.InetFamily {
		t.Errorf("wrong sender address: %s", from)
	}
	if flags := linux.MsgFlags(load32(t, memory, msgOffset+24)); !flags.Has(linux.MsgTrunc) {
		t.Errorf("missing truncation flag: %s", flags)
	}
}

func TestSendMMsg(t *testing.T) {
	ctx := context.Background()
	memory := newMemory(t)
	m := newModule(t)

	server := socket(t, m, memory, linux.InetFamily, linux.DatagramSocket)
	n := storeSockaddr(t, memory, addrOffset, &linux.Inet4Address{Addr: [4]byte{127, 0, 0, 1}})
	assertErrno(t, m.Bind(ctx, server, ptr[Uint8](memory, addrOffset), Uint32(n)), linux.ESUCCESS)
	store32(t, memory, addrlenOffset, linux.SizeofSockaddrAny)
	assertErrno(t, m.GetSockName(ctx, server, ptr[Uint8](memory, addrOffset), ptr[Uint32](memory, addrlenOffset)), linux.ESUCCESS)

	client := socket(t, m, memory, linux.InetFamily, linux.DatagramSocket)
	data, _ := memory.Read(dataOffset, 6)
	copy(data, "abcdef")

	for i := uint32(0); i < 2; i++ {
		iov := iovOffset + i*sizeofIOVec
		storeIOVecs(t, memory, iov, [2]uint32{dataOffset + 3*i, 3})
		msg := msgOffset + i*sizeofMmsghdr
		for j, v := range []uint32{addrOffset, linux.SizeofSockaddrInet4, iov, 1, 0, 0, 0, 0} {
			store32(t, memory, msg+uint32(j)*4, v)
		}
	}
	assertErrno(t, m.SendMMsg(ctx, client, ptr[Uint8](memory, msgOffset), 2, 0, ptr[Int32](memory, resultOffset)), linux.ESUCCESS)
	if n := load32(t, memory, resultOffset); n != 2 {
		t.Fatalf("wrong number of messages sent: %d", n)
	}
	for i := uint32(0); i < 2; i++ {
		if n := load32(t, memory, msgOffset+i*sizeofMmsghdr+sizeofMsghdr); n != 3 {
			t.Errorf("message %d: wrong length: %d", i, n)
		}
	}
}

func TestSocketOptions(t *testing.T) {
	ctx := context.Background()
	memory := newMemory(t)
	m := newModule(t)

	fd := socket(t, m, memory, linux.InetFamily, linux.StreamSocket)
	value := ptr[Uint8](memory, resultOffset)
	valueLen := ptr[Uint32](memory, addrlenOffset)

	store32(t, memory, addrlenOffset, 4)
	assertErrno(t, m.GetSockOpt(ctx, fd, Int32(linux.SocketLevel), Int32(linux.QuerySocketType), value, valueLen), linux.ESUCCESS)
	if v := load32(t, memory, resultOffset); linux.SocketType(v) != linux.StreamSocket {
		t.Errorf("wrong socket type: %d", v)
	}

	store32(t, memory, addrlenOffset, 2)
	assertErrno(t, m.GetSockOpt(ctx, fd, Int32(linux.SocketLevel), Int32(linux.QuerySocketType), value, valueLen), linux.EINVAL)

	store32(t, memory, resultOffset, 1)
	assertErrno(t, m.SetSockOpt(ctx, fd, Int32(linux.TCPLevel), Int32(linux.TCPNoDelay), value, 4), linux.ESUCCESS)
	assertErrno(t, m.SetSockOpt(ctx, fd, Int32(linux.TCPLevel), Int32(linux.TCPNoDelay), value, 1), linux.EINVAL)

	store32(t, memory, resultOffset, 1)
	store32(t, memory, resultOffset+4, 5)
	assertErrno(t, m.SetSockOpt(ctx, fd, Int32(linux.SocketLevel), Int32(linux.Linger), value, sizeofLinger), linux.ESUCCESS)

	store32(t, memory, resultOffset, 0)
	store32(t, memory, resultOffset+4, 0)
	store32(t, memory, addrlenOffset, sizeofLinger)
	assertErrno(t, m.GetSockOpt(ctx, fd, Int32(linux.SocketLevel), Int32(linux.Linger), value, valueLen), linux.ESUCCESS)
	if onoff, linger := load32(t, memory, resultOffset), load32(t, memory, resultOffset+4); onoff == 0 || linger != 5 {
		t.Errorf("wrong linger value: {%d,%d}", onoff, linger)
	}

	assertErrno(t, m.FcntlNonBlock(ctx, fd, 1), linux.ESUCCESS)
	assertErrno(t, m.FcntlNonBlock(ctx, fd+100, 1), linux.EBADF)
}

func TestFutex(t *testing.T) {
	ctx := context.Background()
	memory := newMemory(t)
	m := newModule(t)

	const (
		word     = 0x800
		timespec = 0x900
	)
	result := ptr[Int32](memory, resultOffset)
	noTimeout := ptr[Uint8](memory, 0)
	store32(t, memory, word, 1)

	private := Int32(linux.FutexPrivateFlag)

	assertErrno(t, m.Futex(ctx, word, Int32(linux.FutexWait)|private, 0, noTimeout, 0, 0, result), linux.EAGAIN)
	assertErrno(t, m.Futex(ctx, word, Int32(linux.FutexWake)|private, 1, noTimeout, 0, 0, result), linux.ESUCCESS)
	if n := load32(t, memory, resultOffset); n != 0 {
		t.Errorf("wrong number of waiters woken: %d", n)
	}
	assertErrno(t, m.Futex(ctx, word, Int32(linux.FutexCmpRequeue), 1, noTimeout, word+4, 2, result), linux.EAGAIN)
	assertErrno(t, m.Futex(ctx, word, Int32(linux.FutexCmpRequeue), 1, noTimeout, word+4, 1, result), linux.ESUCCESS)
	assertErrno(t, m.Futex(ctx, word, Int32(linux.FutexRequeue), 1, noTimeout, word+4, 0, result), linux.ESUCCESS)
	assertErrno(t, m.Futex(ctx, word, Int32(linux.FutexFD), 0, noTimeout, 0, 0, result), linux.ENOSYS)

	b, _ := memory.Read(timespec, sizeofTimespec)
	binary.LittleEndian.PutUint64(b[0:], 0)
	binary.LittleEndian.PutUint64(b[8:], uint64(10*time.Millisecond))
	assertErrno(t, m.Futex(ctx, word, Int32(linux.FutexWait), 1, ptr[Uint8](memory, timespec), 0, 0, result), linux.ETIMEDOUT)

	binary.LittleEndian.PutUint64(b[8:], uint64(time.Second))
	assertErrno(t, m.Futex(ctx, word, Int32(linux.FutexWait), 1, ptr[Uint8](memory, timespec), 0, 0, result), linux.EINVAL)

	assertErrno(t, m.SetRobustList(ctx, 0x2000, 12), linux.ESUCCESS)
	assertErrno(t, m.SetRobustList(ctx, 0x2000, 16), linux.EINVAL)
}

func TestReadIOVecs(t *testing.T) {
	memory := newMemory(t)
	size := memory.Size()

	storeIOVecs(t, memory, iovOffset, [2]uint32{dataOffset, 4}, [2]uint32{size - 2, 4})
	if _, errno := readIOVecs(memory, iovOffset, 1, nil); errno != linux.ESUCCESS {
		t.Errorf("valid iovec: %s", errno.Name())
	}
	if _, errno := readIOVecs(memory, iovOffset, 2, nil); errno != linux.EFAULT {
		t.Errorf("iovec out of bounds: %s", errno.Name())
	}
	if _, errno := readIOVecs(memory, size-4, 1, nil); errno != linux.EFAULT {
		t.Errorf("iovec array out of bounds: %s", errno.Name())
	}
	if _, errno := readIOVecs(memory, iovOffset, maxIOVecs+1, nil); errno != linux.EINVAL {
		t.Errorf("too many iovecs: %s", errno.Name())
	}
}

func TestSockaddrMemory(t *testing.T) {
	memory := newMemory(t)

	if addr, errno := readSockaddr(memory, 0, 16); addr != nil || errno != linux.ESUCCESS {
		t.Errorf("null address: %v, %s", addr, errno.Name())
	}
	if _, errno := readSockaddr(memory, addrOffset, linux.SizeofSockaddrAny+1); errno != linux.EINVAL {
		t.Errorf("oversized address: %s", errno.Name())
	}

	// The address is truncated to the capacity of the buffer and the full
	// length is reported.
	store32(t, memory, addrlenOffset, 4)
	b, _ := memory.Read(addrOffset, 8)
	clear(b)
	addr := &linux.Inet4Address{Port: 80, Addr: [4]byte{10, 0, 0, 1}}
	if errno := writeSockaddr(memory, addrOffset, addrlenOffset, addr); errno != linux.ESUCCESS {
		t.Fatal(errno)
	}
	if n := load32(t, memory, addrlenOffset); n != linux.SizeofSockaddrInet4 {
		t.Errorf("wrong address length: %d", n)
	}
	if string(b[4:8]) != "\x00\x00\x00\x00" {
		t.Errorf("write past the capacity of the buffer: %x", b)
	}
	if port := binary.BigEndian.Uint16(b[2:]); port != 80 {
		t.Errorf("wrong port: %d", port)
	}
}
