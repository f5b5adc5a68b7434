package linux

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Tracer wraps a System to log calls.
type Tracer struct {
	Writer io.Writer
	System
}

func (t *Tracer) Socket(ctx context.Context, family Family, socketType SocketType, protocol Protocol) (FD, Errno) {
	t.printf("Socket(%s, %s, %s) => ", family, socketType, protocol)
	fd, errno := t.System.Socket(ctx, family, socketType, protocol)
	if errno == ESUCCESS {
		t.printf("%d", fd)
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return fd, errno
}

func (t *Tracer) Bind(ctx context.Context, fd FD, addr SocketAddress) Errno {
	t.printf("Bind(%d, %s) => ", fd, addrString(addr))
	errno := t.System.Bind(ctx, fd, addr)
	t.printResult(errno)
	return errno
}

func (t *Tracer) Connect(ctx context.Context, fd FD, addr SocketAddress) Errno {
	t.printf("Connect(%d, %s) => ", fd, addrString(addr))
	errno := t.System.Connect(ctx, fd, addr)
	t.printResult(errno)
	return errno
}

func (t *Tracer) Listen(ctx context.Context, fd FD, backlog int) Errno {
	t.printf("Listen(%d, %d) => ", fd, backlog)
	errno := t.System.Listen(ctx, fd, backlog)
	t.printResult(errno)
	return errno
}

func (t *Tracer) Accept4(ctx context.Context, fd FD, flags SocketType) (FD, SocketAddress, Errno) {
	t.printf("Accept4(%d, %#x) => ", fd, int32(flags))
	newfd, addr, errno := t.System.Accept4(ctx, fd, flags)
	if errno == ESUCCESS {
		t.printf("%d, %s", newfd, addrString(addr))
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return newfd, addr, errno
}

func (t *Tracer) GetSockName(ctx context.Context, fd FD) (SocketAddress, Errno) {
	t.printf("GetSockName(%d) => ", fd)
	addr, errno := t.System.GetSockName(ctx, fd)
	t.printAddress(addr, errno)
	return addr, errno
}

func (t *Tracer) GetPeerName(ctx context.Context, fd FD) (SocketAddress, Errno) {
	t.printf("GetPeerName(%d) => ", fd)
	addr, errno := t.System.GetPeerName(ctx, fd)
	t.printAddress(addr, errno)
	return addr, errno
}

func (t *Tracer) Read(ctx context.Context, fd FD, iovs [][]byte) (int, Errno) {
	t.printf("Read(%d, ", fd)
	t.printIOVecsProto(iovs)
	t.printf(") => ")
	n, errno := t.System.Read(ctx, fd, iovs)
	if errno == ESUCCESS {
		t.printIOVecs(iovs, n)
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return n, errno
}

func (t *Tracer) Write(ctx context.Context, fd FD, iovs [][]byte) (int, Errno) {
	t.printf("Write(%d, ", fd)
	t.printIOVecs(iovs, -1)
	t.printf(") => ")
	n, errno := t.System.Write(ctx, fd, iovs)
	t.printSize(n, errno)
	return n, errno
}

func (t *Tracer) SendTo(ctx context.Context, fd FD, iovs [][]byte, flags MsgFlags, addr SocketAddress) (int, Errno) {
	t.printf("SendTo(%d, ", fd)
	t.printIOVecs(iovs, -1)
	t.printf(", %s, %s) => ", flags, addrString(addr))
	n, errno := t.System.SendTo(ctx, fd, iovs, flags, addr)
	t.printSize(n, errno)
	return n, errno
}

func (t *Tracer) RecvFrom(ctx context.Context, fd FD, iovs [][]byte, flags MsgFlags) (int, MsgFlags, SocketAddress, Errno) {
	t.printf("RecvFrom(%d, ", fd)
	t.printIOVecsProto(iovs)
	t.printf(", %s) => ", flags)
	n, rflags, addr, errno := t.System.RecvFrom(ctx, fd, iovs, flags)
	if errno == ESUCCESS {
		t.printIOVecs(iovs, n)
		t.printf(", %s, %s", rflags, addrString(addr))
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return n, rflags, addr, errno
}

func (t *Tracer) SendMsg(ctx context.Context, fd FD, msg *Msghdr, flags MsgFlags) (int, Errno) {
	t.printf("SendMsg(%d, ", fd)
	t.printMsghdr(msg, -1)
	t.printf(", %s) => ", flags)
	n, errno := t.System.SendMsg(ctx, fd, msg, flags)
	t.printSize(n, errno)
	return n, errno
}

func (t *Tracer) RecvMsg(ctx context.Context, fd FD, msg *Msghdr, flags MsgFlags) (int, Errno) {
	t.printf("RecvMsg(%d, [%d]IOVec, %s) => ", fd, len(msg.Iov), flags)
	n, errno := t.System.RecvMsg(ctx, fd, msg, flags)
	if errno == ESUCCESS {
		t.printMsghdr(msg, n)
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return n, errno
}

func (t *Tracer) SendMMsg(ctx context.Context, fd FD, msgs []Mmsghdr, flags MsgFlags) (int, Errno) {
	t.printf("SendMMsg(%d, [%d]Mmsghdr, %s) => ", fd, len(msgs), flags)
	n, errno := t.System.SendMMsg(ctx, fd, msgs, flags)
	if errno == ESUCCESS {
		t.printf("%d [", n)
		for i := range msgs[:n] {
			if i > 0 {
				t.printf(",")
			}
			t.printf("%d", msgs[i].Len)
		}
		t.printf("]")
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return n, errno
}

func (t *Tracer) Shutdown(ctx context.Context, fd FD, how ShutdownHow) Errno {
	t.printf("Shutdown(%d, %s) => ", fd, how)
	errno := t.System.Shutdown(ctx, fd, how)
	t.printResult(errno)
	return errno
}

func (t *Tracer) GetSockOptInt(ctx context.Context, fd FD, level SocketOptionLevel, option SocketOption) (int, Errno) {
	t.printf("GetSockOptInt(%d, %s, %s) => ", fd, level, OptionName(level, option))
	value, errno := t.System.GetSockOptInt(ctx, fd, level, option)
	if errno == ESUCCESS {
		t.printf("%d", value)
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return value, errno
}

func (t *Tracer) SetSockOptInt(ctx context.Context, fd FD, level SocketOptionLevel, option SocketOption, value int) Errno {
	t.printf("SetSockOptInt(%d, %s, %s, %d) => ", fd, level, OptionName(level, option), value)
	errno := t.System.SetSockOptInt(ctx, fd, level, option, value)
	t.printResult(errno)
	return errno
}

func (t *Tracer) GetSockOptLinger(ctx context.Context, fd FD) (LingerValue, Errno) {
	t.printf("GetSockOptLinger(%d) => ", fd)
	value, errno := t.System.GetSockOptLinger(ctx, fd)
	if errno == ESUCCESS {
		t.printf("%s", value)
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return value, errno
}

func (t *Tracer) SetSockOptLinger(ctx context.Context, fd FD, value LingerValue) Errno {
	t.printf("SetSockOptLinger(%d, %s) => ", fd, value)
	errno := t.System.SetSockOptLinger(ctx, fd, value)
	t.printResult(errno)
	return errno
}

func (t *Tracer) Poll(ctx context.Context, fd FD, interest PollEvents) (PollEvents, Errno) {
	t.printf("Poll(%d, %s) => ", fd, interest)
	revents, errno := t.System.Poll(ctx, fd, interest)
	if errno == ESUCCESS {
		t.printf("%s", revents)
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
	return revents, errno
}

func (t *Tracer) SetNonBlock(ctx context.Context, fd FD, nonblock bool) Errno {
	t.printf("SetNonBlock(%d, %t) => ", fd, nonblock)
	errno := t.System.SetNonBlock(ctx, fd, nonblock)
	t.printResult(errno)
	return errno
}

func (t *Tracer) Close(ctx context.Context, fd FD) Errno {
	t.printf("Close(%d) => ", fd)
	errno := t.System.Close(ctx, fd)
	t.printResult(errno)
	return errno
}

func (t *Tracer) FutexWait(ctx context.Context, mem Memory, addr, val uint32, timeout time.Duration) Errno {
	t.printf("FutexWait(%#x, %d, ", addr, val)
	if timeout == InfiniteTimeout {
		t.printf("inf")
	} else {
		t.printf("%s", timeout)
	}
	t.printf(") => ")
	errno := t.System.FutexWait(ctx, mem, addr, val, timeout)
	t.printResult(errno)
	return errno
}

func (t *Tracer) FutexWake(ctx context.Context, addr uint32, n int) (int, Errno) {
	t.printf("FutexWake(%#x, %d) => ", addr, n)
	woken, errno := t.System.FutexWake(ctx, addr, n)
	t.printSize(woken, errno)
	return woken, errno
}

func (t *Tracer) FutexRequeue(ctx context.Context, mem Memory, addr uint32, n int, target uint32, expected *uint32) (int, Errno) {
	t.printf("FutexRequeue(%#x, %d, %#x", addr, n, target)
	if expected != nil {
		t.printf(", %d", *expected)
	}
	t.printf(") => ")
	count, errno := t.System.FutexRequeue(ctx, mem, addr, n, target, expected)
	t.printSize(count, errno)
	return count, errno
}

func (t *Tracer) SetRobustList(ctx context.Context, head, length uint32) Errno {
	t.printf("SetRobustList(%#x, %d) => ", head, length)
	errno := t.System.SetRobustList(ctx, head, length)
	t.printResult(errno)
	return errno
}

func (t *Tracer) Fork(ctx context.Context) (System, Errno) {
	t.printf("Fork() => ")
	child, errno := t.System.Fork(ctx)
	t.printResult(errno)
	if errno != ESUCCESS {
		return nil, errno
	}
	return &Tracer{Writer: t.Writer, System: child}, ESUCCESS
}

func (t *Tracer) ShutdownSystem(ctx context.Context) error {
	t.printf("ShutdownSystem() => ")
	err := t.System.ShutdownSystem(ctx)
	t.printError(err)
	return err
}

func (t *Tracer) CloseSystem(ctx context.Context) error {
	t.printf("CloseSystem() => ")
	err := t.System.CloseSystem(ctx)
	t.printError(err)
	return err
}

func (t *Tracer) printf(msg string, args ...interface{}) {
	fmt.Fprintf(t.Writer, msg, args...)
}

func (t *Tracer) printErrno(errno Errno) {
	t.printf("%s (%s)", errno.Name(), errno.Error())
}

func (t *Tracer) printResult(errno Errno) {
	if errno == ESUCCESS {
		t.printf("ok")
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
}

func (t *Tracer) printSize(n int, errno Errno) {
	if errno == ESUCCESS {
		t.printf("%d", n)
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
}

func (t *Tracer) printError(err error) {
	if err == nil {
		t.printf("ok\n")
	} else {
		t.printf("%s\n", err)
	}
}

func (t *Tracer) printAddress(addr SocketAddress, errno Errno) {
	if errno == ESUCCESS {
		t.printf("%s", addrString(addr))
	} else {
		t.printErrno(errno)
	}
	t.printf("\n")
}

func addrString(addr SocketAddress) string {
	if addr == nil {
		return "nil"
	}
	return addr.String()
}

func (t *Tracer) printMsghdr(msg *Msghdr, size int) {
	t.printf("{Name:%s,Iov:", addrString(msg.Name))
	t.printIOVecs(msg.Iov, size)
	t.printf(",Control:[%d]byte", len(msg.Control))
	if msg.Flags != 0 {
		t.printf(",Flags:%s", msg.Flags)
	}
	t.printf("}")
}

func (t *Tracer) printIOVecsProto(iovecs [][]byte) {
	t.printf("[%d]IOVec{", len(iovecs))
	for i, iovec := range iovecs {
		if i > 0 {
			t.printf(",")
		}
		t.printf("[%d]Byte", len(iovec))
	}
	t.printf("}")
}

func (t *Tracer) printIOVecs(iovecs [][]byte, size int) {
	t.printf("[%d]IOVec{", len(iovecs))
	for i, iovec := range iovecs {
		if i > 0 {
			t.printf(",")
		}
		switch {
		case size < 0:
			t.printBytes(iovec)
		case size > 0 && len(iovec) > size:
			t.printBytes(iovec[:size])
			size = 0
		case size > 0 && len(iovec) <= size:
			t.printBytes(iovec)
			size -= len(iovec)
		case size == 0:
			t.printf("[%d]Byte", len(iovec))
		}
	}
	t.printf("}")
}

const maxBytes = 32

func (t *Tracer) printBytes(b []byte) {
	t.printf("[%d]byte(\"", len(b))

	if len(b) > 0 {
		trunc := b
		if len(b) > maxBytes {
			trunc = trunc[:maxBytes]
		}
		for _, c := range trunc {
			if c < 32 || c >= 127 || c == '"' || c == '\\' {
				t.printf("\\")
				switch {
				case c == '"':
					t.printf("\"")
				case c == '\\':
					t.printf("\\")
				case c == '\r':
					t.printf("r")
				case c == '\n':
					t.printf("n")
				case c == '\t':
					t.printf("t")
				default:
					t.printf(`x%02x`, c)
				}
			} else {
				t.printf(`%c`, c)
			}
		}
	}
	t.printf("\"")
	if len(b) > maxBytes {
		t.printf("...")
	}
	t.printf(")")
}
