// Package linux_syscalls is a wazero host module exposing the socket and
// futex system calls of linux.System to WebAssembly guests compiled against
// the Linux ABI.
//
// Functions follow the wazergo conventions: arguments are passed by value or
// as guest pointers, results are stored through out pointers and the return
// value is the error number of the call.
package linux_syscalls

import (
	"context"
	"fmt"

	"github.com/stealthrocket/linux-go"
	"github.com/stealthrocket/wazergo"
	. "github.com/stealthrocket/wazergo/types"
)

const moduleName = "linux_syscalls"

// HostModule is the wazero host module of the Linux system calls.
//
// The host module does not implement the system calls on its own, it decodes
// the guest memory structures and calls out to the linux.System provided via
// the WithSystem Option.
var HostModule wazergo.HostModule[*Module] = functions{
	"socket":          wazergo.F4((*Module).Socket),
	"bind":            wazergo.F3((*Module).Bind),
	"connect":         wazergo.F3((*Module).Connect),
	"listen":          wazergo.F2((*Module).Listen),
	"accept4":         wazergo.F5((*Module).Accept4),
	"getsockname":     wazergo.F3((*Module).GetSockName),
	"getpeername":     wazergo.F3((*Module).GetPeerName),
	"read":            wazergo.F4((*Module).Read),
	"write":           wazergo.F4((*Module).Write),
	"sendto":          wazergo.F7((*Module).SendTo),
	"recvfrom":        wazergo.F7((*Module).RecvFrom),
	"sendmsg":         wazergo.F4((*Module).SendMsg),
	"recvmsg":         wazergo.F4((*Module).RecvMsg),
	"sendmmsg":        wazergo.F5((*Module).SendMMsg),
	"shutdown":        wazergo.F2((*Module).Shutdown),
	"getsockopt":      wazergo.F5((*Module).GetSockOpt),
	"setsockopt":      wazergo.F5((*Module).SetSockOpt),
	"poll":            wazergo.F3((*Module).Poll),
	"close":           wazergo.F1((*Module).CloseFD),
	"fcntl_nonblock":  wazergo.F2((*Module).FcntlNonBlock),
	"futex":           wazergo.F7((*Module).Futex),
	"set_robust_list": wazergo.F2((*Module).SetRobustList),
}

// Option configures the host module.
type Option = wazergo.Option[*Module]

// WithSystem sets the implementation of the system calls.
func WithSystem(system linux.System) Option {
	return wazergo.OptionFunc(func(m *Module) { m.System = system })
}

type functions wazergo.Functions[*Module]

func (f functions) Name() string {
	return moduleName
}

func (f functions) Functions() wazergo.Functions[*Module] {
	return (wazergo.Functions[*Module])(f)
}

func (f functions) Instantiate(ctx context.Context, opts ...Option) (*Module, error) {
	mod := &Module{}
	wazergo.Configure(mod, opts...)
	if mod.System == nil {
		return nil, fmt.Errorf("linux system implementation not provided")
	}
	return mod, nil
}

type Module struct {
	System linux.System
}

func (m *Module) Socket(ctx context.Context, family, socketType, protocol Int32, fd Pointer[Int32]) Errno {
	result, errno := m.System.Socket(ctx, linux.Family(family), linux.SocketType(socketType), linux.Protocol(protocol))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	fd.Store(Int32(result))
	return Errno(linux.ESUCCESS)
}

func (m *Module) Bind(ctx context.Context, fd Int32, addr Pointer[Uint8], addrlen Uint32) Errno {
	sa, errno := readSockaddr(addr.Memory(), addr.Offset(), uint32(addrlen))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	if sa == nil {
		return Errno(linux.EFAULT)
	}
	return Errno(m.System.Bind(ctx, linux.FD(fd), sa))
}

func (m *Module) Connect(ctx context.Context, fd Int32, addr Pointer[Uint8], addrlen Uint32) Errno {
	sa, errno := readSockaddr(addr.Memory(), addr.Offset(), uint32(addrlen))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	if sa == nil {
		return Errno(linux.EFAULT)
	}
	return Errno(m.System.Connect(ctx, linux.FD(fd), sa))
}

func (m *Module) Listen(ctx context.Context, fd, backlog Int32) Errno {
	return Errno(m.System.Listen(ctx, linux.FD(fd), int(backlog)))
}

func (m *Module) Accept4(ctx context.Context, fd Int32, addr Pointer[Uint8], addrlen Pointer[Uint32], flags Int32, newfd Pointer[Int32]) Errno {
	result, sa, errno := m.System.Accept4(ctx, linux.FD(fd), linux.SocketType(flags))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	if errno := writeSockaddr(addr.Memory(), addr.Offset(), addrlen.Offset(), sa); errno != linux.ESUCCESS {
		m.System.Close(ctx, result)
		return Errno(errno)
	}
	newfd.Store(Int32(result))
	return Errno(linux.ESUCCESS)
}

func (m *Module) GetSockName(ctx context.Context, fd Int32, addr Pointer[Uint8], addrlen Pointer[Uint32]) Errno {
	sa, errno := m.System.GetSockName(ctx, linux.FD(fd))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	return Errno(writeSockaddr(addr.Memory(), addr.Offset(), addrlen.Offset(), sa))
}

func (m *Module) GetPeerName(ctx context.Context, fd Int32, addr Pointer[Uint8], addrlen Pointer[Uint32]) Errno {
	sa, errno := m.System.GetPeerName(ctx, linux.FD(fd))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	return Errno(writeSockaddr(addr.Memory(), addr.Offset(), addrlen.Offset(), sa))
}

func (m *Module) Read(ctx context.Context, fd Int32, iov Pointer[Uint8], iovcnt Int32, nread Pointer[Int32]) Errno {
	iovs := linux.GetIOVecs(int(iovcnt))
	defer func() { linux.PutIOVecs(iovs) }()

	iovs, errno := readIOVecs(iov.Memory(), iov.Offset(), uint32(iovcnt), iovs)
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	n, errno := m.System.Read(ctx, linux.FD(fd), iovs)
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	nread.Store(Int32(n))
	return Errno(linux.ESUCCESS)
}

func (m *Module) Write(ctx context.Context, fd Int32, iov Pointer[Uint8], iovcnt Int32, nwritten Pointer[Int32]) Errno {
	iovs := linux.GetIOVecs(int(iovcnt))
	defer func() { linux.PutIOVecs(iovs) }()

	iovs, errno := readIOVecs(iov.Memory(), iov.Offset(), uint32(iovcnt), iovs)
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	n, errno := m.System.Write(ctx, linux.FD(fd), iovs)
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	nwritten.Store(Int32(n))
	return Errno(linux.ESUCCESS)
}

func (m *Module) SendTo(ctx context.Context, fd Int32, iov Pointer[Uint8], iovcnt, flags Int32, addr Pointer[Uint8], addrlen Uint32, nsent Pointer[Int32]) Errno {
	memory := iov.Memory()
	sa, errno := readSockaddr(memory, addr.Offset(), uint32(addrlen))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	iovs := linux.GetIOVecs(int(iovcnt))
	defer func() { linux.PutIOVecs(iovs) }()

	iovs, errno = readIOVecs(memory, iov.Offset(), uint32(iovcnt), iovs)
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	n, errno := m.System.SendTo(ctx, linux.FD(fd), iovs, linux.MsgFlags(flags), sa)
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	nsent.Store(Int32(n))
	return Errno(linux.ESUCCESS)
}

func (m *Module) RecvFrom(ctx context.Context, fd Int32, iov Pointer[Uint8], iovcnt, flags Int32, addr Pointer[Uint8], addrlen Pointer[Uint32], nread Pointer[Int32]) Errno {
	memory := iov.Memory()
	iovs := linux.GetIOVecs(int(iovcnt))
	defer func() { linux.PutIOVecs(iovs) }()

	iovs, errno := readIOVecs(memory, iov.Offset(), uint32(iovcnt), iovs)
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	n, _, sa, errno := m.System.RecvFrom(ctx, linux.FD(fd), iovs, linux.MsgFlags(flags))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	if errno := writeSockaddr(memory, addr.Offset(), addrlen.Offset(), sa); errno != linux.ESUCCESS {
		return Errno(errno)
	}
	nread.Store(Int32(n))
	return Errno(linux.ESUCCESS)
}

func (m *Module) SendMsg(ctx context.Context, fd Int32, msg Pointer[Uint8], flags Int32, nsent Pointer[Int32]) Errno {
	memory := msg.Memory()
	h, errno := readMsghdr(memory, msg.Offset())
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	hdr := linux.Msghdr{Iov: linux.GetIOVecs(int(h.iovlen))}
	defer func() { linux.PutIOVecs(hdr.Iov) }()

	if errno := h.load(memory, &hdr, true); errno != linux.ESUCCESS {
		return Errno(errno)
	}
	n, errno := m.System.SendMsg(ctx, linux.FD(fd), &hdr, linux.MsgFlags(flags))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	nsent.Store(Int32(n))
	return Errno(linux.ESUCCESS)
}

func (m *Module) RecvMsg(ctx context.Context, fd Int32, msg Pointer[Uint8], flags Int32, nread Pointer[Int32]) Errno {
	memory := msg.Memory()
	h, errno := readMsghdr(memory, msg.Offset())
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	hdr := linux.Msghdr{Iov: linux.GetIOVecs(int(h.iovlen))}
	defer func() { linux.PutIOVecs(hdr.Iov) }()

	if errno := h.load(memory, &hdr, false); errno != linux.ESUCCESS {
		return Errno(errno)
	}
	n, errno := m.System.RecvMsg(ctx, linux.FD(fd), &hdr, linux.MsgFlags(flags))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	if errno := h.store(memory, msg.Offset(), &hdr); errno != linux.ESUCCESS {
		return Errno(errno)
	}
	nread.Store(Int32(n))
	return Errno(linux.ESUCCESS)
}

func (m *Module) SendMMsg(ctx context.Context, fd Int32, msgvec Pointer[Uint8], vlen Uint32, flags Int32, nsent Pointer[Int32]) Errno {
	memory := msgvec.Memory()
	// UIO_MAXIOV also bounds the vector length of sendmmsg.
	count := min(uint32(vlen), maxIOVecs)
	msgs := make([]linux.Mmsghdr, count)

	for i := range msgs {
		h, errno := readMsghdr(memory, msgvec.Offset()+uint32(i)*sizeofMmsghdr)
		if errno != linux.ESUCCESS {
			return Errno(errno)
		}
		if errno := h.load(memory, &msgs[i].Hdr, true); errno != linux.ESUCCESS {
			return Errno(errno)
		}
	}

	n, errno := m.System.SendMMsg(ctx, linux.FD(fd), msgs, linux.MsgFlags(flags))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	for i := range msgs[:n] {
		offset := msgvec.Offset() + uint32(i)*sizeofMmsghdr + sizeofMsghdr
		if !memory.WriteUint32Le(offset, uint32(msgs[i].Len)) {
			return Errno(linux.EFAULT)
		}
	}
	nsent.Store(Int32(n))
	return Errno(linux.ESUCCESS)
}

func (m *Module) Shutdown(ctx context.Context, fd, how Int32) Errno {
	return Errno(m.System.Shutdown(ctx, linux.FD(fd), linux.ShutdownHow(how)))
}

func (m *Module) GetSockOpt(ctx context.Context, fd, level, option Int32, value Pointer[Uint8], valueLen Pointer[Uint32]) Errno {
	memory := value.Memory()
	size, ok := memory.ReadUint32Le(valueLen.Offset())
	if !ok {
		return Errno(linux.EFAULT)
	}

	if linux.SocketOptionLevel(level) == linux.SocketLevel && linux.SocketOption(option) == linux.Linger {
		if size < sizeofLinger {
			return Errno(linux.EINVAL)
		}
		result, errno := m.System.GetSockOptLinger(ctx, linux.FD(fd))
		if errno != linux.ESUCCESS {
			return Errno(errno)
		}
		b, ok := memory.Read(value.Offset(), sizeofLinger)
		if !ok {
			return Errno(linux.EFAULT)
		}
		putLinger(b, result)
		valueLen.Store(sizeofLinger)
		return Errno(linux.ESUCCESS)
	}

	if size < sizeofInt {
		return Errno(linux.EINVAL)
	}
	result, errno := m.System.GetSockOptInt(ctx, linux.FD(fd), linux.SocketOptionLevel(level), linux.SocketOption(option))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	if !memory.WriteUint32Le(value.Offset(), uint32(int32(result))) {
		return Errno(linux.EFAULT)
	}
	valueLen.Store(sizeofInt)
	return Errno(linux.ESUCCESS)
}

func (m *Module) SetSockOpt(ctx context.Context, fd, level, option Int32, value Pointer[Uint8], valueLen Uint32) Errno {
	memory := value.Memory()

	if linux.SocketOptionLevel(level) == linux.SocketLevel && linux.SocketOption(option) == linux.Linger {
		if valueLen < sizeofLinger {
			return Errno(linux.EINVAL)
		}
		b, ok := memory.Read(value.Offset(), sizeofLinger)
		if !ok {
			return Errno(linux.EFAULT)
		}
		return Errno(m.System.SetSockOptLinger(ctx, linux.FD(fd), readLinger(b)))
	}

	if valueLen < sizeofInt {
		return Errno(linux.EINVAL)
	}
	v, ok := memory.ReadUint32Le(value.Offset())
	if !ok {
		return Errno(linux.EFAULT)
	}
	return Errno(m.System.SetSockOptInt(ctx, linux.FD(fd), linux.SocketOptionLevel(level), linux.SocketOption(option), int(int32(v))))
}

func (m *Module) Poll(ctx context.Context, fd, events Int32, revents Pointer[Int32]) Errno {
	result, errno := m.System.Poll(ctx, linux.FD(fd), linux.PollEvents(events))
	if errno != linux.ESUCCESS {
		return Errno(errno)
	}
	revents.Store(Int32(result))
	return Errno(linux.ESUCCESS)
}

func (m *Module) CloseFD(ctx context.Context, fd Int32) Errno {
	return Errno(m.System.Close(ctx, linux.FD(fd)))
}

func (m *Module) FcntlNonBlock(ctx context.Context, fd, nonblock Int32) Errno {
	return Errno(m.System.SetNonBlock(ctx, linux.FD(fd), nonblock != 0))
}

func (m *Module) SetRobustList(ctx context.Context, head, length Uint32) Errno {
	return Errno(m.System.SetRobustList(ctx, uint32(head), uint32(length)))
}

func (m *Module) Close(ctx context.Context) error {
	return m.System.CloseSystem(ctx)
}
