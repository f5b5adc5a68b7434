package linux

import (
	"fmt"
	"net"
	"strconv"
)

// FD is a guest file descriptor number.
type FD int32

// Family is a socket address family (AF_*).
type Family uint16

const (
	UnspecFamily Family = 0  // AF_UNSPEC
	UnixFamily   Family = 1  // AF_UNIX
	InetFamily   Family = 2  // AF_INET
	Inet6Family  Family = 10 // AF_INET6
)

func (f Family) String() string {
	switch f {
	case UnspecFamily:
		return "UnspecFamily"
	case UnixFamily:
		return "UnixFamily"
	case InetFamily:
		return "InetFamily"
	case Inet6Family:
		return "Inet6Family"
	default:
		return fmt.Sprintf("Family(%d)", f)
	}
}

// Protocol is a socket protocol number (IPPROTO_*).
type Protocol int32

const (
	IPProtocol  Protocol = 0
	TCPProtocol Protocol = 6
	UDPProtocol Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case IPProtocol:
		return "IPProtocol"
	case TCPProtocol:
		return "TCPProtocol"
	case UDPProtocol:
		return "UDPProtocol"
	default:
		return fmt.Sprintf("Protocol(%d)", p)
	}
}

// SocketType is the type argument of socket(2): a socket type in the low
// bits, optionally combined with SocketNonBlock and SocketCloseOnExec.
type SocketType int32

const (
	StreamSocket    SocketType = 1 // SOCK_STREAM
	DatagramSocket  SocketType = 2 // SOCK_DGRAM
	RawSocket       SocketType = 3 // SOCK_RAW
	RDMSocket       SocketType = 4 // SOCK_RDM
	SeqPacketSocket SocketType = 5 // SOCK_SEQPACKET

	SocketNonBlock    SocketType = 0x800   // SOCK_NONBLOCK
	SocketCloseOnExec SocketType = 0x80000 // SOCK_CLOEXEC

	socketTypeMask = 0xf
)

// Type returns st without the creation flags.
func (st SocketType) Type() SocketType {
	return st & socketTypeMask
}

// Flags returns the creation flags of st.
func (st SocketType) Flags() SocketType {
	return st &^ socketTypeMask
}

// Has is true if the flag is set.
func (st SocketType) Has(f SocketType) bool {
	return (st & f) == f
}

func (st SocketType) String() (s string) {
	switch st.Type() {
	case StreamSocket:
		s = "StreamSocket"
	case DatagramSocket:
		s = "DatagramSocket"
	case RawSocket:
		s = "RawSocket"
	case RDMSocket:
		s = "RDMSocket"
	case SeqPacketSocket:
		s = "SeqPacketSocket"
	default:
		s = fmt.Sprintf("SocketType(%d)", st.Type())
	}
	if st.Has(SocketNonBlock) {
		s += "|SocketNonBlock"
	}
	if st.Has(SocketCloseOnExec) {
		s += "|SocketCloseOnExec"
	}
	return s
}

// MsgFlags are the flags passed to and returned by the send and receive
// family of system calls (MSG_*).
type MsgFlags int32

const (
	MsgOOB       MsgFlags = 0x1
	MsgPeek      MsgFlags = 0x2
	MsgDontRoute MsgFlags = 0x4
	MsgCTrunc    MsgFlags = 0x8
	MsgTrunc     MsgFlags = 0x20
	MsgDontWait  MsgFlags = 0x40
	MsgEOR       MsgFlags = 0x80
	MsgWaitAll   MsgFlags = 0x100
	MsgNoSignal  MsgFlags = 0x4000
)

// Has is true if the flag is set.
func (flags MsgFlags) Has(f MsgFlags) bool {
	return (flags & f) == f
}

var msgFlagsStrings = [...]struct {
	flag MsgFlags
	name string
}{
	{MsgOOB, "MsgOOB"},
	{MsgPeek, "MsgPeek"},
	{MsgDontRoute, "MsgDontRoute"},
	{MsgCTrunc, "MsgCTrunc"},
	{MsgTrunc, "MsgTrunc"},
	{MsgDontWait, "MsgDontWait"},
	{MsgEOR, "MsgEOR"},
	{MsgWaitAll, "MsgWaitAll"},
	{MsgNoSignal, "MsgNoSignal"},
}

func (flags MsgFlags) String() (s string) {
	if flags == 0 {
		return "MsgFlags(0)"
	}
	remain := flags
	for _, f := range msgFlagsStrings {
		if !flags.Has(f.flag) {
			continue
		}
		if len(s) > 0 {
			s += "|"
		}
		s += f.name
		remain &^= f.flag
	}
	if remain != 0 {
		if len(s) > 0 {
			s += "|"
		}
		s += fmt.Sprintf("MsgFlags(%#x)", int32(remain))
	}
	return
}

// ShutdownHow is the second argument of shutdown(2).
type ShutdownHow int32

const (
	ShutdownRD   ShutdownHow = 0 // SHUT_RD
	ShutdownWR   ShutdownHow = 1 // SHUT_WR
	ShutdownRDWR ShutdownHow = 2 // SHUT_RDWR
)

func (how ShutdownHow) String() string {
	switch how {
	case ShutdownRD:
		return "ShutdownRD"
	case ShutdownWR:
		return "ShutdownWR"
	case ShutdownRDWR:
		return "ShutdownRDWR"
	default:
		return fmt.Sprintf("ShutdownHow(%d)", how)
	}
}

// SocketOptionLevel controls the level that a socket option is applied
// at or queried from.
type SocketOptionLevel int32

const (
	IPLevel     SocketOptionLevel = 0 // SOL_IP
	SocketLevel SocketOptionLevel = 1 // SOL_SOCKET
	TCPLevel    SocketOptionLevel = 6 // SOL_TCP
)

func (sl SocketOptionLevel) String() string {
	switch sl {
	case IPLevel:
		return "IPLevel"
	case SocketLevel:
		return "SocketLevel"
	case TCPLevel:
		return "TCPLevel"
	default:
		return fmt.Sprintf("SocketOptionLevel(%d)", sl)
	}
}

// SocketOption is a socket option name. Option values are only unique within
// a level, use OptionName to get a readable representation.
type SocketOption int32

const (
	// SocketLevel
	ReuseAddress     SocketOption = 2  // SO_REUSEADDR
	QuerySocketType  SocketOption = 3  // SO_TYPE
	QuerySocketError SocketOption = 4  // SO_ERROR
	Broadcast        SocketOption = 6  // SO_BROADCAST
	SendBufferSize   SocketOption = 7  // SO_SNDBUF
	RecvBufferSize   SocketOption = 8  // SO_RCVBUF
	KeepAlive        SocketOption = 9  // SO_KEEPALIVE
	Linger           SocketOption = 13 // SO_LINGER

	// IPLevel
	IPHeaderIncluded SocketOption = 3 // IP_HDRINCL

	// TCPLevel
	TCPNoDelay SocketOption = 1 // TCP_NODELAY
)

// OptionName returns a readable name for the option at the given level.
func OptionName(level SocketOptionLevel, option SocketOption) string {
	switch level {
	case IPLevel:
		switch option {
		case IPHeaderIncluded:
			return "IPHeaderIncluded"
		}
	case SocketLevel:
		switch option {
		case ReuseAddress:
			return "ReuseAddress"
		case QuerySocketType:
			return "QuerySocketType"
		case QuerySocketError:
			return "QuerySocketError"
		case Broadcast:
			return "Broadcast"
		case SendBufferSize:
			return "SendBufferSize"
		case RecvBufferSize:
			return "RecvBufferSize"
		case KeepAlive:
			return "KeepAlive"
		case Linger:
			return "Linger"
		}
	case TCPLevel:
		switch option {
		case TCPNoDelay:
			return "TCPNoDelay"
		}
	}
	return fmt.Sprintf("SocketOption(%d)", option)
}

// LingerValue is the guest struct linger.
type LingerValue struct {
	OnOff  int32
	Linger int32
}

func (l LingerValue) String() string {
	return fmt.Sprintf("{OnOff:%d,Linger:%d}", l.OnOff, l.Linger)
}

// SocketAddress is the interface implemented by the guest socket address
// types.
type SocketAddress interface {
	Family() Family
	String() string
	sockaddr()
}

// UnspecAddress is an address of the AF_UNSPEC family, it is used to dissolve
// the association of a datagram socket.
type UnspecAddress struct{}

func (a *UnspecAddress) sockaddr() {}

func (a *UnspecAddress) Family() Family {
	return UnspecFamily
}

func (a *UnspecAddress) String() string {
	return "unspec"
}

type Inet4Address struct {
	Port int
	Addr [4]byte
}

func (a *Inet4Address) sockaddr() {}

func (a *Inet4Address) Family() Family {
	return InetFamily
}

func (a *Inet4Address) String() string {
	return fmt.Sprintf(`%d.%d.%d.%d:%d`, a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
}

type Inet6Address struct {
	Port     int
	FlowInfo uint32
	Addr     [16]byte
	ScopeID  uint32
}

func (a *Inet6Address) sockaddr() {}

func (a *Inet6Address) Family() Family {
	return Inet6Family
}

func (a *Inet6Address) String() string {
	return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
}

// UnixAddress is an address of the AF_UNIX family. An empty name represents
// an unnamed socket, a name starting with a NUL byte is an abstract address.
type UnixAddress struct {
	Name string
}

func (a *UnixAddress) sockaddr() {}

func (a *UnixAddress) Family() Family {
	return UnixFamily
}

func (a *UnixAddress) String() string {
	if a.Name == "" {
		return "@unnamed"
	}
	return a.Name
}

// Unnamed is true if the address does not carry a name.
func (a *UnixAddress) Unnamed() bool {
	return a.Name == ""
}

// Abstract is true if the address is in the abstract namespace.
func (a *UnixAddress) Abstract() bool {
	return len(a.Name) > 0 && a.Name[0] == 0
}
