package unix

import (
	"github.com/stealthrocket/linux-go"
	"golang.org/x/sys/unix"
)

func hostFamily(family linux.Family) (int, linux.Errno) {
	switch family {
	case linux.InetFamily:
		return unix.AF_INET, linux.ESUCCESS
	case linux.Inet6Family:
		return unix.AF_INET6, linux.ESUCCESS
	case linux.UnixFamily:
		// Unix sockets are emulated on top of loopback TCP and UDP sockets.
		return unix.AF_INET, linux.ESUCCESS
	default:
		return -1, linux.EAFNOSUPPORT
	}
}

func hostSocketType(socketType linux.SocketType) (int, linux.Errno) {
	switch socketType.Type() {
	case linux.StreamSocket:
		return unix.SOCK_STREAM, linux.ESUCCESS
	case linux.DatagramSocket:
		return unix.SOCK_DGRAM, linux.ESUCCESS
	case linux.RawSocket:
		return unix.SOCK_RAW, linux.ESUCCESS
	default:
		return -1, linux.ESOCKTNOSUPPORT
	}
}

func hostProtocol(family linux.Family, protocol linux.Protocol) (int, linux.Errno) {
	if family == linux.UnixFamily {
		if protocol != linux.IPProtocol {
			return -1, linux.EPROTONOSUPPORT
		}
		return 0, linux.ESUCCESS
	}
	return int(protocol), linux.ESUCCESS
}

// toHostSockaddr converts an inet address to its host representation. Unix
// addresses are resolved by the caller through the socket file system.
func toHostSockaddr(addr linux.SocketAddress) (unix.Sockaddr, linux.Errno) {
	switch a := addr.(type) {
	case *linux.Inet4Address:
		return &unix.SockaddrInet4{Port: a.Port, Addr: a.Addr}, linux.ESUCCESS
	case *linux.Inet6Address:
		return &unix.SockaddrInet6{Port: a.Port, ZoneId: a.ScopeID, Addr: a.Addr}, linux.ESUCCESS
	case nil:
		return nil, linux.ESUCCESS
	default:
		return nil, linux.EAFNOSUPPORT
	}
}

// fromHostSockaddr converts a host address to the guest representation.
// FlowInfo is not exposed by x/sys/unix and is always reported as zero.
func fromHostSockaddr(sa unix.Sockaddr) (linux.SocketAddress, linux.Errno) {
	switch t := sa.(type) {
	case *unix.SockaddrInet4:
		return &linux.Inet4Address{Port: t.Port, Addr: t.Addr}, linux.ESUCCESS
	case *unix.SockaddrInet6:
		return &linux.Inet6Address{Port: t.Port, Addr: t.Addr, ScopeID: t.ZoneId}, linux.ESUCCESS
	case *unix.SockaddrUnix:
		return &linux.UnixAddress{Name: t.Name}, linux.ESUCCESS
	case nil:
		return nil, linux.ESUCCESS
	default:
		return nil, linux.EAFNOSUPPORT
	}
}

// zeroAddress is the address reported by getsockname for sockets that are not
// bound yet.
func zeroAddress(family linux.Family) (linux.SocketAddress, linux.Errno) {
	switch family {
	case linux.InetFamily:
		return &linux.Inet4Address{}, linux.ESUCCESS
	case linux.Inet6Family:
		return &linux.Inet6Address{}, linux.ESUCCESS
	case linux.UnixFamily:
		return &linux.UnixAddress{}, linux.ESUCCESS
	default:
		return nil, linux.EOPNOTSUPP
	}
}

func hostMsgFlags(flags linux.MsgFlags) (f int) {
	if flags.Has(linux.MsgOOB) {
		f |= unix.MSG_OOB
	}
	if flags.Has(linux.MsgPeek) {
		f |= unix.MSG_PEEK
	}
	if flags.Has(linux.MsgDontRoute) {
		f |= unix.MSG_DONTROUTE
	}
	if flags.Has(linux.MsgEOR) {
		f |= unix.MSG_EOR
	}
	if flags.Has(linux.MsgWaitAll) {
		f |= unix.MSG_WAITALL
	}
	// The host socket is always non-blocking, MSG_DONTWAIT only changes the
	// behavior of the guest call.
	return f
}

func guestMsgFlags(flags int) (f linux.MsgFlags) {
	if (flags & unix.MSG_OOB) != 0 {
		f |= linux.MsgOOB
	}
	if (flags & unix.MSG_CTRUNC) != 0 {
		f |= linux.MsgCTrunc
	}
	if (flags & unix.MSG_TRUNC) != 0 {
		f |= linux.MsgTrunc
	}
	if (flags & unix.MSG_EOR) != 0 {
		f |= linux.MsgEOR
	}
	return f
}
