package linux

import (
	"encoding/binary"
	"strings"
)

// Sizes of the guest socket address structures.
const (
	SizeofSockaddrFamily = 2   // sa_family_t
	SizeofSockaddrInet4  = 16  // struct sockaddr_in
	SizeofSockaddrInet6  = 28  // struct sockaddr_in6
	SizeofSockaddrUnix   = 110 // struct sockaddr_un
	SizeofSockaddrAny    = 128 // struct sockaddr_storage

	maxUnixPathLen = SizeofSockaddrUnix - SizeofSockaddrFamily
)

// DecodeSocketAddress parses a guest socket address from its raw memory
// representation.
//
// The length of b is the address length passed by the guest. It must cover
// at least the structure of the address family: EINVAL is returned for short
// addresses and EAFNOSUPPORT for unknown families.
func DecodeSocketAddress(b []byte) (SocketAddress, Errno) {
	if len(b) < SizeofSockaddrFamily {
		return nil, EINVAL
	}
	switch family := Family(binary.LittleEndian.Uint16(b)); family {
	case UnspecFamily:
		return &UnspecAddress{}, ESUCCESS

	case InetFamily:
		if len(b) < SizeofSockaddrInet4 {
			return nil, EINVAL
		}
		addr := &Inet4Address{Port: int(binary.BigEndian.Uint16(b[2:]))}
		copy(addr.Addr[:], b[4:8])
		return addr, ESUCCESS

	case Inet6Family:
		if len(b) < SizeofSockaddrInet6 {
			return nil, EINVAL
		}
		addr := &Inet6Address{
			Port:     int(binary.BigEndian.Uint16(b[2:])),
			FlowInfo: binary.BigEndian.Uint32(b[4:]),
			ScopeID:  binary.LittleEndian.Uint32(b[24:]),
		}
		copy(addr.Addr[:], b[8:24])
		return addr, ESUCCESS

	case UnixFamily:
		if len(b) <= SizeofSockaddrFamily || len(b) > SizeofSockaddrUnix {
			return nil, EINVAL
		}
		path := b[SizeofSockaddrFamily:]
		if path[0] != 0 {
			if i := strings.IndexByte(string(path), 0); i >= 0 {
				path = path[:i]
			}
		}
		return &UnixAddress{Name: string(path)}, ESUCCESS

	default:
		return nil, EAFNOSUPPORT
	}
}

// EncodeSocketAddress writes the guest representation of addr to b.
//
// The returned length is the full size of the address, which may be larger
// than len(b) when the output was truncated, matching the way Linux reports
// address lengths to programs.
func EncodeSocketAddress(b []byte, addr SocketAddress) int {
	var buf [SizeofSockaddrAny]byte
	var n int

	switch a := addr.(type) {
	case *Inet4Address:
		binary.LittleEndian.PutUint16(buf[0:], uint16(InetFamily))
		binary.BigEndian.PutUint16(buf[2:], uint16(a.Port))
		copy(buf[4:8], a.Addr[:])
		n = SizeofSockaddrInet4

	case *Inet6Address:
		binary.LittleEndian.PutUint16(buf[0:], uint16(Inet6Family))
		binary.BigEndian.PutUint16(buf[2:], uint16(a.Port))
		binary.BigEndian.PutUint32(buf[4:], a.FlowInfo)
		copy(buf[8:24], a.Addr[:])
		binary.LittleEndian.PutUint32(buf[24:], a.ScopeID)
		n = SizeofSockaddrInet6

	case *UnixAddress:
		binary.LittleEndian.PutUint16(buf[0:], uint16(UnixFamily))
		name := a.Name
		if len(name) > maxUnixPathLen {
			name = name[:maxUnixPathLen]
		}
		n = SizeofSockaddrFamily + copy(buf[2:], name)
		if !a.Unnamed() && !a.Abstract() && n < SizeofSockaddrUnix {
			n++ // NUL terminator
		}

	default:
		binary.LittleEndian.PutUint16(buf[0:], uint16(UnspecFamily))
		n = SizeofSockaddrFamily
	}

	copy(b, buf[:n])
	return n
}
