// Package sockets creates the host sockets passed to guests on startup, from
// addresses of the form "tcp://host:port?option=value".
package sockets

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Socket prepares a socket for the specified address.
func Socket(rawAddr string) (u *url.URL, sa unix.Sockaddr, fd int, err error) {
	if !strings.Contains(rawAddr, "://") {
		rawAddr = "tcp://" + rawAddr
	}
	u, err = url.Parse(rawAddr)
	if err != nil {
		return nil, nil, -1, fmt.Errorf("bad address '%s': %w", rawAddr, err)
	}
	family, sa, err := socketAddress(u.Scheme, u.Host)
	if err != nil {
		return nil, nil, -1, err
	}
	opt := u.Query()
	fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, -1, err
	}
	defer func() {
		if err != nil {
			unix.Close(fd)
			fd = -1
		}
	}()
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, intopt(opt, "reuseaddr", 1)); err != nil {
		return
	}
	return u, sa, fd, err
}

// Close closes a file descriptor created with Socket, Listen or Dial.
func Close(fd int) error {
	if fd < 0 {
		return unix.EBADF
	}
	return unix.Close(fd)
}

func socketAddress(network, addr string) (int, unix.Sockaddr, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return -1, nil, fmt.Errorf("unsupported network: %v", network)
	}
	host, portstr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, nil, err
	}
	port, err := net.LookupPort(network, portstr)
	if err != nil {
		return 0, nil, err
	}
	var ips []net.IP
	if host == "" && network == "tcp6" {
		ips = []net.IP{net.IPv6zero}
	} else if host == "" {
		ips = []net.IP{net.IPv4zero}
	} else {
		ips, err = net.LookupIP(host)
		if err != nil {
			return 0, nil, err
		}
	}
	if network != "tcp6" {
		for _, ip := range ips {
			if ipv4 := ip.To4(); ipv4 != nil {
				return unix.AF_INET, &unix.SockaddrInet4{
					Port: port,
					Addr: ([4]byte)(ipv4),
				}, nil
			}
		}
	}
	if network != "tcp4" {
		for _, ip := range ips {
			if ip.To4() == nil && len(ip) == net.IPv6len {
				return unix.AF_INET6, &unix.SockaddrInet6{
					Port: port,
					Addr: ([16]byte)(ip),
				}, nil
			}
		}
	}
	return 0, nil, fmt.Errorf("no IPs for network %s and host: %s", network, addr)
}

func intopt(q url.Values, key string, defaultValue int) int {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return defaultValue
	}
	n, err := strconv.Atoi(values[0])
	if err != nil {
		return defaultValue
	}
	return n
}

func boolopt(q url.Values, key string, defaultValue bool) bool {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return defaultValue
	}
	switch values[0] {
	case "true", "t", "1", "yes":
		return true
	case "false", "f", "0", "no":
		return false
	default:
		return defaultValue
	}
}
