package linux_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stealthrocket/linux-go"
)

func TestSocketAddressRoundTrip(t *testing.T) {
	tests := []linux.SocketAddress{
		&linux.Inet4Address{Port: 8080, Addr: [4]byte{127, 0, 0, 1}},
		&linux.Inet6Address{Port: 443, FlowInfo: 7, Addr: [16]byte{15: 1}, ScopeID: 2},
		&linux.UnixAddress{Name: "/tmp/socket"},
		&linux.UnixAddress{Name: "\x00abstract"},
	}

	for _, addr := range tests {
		t.Run(addr.String(), func(t *testing.T) {
			var b [linux.SizeofSockaddrAny]byte
			n := linux.EncodeSocketAddress(b[:], addr)

			got, errno := linux.DecodeSocketAddress(b[:n])
			if errno != linux.ESUCCESS {
				t.Fatalf("decoding address: %s", errno)
			}
			if diff := cmp.Diff(addr, got); diff != "" {
				t.Errorf("address mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeSocketAddressTruncated(t *testing.T) {
	addr := &linux.Inet6Address{Port: 80, Addr: [16]byte{0: 0xfe, 1: 0x80}}

	var b [8]byte
	n := linux.EncodeSocketAddress(b[:], addr)
	if n != linux.SizeofSockaddrInet6 {
		t.Errorf("wrong address length: got %d, want %d", n, linux.SizeofSockaddrInet6)
	}
	if want := [8]byte{10, 0, 0, 80}; b != want {
		t.Errorf("wrong truncated address: %v", b)
	}

	unnamed := linux.EncodeSocketAddress(b[:], &linux.UnixAddress{})
	if unnamed != linux.SizeofSockaddrFamily {
		t.Errorf("wrong length of unnamed address: %d", unnamed)
	}
}

func TestDecodeSocketAddressErrors(t *testing.T) {
	tests := []struct {
		scenario string
		addr     []byte
		errno    linux.Errno
	}{
		{"empty", nil, linux.EINVAL},
		{"family only", []byte{2}, linux.EINVAL},
		{"short inet", []byte{2, 0, 0, 80, 127, 0, 0, 1}, linux.EINVAL},
		{"short inet6", append([]byte{10, 0}, make([]byte, 14)...), linux.EINVAL},
		{"unix without path", []byte{1, 0}, linux.EINVAL},
		{"unknown family", []byte{42, 0, 0, 0}, linux.EAFNOSUPPORT},
	}
	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			_, errno := linux.DecodeSocketAddress(test.addr)
			if errno != test.errno {
				t.Errorf("wrong error: got %s, want %s", errno, test.errno)
			}
		})
	}

	addr, errno := linux.DecodeSocketAddress([]byte{0, 0})
	if errno != linux.ESUCCESS {
		t.Fatal(errno)
	}
	if addr.Family() != linux.UnspecFamily {
		t.Errorf("wrong family: %s", addr.Family())
	}
}
