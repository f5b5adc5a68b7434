package unix

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/stealthrocket/linux-go"
	"golang.org/x/sys/unix"
)

// SocketFileSystem is the file system where the addresses of unix sockets are
// registered.
//
// Unix sockets are emulated with loopback inet sockets: binding a path
// creates a socket file recording the port of the host socket, connecting to
// a path reads the port back.
type SocketFileSystem interface {
	// CreateSocketFile creates a socket file at path. The call fails with an
	// error matching fs.ErrExist if a file already exists at path.
	CreateSocketFile(path string) (SocketFile, error)

	// OpenSocketFile opens the file at path.
	OpenSocketFile(path string) (SocketFile, error)

	// RemoveSocketFile removes the file at path.
	RemoveSocketFile(path string) error
}

// SocketFile is a file of a SocketFileSystem.
type SocketFile interface {
	// ReadSpecial reads the socket metadata of the file.
	ReadSpecial() ([]byte, error)

	// WriteSpecial writes the socket metadata of the file.
	WriteSpecial([]byte) error

	// IsSocket is true if the file is a socket file.
	IsSocket() bool

	Close() error
}

// DirFileSystem is a SocketFileSystem storing socket files in a host
// directory. Guest paths are resolved relative to the directory and cannot
// escape it.
//
// Socket files start with a fixed size header holding a magic number and the
// decimal representation of the port, files without the header are not
// socket files.
type DirFileSystem string

const (
	socketFileMagic      = "LXSOCK\x00\x01"
	socketFileHeaderSize = 32
	maxSpecialSize       = socketFileHeaderSize - len(socketFileMagic)
)

func (dir DirFileSystem) path(name string) string {
	return filepath.Join(string(dir), filepath.Clean("/"+name))
}

func (dir DirFileSystem) CreateSocketFile(name string) (SocketFile, error) {
	f, err := os.OpenFile(dir.path(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}
	file := &dirSocketFile{file: f}
	if err := file.WriteSpecial(nil); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return file, nil
}

func (dir DirFileSystem) OpenSocketFile(name string) (SocketFile, error) {
	f, err := os.Open(dir.path(name))
	if err != nil {
		return nil, err
	}
	return &dirSocketFile{file: f}, nil
}

func (dir DirFileSystem) RemoveSocketFile(name string) error {
	return os.Remove(dir.path(name))
}

type dirSocketFile struct {
	file *os.File
}

func (f *dirSocketFile) header() ([]byte, error) {
	var b [socketFileHeaderSize]byte
	n, err := f.file.ReadAt(b[:], 0)
	if n < len(b) {
		if err == nil {
			err = fmt.Errorf("%s: short socket file header", f.file.Name())
		}
		return nil, err
	}
	if string(b[:len(socketFileMagic)]) != socketFileMagic {
		return nil, fmt.Errorf("%s: not a socket file", f.file.Name())
	}
	return b[len(socketFileMagic):], nil
}

func (f *dirSocketFile) ReadSpecial() ([]byte, error) {
	b, err := f.header()
	if err != nil {
		return nil, err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return b, nil
}

func (f *dirSocketFile) WriteSpecial(b []byte) error {
	if len(b) > maxSpecialSize {
		return fmt.Errorf("%s: socket metadata too large (%d bytes)", f.file.Name(), len(b))
	}
	var h [socketFileHeaderSize]byte
	copy(h[:], socketFileMagic)
	copy(h[len(socketFileMagic):], b)
	_, err := f.file.WriteAt(h[:], 0)
	return err
}

func (f *dirSocketFile) IsSocket() bool {
	_, err := f.header()
	return err == nil
}

func (f *dirSocketFile) Close() error {
	return f.file.Close()
}

var loopback = [4]byte{127, 0, 0, 1}

func (s *System) bindUnix(sock *socket, addr *linux.UnixAddress) linux.Errno {
	if addr.Unnamed() || addr.Abstract() {
		return linux.EINVAL
	}
	if sock.name != nil {
		return linux.EINVAL
	}
	fsys := s.FileSystem
	f, err := fsys.CreateSocketFile(addr.Name)
	if err != nil {
		return linux.MakeErrno(err)
	}
	defer f.Close()

	errno := s.registerUnix(sock, f)
	if errno != linux.ESUCCESS {
		if err := fsys.RemoveSocketFile(addr.Name); err != nil {
			s.logger().WithError(err).WithField("path", addr.Name).Warn("removing socket file")
		}
		return errno
	}
	sock.update(func() { sock.name = &linux.UnixAddress{Name: addr.Name} })
	return linux.ESUCCESS
}

func (s *System) registerUnix(sock *socket, f SocketFile) linux.Errno {
	if !f.IsSocket() {
		return linux.EPERM
	}
	if err := unix.Bind(sock.fd, &unix.SockaddrInet4{Addr: loopback}); err != nil {
		return linux.MakeErrno(err)
	}
	sa, err := unix.Getsockname(sock.fd)
	if err != nil {
		return linux.MakeErrno(err)
	}
	inet, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return linux.EAFNOSUPPORT
	}
	if err := f.WriteSpecial(strconv.AppendInt(nil, int64(inet.Port), 10)); err != nil {
		return linux.EIO
	}
	return linux.ESUCCESS
}

// resolveUnix returns the host address of the socket bound to addr.
func (s *System) resolveUnix(addr *linux.UnixAddress) (unix.Sockaddr, linux.Errno) {
	if addr.Unnamed() {
		return nil, linux.EINVAL
	}
	if addr.Abstract() {
		return nil, linux.ECONNREFUSED
	}
	f, err := s.FileSystem.OpenSocketFile(addr.Name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, linux.ECONNREFUSED
		}
		return nil, linux.MakeErrno(err)
	}
	defer f.Close()

	if !f.IsSocket() {
		return nil, linux.ECONNREFUSED
	}
	b, err := f.ReadSpecial()
	if err != nil {
		return nil, linux.ECONNREFUSED
	}
	port, err := strconv.Atoi(string(b))
	if err != nil || port <= 0 || port > 0xFFFF {
		return nil, linux.ECONNREFUSED
	}
	return &unix.SockaddrInet4{Port: port, Addr: loopback}, linux.ESUCCESS
}
