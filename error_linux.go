package linux

import (
	"syscall"
)

// Syscall returns the host error code equivalent to e.
func (e Errno) Syscall() syscall.Errno {
	switch e {
	case ESUCCESS:
		return 0
	case EPERM:
		return syscall.EPERM
	case ENOENT:
		return syscall.ENOENT
	case ESRCH:
		return syscall.ESRCH
	case EINTR:
		return syscall.EINTR
	case EIO:
		return syscall.EIO
	case ENXIO:
		return syscall.ENXIO
	case E2BIG:
		return syscall.E2BIG
	case ENOEXEC:
		return syscall.ENOEXEC
	case EBADF:
		return syscall.EBADF
	case ECHILD:
		return syscall.ECHILD
	case EAGAIN:
		return syscall.EAGAIN
	case ENOMEM:
		return syscall.ENOMEM
	case EACCES:
		return syscall.EACCES
	case EFAULT:
		return syscall.EFAULT
	case EBUSY:
		return syscall.EBUSY
	case EEXIST:
		return syscall.EEXIST
	case EXDEV:
		return syscall.EXDEV
	case ENODEV:
		return syscall.ENODEV
	case ENOTDIR:
		return syscall.ENOTDIR
	case EISDIR:
		return syscall.EISDIR
	case EINVAL:
		return syscall.EINVAL
	case ENFILE:
		return syscall.ENFILE
	case EMFILE:
		return syscall.EMFILE
	case ENOTTY:
		return syscall.ENOTTY
	case ETXTBSY:
		return syscall.ETXTBSY
	case EFBIG:
		return syscall.EFBIG
	case ENOSPC:
		return syscall.ENOSPC
	case ESPIPE:
		return syscall.ESPIPE
	case EROFS:
		return syscall.EROFS
	case EMLINK:
		return syscall.EMLINK
	case EPIPE:
		return syscall.EPIPE
	case EDOM:
		return syscall.EDOM
	case ERANGE:
		return syscall.ERANGE
	case EDEADLK:
		return syscall.EDEADLK
	case ENAMETOOLONG:
		return syscall.ENAMETOOLONG
	case ENOLCK:
		return syscall.ENOLCK
	case ENOSYS:
		return syscall.ENOSYS
	case ENOTEMPTY:
		return syscall.ENOTEMPTY
	case ELOOP:
		return syscall.ELOOP
	case ENOMSG:
		return syscall.ENOMSG
	case EIDRM:
		return syscall.EIDRM
	case ENOLINK:
		return syscall.ENOLINK
	case EPROTO:
		return syscall.EPROTO
	case EMULTIHOP:
		return syscall.EMULTIHOP
	case EBADMSG:
		return syscall.EBADMSG
	case EOVERFLOW:
		return syscall.EOVERFLOW
	case EILSEQ:
		return syscall.EILSEQ
	case ENOTSOCK:
		return syscall.ENOTSOCK
	case EDESTADDRREQ:
		return syscall.EDESTADDRREQ
	case EMSGSIZE:
		return syscall.EMSGSIZE
	case EPROTOTYPE:
		return syscall.EPROTOTYPE
	case ENOPROTOOPT:
		return syscall.ENOPROTOOPT
	case EPROTONOSUPPORT:
		return syscall.EPROTONOSUPPORT
	case ESOCKTNOSUPPORT:
		return syscall.ESOCKTNOSUPPORT
	case EOPNOTSUPP:
		return syscall.EOPNOTSUPP
	case EPFNOSUPPORT:
		return syscall.EPFNOSUPPORT
	case EAFNOSUPPORT:
		return syscall.EAFNOSUPPORT
	case EADDRINUSE:
		return syscall.EADDRINUSE
	case EADDRNOTAVAIL:
		return syscall.EADDRNOTAVAIL
	case ENETDOWN:
		return syscall.ENETDOWN
	case ENETUNREACH:
		return syscall.ENETUNREACH
	case ENETRESET:
		return syscall.ENETRESET
	case ECONNABORTED:
		return syscall.ECONNABORTED
	case ECONNRESET:
		return syscall.ECONNRESET
	case ENOBUFS:
		return syscall.ENOBUFS
	case EISCONN:
		return syscall.EISCONN
	case ENOTCONN:
		return syscall.ENOTCONN
	case ESHUTDOWN:
		return syscall.ESHUTDOWN
	case ETOOMANYREFS:
		return syscall.ETOOMANYREFS
	case ETIMEDOUT:
		return syscall.ETIMEDOUT
	case ECONNREFUSED:
		return syscall.ECONNREFUSED
	case EHOSTDOWN:
		return syscall.EHOSTDOWN
	case EHOSTUNREACH:
		return syscall.EHOSTUNREACH
	case EALREADY:
		return syscall.EALREADY
	case EINPROGRESS:
		return syscall.EINPROGRESS
	case ESTALE:
		return syscall.ESTALE
	case EDQUOT:
		return syscall.EDQUOT
	case ECANCELED:
		return syscall.ECANCELED
	case EOWNERDEAD:
		return syscall.EOWNERDEAD
	case ENOTRECOVERABLE:
		return syscall.ENOTRECOVERABLE
	default:
		return syscall.EINVAL
	}
}

func syscallErrnoToLinux(err syscall.Errno) (Errno, bool) {
	switch err {
	case syscall.EPERM:
		return EPERM, true
	case syscall.ENOENT:
		return ENOENT, true
	case syscall.ESRCH:
		return ESRCH, true
	case syscall.EINTR:
		return EINTR, true
	case syscall.EIO:
		return EIO, true
	case syscall.ENXIO:
		return ENXIO, true
	case syscall.E2BIG:
		return E2BIG, true
	case syscall.ENOEXEC:
		return ENOEXEC, true
	case syscall.EBADF:
		return EBADF, true
	case syscall.ECHILD:
		return ECHILD, true
	case syscall.EAGAIN:
		return EAGAIN, true
	case syscall.ENOMEM:
		return ENOMEM, true
	case syscall.EACCES:
		return EACCES, true
	case syscall.EFAULT:
		return EFAULT, true
	case syscall.EBUSY:
		return EBUSY, true
	case syscall.EEXIST:
		return EEXIST, true
	case syscall.EXDEV:
		return EXDEV, true
	case syscall.ENODEV:
		return ENODEV, true
	case syscall.ENOTDIR:
		return ENOTDIR, true
	case syscall.EISDIR:
		return EISDIR, true
	case syscall.EINVAL:
		return EINVAL, true
	case syscall.ENFILE:
		return ENFILE, true
	case syscall.EMFILE:
		return EMFILE, true
	case syscall.ENOTTY:
		return ENOTTY, true
	case syscall.ETXTBSY:
		return ETXTBSY, true
	case syscall.EFBIG:
		return EFBIG, true
	case syscall.ENOSPC:
		return ENOSPC, true
	case syscall.ESPIPE:
		return ESPIPE, true
	case syscall.EROFS:
		return EROFS, true
	case syscall.EMLINK:
		return EMLINK, true
	case syscall.EPIPE:
		return EPIPE, true
	case syscall.EDOM:
		return EDOM, true
	case syscall.ERANGE:
		return ERANGE, true
	case syscall.EDEADLK:
		return EDEADLK, true
	case syscall.ENAMETOOLONG:
		return ENAMETOOLONG, true
	case syscall.ENOLCK:
		return ENOLCK, true
	case syscall.ENOSYS:
		return ENOSYS, true
	case syscall.ENOTEMPTY:
		return ENOTEMPTY, true
	case syscall.ELOOP:
		return ELOOP, true
	case syscall.ENOMSG:
		return ENOMSG, true
	case syscall.EIDRM:
		return EIDRM, true
	case syscall.ENOLINK:
		return ENOLINK, true
	case syscall.EPROTO:
		return EPROTO, true
	case syscall.EMULTIHOP:
		return EMULTIHOP, true
	case syscall.EBADMSG:
		return EBADMSG, true
	case syscall.EOVERFLOW:
		return EOVERFLOW, true
	case syscall.EILSEQ:
		return EILSEQ, true
	case syscall.ENOTSOCK:
		return ENOTSOCK, true
	case syscall.EDESTADDRREQ:
		return EDESTADDRREQ, true
	case syscall.EMSGSIZE:
		return EMSGSIZE, true
	case syscall.EPROTOTYPE:
		return EPROTOTYPE, true
	case syscall.ENOPROTOOPT:
		return ENOPROTOOPT, true
	case syscall.EPROTONOSUPPORT:
		return EPROTONOSUPPORT, true
	case syscall.ESOCKTNOSUPPORT:
		return ESOCKTNOSUPPORT, true
	case syscall.EOPNOTSUPP:
		return EOPNOTSUPP, true
	case syscall.EPFNOSUPPORT:
		return EPFNOSUPPORT, true
	case syscall.EAFNOSUPPORT:
		return EAFNOSUPPORT, true
	case syscall.EADDRINUSE:
		return EADDRINUSE, true
	case syscall.EADDRNOTAVAIL:
		return EADDRNOTAVAIL, true
	case syscall.ENETDOWN:
		return ENETDOWN, true
	case syscall.ENETUNREACH:
		return ENETUNREACH, true
	case syscall.ENETRESET:
		return ENETRESET, true
	case syscall.ECONNABORTED:
		return ECONNABORTED, true
	case syscall.ECONNRESET:
		return ECONNRESET, true
	case syscall.ENOBUFS:
		return ENOBUFS, true
	case syscall.EISCONN:
		return EISCONN, true
	case syscall.ENOTCONN:
		return ENOTCONN, true
	case syscall.ESHUTDOWN:
		return ESHUTDOWN, true
	case syscall.ETOOMANYREFS:
		return ETOOMANYREFS, true
	case syscall.ETIMEDOUT:
		return ETIMEDOUT, true
	case syscall.ECONNREFUSED:
		return ECONNREFUSED, true
	case syscall.EHOSTDOWN:
		return EHOSTDOWN, true
	case syscall.EHOSTUNREACH:
		return EHOSTUNREACH, true
	case syscall.EALREADY:
		return EALREADY, true
	case syscall.EINPROGRESS:
		return EINPROGRESS, true
	case syscall.ESTALE:
		return ESTALE, true
	case syscall.EDQUOT:
		return EDQUOT, true
	case syscall.ECANCELED:
		return ECANCELED, true
	case syscall.EOWNERDEAD:
		return EOWNERDEAD, true
	case syscall.ENOTRECOVERABLE:
		return ENOTRECOVERABLE, true
	default:
		return EIO, false
	}
}
