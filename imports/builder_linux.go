package imports

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stealthrocket/linux-go"
	"github.com/stealthrocket/linux-go/imports/linux_syscalls"
	"github.com/stealthrocket/linux-go/internal/sockets"
	"github.com/stealthrocket/linux-go/systems/unix"
	"github.com/stealthrocket/wazergo"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
)

// Instantiate instantiates the host modules in the runtime and binds the
// Linux system call module to the returned context.
//
// The WASI preview 1 module of wazero is instantiated as well, it serves the
// standard streams, arguments, environment and clocks of the guest.
func (b *Builder) Instantiate(ctx context.Context, runtime wazero.Runtime) (ctx2 context.Context, err error) {
	if err := multierr.Combine(b.errors...); err != nil {
		return ctx, err
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &unix.System{Logger: logger, LogRate: b.logRate}
	if b.socketRoot != "" {
		s.FileSystem = unix.DirFileSystem(b.socketRoot)
	}
	defer func() {
		if err != nil {
			s.CloseSystem(context.Background())
		}
	}()

	for _, addr := range b.listens {
		if err := adopt(s, addr, sockets.Listen); err != nil {
			return ctx, fmt.Errorf("unable to listen on %q: %w", addr, err)
		}
	}
	for _, addr := range b.dials {
		if err := adopt(s, addr, sockets.Dial); err != nil {
			return ctx, fmt.Errorf("unable to dial %q: %w", addr, err)
		}
	}

	var system linux.System = s
	if b.tracer != nil {
		system = &linux.Tracer{Writer: b.tracer, System: system}
	}
	for _, wrap := range b.wrappers {
		system = wrap(system)
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return ctx, fmt.Errorf("unable to instantiate WASI preview 1: %w", err)
	}

	module, err := wazergo.Instantiate(ctx, runtime,
		linux_syscalls.HostModule,
		linux_syscalls.WithSystem(system),
	)
	if err != nil {
		return ctx, err
	}
	ctx = wazergo.WithModuleInstance(ctx, module)

	return ctx, nil
}

func adopt(s *unix.System, addr string, open func(string) (int, error)) error {
	fd, err := open(addr)
	if err != nil && err != sockets.EINPROGRESS {
		return err
	}
	if _, err := s.Adopt(fd); err != nil {
		sockets.Close(fd)
		return err
	}
	return nil
}
