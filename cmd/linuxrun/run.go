package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"github.com/stealthrocket/linux-go"
	"github.com/stealthrocket/linux-go/imports"
	"github.com/stealthrocket/linux-go/internal/logging"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
)

type runCommand struct {
	configPath string
	flags      config
}

func (*runCommand) Name() string     { return "run" }
func (*runCommand) Synopsis() string { return "run a WebAssembly module" }
func (*runCommand) Usage() string {
	return `linuxrun run [flags...] <MODULE> [--] [ARGS]...

Run the WebAssembly module at path MODULE, passing ARGS to the guest.

flags:
`
}

func (r *runCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "path to a TOML configuration file")
	f.StringVar(&r.flags.SocketRoot, "socket-root", "", "host directory where unix socket paths are registered")
	f.BoolVar(&r.flags.Trace, "trace", false, "trace system calls to stderr")
	f.StringVar(&r.flags.LogLevel, "log-level", "info", "log level: panic, fatal, error, warn, info, debug or trace")
	f.Var(&r.flags.LogRate, "log-rate", "minimum interval between repeated warnings")
	f.Var((*stringList)(&r.flags.Listen), "listen", "address to listen on before starting the module (repeatable)")
	f.Var((*stringList)(&r.flags.Dial), "dial", "address to connect to before starting the module (repeatable)")
	f.Var((*stringList)(&r.flags.Env), "env", "environment variable NAME=VALUE passed to the module (repeatable)")
}

func (r *runCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	c := defaultConfig()
	if r.configPath != "" {
		if err := loadConfig(r.configPath, &c); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	c.override(f, &r.flags)

	exitCode, err := run(ctx, c, args[0], args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitStatus(exitCode)
}

func run(ctx context.Context, c config, wasmFile string, args []string) (int, error) {
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}

	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)

	wasmCode, err := os.ReadFile(wasmFile)
	if err != nil {
		return 0, fmt.Errorf("could not read WASM file '%s': %w", wasmFile, err)
	}

	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	var system linux.System
	builder := imports.NewBuilder().
		WithName(filepath.Base(wasmFile)).
		WithArgs(args...).
		WithEnv(c.Env...).
		WithStdio(os.Stdin, os.Stdout, os.Stderr).
		WithListens(c.Listen...).
		WithDials(c.Dial...).
		WithSocketRoot(c.SocketRoot).
		WithTracer(c.Trace, os.Stderr).
		WithLogger(logger).
		WithLogRate(time.Duration(c.LogRate)).
		WithWrappers(func(s linux.System) linux.System {
			system = s
			return s
		})

	ctx, err = builder.Instantiate(ctx, runtime)
	if err != nil {
		return 0, err
	}

	// Once canceled, calls that would block fail with ECANCELED instead of
	// being retried by the guest after EINTR.
	stop := context.AfterFunc(ctx, func() {
		if err := system.ShutdownSystem(context.Background()); err != nil {
			logger.WithError(err).Warn("shutting down system")
		}
	})
	defer stop()

	instance, err := runtime.InstantiateWithConfig(ctx, wasmCode, builder.ModuleConfig())
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			return int(exitErr.ExitCode()), nil
		}
		return 0, err
	}
	return 0, instance.Close(ctx)
}
