package imports

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stealthrocket/linux-go"
	"github.com/tetratelabs/wazero"
)

// Builder is used to setup and instantiate the Linux system call host module.
type Builder struct {
	name       string
	args       []string
	env        []string
	listens    []string
	dials      []string
	socketRoot string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	tracer     io.Writer
	logger     logrus.FieldLogger
	logRate    time.Duration
	wrappers   []func(linux.System) linux.System
	errors     []error
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithName sets the name of the module, which is exposed to the module
// as argv[0].
func (b *Builder) WithName(name string) *Builder {
	b.name = name
	return b
}

// WithArgs sets command line arguments.
func (b *Builder) WithArgs(args ...string) *Builder {
	b.args = args
	return b
}

// WithEnv sets environment variables.
func (b *Builder) WithEnv(env ...string) *Builder {
	for _, e := range env {
		if !strings.Contains(e, "=") {
			b.errors = append(b.errors, fmt.Errorf("invalid environment variable %q", e))
		}
	}
	b.env = env
	return b
}

// WithListens specifies a list of addresses to listen on before starting
// the module. The listener sockets are registered in the descriptor table of
// the guest, in order, before any socket the guest creates.
func (b *Builder) WithListens(listens ...string) *Builder {
	b.listens = listens
	return b
}

// WithDials specifies a list of addresses to dial before starting
// the module. The connection sockets are registered after the listeners.
func (b *Builder) WithDials(dials ...string) *Builder {
	b.dials = dials
	return b
}

// WithSocketRoot sets the host directory where the paths of unix sockets are
// registered. Unix sockets are not available to the guest when the
// directory is not set.
func (b *Builder) WithSocketRoot(dir string) *Builder {
	b.socketRoot = dir
	return b
}

// WithStdio sets the standard streams of the module.
func (b *Builder) WithStdio(stdin io.Reader, stdout, stderr io.Writer) *Builder {
	b.stdin = stdin
	b.stdout = stdout
	b.stderr = stderr
	return b
}

// WithTracer enables the Tracer, and instructs it to write to the
// specified io.Writer.
func (b *Builder) WithTracer(enable bool, w io.Writer) *Builder {
	if !enable {
		w = nil
	}
	b.tracer = w
	return b
}

// WithLogger sets the logger of the system.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithLogRate sets the minimum interval between repeated warnings caused by
// the guest.
func (b *Builder) WithLogRate(every time.Duration) *Builder {
	b.logRate = every
	return b
}

// WithWrappers sets the linux.System wrappers.
func (b *Builder) WithWrappers(wrappers ...func(linux.System) linux.System) *Builder {
	b.wrappers = wrappers
	return b
}

// ModuleConfig returns the configuration of the guest module: its name,
// arguments, environment and standard streams.
func (b *Builder) ModuleConfig() wazero.ModuleConfig {
	name := defaultName
	if b.name != "" {
		name = b.name
	}
	config := wazero.NewModuleConfig().
		WithName(name).
		WithArgs(append([]string{name}, b.args...)...).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(defaultRand)

	for _, env := range b.env {
		k, v, _ := strings.Cut(env, "=")
		config = config.WithEnv(k, v)
	}
	if b.stdin != nil {
		config = config.WithStdin(b.stdin)
	}
	if b.stdout != nil {
		config = config.WithStdout(b.stdout)
	}
	if b.stderr != nil {
		config = config.WithStderr(b.stderr)
	}
	return config
}
