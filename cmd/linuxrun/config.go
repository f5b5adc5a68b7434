package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// config is the configuration of the run command. It is loaded from a TOML
// file, flags passed on the command line take precedence.
type config struct {
	// SocketRoot is the host directory where unix socket paths of the guest
	// are registered. Unix sockets are disabled when empty.
	SocketRoot string `toml:"socket_root"`
	// Trace enables tracing of the system calls to stderr.
	Trace bool `toml:"trace"`
	// LogLevel is the logrus level name of the host logs.
	LogLevel string `toml:"log_level"`
	// LogRate is the minimum interval between repeated warnings.
	LogRate duration `toml:"log_rate"`
	// Listen is a list of addresses to listen on before starting the guest.
	Listen []string `toml:"listen"`
	// Dial is a list of addresses to connect to before starting the guest.
	Dial []string `toml:"dial"`
	// Env is a list of NAME=VALUE environment variables.
	Env []string `toml:"env"`
}

func defaultConfig() config {
	return config{
		LogLevel: "info",
		LogRate:  duration(10 * time.Second),
	}
}

// loadConfig loads the TOML file at path over c. Unknown keys are reported
// as errors.
func loadConfig(path string, c *config) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("loading configuration %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return fmt.Errorf("loading configuration %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// override applies the flags set on the command line to c.
func (c *config) override(f *flag.FlagSet, flags *config) {
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "socket-root":
			c.SocketRoot = flags.SocketRoot
		case "trace":
			c.Trace = flags.Trace
		case "log-level":
			c.LogLevel = flags.LogLevel
		case "log-rate":
			c.LogRate = flags.LogRate
		case "listen":
			c.Listen = flags.Listen
		case "dial":
			c.Dial = flags.Dial
		case "env":
			c.Env = append(c.Env, flags.Env...)
		}
	})
}

// duration is a time.Duration decoded from strings such as "1m30s".
type duration time.Duration

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) String() string {
	return time.Duration(d).String()
}

func (d *duration) Set(s string) error {
	return d.UnmarshalText([]byte(s))
}

type stringList []string

func (s *stringList) String() string {
	return fmt.Sprintf("%v", []string(*s))
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
