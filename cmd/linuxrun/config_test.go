package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "linuxrun.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
socket_root = "/var/run/guest"
trace = true
log_level = "debug"
log_rate = "1m30s"
listen = ["127.0.0.1:8080", "tcp6://[::1]:8443"]
env = ["HOME=/"]
`)

	c := defaultConfig()
	if err := loadConfig(path, &c); err != nil {
		t.Fatal(err)
	}

	want := config{
		SocketRoot: "/var/run/guest",
		Trace:      true,
		LogLevel:   "debug",
		LogRate:    duration(90 * time.Second),
		Listen:     []string{"127.0.0.1:8080", "tcp6://[::1]:8443"},
		Env:        []string{"HOME=/"},
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		scenario string
		content  string
	}{
		{"unknown key", `socket_dir = "/tmp"`},
		{"invalid duration", `log_rate = "often"`},
		{"wrong type", `trace = "yes"`},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			c := defaultConfig()
			if err := loadConfig(writeConfig(t, test.content), &c); err == nil {
				t.Error("loading the configuration did not fail")
			}
		})
	}

	c := defaultConfig()
	if err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), &c); err == nil {
		t.Error("loading a missing file did not fail")
	}
}

func TestConfigOverride(t *testing.T) {
	path := writeConfig(t, `
socket_root = "/from/file"
log_level = "warn"
listen = [":8080"]
env = ["A=1"]
`)

	r := &runCommand{}
	f := flag.NewFlagSet("run", flag.ContinueOnError)
	r.SetFlags(f)
	if err := f.Parse([]string{"-config", path, "-log-level", "debug", "-listen", ":9090", "-env", "B=2", "module.wasm"}); err != nil {
		t.Fatal(err)
	}

	c := defaultConfig()
	if err := loadConfig(r.configPath, &c); err != nil {
		t.Fatal(err)
	}
	c.override(f, &r.flags)

	want := config{
		SocketRoot: "/from/file",
		LogLevel:   "debug",
		LogRate:    duration(10 * time.Second),
		Listen:     []string{":9090"},
		Env:        []string{"A=1", "B=2"},
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if args := f.Args(); len(args) != 1 || args[0] != "module.wasm" {
		t.Errorf("wrong arguments: %q", args)
	}
}
