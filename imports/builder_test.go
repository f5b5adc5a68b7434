package imports_test

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stealthrocket/linux-go/imports"
	"github.com/tetratelabs/wazero"
)

func TestBuilderInstantiate(t *testing.T) {
	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	_, err := imports.NewBuilder().
		WithName("test").
		WithEnv("A=1").
		WithListens("127.0.0.1:0").
		WithSocketRoot(t.TempDir()).
		WithLogger(logger).
		Instantiate(ctx, runtime)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.Module("linux_syscalls") == nil {
		t.Error("linux_syscalls host module not instantiated")
	}
	if runtime.Module("wasi_snapshot_preview1") == nil {
		t.Error("wasi_snapshot_preview1 host module not instantiated")
	}
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		scenario string
		builder  *imports.Builder
	}{
		{"invalid environment", imports.NewBuilder().WithEnv("NOVALUE")},
		{"unsupported listen network", imports.NewBuilder().WithListens("udp://127.0.0.1:0")},
		{"malformed listen address", imports.NewBuilder().WithListens("tcp://127.0.0.1")},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			ctx := context.Background()
			runtime := wazero.NewRuntime(ctx)
			defer runtime.Close(ctx)

			if _, err := test.builder.Instantiate(ctx, runtime); err == nil {
				t.Error("instantiation did not fail")
			}
		})
	}
}
