//go:build !linux

package imports

import (
	"context"
	"fmt"
	"runtime"

	"github.com/tetratelabs/wazero"
)

func (b *Builder) Instantiate(ctx context.Context, _ wazero.Runtime) (context.Context, error) {
	return ctx, fmt.Errorf("linux-go is not available on GOOS=%s", runtime.GOOS)
}
