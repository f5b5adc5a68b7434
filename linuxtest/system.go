package linuxtest

import (
	"context"
	"slices"
	"testing"

	"github.com/stealthrocket/linux-go"
	"golang.org/x/exp/maps"
)

// TestSystem is a test suite which validates the behavior of linux.System
// implementations.
func TestSystem(t *testing.T, makeSystem MakeSystem) {
	t.Run("socket", sockets.runFunc(makeSystem))
	t.Run("stream", stream.runFunc(makeSystem))
	t.Run("datagram", datagram.runFunc(makeSystem))
	t.Run("poll", poll.runFunc(makeSystem))
	t.Run("unix", unixSocket.runFunc(makeSystem))
	t.Run("futex", futex.runFunc(makeSystem))
	t.Run("fork", fork.runFunc(makeSystem))
}

type newSystem func(TestConfig) linux.System

type testFunc func(*testing.T, context.Context, newSystem)

type testSuite map[string]testFunc

func (tests testSuite) names() []string {
	names := maps.Keys(tests)
	slices.Sort(names)
	return names
}

func (tests testSuite) runFunc(makeSystem MakeSystem) func(*testing.T) {
	return func(t *testing.T) { tests.run(t, makeSystem) }
}

func (tests testSuite) run(t *testing.T, makeSystem MakeSystem) {
	for _, name := range tests.names() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := testContext(t)
			defer cancel()

			tests[name](t, ctx, func(c TestConfig) linux.System {
				if c.SocketRoot == "" {
					c.SocketRoot = t.TempDir()
				}
				s, err := makeSystem(c)
				if err != nil {
					t.Fatalf("system initialization failed: %s", err)
				}
				t.Cleanup(func() {
					if err := s.CloseSystem(context.Background()); err != nil {
						t.Errorf("system closure failed: %s", err)
					}
				})
				return s
			})
		})
	}
}
