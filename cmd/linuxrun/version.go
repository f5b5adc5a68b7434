package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type versionCommand struct{}

func (*versionCommand) Name() string     { return "version" }
func (*versionCommand) Synopsis() string { return "print the version and exit" }
func (*versionCommand) Usage() string    { return "linuxrun version\n" }

func (*versionCommand) SetFlags(*flag.FlagSet) {}

func (*versionCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	fmt.Println("linuxrun", Version)
	return subcommands.ExitSuccess
}
