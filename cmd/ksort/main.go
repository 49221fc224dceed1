// Command ksort is the CLI entrypoint: a disk-based parallel external
// sort and multi-table co-indexer for large delimited text files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"

	"github.com/peak/ksort/command"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if hasFlag(args, "--profile") {
		defer profile.Start(profile.ProfilePath(".")).Stop()
		args = removeFlag(args, "--profile")
	}

	parentCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := command.Main(parentCtx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func removeFlag(args []string, name string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == name {
			continue
		}
		out = append(out, a)
	}
	return out
}
