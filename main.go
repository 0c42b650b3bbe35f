// dohgen - generates labelled DNS-over-HTTPS tunnelling captures by
// driving DNS tunnelling tools across a testbed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dohgen/cmd"
)

func main() {
	// SIGINT is handled by the scheduler, which finishes the current
	// run before stopping; SIGTERM cuts the run short but its teardown
	// still kills every tool.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dohgen: %v\n", err)
		os.Exit(1)
	}
}
