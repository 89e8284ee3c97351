// Package main provides the soloist CLI process entrypoint.
package main

import (
	"context"
	"os"

	"github.com/rbright/soloist/internal/app"
	"github.com/rbright/soloist/internal/interrupt"
)

// main wires platform termination requests to the application runner.
func main() {
	ctx, stop := interrupt.Notify(context.Background())
	defer stop()

	exitCode := app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(exitCode)
}
