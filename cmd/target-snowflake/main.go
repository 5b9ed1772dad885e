// Command target-snowflake loads a Singer message stream from stdin into
// Snowflake and writes each STATE to stdout once its data is committed.
//
// Usage:
//
//	tap-foo | target-snowflake -config config.json >> state.json
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// register the warehouse backends with the storage factory.
	_ "target-snowflake/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
