// Command coordctl inspects and exercises coordination locks and lists kept
// in Redis.
//
// Configuration comes from --config (YAML) and COORD_ environment variables,
// for example COORD_REDIS_ADDRESSES=localhost:6379.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
