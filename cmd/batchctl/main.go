// Command batchctl submits contracts to the analysis service as one batch and
// follows the job until every contract has been processed.
//
// Configuration comes from CONTRACTFLOW_* environment variables; flags
// override them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
