package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/athenaq/athenaq/internal/cli/athenaq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := athenaq.Run(ctx, os.Args[1:], athenaq.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
	})
	stop()
	os.Exit(code)
}
