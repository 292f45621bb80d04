package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(context.Background(), os.Environ, os.Getwd, os.Args[1:]); err != nil {
		// Logger may be not initialized yet
		slog.Error("can't run app, sorry", "error", err.Error())
		os.Exit(1)
	}
}

// Configure and run the server until ctx is cancelled or SIGINT/SIGTERM received
// Options priority (lowest first): defaults, '.env' file, environment, flags
func run(ctx context.Context, environ func() []string, getwd func() (string, error), args []string) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env. Err: %w", err)
	}
	if err := c.LoadEnv(environMap(environ())); err != nil {
		return fmt.Errorf("error while loading environment. Err: %w", err)
	}
	if err := c.ParseFlags(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := NewServerApp(ctx, c)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
