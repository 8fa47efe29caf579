package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/ovipipe/internal/app"
	"github.com/specialistvlad/ovipipe/internal/cli"
)

// main is the entrypoint for the ovipipe application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The real main function handles errors and exit codes.
	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			stop()
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Reports go to outW, logs to errW.
func run(ctx context.Context, outW, errW io.Writer, args []string) (err error) {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on a broken module registry; report it like any other
	// startup failure.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	a, err := app.NewApp(outW, errW, inv.Config)
	if err != nil {
		return err
	}
	switch inv.Command {
	case cli.CommandValidate:
		return a.Validate(ctx)
	default:
		return a.Run(ctx)
	}
}
