package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/gphotos-backup/internal/shared"
)

// exitInterrupted is the conventional status for a process stopped by SIGINT.
const exitInterrupted = 130

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	ctx, stop := interruptContext(logger)
	err := newApp(runner).Run(ctx, os.Args)
	stop()

	os.Exit(exitCode(err, runner.logger))
}

// newApp builds the root command.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "gpb",
		Usage:   "Back up a Google Photos library into dated folders with album links",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			// -v belongs to --version.
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.Before,
		After:    r.After,
		Commands: r.register(),
	}
}

// interruptContext returns a context cancelled by the first SIGINT or SIGTERM.
//
// The first signal lets a sync finish the item it is on; a second one exits immediately.
func interruptContext(logger *log.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-signals:
		case <-ctx.Done():
			return
		}
		logger.Warn("interrupt received, stopping after the current item (press ctrl+c again to exit now)")
		cancel()

		<-signals
		logger.Error("second interrupt, exiting")
		os.Exit(exitInterrupted)
	}()

	return ctx, func() {
		signal.Stop(signals)
		cancel()
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error, logger *log.Logger) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, shared.ErrInterrupted):
		logger.Warn("stopped before finishing; run the command again to resume", "error", err)
		return exitInterrupted
	default:
		logger.Errorf("application error: %v", err)
		return 1
	}
}
