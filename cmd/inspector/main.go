package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"styleinspect/internal/config"
)

type envKey struct{}

// env keeps what every command needs.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	closeLog func() error
	start    time.Time
}

func envFromContext(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	panic("env not found in context")
}

// initializeAppContext loads configuration and prepares logging after the
// command line has been parsed.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	e := envFromContext(ctx)

	var err error
	configFile := cmd.String("config")
	if e.cfg, err = config.Load(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		e.cfg.Logging.ConsoleLogger.Level = "debug"
	}
	if e.log, e.closeLog, err = e.cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}

	e.log.Debug("Program started", zap.Strings("args", os.Args), zap.String("runtime", runtime.Version()))
	if configFile == "" {
		e.log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, _ *cli.Command) (err error) {
	e := envFromContext(ctx)
	if e.log != nil {
		e.log.Debug("Program ended", zap.Duration("elapsed", time.Since(e.start)))
		// syncing a console core fails on some terminals, ignore it
		_ = e.log.Sync()
	}
	if e.closeLog != nil {
		if er := e.closeLog(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close log file: %w", er))
		}
	}
	return err
}

var errWasHandled bool

func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	if e := envFromContext(ctx); e.log != nil {
		e.log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.WithValue(context.Background(), envKey{}, &env{start: time.Now()}),
		os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            config.AppName,
		Usage:           "inspects which CSS rules apply to the elements of an HTML document",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log debug output to the console"},
		},
		Commands: []*cli.Command{
			{
				Name:         "rules",
				Usage:        "Lists the rules matching each selected element, lowest precedence first",
				ArgsUsage:    "FILE SELECTOR",
				OnUsageError: usageErrorHandler,
				Action:       runRules,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "cascade", Usage: "show declarations and mark overridden ones"},
				},
			},
			{
				Name:         "match",
				Usage:        "Lists the elements matching a selector in document order",
				ArgsUsage:    "FILE SELECTOR",
				OnUsageError: usageErrorHandler,
				Action:       runMatch,
			},
			{
				Name:         "sheets",
				Usage:        "Shows the stylesheets of a document with their imports",
				ArgsUsage:    "FILE",
				OnUsageError: usageErrorHandler,
				Action:       runSheets,
			},
			{
				Name:         "parse",
				Usage:        "Dumps the positioned rule tree of a stylesheet",
				ArgsUsage:    "CSSFILE",
				OnUsageError: usageErrorHandler,
				Action:       runParse,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "start-line", Usage: "number of document lines preceding the stylesheet"},
				},
			},
			{
				Name:         "specificity",
				Usage:        "Computes the specificity of selectors",
				ArgsUsage:    "SELECTOR...",
				OnUsageError: usageErrorHandler,
				Action:       runSpecificity,
			},
			{
				Name:         "dumpconfig",
				Usage:        "Dumps the actual configuration (YAML)",
				ArgsUsage:    "[DESTINATION]",
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
			},
		},
	}

	var err error
	defer func() {
		stop()
		if err != nil {
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}
