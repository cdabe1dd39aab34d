// Package main is the tmhi command line: it logs in to the broadband
// gateway and runs one command against it.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/tmhi/internal/client/gateway"
	"github.com/atinyakov/tmhi/internal/client/prompt"
	"github.com/atinyakov/tmhi/internal/config"
	"github.com/atinyakov/tmhi/internal/logger"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options, err := config.ParseClient(os.Args[1:], nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log
	zapLogger.Debug("tmhi",
		zap.String("version", cmp.Or(version, "N/A")),
		zap.String("build_date", cmp.Or(buildDate, "N/A")),
	)

	options.Username, options.Password, err = prompt.Credentials(os.Stdin, os.Stderr, options.Username, options.Password)
	if err != nil {
		zapLogger.Fatal("credentials missing: set TMHI_USERNAME and TMHI_PASSWORD", zap.Error(err))
	}

	client, err := gateway.New(gateway.Options{
		URL:          options.URL,
		Username:     options.Username,
		Password:     options.Password,
		Timeout:      options.Timeout,
		LoginTimeout: options.LoginTimeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create gateway client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client, options.Command); err != nil {
		zapLogger.Fatal("command failed", zap.String("command", options.Command), zap.Error(err))
	}
}

func run(ctx context.Context, client *gateway.Client, command string) error {
	switch command {
	case config.CommandLogin:
		// Two callers racing for a session share one login sequence.
		g, gctx := errgroup.WithContext(ctx)
		for range 2 {
			g.Go(func() error {
				_, err := client.Login(gctx)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		exp, _ := client.Expiration()
		if !exp.After(time.Now()) {
			return errors.New("gateway returned an already expired session")
		}
		fmt.Printf("logged in, session valid until %s\n", exp.Format(time.RFC3339))
	case config.CommandReboot:
		reply, err := client.Reboot(ctx)
		if err != nil {
			return err
		}
		fmt.Println(reply)
	case config.CommandStatus:
		status, err := client.RadioStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Println(string(status))
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}
