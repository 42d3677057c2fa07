package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/portscribe/auth"
	"github.com/jrsteele09/portscribe/browser"
	"github.com/jrsteele09/portscribe/browser/chromedriver"
	"github.com/jrsteele09/portscribe/downstream/qbittorrent"
	"github.com/jrsteele09/portscribe/internal/config"
	"github.com/jrsteele09/portscribe/runner"
	"github.com/jrsteele09/portscribe/sessions"
)

func runPortscribe(ctx context.Context, opts options) (returnError error) {
	setupLogging(os.Stderr, opts.quiet)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
		if returnError != nil {
			log.Error().Err(returnError).Msg("Run failed")
		}
	}()

	if !opts.quiet {
		displayAppname(os.Stderr, appName)
	}

	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return err
	}
	if cfg.Debug && !opts.quiet {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	coordinator, err := newCoordinator(cfg, opts)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := coordinator.Run(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Int("port", res.Port).
		Bool("renewed", res.Renewed).
		Bool("session_reused", res.SessionReused).
		Str("download_client", res.Change.String()).
		Dur("took", time.Since(start)).
		Msg("Port forward up to date")
	return nil
}

func newCoordinator(cfg *config.Config, opts options) (*runner.Coordinator, error) {
	qbt, err := qbittorrent.New(qbittorrent.Options{
		Host:      cfg.Downstream.Host,
		Port:      cfg.Downstream.Port,
		Username:  cfg.Downstream.Username,
		Password:  cfg.Downstream.Password,
		VerifyTLS: cfg.Downstream.VerifyTLS,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[newCoordinator] download client")
	}

	newBrowser := func(ctx context.Context) (browser.Browser, error) {
		return chromedriver.New(ctx, chromedriver.Options{
			Headless: !opts.noHeadless,
			ExecPath: cfg.ChromePath,
		})
	}

	return runner.NewCoordinator(runner.Dependencies{
		Sessions:   sessions.NewFileRepo(config.SessionFileName),
		Downstream: qbt,
		NewBrowser: newBrowser,
	},
		auth.Credentials{
			Username: cfg.Portal.Username,
			Password: cfg.Portal.Password,
			OTPSeed:  cfg.Portal.OTPSeed,
		},
		config.LockFileName,
		runner.WithWaitTimeout(cfg.WaitTimeout),
	)
}

// setupLogging points the global logger at w with a fresh run id.
func setupLogging(w io.Writer, quiet bool) {
	level := zerolog.InfoLevel
	if quiet {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
