package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/portscribe/internal/errors"
	"github.com/jrsteele09/portscribe/runner"
)

type recordingRun struct {
	calls int
	opts  options
	err   error
}

func (r *recordingRun) run(_ context.Context, opts options) error {
	r.calls++
	r.opts = opts
	return r.err
}

func TestExecuteDefaults(t *testing.T) {
	rec := &recordingRun{}
	var out bytes.Buffer

	code := execute(context.Background(), nil, &out, rec.run)
	require.Equal(t, exitOK, code)
	require.Equal(t, 1, rec.calls)
	require.Equal(t, options{}, rec.opts)
	require.Empty(t, out.String())
}

func TestExecuteFlags(t *testing.T) {
	rec := &recordingRun{}
	var out bytes.Buffer

	code := execute(context.Background(), []string{"--no-headless", "-q"}, &out, rec.run)
	require.Equal(t, exitOK, code)
	require.Equal(t, options{noHeadless: true, quiet: true}, rec.opts)
}

func TestExecuteHelp(t *testing.T) {
	for _, arg := range []string{"--help", "-h"} {
		t.Run(arg, func(t *testing.T) {
			rec := &recordingRun{}
			var out bytes.Buffer

			code := execute(context.Background(), []string{arg}, &out, rec.run)
			require.Equal(t, exitOK, code)
			require.Zero(t, rec.calls)
			require.Contains(t, out.String(), "--no-headless")
			require.Contains(t, out.String(), "--quiet")
		})
	}
}

func TestExecuteUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--bogus"}},
		{"unknown shorthand", []string{"-x"}},
		{"positional argument", []string{"renew"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingRun{}
			var out bytes.Buffer

			code := execute(context.Background(), tt.args, &out, rec.run)
			require.Equal(t, exitUsage, code)
			require.Zero(t, rec.calls)
			require.Contains(t, out.String(), "Error:")
			require.Contains(t, out.String(), "Usage:")
		})
	}
}

func TestExecuteRunFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config", fmt.Errorf("%w: missing ws_username", apperrors.ErrConfig), exitFailure},
		{"lock held", errors.Wrap(apperrors.ErrLockHeld, "[Run]"), exitFailure},
		{"propagation", &runner.PropagationError{Port: 62345, Renewed: true, Err: apperrors.ErrReconcile}, exitPropagation},
		{"wrapped propagation", errors.Wrap(&runner.PropagationError{Port: 1, Err: apperrors.ErrReconcile}, "run"), exitPropagation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingRun{err: tt.err}
			var out bytes.Buffer

			code := execute(context.Background(), nil, &out, rec.run)
			require.Equal(t, tt.want, code)
			require.Equal(t, 1, rec.calls)
			require.NotContains(t, out.String(), "Usage:")
		})
	}
}

func TestExecutePassesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	code := execute(ctx, nil, &bytes.Buffer{}, func(ctx context.Context, _ options) error {
		seen = ctx.Err()
		return seen
	})
	require.ErrorIs(t, seen, context.Canceled)
	require.Equal(t, exitFailure, code)
}

func TestSetupLoggingQuiet(t *testing.T) {
	var out bytes.Buffer
	setupLogging(&out, true)
	t.Cleanup(func() { setupLogging(&bytes.Buffer{}, false) })

	logInfoAndWarn()
	require.NotContains(t, out.String(), "progress")
	require.Contains(t, out.String(), "careful")
	require.Contains(t, out.String(), "run_id")
}

func logInfoAndWarn() {
	log.Info().Msg("progress")
	log.Warn().Msg("careful")
}
