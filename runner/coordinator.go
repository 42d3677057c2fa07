// Package runner sequences one renewal run: lock, pre-flight, session
// restore, login, lease renewal and download client update.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/portscribe/auth"
	"github.com/jrsteele09/portscribe/browser"
	"github.com/jrsteele09/portscribe/downstream"
	apperrors "github.com/jrsteele09/portscribe/internal/errors"
	"github.com/jrsteele09/portscribe/internal/lock"
	"github.com/jrsteele09/portscribe/internal/utils"
	"github.com/jrsteele09/portscribe/lease"
	"github.com/jrsteele09/portscribe/portal"
	"github.com/jrsteele09/portscribe/sessions"
)

const (
	defaultWaitTimeout = 5 * time.Second

	// SessionSettleDelay lets the portal's own scripts finish rotating
	// cookies before the session is captured. Whether it can be shortened
	// depends on the portal, not on this program.
	SessionSettleDelay = 3 * time.Second
)

// BrowserFactory starts the automation capability for one run.
type BrowserFactory func(ctx context.Context) (browser.Browser, error)

// Dependencies holds the collaborators a run needs.
type Dependencies struct {
	Sessions   sessions.Repo     // saved portal session
	Downstream downstream.Client // download client API
	NewBrowser BrowserFactory    // started only after the pre-flight check
}

// Result describes a successful run.
type Result struct {
	Port          int
	Renewed       bool
	SessionReused bool
	Lease         lease.Lease // lease before any renewal
	Change        downstream.Change
}

// PropagationError means the portal produced a port, possibly a freshly
// renewed one, but the download client was not updated with it.
type PropagationError struct {
	Port    int
	Renewed bool
	Err     error
}

func (e *PropagationError) Error() string {
	state := "kept"
	if e.Renewed {
		state = "renewed"
	}
	return fmt.Sprintf("port %d (%s) not propagated to download client: %v", e.Port, state, e.Err)
}

func (e *PropagationError) Unwrap() error {
	return e.Err
}

// Coordinator runs the renewal sequence.
type Coordinator struct {
	deps        Dependencies
	credentials auth.Credentials
	lockPath    string
	waitTimeout time.Duration
	settleDelay time.Duration
	nowTime     func() time.Time
	sleep       utils.SleepFunc
}

// CoordinatorOption defines a function type to modify the Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithWaitTimeout bounds every wait for a page element
func WithWaitTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.waitTimeout = d
	}
}

// WithSettleDelay overrides SessionSettleDelay (primarily for testing)
func WithSettleDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.settleDelay = d
	}
}

// WithNowTime sets the clock used for OTP codes (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

// WithSleep replaces every fixed delay's sleep (primarily for testing)
func WithSleep(sleep utils.SleepFunc) CoordinatorOption {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

// NewCoordinator validates deps and returns a Coordinator that locks lockPath.
func NewCoordinator(deps Dependencies, credentials auth.Credentials, lockPath string, options ...CoordinatorOption) (*Coordinator, error) {
	if deps.Sessions == nil {
		return nil, errors.New("[NewCoordinator] Sessions repo is required")
	}
	if deps.Downstream == nil {
		return nil, errors.New("[NewCoordinator] Downstream client is required")
	}
	if deps.NewBrowser == nil {
		return nil, errors.New("[NewCoordinator] NewBrowser is required")
	}
	if lockPath == "" {
		return nil, errors.New("[NewCoordinator] lockPath is required")
	}

	c := &Coordinator{
		deps:        deps,
		credentials: credentials,
		lockPath:    lockPath,
		waitTimeout: defaultWaitTimeout,
		settleDelay: SessionSettleDelay,
		nowTime:     time.Now,
		sleep:       utils.Sleep,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Run performs one renewal. The lock is held and the browser is open only
// for the duration of the call; both are released on every return path.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	l, err := lock.Acquire(c.lockPath)
	if err != nil {
		if errors.Is(err, lock.ErrWouldBlock) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrLockHeld, c.lockPath)
		}
		return nil, errors.Wrap(err, "[Run] acquiring lock")
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.Warn().Err(err).Msg("Failed to release lock")
		}
	}()

	reconciler, err := downstream.NewReconciler(c.deps.Downstream)
	if err != nil {
		return nil, errors.Wrap(err, "[Run]")
	}
	if err := reconciler.Check(ctx); err != nil {
		return nil, err
	}

	b, err := c.deps.NewBrowser(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Run] starting browser")
	}
	defer func() {
		log.Info().Msg("Closing browser")
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close browser")
		}
	}()

	return c.runWithBrowser(ctx, b, reconciler)
}

func (c *Coordinator) runWithBrowser(ctx context.Context, b browser.Browser, reconciler *downstream.Reconciler) (*Result, error) {
	if err := c.restoreSession(ctx, b); err != nil {
		return nil, err
	}

	authenticator, err := auth.NewAuthenticator(b, c.credentials,
		auth.WithWaitTimeout(c.waitTimeout),
		auth.WithNowTime(c.nowTime),
		auth.WithSleep(c.sleep),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[Run]")
	}
	reused, err := authenticator.EnsureAuthenticated(ctx)
	if err != nil {
		return nil, err
	}

	manager, err := lease.NewManager(b, lease.WithWaitTimeout(c.waitTimeout))
	if err != nil {
		return nil, errors.Wrap(err, "[Run]")
	}
	if open, err := manager.Open(ctx); err != nil {
		return nil, err
	} else if !open {
		log.Warn().Msg("Port-forward view did not load before saving the session")
	}

	if err := c.persistSession(ctx, b); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The saved session only spares the next run a login.
		log.Warn().Err(err).Msg("Failed to save session")
	}

	outcome, err := manager.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}

	change, err := reconciler.Reconcile(ctx, outcome.Port)
	if err != nil {
		return nil, &PropagationError{Port: outcome.Port, Renewed: outcome.Renewed, Err: err}
	}

	log.Info().Msg("All done")
	return &Result{
		Port:          outcome.Port,
		Renewed:       outcome.Renewed,
		SessionReused: reused,
		Lease:         outcome.Before,
		Change:        change,
	}, nil
}

// restoreSession installs saved cookies. Cookies can only be set for the
// domain the browser is on, so the portal's home page is loaded first.
func (c *Coordinator) restoreSession(ctx context.Context, b browser.Browser) error {
	saved, err := c.deps.Sessions.Load()
	if err != nil {
		return errors.Wrap(err, "[restoreSession] loading session")
	}
	if saved.Empty() {
		log.Info().Msg("No saved session")
		return nil
	}

	onDomain, err := portal.OnDomain(ctx, b)
	if err != nil {
		return err
	}
	if !onDomain {
		if err := portal.Navigate(ctx, b, portal.HomeURL, true); err != nil {
			return errors.Wrap(err, "[restoreSession] opening portal")
		}
	}

	log.Info().Int("cookies", len(saved.Cookies)).Time("saved_at", saved.SavedAt).Msg("Loading saved session")
	if err := b.SetCookies(ctx, saved.Cookies); err != nil {
		return errors.Wrap(err, "[restoreSession]")
	}
	return errors.Wrap(portal.Navigate(ctx, b, portal.AccountURL, false), "[restoreSession] opening account page")
}

func (c *Coordinator) persistSession(ctx context.Context, b browser.Browser) error {
	if err := c.sleep(ctx, c.settleDelay); err != nil {
		return err
	}
	cookies, err := b.Cookies(ctx)
	if err != nil {
		return errors.Wrap(err, "[persistSession]")
	}
	if err := c.deps.Sessions.Save(&sessions.Session{Cookies: cookies}); err != nil {
		return errors.Wrap(err, "[persistSession]")
	}
	log.Info().Int("cookies", len(cookies)).Msg("Saved session")
	return nil
}
