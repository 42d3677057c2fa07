package lease

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/portscribe/browser"
	apperrors "github.com/jrsteele09/portscribe/internal/errors"
	"github.com/jrsteele09/portscribe/portal"
)

const defaultWaitTimeout = 5 * time.Second

// Manager reads and renews the port-forward lease through a logged-in
// browser.
type Manager struct {
	browser     browser.Browser
	waitTimeout time.Duration
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithWaitTimeout bounds every wait for a page element
func WithWaitTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.waitTimeout = d
	}
}

// NewManager returns a Manager driving b, which must already be logged in.
func NewManager(b browser.Browser, options ...ManagerOption) (*Manager, error) {
	if b == nil {
		return nil, errors.New("[NewManager] browser is required")
	}
	m := &Manager{
		browser:     b,
		waitTimeout: defaultWaitTimeout,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Open navigates to the port-forward view and waits for it to render. It
// reports whether the view appeared.
func (m *Manager) Open(ctx context.Context) (bool, error) {
	if err := portal.Navigate(ctx, m.browser, portal.AccountURL, false); err != nil {
		return false, errors.Wrap(err, "[Open] opening port-forward view")
	}
	res, err := m.browser.WaitPresent(ctx, portal.PortForwardSelector, m.waitTimeout)
	if err != nil {
		return false, errors.Wrap(err, "[Open]")
	}
	return res.Ok(), nil
}

// Inspect reads the lease countdown. A missing view, a missing countdown or
// an unparseable one all yield a lease with unknown remaining time.
func (m *Manager) Inspect(ctx context.Context) (Lease, error) {
	open, err := m.Open(ctx)
	if err != nil {
		return Lease{}, errors.Wrap(err, "[Inspect]")
	}
	if !open {
		log.Info().Msg("Port-forward view not available")
		return Lease{}, nil
	}

	res, err := m.browser.WaitPresent(ctx, portal.CountdownSelector, m.waitTimeout)
	if err != nil {
		return Lease{}, errors.Wrap(err, "[Inspect] waiting for countdown")
	}
	if !res.Ok() {
		log.Info().Msg("No lease countdown shown")
		return Lease{}, nil
	}

	countdown := strings.TrimSpace(res.Element.Text)
	seconds, ok := ParseCountdown(countdown)
	if !ok {
		log.Warn().Str("countdown", countdown).Msg("Couldn't parse remaining lease time")
		return Lease{Countdown: countdown}, nil
	}
	return Lease{
		Remaining:      time.Duration(seconds) * time.Second,
		RemainingKnown: true,
		Countdown:      countdown,
	}, nil
}

// EnsureFresh renews the lease when it is unknown or close to expiry and
// returns the port the portal displays afterwards.
func (m *Manager) EnsureFresh(ctx context.Context) (Outcome, error) {
	current, err := m.Inspect(ctx)
	if err != nil {
		return Outcome{}, err
	}
	log.Info().Str("remaining", current.String()).Msg("Inspected port lease")

	out := Outcome{Before: current}
	if current.NeedsRenewal() {
		if err := m.renew(ctx); err != nil {
			return Outcome{}, err
		}
		out.Renewed = true
	} else {
		log.Info().Msg("Keeping the current port")
	}

	port, err := m.Port(ctx)
	if err != nil {
		return Outcome{}, err
	}
	out.Port = port
	log.Info().Int("port", port).Bool("renewed", out.Renewed).Msg("Port lease ready")
	return out, nil
}

// renew deletes the current ephemeral port and requests a new one, checking
// after each step that the page reflects it.
func (m *Manager) renew(ctx context.Context) error {
	open, err := m.Open(ctx)
	if err != nil {
		return errors.Wrap(err, "[renew]")
	}
	if !open {
		return fmt.Errorf("%w: port-forward view %s did not load", apperrors.ErrLeaseAction, portal.PortForwardSelector)
	}

	log.Info().Msg("Deleting old port")
	if err := m.browser.Execute(ctx, portal.DeletePortScript); err != nil {
		return errors.Wrap(err, "[renew] deleting port")
	}
	res, err := m.browser.WaitAbsent(ctx, portal.CountdownSelector, m.waitTimeout)
	if err != nil {
		return errors.Wrap(err, "[renew] waiting for countdown to clear")
	}
	if !res.Ok() {
		return fmt.Errorf("%w: countdown still shown %s after deleting the port", apperrors.ErrLeaseAction, m.waitTimeout)
	}

	log.Info().Msg("Requesting new port")
	if err := m.browser.Execute(ctx, portal.RequestPortScript); err != nil {
		return errors.Wrap(err, "[renew] requesting port")
	}
	res, err = m.browser.WaitPresent(ctx, portal.CountdownSelector, m.waitTimeout)
	if err != nil {
		return errors.Wrap(err, "[renew] waiting for countdown")
	}
	if !res.Ok() {
		return fmt.Errorf("%w: no countdown %s after requesting a port", apperrors.ErrLeaseAction, m.waitTimeout)
	}
	return nil
}

// Port reads the port number shown on the ports tab. Anything other than a
// valid port number is an error.
func (m *Manager) Port(ctx context.Context) (int, error) {
	res, err := m.browser.Find(ctx, portal.PortNumberSelector)
	if err != nil {
		return 0, errors.Wrap(err, "[Port]")
	}
	if !res.Ok() {
		return 0, fmt.Errorf("%w: %s not on page", apperrors.ErrPortUnreadable, portal.PortNumberSelector)
	}

	text := strings.TrimSpace(res.Element.Text)
	port, err := strconv.Atoi(text)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %q is not a port number", apperrors.ErrPortUnreadable, text)
	}
	return port, nil
}
