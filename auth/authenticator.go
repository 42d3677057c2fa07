package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/portscribe/browser"
	apperrors "github.com/jrsteele09/portscribe/internal/errors"
	"github.com/jrsteele09/portscribe/internal/utils"
	"github.com/jrsteele09/portscribe/portal"
)

const (
	defaultWaitTimeout = 5 * time.Second

	// TwoFactorRenderDelay gives the login box time to swap in the 2FA form
	// after the toggle is clicked.
	TwoFactorRenderDelay = 2 * time.Second
)

// Authenticator gets the browser into a logged-in portal session, reusing
// the current one when the portal still accepts it.
type Authenticator struct {
	browser     browser.Browser
	credentials Credentials
	waitTimeout time.Duration
	nowTime     func() time.Time // clock for OTP codes (injectable for testing)
	sleep       utils.SleepFunc
}

// AuthenticatorOption defines a function type to modify the Authenticator instance.
type AuthenticatorOption func(*Authenticator)

// WithWaitTimeout bounds every wait for a page element
func WithWaitTimeout(d time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		a.waitTimeout = d
	}
}

// WithNowTime sets the clock used for OTP codes (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.nowTime = nowFunc
	}
}

// WithSleep replaces the fixed render delay's sleep (primarily for testing)
func WithSleep(sleep utils.SleepFunc) AuthenticatorOption {
	return func(a *Authenticator) {
		a.sleep = sleep
	}
}

// NewAuthenticator returns an Authenticator driving b with credentials.
func NewAuthenticator(b browser.Browser, credentials Credentials, options ...AuthenticatorOption) (*Authenticator, error) {
	if b == nil {
		return nil, errors.New("[NewAuthenticator] browser is required")
	}
	if credentials.Username == "" || credentials.Password == "" {
		return nil, errors.New("[NewAuthenticator] username and password are required")
	}

	a := &Authenticator{
		browser:     b,
		credentials: credentials,
		waitTimeout: defaultWaitTimeout,
		nowTime:     time.Now,
		sleep:       utils.Sleep,
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

// IsAuthenticated opens the account page and checks for the element that
// only logged-in visitors get. A missing element means "not logged in".
func (a *Authenticator) IsAuthenticated(ctx context.Context) (bool, error) {
	if err := portal.Navigate(ctx, a.browser, portal.AccountURL, false); err != nil {
		return false, errors.Wrap(err, "[IsAuthenticated] opening account page")
	}
	res, err := a.browser.Find(ctx, portal.AccountPageSelector)
	if err != nil {
		return false, errors.Wrap(err, "[IsAuthenticated]")
	}
	return res.Ok(), nil
}

// EnsureAuthenticated reuses the browser's session if the portal accepts it
// and logs in from scratch otherwise. It reports whether the session was
// reused.
func (a *Authenticator) EnsureAuthenticated(ctx context.Context) (bool, error) {
	ok, err := a.IsAuthenticated(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		log.Info().Msg("Reusing the saved session")
		return true, nil
	}

	log.Info().Str("user", a.credentials.Username).Msg("Logging in to the portal")
	if err := a.Login(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// Login fills in and submits the login form, then waits for the account
// page and switches to its ports tab.
func (a *Authenticator) Login(ctx context.Context) error {
	if err := portal.Navigate(ctx, a.browser, portal.LoginURL, false); err != nil {
		return errors.Wrap(err, "[Login] opening login page")
	}

	if a.credentials.HasOTP() {
		if err := a.selectTwoFactorLogin(ctx); err != nil {
			return err
		}
	}

	if err := a.require(ctx, portal.UsernameSelector); err != nil {
		return err
	}
	if err := a.browser.SendKeys(ctx, portal.UsernameSelector, a.credentials.Username); err != nil {
		return errors.Wrap(err, "[Login] typing username")
	}

	if a.credentials.HasOTP() {
		if err := a.browser.SendKeys(ctx, portal.PasswordSelector, a.credentials.Password); err != nil {
			return errors.Wrap(err, "[Login] typing password")
		}
		if err := a.submitOTP(ctx); err != nil {
			return err
		}
	} else {
		if err := a.browser.SendKeys(ctx, portal.PasswordSelector, a.credentials.Password+browser.KeyReturn); err != nil {
			return errors.Wrap(err, "[Login] submitting login form")
		}
	}
	log.Info().Msg("Sent login form")

	if err := a.require(ctx, portal.AccountPageSelector); err != nil {
		return err
	}
	log.Info().Msg("Reached account page")

	if err := a.require(ctx, portal.PortsMenuSelector); err != nil {
		return err
	}
	if err := a.browser.Click(ctx, portal.PortsMenuSelector); err != nil {
		return errors.Wrap(err, "[Login] opening ports tab")
	}
	if err := a.require(ctx, portal.PortsTabSelector); err != nil {
		return err
	}
	log.Info().Msg("Reached ports tab")
	return nil
}

func (a *Authenticator) selectTwoFactorLogin(ctx context.Context) error {
	res, err := a.browser.Find(ctx, portal.TwoFactorToggleSelector)
	if err != nil {
		return errors.Wrap(err, "[Login] looking for 2FA toggle")
	}
	if !res.Ok() {
		return a.failure(ctx, apperrors.ErrElementNotFound, portal.TwoFactorToggleSelector)
	}
	if err := a.browser.Click(ctx, portal.TwoFactorToggleSelector); err != nil {
		return errors.Wrap(err, "[Login] selecting 2FA login")
	}
	return a.sleep(ctx, TwoFactorRenderDelay)
}

// submitOTP types a code generated right before submission: one generated
// earlier in the flow may already have rolled over.
func (a *Authenticator) submitOTP(ctx context.Context) error {
	if err := a.require(ctx, portal.OTPCodeSelector); err != nil {
		return err
	}
	res, err := a.browser.Find(ctx, portal.LoginButtonSelector)
	if err != nil {
		return errors.Wrap(err, "[Login] looking for login button")
	}
	if !res.Ok() {
		return a.failure(ctx, apperrors.ErrElementNotFound, portal.LoginButtonSelector)
	}

	code, err := a.credentials.OTPCode(a.nowTime())
	if err != nil {
		return errors.Wrap(err, "[Login]")
	}
	log.Info().Msg("Generated OTP code")

	if err := a.browser.SendKeys(ctx, portal.OTPCodeSelector, code); err != nil {
		return errors.Wrap(err, "[Login] typing OTP code")
	}
	if err := a.browser.Click(ctx, portal.LoginButtonSelector); err != nil {
		return errors.Wrap(err, "[Login] submitting login form")
	}
	return nil
}

// require waits for selector and turns a timeout into a hard failure.
func (a *Authenticator) require(ctx context.Context, selector string) error {
	res, err := a.browser.WaitPresent(ctx, selector, a.waitTimeout)
	if err != nil {
		return errors.Wrapf(err, "[Login] waiting for %s", selector)
	}
	if !res.Ok() {
		return a.failure(ctx, apperrors.ErrElementTimeout, selector)
	}
	return nil
}

// failure builds an authentication error carrying the page's URL and logs
// the page source at debug level.
func (a *Authenticator) failure(ctx context.Context, cause error, selector string) error {
	url, err := a.browser.CurrentURL(ctx)
	if err != nil {
		url = "unknown"
	}
	if source, err := a.browser.PageSource(ctx); err == nil {
		log.Debug().Str("url", url).Str("page_source", source).Msg("Page at login failure")
	}
	return fmt.Errorf("%w: %w: %s (page %s)", apperrors.ErrAuthentication, cause, selector, url)
}
