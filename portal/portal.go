// Package portal holds what the automation knows about the account portal's
// pages: where they are, which elements mark their state and which page
// scripts drive the port-forward actions.
package portal

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/portscribe/browser"
)

// Pages
const (
	HomeURL    = "https://windscribe.com/"
	AccountURL = "https://windscribe.com/myaccount#portforwards"
	LoginURL   = "https://www.windscribe.com/login"
)

// Selectors
const (
	AccountPageSelector = "#myaccountpage"

	TwoFactorToggleSelector = ".have_2fa"
	UsernameSelector        = ".login-box #username"
	PasswordSelector        = ".login-box #pass"
	OTPCodeSelector         = ".login-box #code"
	LoginButtonSelector     = "#login_button"

	PortsMenuSelector   = "#menu-ports"
	PortsTabSelector    = "#ports-main-tab"
	PortForwardSelector = "#portforwardpage"
	CountdownSelector   = "#epf-countdown"
	PortNumberSelector  = "#ports-main-tab .pf-details span.pf-ext"
)

// Page scripts for the ephemeral port-forward.
const (
	DeletePortScript  = "staticIPS.deleteEphPort();"
	RequestPortScript = "staticIPS.postEphPort(true);"
)

// Navigate loads url unless the browser is already there or force is set.
func Navigate(ctx context.Context, b browser.Browser, url string, force bool) error {
	if !force {
		current, err := b.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if current == url {
			return nil
		}
	}
	return b.Navigate(ctx, url)
}

// OnDomain reports whether the browser is on a portal page, which is where
// cookies for the portal can be installed.
func OnDomain(ctx context.Context, b browser.Browser) (bool, error) {
	current, err := b.CurrentURL(ctx)
	if err != nil {
		return false, errors.Wrap(err, "[OnDomain]")
	}
	return strings.HasPrefix(current, HomeURL), nil
}
