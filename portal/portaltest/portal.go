// Package portaltest simulates the account portal on top of a fake browser
// so that login and lease flows can be exercised without Chrome.
package portaltest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/jrsteele09/portscribe/browser"
	"github.com/jrsteele09/portscribe/browser/fakebrowser"
	"github.com/jrsteele09/portscribe/portal"
)

const (
	SessionCookieName = "ws_session_auth_hash"
	SessionDomain     = ".windscribe.com"

	// FreshCountdown is what the portal shows right after a port is issued.
	FreshCountdown = "6 days 23:59:59"
)

// Portal is the simulated server side. Exported fields may be set before
// the first browser call; use the methods afterwards.
type Portal struct {
	Username string
	Password string
	OTPSeed  string           // non-empty requires a TOTP code at login
	Now      func() time.Time // clock used to check TOTP codes

	HasLease  bool
	Countdown string
	Port      int
	NextPort  int // port handed out by the next request

	DeleteIgnored  bool // delete script does nothing
	RequestIgnored bool // request script does nothing

	lock          sync.Mutex
	validSessions map[string]bool
	typed         map[string]string
	issued        int
	logins        int
	failedLogins  int
	deletes       int
	requests      int
}

// New returns a portal with a single account and no lease.
func New(username, password string) *Portal {
	return &Portal{
		Username:      username,
		Password:      password,
		Now:           time.Now,
		validSessions: make(map[string]bool),
		typed:         make(map[string]string),
	}
}

// IssueSession returns a session cookie the portal accepts, as if from an
// earlier login.
func (p *Portal) IssueSession() browser.Cookie {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.issueLocked()
}

// Expire makes the portal reject every session issued so far.
func (p *Portal) Expire() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.validSessions = make(map[string]bool)
}

func (p *Portal) Logins() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.logins
}

func (p *Portal) FailedLogins() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.failedLogins
}

func (p *Portal) Deletes() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.deletes
}

func (p *Portal) Requests() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.requests
}

// NewBrowser returns a fake browser whose pages are served by p.
func (p *Portal) NewBrowser() *fakebrowser.FakeBrowser {
	return fakebrowser.NewFakeBrowser(fakebrowser.Hooks{
		OnNavigate: p.onNavigate,
		OnClick:    p.onClick,
		OnKeys:     p.onKeys,
		OnScript:   p.onScript,
	})
}

func (p *Portal) issueLocked() browser.Cookie {
	p.issued++
	value := fmt.Sprintf("session-%d", p.issued)
	p.validSessions[value] = true
	return browser.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Domain:   SessionDomain,
		Path:     "/",
		Expires:  time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second),
		HTTPOnly: true,
		Secure:   true,
	}
}

func (p *Portal) authenticated(f *fakebrowser.FakeBrowser) bool {
	value, ok := f.CookieValue(SessionCookieName)
	if !ok {
		return false
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.validSessions[value]
}

func (p *Portal) onNavigate(f *fakebrowser.FakeBrowser, url string) error {
	switch url {
	case portal.AccountURL:
		if p.authenticated(f) {
			p.renderAccount(f)
		}
	case portal.LoginURL:
		p.lock.Lock()
		p.typed = make(map[string]string)
		p.lock.Unlock()
		f.SetElement(portal.TwoFactorToggleSelector, "I have a 2FA code")
		f.SetElement(portal.UsernameSelector, "")
		f.SetElement(portal.PasswordSelector, "")
		f.SetElement(portal.LoginButtonSelector, "Login")
	}
	return nil
}

func (p *Portal) renderAccount(f *fakebrowser.FakeBrowser) {
	f.SetElement(portal.AccountPageSelector, "")
	f.SetElement(portal.PortsMenuSelector, "Ports")
	f.SetElement(portal.PortsTabSelector, "")
	f.SetElement(portal.PortForwardSelector, "")
	p.renderLease(f)
}

func (p *Portal) renderLease(f *fakebrowser.FakeBrowser) {
	p.lock.Lock()
	hasLease, countdown, port := p.HasLease, p.Countdown, p.Port
	p.lock.Unlock()

	if !hasLease {
		f.RemoveElement(portal.CountdownSelector)
		f.RemoveElement(portal.PortNumberSelector)
		return
	}
	f.SetElement(portal.CountdownSelector, countdown)
	f.SetElement(portal.PortNumberSelector, strconv.Itoa(port))
}

func (p *Portal) onClick(f *fakebrowser.FakeBrowser, selector string) error {
	switch selector {
	case portal.TwoFactorToggleSelector:
		f.SetElement(portal.OTPCodeSelector, "")
	case portal.LoginButtonSelector:
		p.submit(f)
	case portal.PortsMenuSelector:
		f.SetElement(portal.PortsTabSelector, "")
	}
	return nil
}

func (p *Portal) onKeys(f *fakebrowser.FakeBrowser, selector, keys string) error {
	submit := strings.HasSuffix(keys, browser.KeyReturn)
	p.lock.Lock()
	p.typed[selector] += strings.TrimSuffix(keys, browser.KeyReturn)
	p.lock.Unlock()
	if submit {
		p.submit(f)
	}
	return nil
}

func (p *Portal) submit(f *fakebrowser.FakeBrowser) {
	p.lock.Lock()
	ok := p.typed[portal.UsernameSelector] == p.Username &&
		p.typed[portal.PasswordSelector] == p.Password
	if ok && p.OTPSeed != "" {
		want, err := totp.GenerateCode(p.OTPSeed, p.Now())
		ok = err == nil && p.typed[portal.OTPCodeSelector] == want
	}
	if !ok {
		p.failedLogins++
		p.lock.Unlock()
		return
	}
	p.logins++
	cookie := p.issueLocked()
	p.lock.Unlock()

	f.SetCookie(cookie)
	for _, sel := range []string{
		portal.TwoFactorToggleSelector, portal.UsernameSelector, portal.PasswordSelector,
		portal.OTPCodeSelector, portal.LoginButtonSelector,
	} {
		f.RemoveElement(sel)
	}
	p.renderAccount(f)
}

func (p *Portal) onScript(f *fakebrowser.FakeBrowser, script string) error {
	switch script {
	case portal.DeletePortScript:
		p.lock.Lock()
		p.deletes++
		if !p.DeleteIgnored {
			p.HasLease = false
		}
		p.lock.Unlock()
	case portal.RequestPortScript:
		p.lock.Lock()
		p.requests++
		if !p.RequestIgnored && !p.HasLease {
			p.HasLease = true
			p.Countdown = FreshCountdown
			p.Port = p.NextPort
		}
		p.lock.Unlock()
	default:
		return fmt.Errorf("unknown page script %q", script)
	}
	p.renderLease(f)
	return nil
}
