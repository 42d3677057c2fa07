// Package browser defines the automated-browsing capability the portal
// automation runs against. Implementations drive a real browser
// (chromedriver) or an in-memory page model (fakebrowser).
package browser

import (
	"context"
	"time"
)

// KeyReturn submits the focused form when sent as a keystroke.
const KeyReturn = "\r"

// Status is the outcome of an element lookup or wait.
type Status int

const (
	// Found means the element is present. For WaitAbsent it means the
	// element is gone.
	Found Status = iota
	// NotFound means an immediate lookup matched nothing.
	NotFound
	// Timeout means a wait ran out before the condition held.
	Timeout
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Element is a snapshot of a matched element.
type Element struct {
	Selector string
	Text     string
}

// Result is returned by lookups instead of signalling "not found" as an
// error. Errors are reserved for failures of the browser itself.
type Result struct {
	Status  Status
	Element Element
}

// Ok reports whether the lookup or wait condition was met.
func (r Result) Ok() bool {
	return r.Status == Found
}

// Cookie is a browser cookie in a form that round-trips through storage.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitzero"` // zero for session cookies
	HTTPOnly bool      `json:"http_only,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	SameSite string    `json:"same_site,omitempty"`
}

// Browser is the automated-browsing capability. Selectors are CSS selectors.
type Browser interface {
	// Navigate loads url and waits for the page load to finish.
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the URL of the current page.
	CurrentURL(ctx context.Context) (string, error)

	// Find looks selector up once without waiting.
	Find(ctx context.Context, selector string) (Result, error)

	// WaitPresent polls until selector matches or timeout elapses.
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) (Result, error)

	// WaitAbsent polls until selector matches nothing or timeout elapses.
	WaitAbsent(ctx context.Context, selector string, timeout time.Duration) (Result, error)

	// Execute runs script in the page and discards its result.
	Execute(ctx context.Context, script string) error

	// Cookies returns every cookie visible to the current page.
	Cookies(ctx context.Context) ([]Cookie, error)

	// SetCookies installs cookies into the browser.
	SetCookies(ctx context.Context, cookies []Cookie) error

	// SendKeys types keys into the element matching selector.
	SendKeys(ctx context.Context, selector, keys string) error

	// Click clicks the element matching selector.
	Click(ctx context.Context, selector string) error

	// PageSource returns the current document's HTML, for diagnostics.
	PageSource(ctx context.Context) (string, error)

	// Close releases the browser and any process backing it.
	Close() error
}
