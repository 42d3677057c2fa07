package fakebrowser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/portscribe/browser"
)

var _ browser.Browser = (*FakeBrowser)(nil)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("browser closed")

// KeyPress records a SendKeys call.
type KeyPress struct {
	Selector string
	Keys     string
}

// Hooks let a test model page behaviour. Each hook runs with the fake's lock
// released, so it may call the Set*/Remove* helpers.
type Hooks struct {
	OnNavigate func(f *FakeBrowser, url string) error
	OnClick    func(f *FakeBrowser, selector string) error
	OnKeys     func(f *FakeBrowser, selector, keys string) error
	OnScript   func(f *FakeBrowser, script string) error
}

// FakeBrowser is an in-memory page: a URL, a set of selectors that currently
// match (with their text) and a cookie jar. Waits resolve immediately.
type FakeBrowser struct {
	hooks Hooks

	lock     sync.Mutex
	url      string
	elements map[string]string
	cookies  []browser.Cookie
	closed   bool

	navigations []string
	clicks      []string
	keys        []KeyPress
	scripts     []string
	waits       []string
	closeCalls  int
}

// NewFakeBrowser returns an empty page at about:blank.
func NewFakeBrowser(hooks Hooks) *FakeBrowser {
	return &FakeBrowser{
		hooks:    hooks,
		url:      "about:blank",
		elements: make(map[string]string),
	}
}

func (f *FakeBrowser) Navigate(ctx context.Context, url string) error {
	if err := f.check(ctx); err != nil {
		return err
	}
	f.lock.Lock()
	f.url = url
	f.elements = make(map[string]string)
	f.navigations = append(f.navigations, url)
	f.lock.Unlock()

	if f.hooks.OnNavigate != nil {
		return f.hooks.OnNavigate(f, url)
	}
	return nil
}

func (f *FakeBrowser) CurrentURL(ctx context.Context) (string, error) {
	if err := f.check(ctx); err != nil {
		return "", err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.url, nil
}

func (f *FakeBrowser) Find(ctx context.Context, selector string) (browser.Result, error) {
	if err := f.check(ctx); err != nil {
		return browser.Result{}, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	text, ok := f.elements[selector]
	if !ok {
		return browser.Result{Status: browser.NotFound}, nil
	}
	return browser.Result{Status: browser.Found, Element: browser.Element{Selector: selector, Text: text}}, nil
}

func (f *FakeBrowser) WaitPresent(ctx context.Context, selector string, _ time.Duration) (browser.Result, error) {
	if err := f.check(ctx); err != nil {
		return browser.Result{}, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.waits = append(f.waits, selector)
	text, ok := f.elements[selector]
	if !ok {
		return browser.Result{Status: browser.Timeout}, nil
	}
	return browser.Result{Status: browser.Found, Element: browser.Element{Selector: selector, Text: text}}, nil
}

func (f *FakeBrowser) WaitAbsent(ctx context.Context, selector string, _ time.Duration) (browser.Result, error) {
	if err := f.check(ctx); err != nil {
		return browser.Result{}, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	f.waits = append(f.waits, "!"+selector)
	if _, ok := f.elements[selector]; ok {
		return browser.Result{Status: browser.Timeout}, nil
	}
	return browser.Result{Status: browser.Found, Element: browser.Element{Selector: selector}}, nil
}

func (f *FakeBrowser) Execute(ctx context.Context, script string) error {
	if err := f.check(ctx); err != nil {
		return err
	}
	f.lock.Lock()
	f.scripts = append(f.scripts, script)
	f.lock.Unlock()

	if f.hooks.OnScript != nil {
		return f.hooks.OnScript(f, script)
	}
	return nil
}

func (f *FakeBrowser) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if err := f.check(ctx); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]browser.Cookie(nil), f.cookies...), nil
}

// SetCookies replaces cookies with the same name, domain and path.
func (f *FakeBrowser) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	if err := f.check(ctx); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, c := range cookies {
		f.setCookieLocked(c)
	}
	return nil
}

func (f *FakeBrowser) SendKeys(ctx context.Context, selector, keys string) error {
	if err := f.check(ctx); err != nil {
		return err
	}
	f.lock.Lock()
	if _, ok := f.elements[selector]; !ok {
		f.lock.Unlock()
		return errors.New("no element matches " + selector)
	}
	f.keys = append(f.keys, KeyPress{Selector: selector, Keys: keys})
	f.lock.Unlock()

	if f.hooks.OnKeys != nil {
		return f.hooks.OnKeys(f, selector, keys)
	}
	return nil
}

func (f *FakeBrowser) Click(ctx context.Context, selector string) error {
	if err := f.check(ctx); err != nil {
		return err
	}
	f.lock.Lock()
	if _, ok := f.elements[selector]; !ok {
		f.lock.Unlock()
		return errors.New("no element matches " + selector)
	}
	f.clicks = append(f.clicks, selector)
	f.lock.Unlock()

	if f.hooks.OnClick != nil {
		return f.hooks.OnClick(f, selector)
	}
	return nil
}

func (f *FakeBrowser) PageSource(ctx context.Context) (string, error) {
	if err := f.check(ctx); err != nil {
		return "", err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	return "<html><!-- " + f.url + " --></html>", nil
}

func (f *FakeBrowser) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed = true
	f.closeCalls++
	return nil
}

// SetElement makes selector match with the given text.
func (f *FakeBrowser) SetElement(selector, text string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.elements[selector] = text
}

// RemoveElement makes selector match nothing.
func (f *FakeBrowser) RemoveElement(selector string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.elements, selector)
}

// HasElement reports whether selector currently matches.
func (f *FakeBrowser) HasElement(selector string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.elements[selector]
	return ok
}

// SetCookie installs a single cookie, as a server response would.
func (f *FakeBrowser) SetCookie(c browser.Cookie) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.setCookieLocked(c)
}

// CookieValue returns the value of the first cookie called name.
func (f *FakeBrowser) CookieValue(name string) (string, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, c := range f.cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func (f *FakeBrowser) Navigations() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.navigations...)
}

func (f *FakeBrowser) Clicks() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.clicks...)
}

func (f *FakeBrowser) Keys() []KeyPress {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]KeyPress(nil), f.keys...)
}

func (f *FakeBrowser) Scripts() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.scripts...)
}

// Waits lists every waited-on selector; absence waits are prefixed with "!".
func (f *FakeBrowser) Waits() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.waits...)
}

func (f *FakeBrowser) Closed() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.closed
}

func (f *FakeBrowser) CloseCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.closeCalls
}

func (f *FakeBrowser) setCookieLocked(c browser.Cookie) {
	for i, existing := range f.cookies {
		if existing.Name == c.Name && existing.Domain == c.Domain && existing.Path == c.Path {
			f.cookies[i] = c
			return
		}
	}
	f.cookies = append(f.cookies, c)
}

func (f *FakeBrowser) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.closed {
		return ErrClosed
	}
	return nil
}
