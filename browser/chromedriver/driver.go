// Package chromedriver implements browser.Browser on Chrome through the
// DevTools protocol.
package chromedriver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/portscribe/browser"
)

var _ browser.Browser = (*Driver)(nil)

const (
	defaultActionTimeout = 30 * time.Second
	windowWidth          = 1920
	windowHeight         = 1080
)

// Options configures the browser process.
type Options struct {
	Headless bool
	ExecPath string // empty to let chromedp find Chrome
	// ActionTimeout bounds calls that have no timeout of their own
	// (navigation, typing, clicks, scripts).
	ActionTimeout time.Duration
}

// Driver owns one Chrome process and one tab.
type Driver struct {
	ctx           context.Context // chromedp tab context
	cancelTab     context.CancelFunc
	cancelAlloc   context.CancelFunc
	actionTimeout time.Duration
}

// New starts Chrome and opens a tab. The browser lives until Close, not
// until parent is done.
func New(parent context.Context, opts Options) (*Driver, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("start-maximized", true),
		chromedp.WindowSize(windowWidth, windowHeight),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			log.Debug().Str("component", "chrome").Msgf(format, args...)
		}),
	)

	d := &Driver{
		ctx:           tabCtx,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		actionTimeout: opts.ActionTimeout,
	}
	if d.actionTimeout <= 0 {
		d.actionTimeout = defaultActionTimeout
	}

	if err := parent.Err(); err != nil {
		d.Close()
		return nil, err
	}
	// The first Run launches the browser and ties its lifetime to the
	// context it gets, so it must be the undecorated tab context.
	if err := chromedp.Run(d.ctx); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "[chromedriver.New] failed to start browser")
	}
	return d, nil
}

// bound derives a context from the tab context that is also cancelled when
// ctx is, and expires after timeout.
func (d *Driver) bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := d.bound(ctx, d.actionTimeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return errors.Wrapf(d.run(ctx, chromedp.Navigate(url)), "[Navigate] %s", url)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", errors.Wrap(err, "[CurrentURL]")
	}
	return url, nil
}

type lookup struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

func lookupScript(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	return el === null ? {found: false, text: ""} : {found: true, text: el.innerText || el.textContent || ""};
})()`, quoted)
}

func (d *Driver) Find(ctx context.Context, selector string) (browser.Result, error) {
	var res lookup
	if err := d.run(ctx, chromedp.Evaluate(lookupScript(selector), &res)); err != nil {
		return browser.Result{}, errors.Wrapf(err, "[Find] %s", selector)
	}
	if !res.Found {
		return browser.Result{Status: browser.NotFound}, nil
	}
	return browser.Result{
		Status:  browser.Found,
		Element: browser.Element{Selector: selector, Text: res.Text},
	}, nil
}

func (d *Driver) WaitPresent(ctx context.Context, selector string, timeout time.Duration) (browser.Result, error) {
	waitCtx, cancel := d.bound(ctx, timeout)
	defer cancel()
	err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if timedOut(ctx, err) {
		return browser.Result{Status: browser.Timeout}, nil
	}
	if err != nil {
		return browser.Result{}, errors.Wrapf(err, "[WaitPresent] %s", selector)
	}

	res, err := d.Find(ctx, selector)
	if err != nil {
		return browser.Result{}, err
	}
	if res.Status == browser.NotFound {
		// Removed again between the wait and the read.
		return browser.Result{Status: browser.Timeout}, nil
	}
	return res, nil
}

func (d *Driver) WaitAbsent(ctx context.Context, selector string, timeout time.Duration) (browser.Result, error) {
	waitCtx, cancel := d.bound(ctx, timeout)
	defer cancel()
	err := chromedp.Run(waitCtx, chromedp.WaitNotPresent(selector, chromedp.ByQuery))
	if timedOut(ctx, err) {
		return browser.Result{Status: browser.Timeout}, nil
	}
	if err != nil {
		return browser.Result{}, errors.Wrapf(err, "[WaitAbsent] %s", selector)
	}
	return browser.Result{Status: browser.Found, Element: browser.Element{Selector: selector}}, nil
}

// timedOut separates a wait's own deadline from cancellation by the caller.
func timedOut(caller context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && caller.Err() == nil
}

func (d *Driver) Execute(ctx context.Context, script string) error {
	return errors.Wrap(d.run(ctx, chromedp.Evaluate(script, nil)), "[Execute]")
}

func (d *Driver) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, errors.Wrap(err, "[Cookies]")
	}

	out := make([]browser.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, fromNetworkCookie(c))
	}
	return out, nil
}

func (d *Driver) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			if err := toSetCookie(c).Do(ctx); err != nil {
				return errors.Wrapf(err, "cookie %s", c.Name)
			}
		}
		return nil
	}))
	return errors.Wrap(err, "[SetCookies]")
}

func (d *Driver) SendKeys(ctx context.Context, selector, keys string) error {
	return errors.Wrapf(d.run(ctx, chromedp.SendKeys(selector, keys, chromedp.ByQuery)), "[SendKeys] %s", selector)
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	return errors.Wrapf(d.run(ctx, chromedp.Click(selector, chromedp.ByQuery)), "[Click] %s", selector)
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", errors.Wrap(err, "[PageSource]")
	}
	return html, nil
}

// Close shuts the browser down and waits for the process to exit.
func (d *Driver) Close() error {
	if d.cancelTab == nil {
		return nil
	}
	err := chromedp.Cancel(d.ctx)
	d.cancelTab()
	d.cancelAlloc()
	d.cancelTab = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "[Close]")
	}
	return nil
}

func fromNetworkCookie(c *network.Cookie) browser.Cookie {
	out := browser.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
	}
	// Session cookies report Expires as -1.
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		out.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return out
}

func toSetCookie(c browser.Cookie) *network.SetCookieParams {
	p := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(c.Path).
		WithHTTPOnly(c.HTTPOnly).
		WithSecure(c.Secure)
	if c.SameSite != "" {
		p = p.WithSameSite(network.CookieSameSite(c.SameSite))
	}
	if !c.Expires.IsZero() {
		expires := cdp.TimeSinceEpoch(c.Expires)
		p = p.WithExpires(&expires)
	}
	return p
}
