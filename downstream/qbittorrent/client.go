// Package qbittorrent talks to qBittorrent's WebUI API (v2).
package qbittorrent

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"

	"github.com/jrsteele09/portscribe/downstream"
)

var _ downstream.Client = (*Client)(nil)

const (
	loginPath          = "/api/v2/auth/login"
	preferencesPath    = "/api/v2/app/preferences"
	setPreferencesPath = "/api/v2/app/setPreferences"

	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
)

var (
	// ErrLoginRejected means the WebUI refused the username or password.
	ErrLoginRejected = errors.New("qbittorrent rejected the credentials")
	// ErrForbidden means the request was not authenticated or the client IP
	// is banned after too many failed logins.
	ErrForbidden = errors.New("qbittorrent returned 403 forbidden")
)

// Options configures the WebUI connection.
type Options struct {
	Host      string // host name, or a URL with scheme
	Port      int
	Username  string
	Password  string
	VerifyTLS bool
	Timeout   time.Duration
}

// Client is a WebUI API client holding the SID cookie between calls.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	http     *http.Client
}

// New builds a client; it does not contact the server.
func New(opts Options) (*Client, error) {
	base, err := BaseURL(opts.Host, opts.Port)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "[qbittorrent.New] cookie jar")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.VerifyTLS {
		// WebUIs commonly run with self-signed certificates.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:  base,
		username: opts.Username,
		password: opts.Password,
		http: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

// BaseURL combines host and port into the WebUI root. host may already
// carry a scheme and even a port; an explicit port argument wins.
func BaseURL(host string, port int) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("[qbittorrent.BaseURL] host is required")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, errors.Wrapf(err, "[qbittorrent.BaseURL] parsing %q", host)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("[qbittorrent.BaseURL] unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("[qbittorrent.BaseURL] no host in %q", host)
	}
	if port > 0 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	return u.String()
}

// Login posts the credentials; the server answers "Ok." and sets a SID
// cookie on success and "Fails." otherwise.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	body, err := c.postForm(ctx, loginPath, form)
	if err != nil {
		return errors.Wrap(err, "[Login]")
	}
	if strings.TrimSpace(string(body)) != "Ok." {
		return errors.Wrapf(ErrLoginRejected, "[Login] as %s", c.username)
	}
	return nil
}

func (c *Client) Preferences(ctx context.Context) (downstream.Preferences, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(preferencesPath), nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Preferences]")
	}
	body, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Preferences]")
	}

	var prefs downstream.Preferences
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&prefs); err != nil {
		return nil, errors.Wrap(err, "[Preferences] decoding response")
	}
	return prefs, nil
}

func (c *Client) SetPreferences(ctx context.Context, prefs downstream.Preferences) error {
	encoded, err := json.Marshal(prefs)
	if err != nil {
		return errors.Wrap(err, "[SetPreferences] encoding preferences")
	}
	form := url.Values{}
	form.Set("json", string(encoded))
	if _, err := c.postForm(ctx, setPreferencesPath, form); err != nil {
		return errors.Wrap(err, "[SetPreferences]")
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	// The WebUI's CSRF protection compares Referer/Origin with its own host.
	req.Header.Set("Referer", c.baseURL.String())
	req.Header.Set("Origin", c.baseURL.Scheme+"://"+c.baseURL.Host)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s response", req.URL.Path)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, errors.Wrapf(ErrForbidden, "%s %s", req.Method, req.URL.Path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%s %s: unexpected status %s", req.Method, req.URL.Path, resp.Status)
	}
	return body, nil
}
