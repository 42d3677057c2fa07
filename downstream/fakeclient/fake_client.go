package fakeclient

import (
	"context"
	"sync"

	"github.com/jrsteele09/portscribe/downstream"
)

var _ downstream.Client = (*FakeClient)(nil)

// FakeClient is an in-memory download client. Set the *Err fields to make
// the matching call fail.
type FakeClient struct {
	LoginErr          error
	PreferencesErr    error
	SetPreferencesErr error

	lock     sync.Mutex
	prefs    downstream.Preferences
	loggedIn bool
	logins   int
	updates  []downstream.Preferences
}

// NewFakeClient returns a client holding a copy of prefs.
func NewFakeClient(prefs downstream.Preferences) *FakeClient {
	c := &FakeClient{prefs: downstream.Preferences{}}
	for k, v := range prefs {
		c.prefs[k] = v
	}
	return c
}

func (c *FakeClient) Login(context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.logins++
	if c.LoginErr != nil {
		return c.LoginErr
	}
	c.loggedIn = true
	return nil
}

func (c *FakeClient) Preferences(context.Context) (downstream.Preferences, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.PreferencesErr != nil {
		return nil, c.PreferencesErr
	}
	out := downstream.Preferences{}
	for k, v := range c.prefs {
		out[k] = v
	}
	return out, nil
}

func (c *FakeClient) SetPreferences(_ context.Context, prefs downstream.Preferences) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.SetPreferencesErr != nil {
		return c.SetPreferencesErr
	}
	update := downstream.Preferences{}
	for k, v := range prefs {
		c.prefs[k] = v
		update[k] = v
	}
	c.updates = append(c.updates, update)
	return nil
}

// Updates returns every SetPreferences payload in call order.
func (c *FakeClient) Updates() []downstream.Preferences {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]downstream.Preferences(nil), c.updates...)
}

func (c *FakeClient) Logins() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.logins
}

func (c *FakeClient) LoggedIn() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.loggedIn
}
