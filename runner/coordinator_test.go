package runner_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/portscribe/auth"
	"github.com/jrsteele09/portscribe/browser"
	"github.com/jrsteele09/portscribe/browser/fakebrowser"
	"github.com/jrsteele09/portscribe/downstream"
	"github.com/jrsteele09/portscribe/downstream/fakeclient"
	apperrors "github.com/jrsteele09/portscribe/internal/errors"
	"github.com/jrsteele09/portscribe/internal/lock"
	"github.com/jrsteele09/portscribe/portal/portaltest"
	"github.com/jrsteele09/portscribe/runner"
	fakesessionrepo "github.com/jrsteele09/portscribe/sessions/repofakes"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "alice"
	testPassword = "correct horse"
	testOTPSeed  = "JBSWY3DPEHPK3PXP"
)

var testNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

type testFixture struct {
	portal     *portaltest.Portal
	sessions   *fakesessionrepo.FakeSessionRepo
	downstream *fakeclient.FakeClient
	lockPath   string
	browsers   []*fakebrowser.FakeBrowser
	sleeps     []time.Duration
}

func setupTestFixture(t *testing.T, otpSeed string) *testFixture {
	t.Helper()

	p := portaltest.New(testUsername, testPassword)
	p.OTPSeed = otpSeed
	p.Now = func() time.Time { return testNow }
	p.NextPort = 62345

	return &testFixture{
		portal:     p,
		sessions:   fakesessionrepo.NewFakeSessionRepo(),
		downstream: fakeclient.NewFakeClient(downstream.Preferences{"save_path": "/downloads"}),
		lockPath:   filepath.Join(t.TempDir(), "lock"),
	}
}

func (f *testFixture) coordinator(t *testing.T, otpSeed string) *runner.Coordinator {
	t.Helper()

	c, err := runner.NewCoordinator(runner.Dependencies{
		Sessions:   f.sessions,
		Downstream: f.downstream,
		NewBrowser: func(context.Context) (browser.Browser, error) {
			b := f.portal.NewBrowser()
			f.browsers = append(f.browsers, b)
			return b, nil
		},
	},
		auth.Credentials{Username: testUsername, Password: testPassword, OTPSeed: otpSeed},
		f.lockPath,
		runner.WithWaitTimeout(time.Second),
		runner.WithNowTime(func() time.Time { return testNow }),
		runner.WithSleep(func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		}),
	)
	require.NoError(t, err)
	return c
}

func (f *testFixture) requireBrowsersClosed(t *testing.T) {
	t.Helper()
	for _, b := range f.browsers {
		require.Equal(t, 1, b.CloseCalls())
	}
}

func (f *testFixture) requireLockReleased(t *testing.T) {
	t.Helper()
	l, err := lock.Acquire(f.lockPath)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestNewCoordinatorValidation(t *testing.T) {
	f := setupTestFixture(t, "")
	newBrowser := func(context.Context) (browser.Browser, error) { return nil, nil }
	creds := auth.Credentials{Username: testUsername, Password: testPassword}

	_, err := runner.NewCoordinator(runner.Dependencies{Downstream: f.downstream, NewBrowser: newBrowser}, creds, f.lockPath)
	require.Error(t, err)
	_, err = runner.NewCoordinator(runner.Dependencies{Sessions: f.sessions, NewBrowser: newBrowser}, creds, f.lockPath)
	require.Error(t, err)
	_, err = runner.NewCoordinator(runner.Dependencies{Sessions: f.sessions, Downstream: f.downstream}, creds, f.lockPath)
	require.Error(t, err)
	_, err = runner.NewCoordinator(runner.Dependencies{Sessions: f.sessions, Downstream: f.downstream, NewBrowser: newBrowser}, creds, "")
	require.Error(t, err)
}

func TestFirstRunLogsInAndRequestsPort(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")

	res, err := f.coordinator(t, "").Run(ctx)
	require.NoError(t, err)

	require.Equal(t, 62345, res.Port)
	require.True(t, res.Renewed)
	require.False(t, res.SessionReused)
	require.False(t, res.Lease.RemainingKnown)
	require.Equal(t, downstream.Updated, res.Change)

	require.Equal(t, 1, f.portal.Logins())
	require.Equal(t, 1, f.portal.Requests())
	require.Equal(t, []downstream.Preferences{{downstream.ListenPortKey: 62345}}, f.downstream.Updates())

	saved, err := f.sessions.Load()
	require.NoError(t, err)
	require.False(t, saved.Empty())
	require.Equal(t, portaltest.SessionCookieName, saved.Cookies[0].Name)
	require.Equal(t, []time.Duration{runner.SessionSettleDelay}, f.sleeps)

	require.Len(t, f.browsers, 1)
	f.requireBrowsersClosed(t)
	f.requireLockReleased(t)
}

func TestSavedSessionWithExpiringLeaseRenews(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, testOTPSeed)
	f.portal.HasLease = true
	f.portal.Countdown = "23:59:59"
	f.portal.Port = 40000
	f.sessions = fakesessionrepo.NewFakeSessionRepoWith(f.portal.IssueSession())

	res, err := f.coordinator(t, testOTPSeed).Run(ctx)
	require.NoError(t, err)

	require.True(t, res.SessionReused)
	require.True(t, res.Renewed)
	require.Equal(t, 62345, res.Port)
	require.Equal(t, 86399*time.Second, res.Lease.Remaining)
	require.Equal(t, 0, f.portal.Logins())
	require.Equal(t, 1, f.portal.Deletes())
	require.Equal(t, 1, f.portal.Requests())
	require.Equal(t, 1, f.sessions.Saves())
	f.requireBrowsersClosed(t)
}

func TestSavedSessionWithFreshLeaseKeepsPort(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")
	f.portal.HasLease = true
	f.portal.Countdown = "2 days 03:00:00"
	f.portal.Port = 40000
	f.sessions = fakesessionrepo.NewFakeSessionRepoWith(f.portal.IssueSession())
	f.downstream = fakeclient.NewFakeClient(downstream.Preferences{downstream.ListenPortKey: 40000})

	res, err := f.coordinator(t, "").Run(ctx)
	require.NoError(t, err)

	require.False(t, res.Renewed)
	require.Equal(t, 40000, res.Port)
	require.Equal(t, downstream.Unchanged, res.Change)
	require.Zero(t, f.portal.Deletes())
	require.Zero(t, f.portal.Requests())
	require.Empty(t, f.downstream.Updates())
}

func TestExpiredSessionFallsBackToLogin(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")
	stale := f.portal.IssueSession()
	f.portal.Expire()
	f.portal.HasLease = true
	f.portal.Countdown = "5 days 00:00:00"
	f.portal.Port = 40000
	f.sessions = fakesessionrepo.NewFakeSessionRepoWith(stale)

	res, err := f.coordinator(t, "").Run(ctx)
	require.NoError(t, err)

	require.False(t, res.SessionReused)
	require.False(t, res.Renewed)
	require.Equal(t, 40000, res.Port)
	require.Equal(t, 1, f.portal.Logins())

	saved, err := f.sessions.Load()
	require.NoError(t, err)
	require.NotEqual(t, stale.Value, saved.Cookies[0].Value)
}

func TestDownstreamUnreachableSkipsBrowser(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")
	f.downstream.LoginErr = errors.New("connection refused")

	res, err := f.coordinator(t, "").Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrDownstreamUnavailable)
	require.Nil(t, res)
	require.Empty(t, f.browsers)
	require.Zero(t, f.portal.Logins())
	f.requireLockReleased(t)
}

func TestLockHeldFailsFast(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")

	held, err := lock.Acquire(f.lockPath)
	require.NoError(t, err)
	defer held.Release()

	res, err := f.coordinator(t, "").Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrLockHeld)
	require.Nil(t, res)
	require.Empty(t, f.browsers)
	require.Zero(t, f.downstream.Logins())
}

func TestLoginFailureClosesBrowser(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")
	f.portal.Password = "changed"

	_, err := f.coordinator(t, "").Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
	require.Equal(t, 1, f.portal.FailedLogins())
	require.Zero(t, f.sessions.Saves())
	require.Empty(t, f.downstream.Updates())
	f.requireBrowsersClosed(t)
	f.requireLockReleased(t)
}

func TestLeaseFailureSkipsDownstreamUpdate(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")
	f.portal.RequestIgnored = true

	_, err := f.coordinator(t, "").Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrLeaseAction)
	require.Empty(t, f.downstream.Updates())
	f.requireBrowsersClosed(t)
}

func TestDownstreamUpdateFailureReportsPort(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")
	f.downstream.SetPreferencesErr = errors.New("HTTP 500")

	_, err := f.coordinator(t, "").Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrReconcile)

	var propagation *runner.PropagationError
	require.ErrorAs(t, err, &propagation)
	require.Equal(t, 62345, propagation.Port)
	require.True(t, propagation.Renewed)
	require.Contains(t, propagation.Error(), "62345 (renewed)")
	f.requireBrowsersClosed(t)
}

func TestSessionSaveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")
	f.sessions.FailSaves(errors.New("disk full"))

	res, err := f.coordinator(t, "").Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 62345, res.Port)
}

func TestBrowserStartFailure(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, "")
	c, err := runner.NewCoordinator(runner.Dependencies{
		Sessions:   f.sessions,
		Downstream: f.downstream,
		NewBrowser: func(context.Context) (browser.Browser, error) {
			return nil, errors.New("chrome not found")
		},
	}, auth.Credentials{Username: testUsername, Password: testPassword}, f.lockPath)
	require.NoError(t, err)

	_, err = c.Run(ctx)
	require.ErrorContains(t, err, "chrome not found")
	f.requireLockReleased(t)
}

func TestCancelledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := setupTestFixture(t, "")
	f.sessions = fakesessionrepo.NewFakeSessionRepoWith(f.portal.IssueSession())

	c, err := runner.NewCoordinator(runner.Dependencies{
		Sessions:   f.sessions,
		Downstream: f.downstream,
		NewBrowser: func(context.Context) (browser.Browser, error) {
			b := f.portal.NewBrowser()
			f.browsers = append(f.browsers, b)
			cancel()
			return b, nil
		},
	}, auth.Credentials{Username: testUsername, Password: testPassword}, f.lockPath)
	require.NoError(t, err)

	_, err = c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	f.requireBrowsersClosed(t)
	f.requireLockReleased(t)
}
