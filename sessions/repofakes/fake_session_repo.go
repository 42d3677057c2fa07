package fakesessionrepo

import (
	"errors"
	"sync"

	"github.com/jrsteele09/portscribe/browser"
	"github.com/jrsteele09/portscribe/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	session *sessions.Session
	saves   int
	saveErr error
	lock    sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{}
}

// NewFakeSessionRepoWith returns a repo that already holds cookies.
func NewFakeSessionRepoWith(cookies ...browser.Cookie) *FakeSessionRepo {
	return &FakeSessionRepo{session: &sessions.Session{Cookies: cookies}}
}

func (sr *FakeSessionRepo) Load() (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	if sr.session == nil {
		return nil, nil
	}
	return copySession(sr.session), nil
}

func (sr *FakeSessionRepo) Save(session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if session == nil {
		return errors.New("session is required")
	}
	if sr.saveErr != nil {
		return sr.saveErr
	}
	sr.session = copySession(session)
	sr.saves++
	return nil
}

// FailSaves makes every following Save return err.
func (sr *FakeSessionRepo) FailSaves(err error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	sr.saveErr = err
}

func (sr *FakeSessionRepo) Saves() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return sr.saves
}

func copySession(s *sessions.Session) *sessions.Session {
	return &sessions.Session{
		Cookies: append([]browser.Cookie(nil), s.Cookies...),
		SavedAt: s.SavedAt,
	}
}
