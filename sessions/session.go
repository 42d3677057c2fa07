package sessions

import (
	"time"

	"github.com/jrsteele09/portscribe/browser"
)

// Session is the portal's authentication state: the cookies a logged-in
// browser carries. Its lifetime is decided by the portal, so a loaded
// session is only a candidate until the portal accepts it.
type Session struct {
	Cookies []browser.Cookie // Cookies for the portal's domain
	SavedAt time.Time        // When the session was captured
}

// Empty reports whether the session carries no cookies.
func (s *Session) Empty() bool {
	return s == nil || len(s.Cookies) == 0
}

// Equal reports whether both sessions hold the same cookies in the same
// order. SavedAt is ignored.
func (s *Session) Equal(other *Session) bool {
	if s.Empty() || other.Empty() {
		return s.Empty() && other.Empty()
	}
	if len(s.Cookies) != len(other.Cookies) {
		return false
	}
	for i := range s.Cookies {
		a, b := s.Cookies[i], other.Cookies[i]
		if a.Name != b.Name || a.Value != b.Value || a.Domain != b.Domain || a.Path != b.Path ||
			a.HTTPOnly != b.HTTPOnly || a.Secure != b.Secure || a.SameSite != b.SameSite ||
			!a.Expires.Equal(b.Expires) {
			return false
		}
	}
	return true
}
