// Package downstream keeps the download client's listen port in step with
// the port the portal leased.
package downstream

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
)

// ListenPortKey is the preference holding the client's incoming port.
const ListenPortKey = "listen_port"

// Preferences is the client's preference document as a loose mapping.
type Preferences map[string]any

// ListenPort returns the configured listen port, if there is one. Numbers
// arrive from JSON as float64 or json.Number.
func (p Preferences) ListenPort() (int, bool) {
	v, ok := p[ListenPortKey]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// Client is the download client's administrative API.
type Client interface {
	// Login authenticates against the API
	Login(ctx context.Context) error

	// Preferences fetches the current preferences
	Preferences(ctx context.Context) (Preferences, error)

	// SetPreferences applies the given keys and leaves the rest unchanged
	SetPreferences(ctx context.Context, prefs Preferences) error
}
