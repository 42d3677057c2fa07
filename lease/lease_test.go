package lease_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/portscribe/lease"
	"github.com/stretchr/testify/require"
)

func TestNeedsRenewal(t *testing.T) {
	tests := []struct {
		name  string
		lease lease.Lease
		want  bool
	}{
		{"unknown", lease.Lease{}, true},
		{"unknown with text", lease.Lease{Countdown: "soon"}, true},
		{"zero", lease.Lease{RemainingKnown: true}, true},
		{"just under a day", lease.Lease{Remaining: 86399 * time.Second, RemainingKnown: true}, true},
		{"exactly a day", lease.Lease{Remaining: 86400 * time.Second, RemainingKnown: true}, false},
		{"a week", lease.Lease{Remaining: 7 * 24 * time.Hour, RemainingKnown: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.lease.NeedsRenewal())
		})
	}
}

func TestNeedsRenewalIsMonotonic(t *testing.T) {
	renewed := true
	for s := int64(0); s <= 2*86400; s += 3600 {
		l := lease.Lease{Remaining: time.Duration(s) * time.Second, RemainingKnown: true}
		if !renewed {
			require.False(t, l.NeedsRenewal(), "renewal flipped back on at %ds", s)
		}
		renewed = l.NeedsRenewal()
	}
}

func TestLeaseString(t *testing.T) {
	require.Equal(t, "unknown", lease.Lease{}.String())
	require.Equal(t, "unknown (n/a)", lease.Lease{Countdown: "n/a"}.String())
	require.Equal(t, "1h0m0s", lease.Lease{Remaining: time.Hour, RemainingKnown: true}.String())
}
