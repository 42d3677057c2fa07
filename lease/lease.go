package lease

import "time"

// FreshnessThreshold is the remaining lease time below which the lease is
// renewed.
const FreshnessThreshold = 24 * time.Hour

// Lease is what the portal shows about the ephemeral port-forward.
type Lease struct {
	Remaining      time.Duration // valid only when RemainingKnown
	RemainingKnown bool
	Countdown      string // raw countdown text, empty when none was shown
}

// String renders the remaining time for logs.
func (l Lease) String() string {
	if !l.RemainingKnown {
		if l.Countdown != "" {
			return "unknown (" + l.Countdown + ")"
		}
		return "unknown"
	}
	return l.Remaining.String()
}

// NeedsRenewal decides renew-vs-keep. An unknown remaining time is never
// taken to mean "fresh".
func (l Lease) NeedsRenewal() bool {
	return !l.RemainingKnown || l.Remaining < FreshnessThreshold
}

// Outcome is the result of EnsureFresh.
type Outcome struct {
	Port    int
	Renewed bool
	Before  Lease // lease as inspected before any renewal
}
