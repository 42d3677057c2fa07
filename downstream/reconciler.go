package downstream

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/portscribe/internal/errors"
)

// Change says what Reconcile did.
type Change int

const (
	Unchanged Change = iota
	Updated
)

func (c Change) String() string {
	if c == Updated {
		return "updated"
	}
	return "unchanged"
}

// Reconciler pushes the leased port into the download client.
type Reconciler struct {
	client Client
}

// NewReconciler returns a Reconciler over client.
func NewReconciler(client Client) (*Reconciler, error) {
	if client == nil {
		return nil, errors.New("[NewReconciler] client is required")
	}
	return &Reconciler{client: client}, nil
}

// Check logs in and reads the preferences, proving the API is reachable and
// the credentials work. It is meant to run before any portal work.
func (r *Reconciler) Check(ctx context.Context) error {
	if err := r.client.Login(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrDownstreamUnavailable, err)
	}
	prefs, err := r.client.Preferences(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrDownstreamUnavailable, err)
	}
	if len(prefs) == 0 {
		return fmt.Errorf("%w: empty preferences", apperrors.ErrDownstreamUnavailable)
	}
	log.Info().Msg("Download client reachable")
	return nil
}

// Reconcile sets the client's listen port to port unless it already is.
func (r *Reconciler) Reconcile(ctx context.Context, port int) (Change, error) {
	prefs, err := r.client.Preferences(ctx)
	if err != nil {
		return Unchanged, fmt.Errorf("%w: reading preferences: %w", apperrors.ErrReconcile, err)
	}

	if current, ok := prefs.ListenPort(); ok && current == port {
		log.Info().Int("port", port).Msg("Port already set")
		return Unchanged, nil
	}

	if err := r.client.SetPreferences(ctx, Preferences{ListenPortKey: port}); err != nil {
		return Unchanged, fmt.Errorf("%w: setting %s to %d: %w", apperrors.ErrReconcile, ListenPortKey, port, err)
	}
	log.Info().Int("port", port).Msg("Set download client port")
	return Updated, nil
}
