package sessions

// Repo persists the single session of the configured account.
type Repo interface {
	// Load returns the saved session, or nil when there is none
	Load() (*Session, error)

	// Save replaces the saved session
	Save(session *Session) error
}
