package sessions

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/portscribe/browser"
	"github.com/jrsteele09/portscribe/internal/atomicfile"
)

const (
	fileFormatVersion = 1
	filePerm          = 0600
)

var _ Repo = (*FileRepo)(nil)

// sessionFile is the on-disk representation.
type sessionFile struct {
	Version int              `json:"version"`
	SavedAt time.Time        `json:"saved_at"`
	Cookies []browser.Cookie `json:"cookies"`
}

// FileRepo keeps the session in a single JSON file that is only ever
// replaced atomically.
type FileRepo struct {
	path    string
	nowTime func() time.Time
}

// FileRepoOption configures a FileRepo.
type FileRepoOption func(*FileRepo)

// WithNowTime sets the clock used to stamp saved sessions (for testing)
func WithNowTime(nowFunc func() time.Time) FileRepoOption {
	return func(r *FileRepo) {
		r.nowTime = nowFunc
	}
}

// NewFileRepo returns a repo backed by path.
func NewFileRepo(path string, options ...FileRepoOption) *FileRepo {
	r := &FileRepo{
		path:    path,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Path returns the session file's location.
func (r *FileRepo) Path() string {
	return r.path
}

// Load returns nil without error when the file is missing. A file that
// cannot be read or decoded is reported in the log and also treated as
// missing: the run then logs in from scratch and overwrites it.
func (r *FileRepo) Load() (*Session, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("Session file unreadable, ignoring it")
		return nil, nil
	}

	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("Session file corrupt, ignoring it")
		return nil, nil
	}
	if f.Version != fileFormatVersion {
		log.Warn().Int("version", f.Version).Str("path", r.path).Msg("Session file has unknown version, ignoring it")
		return nil, nil
	}

	return &Session{Cookies: f.Cookies, SavedAt: f.SavedAt}, nil
}

// Save stamps the session with the current time and writes it atomically.
func (r *FileRepo) Save(session *Session) error {
	if session == nil {
		return errors.New("[FileRepo.Save] session is required")
	}
	session.SavedAt = r.nowTime().UTC()

	data, err := json.MarshalIndent(sessionFile{
		Version: fileFormatVersion,
		SavedAt: session.SavedAt,
		Cookies: session.Cookies,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileRepo.Save] encoding session")
	}
	if err := atomicfile.WriteFile(r.path, data, filePerm); err != nil {
		return errors.Wrapf(err, "[FileRepo.Save] writing %s", r.path)
	}
	return nil
}
