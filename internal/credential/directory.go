package credential

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/clearancehq/tiergate/internal/observability"
)

// Directory authenticates principals against a static, config-supplied
// list. Passwords are stored as bcrypt hashes only.
type Directory struct {
	byEmail map[string]*Principal
	logger  observability.Logger
}

// DirectoryOption is a functional option for the Directory.
type DirectoryOption func(*Directory)

// WithDirectoryLogger sets the logger for the directory.
func WithDirectoryLogger(logger observability.Logger) DirectoryOption {
	return func(d *Directory) {
		d.logger = logger
	}
}

// NewDirectory creates a directory from the given principals. Email lookup
// is case-insensitive.
func NewDirectory(principals []Principal, opts ...DirectoryOption) *Directory {
	d := &Directory{
		byEmail: make(map[string]*Principal, len(principals)),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range principals {
		p := principals[i]
		d.byEmail[strings.ToLower(p.Email)] = &p
	}
	return d
}

// Authenticate verifies email and password and returns the matching
// principal. Unknown emails and wrong passwords both return
// ErrInvalidLogin.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	p, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		// Burn a bcrypt comparison anyway so unknown emails cost the
		// same as wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidLogin
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		d.logger.Debug("password mismatch", observability.String("principal_id", p.ID))
		return nil, ErrInvalidLogin
	}
	return p, nil
}

// Lookup returns the principal for the given email, or nil.
func (d *Directory) Lookup(email string) *Principal {
	return d.byEmail[strings.ToLower(email)]
}

// dummyHash is a valid bcrypt hash of a random string, used to equalize
// timing for unknown emails.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
