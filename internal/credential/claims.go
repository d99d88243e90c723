package credential

import (
	"time"

	"github.com/clearancehq/tiergate/internal/tier"
)

// Claims holds the verified contents of an access credential.
type Claims struct {
	// ID is the principal identifier (JWT subject).
	ID string

	// Email is the principal's email address.
	Email string

	// Name is the principal's display name.
	Name string

	// Role is the principal's role, e.g. "member" or "admin".
	Role string

	// Tier is the principal's access tier.
	Tier tier.Tier

	// IssuedAt is when the credential was issued.
	IssuedAt time.Time

	// ExpiresAt is when the credential stops being valid.
	ExpiresAt time.Time
}

// Principal is a directory entry that credentials are issued for.
type Principal struct {
	ID           string    `yaml:"id"`
	Email        string    `yaml:"email"`
	Name         string    `yaml:"name"`
	Role         string    `yaml:"role"`
	Tier         tier.Tier `yaml:"tier"`
	PasswordHash string    `yaml:"password_hash"`
}
