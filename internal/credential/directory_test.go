package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clearancehq/tiergate/internal/tier"
)

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)

	return NewDirectory([]Principal{
		{
			ID:           "prn_01",
			Email:        "Ada@Example.com",
			Name:         "Ada",
			Role:         "member",
			Tier:         tier.Private,
			PasswordHash: string(hash),
		},
	})
}

func TestDirectory_Authenticate(t *testing.T) {
	d := testDirectory(t)

	p, err := d.Authenticate(context.Background(), "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "prn_01", p.ID)
	assert.Equal(t, tier.Private, p.Tier)
}

func TestDirectory_Authenticate_WrongPassword(t *testing.T) {
	d := testDirectory(t)

	_, err := d.Authenticate(context.Background(), "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestDirectory_Authenticate_UnknownEmail(t *testing.T) {
	d := testDirectory(t)

	_, err := d.Authenticate(context.Background(), "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestDirectory_Lookup_CaseInsensitive(t *testing.T) {
	d := testDirectory(t)

	assert.NotNil(t, d.Lookup("ADA@EXAMPLE.COM"))
	assert.Nil(t, d.Lookup("nobody@example.com"))
}
