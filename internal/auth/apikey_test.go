package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

type fakeKeyStore struct {
	saved  *domain.User
	hashes map[int64]string
	err    error
}

func (f *fakeKeyStore) Save(_ context.Context, u *domain.User) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saved = u
	return 42, nil
}

func (f *fakeKeyStore) UpdateApiKey(_ context.Context, id int64, hash string) error {
	if f.hashes == nil {
		f.hashes = map[int64]string{}
	}
	f.hashes[id] = hash
	return nil
}

func TestKeyRoundTrip(t *testing.T) {
	key, hash, err := NewKey(7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "7."))

	id, secret, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.True(t, Verify(hash, secret))
	assert.False(t, Verify(hash, secret+"x"))
	assert.False(t, Verify("", secret))
}

func TestParseKey_Malformed(t *testing.T) {
	for _, key := range []string{"", "abc", "1.", "0.secret", "-3.secret", "x.y"} {
		t.Run(key, func(t *testing.T) {
			_, _, err := ParseKey(key)
			assert.ErrorIs(t, err, ErrMalformedKey)
		})
	}
}

func TestCreateUser(t *testing.T) {
	store := &fakeKeyStore{}
	out, err := CreateUser(context.Background(), store, "acme", models.CreateUserRequest{
		Username: " bob ",
		Manager:  "dana",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), out.ID)
	assert.Equal(t, "bob", out.Username)
	assert.Equal(t, "acme", out.TenantID)
	assert.Equal(t, []string{}, out.Roles)
	require.NotNil(t, store.saved.Manager)
	assert.Equal(t, "dana", *store.saved.Manager)
	assert.True(t, store.saved.Enabled)

	id, secret, err := ParseKey(out.ApiKey)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.True(t, Verify(store.hashes[42], secret))
}

func TestCreateUser_Errors(t *testing.T) {
	_, err := CreateUser(context.Background(), &fakeKeyStore{}, "acme", models.CreateUserRequest{Username: "  "})
	assert.True(t, core.IsKind(err, core.KindValidation))

	boom := errors.New("disk full")
	_, err = CreateUser(context.Background(), &fakeKeyStore{err: boom}, "acme", models.CreateUserRequest{Username: "bob"})
	assert.ErrorIs(t, err, boom)
}
