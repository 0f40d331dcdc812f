package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ---- fakes ----

type fakeUserRepo struct {
	byEmail map[string]*User
	byKey   map[string]*User

	createErrs []error // popped per Create call, nil falls through to the maps
	lastLogin  map[string]time.Time
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byEmail:   map[string]*User{},
		byKey:     map[string]*User{},
		lastLogin: map[string]time.Time{},
	}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *User) error {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return ErrDuplicateUser
	}
	if _, ok := f.byKey[user.APIKey]; ok {
		return ErrDuplicateAPIKey
	}
	u := *user
	f.byEmail[u.Email] = &u
	f.byKey[u.APIKey] = &u
	return nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByAPIKey(ctx context.Context, apiKey string) (*User, error) {
	user, ok := f.byKey[apiKey]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	f.lastLogin[userID] = at
	return nil
}

// ---- tests ----

func TestRegisterIssuesFixedWidthAPIKey(t *testing.T) {
	svc := NewCredentialService(newFakeUserRepo(), zap.NewNop())

	user, err := svc.Register(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)

	assert.Len(t, user.APIKey, 64)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	// The stored hash verifies the original password.
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
}

func TestRegisterNormalizesEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewCredentialService(repo, zap.NewNop())

	user, err := svc.Register(context.Background(), "  Alice@Example.COM ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	// The same address in a different case collides.
	_, err = svc.Register(context.Background(), "ALICE@example.com", "secret1")
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	svc := NewCredentialService(newFakeUserRepo(), zap.NewNop())

	for _, tc := range []struct {
		name     string
		email    string
		password string
	}{
		{"no at sign", "not-an-email", "secret1"},
		{"no tld", "user@host", "secret1"},
		{"embedded space", "user name@example.com", "secret1"},
		{"empty email", "", "secret1"},
		{"short password", "user@example.com", "12345"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.email, tc.password)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegisterRetriesOnAPIKeyCollision(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErrs = []error{ErrDuplicateAPIKey, ErrDuplicateAPIKey}
	svc := NewCredentialService(repo, zap.NewNop())

	user, err := svc.Register(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Len(t, user.APIKey, 64)
}

func TestRegisterGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErrs = []error{
		ErrDuplicateAPIKey, ErrDuplicateAPIKey, ErrDuplicateAPIKey,
		ErrDuplicateAPIKey, ErrDuplicateAPIKey,
	}
	svc := NewCredentialService(repo, zap.NewNop())

	_, err := svc.Register(context.Background(), "alice@example.com", "secret1")
	assert.ErrorIs(t, err, ErrKeyGenerationExhausted)
}

func TestAuthenticateReturnsExistingKey(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewCredentialService(repo, zap.NewNop())

	user, err := svc.Register(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)

	key, err := svc.Authenticate(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.APIKey, key)

	// Logging in again returns the same key; it never rotates.
	again, err := svc.Authenticate(context.Background(), "Alice@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, key, again)

	assert.Contains(t, repo.lastLogin, user.ID)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewCredentialService(repo, zap.NewNop())

	_, err := svc.Register(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)

	_, wrongPassword := svc.Authenticate(context.Background(), "alice@example.com", "wrong")
	_, unknownEmail := svc.Authenticate(context.Background(), "nobody@example.com", "secret1")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestResolve(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewCredentialService(repo, zap.NewNop())

	user, err := svc.Register(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), user.APIKey)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	_, err = svc.Resolve(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Resolve(context.Background(), "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGeneratedKeysAreUnique(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewCredentialService(repo, zap.NewNop())

	seen := map[string]bool{}
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		user, err := svc.Register(context.Background(), email, "secret1")
		require.NoError(t, err)
		assert.False(t, seen[user.APIKey])
		seen[user.APIKey] = true
	}
}
