package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// apiKeyBytes is the amount of random key material; the issued token is
	// its fixed-width hex encoding (64 characters).
	apiKeyBytes = 32

	// maxKeyAttempts bounds regeneration on api key collision.
	maxKeyAttempts = 5

	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// dummyHash is compared against when the email is unknown so that
// authentication timing does not reveal whether an account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("email-guardian-timing-pad"), bcrypt.DefaultCost)

// CredentialService owns user identity: registration, password verification
// and api key issuance. Every owner-scoped operation in the system starts
// with a Resolve call against this service.
type CredentialService struct {
	users  UserRepository
	logger *zap.Logger
}

// NewCredentialService creates a new credential service.
func NewCredentialService(users UserRepository, logger *zap.Logger) *CredentialService {
	return &CredentialService{users: users, logger: logger}
}

// Register creates a new account and issues its api key. The email must have
// a local@domain.tld shape and the password must be at least six characters.
// Key generation retries a bounded number of times on collision; email and
// key uniqueness are enforced atomically with the insert.
func (s *CredentialService) Register(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := generateAPIKey()
		if err != nil {
			return nil, err
		}

		user := &User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: string(hash),
			APIKey:       key,
			CreatedAt:    time.Now().UTC(),
		}

		err = s.users.Create(ctx, user)
		if err == nil {
			s.logger.Info("User registered", zap.String("user_id", user.ID))
			return user, nil
		}
		if errors.Is(err, ErrDuplicateAPIKey) {
			s.logger.Warn("API key collision, regenerating", zap.Int("attempt", attempt+1))
			continue
		}
		return nil, err
	}

	return nil, ErrKeyGenerationExhausted
}

// Authenticate verifies the password against the stored hash and returns the
// account's existing api key. Unknown email and wrong password produce the
// same error; a dummy hash comparison keeps the unknown-email path from
// returning faster than a real verification.
func (s *CredentialService) Authenticate(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		// Login still succeeds; the timestamp is informational.
		s.logger.Error("Failed to update last login", zap.Error(err), zap.String("user_id", user.ID))
	}

	s.logger.Info("User authenticated", zap.String("user_id", user.ID))
	return user.APIKey, nil
}

// Resolve maps an api key to its owner. Returns ErrNotFound for an unknown
// key.
func (s *CredentialService) Resolve(ctx context.Context, apiKey string) (*User, error) {
	if apiKey == "" {
		return nil, ErrNotFound
	}
	return s.users.GetByAPIKey(ctx, apiKey)
}

// NormalizeEmail lowercases and trims an email address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
