package core

import (
	"errors"
)

var (
	// ErrInvalidInput is returned for malformed, empty or oversized client input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned for both unknown email and wrong
	// password; the two cases are intentionally indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateUser is returned when the normalized email already exists.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrDuplicateAPIKey is returned by repositories on an api key collision
	// so registration can retry generation.
	ErrDuplicateAPIKey = errors.New("api key already exists")

	// ErrKeyGenerationExhausted is returned when api key generation keeps
	// colliding past the retry bound.
	ErrKeyGenerationExhausted = errors.New("api key generation exhausted")

	// ErrUnknownOwner is returned when a scan is appended under an owner id
	// that does not resolve to an existing user.
	ErrUnknownOwner = errors.New("unknown owner")

	// ErrNotFound covers both a missing record and a record owned by someone
	// else; callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")
)
