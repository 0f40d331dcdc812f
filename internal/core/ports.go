package core

import (
	"context"
	"time"
)

// Classifier is the primary, always-available classification model. It must
// return a complete result for any non-empty input within the accepted
// length; implementations fall back to a deterministic classification on
// internal failure instead of propagating it.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

// OpinionProvider is the optional, slower secondary classification source.
type OpinionProvider interface {
	// Evaluate returns the provider's opinion on the text. Any error is
	// treated by the caller as "secondary unavailable", never as a failure
	// of the scan itself.
	Evaluate(ctx context.Context, text string) (*SecondaryOpinion, error)
}

// UserRepository persists user accounts and their credentials.
type UserRepository interface {
	// Create inserts the user, enforcing email and api key uniqueness
	// atomically with the insert. Returns ErrDuplicateUser or
	// ErrDuplicateAPIKey on the respective collision.
	Create(ctx context.Context, user *User) error

	// GetByEmail looks a user up by normalized email. Returns ErrNotFound
	// when no such account exists.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByAPIKey looks a user up by api key. Runs on every authenticated
	// request, so implementations index the key column. Returns ErrNotFound
	// for an unknown key.
	GetByAPIKey(ctx context.Context, apiKey string) (*User, error)

	// UpdateLastLogin records a successful authentication.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// ScanRepository persists scan records, always scoped to their owner.
// Lookups and deletes never distinguish "missing" from "owned by someone
// else".
type ScanRepository interface {
	// Append stores a new record and returns its id. Returns
	// ErrUnknownOwner when the owner id does not resolve to a user.
	Append(ctx context.Context, rec *ScanRecord) (int64, error)

	// ListRecent returns the owner's scans newest first. The limit is
	// clamped to [1,100] and the offset to >= 0.
	ListRecent(ctx context.Context, ownerID string, limit, offset int) ([]ScanSummary, error)

	// GetByID returns the full record, or ErrNotFound.
	GetByID(ctx context.Context, ownerID string, id int64) (*ScanRecord, error)

	// DeleteByID removes the record and reports whether anything was
	// deleted. Missing and not-owned both report false.
	DeleteByID(ctx context.Context, ownerID string, id int64) (bool, error)

	// PurgeOlderThan deletes the owner's records older than the given
	// number of days and returns the exact count removed.
	PurgeOlderThan(ctx context.Context, ownerID string, days int) (int64, error)

	// Aggregate computes per-label counts, per-label mean confidence and
	// the trailing seven day activity series for the owner. An owner with
	// no records gets a zero-valued result, not an error.
	Aggregate(ctx context.Context, ownerID string, days int) (*ScanStats, error)
}
