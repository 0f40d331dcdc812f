package storage

import (
	"github.com/mikey/email-guardian/internal/core"
)

// Store is the full persistence backend: both repositories plus lifecycle.
type Store interface {
	core.UserRepository
	core.ScanRepository
	Close() error
}
