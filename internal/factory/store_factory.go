package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/email-guardian/internal/config"
	"github.com/mikey/email-guardian/internal/storage"
	"go.uber.org/zap"
)

// StoreFactory creates persistence backends based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a persistence backend based on the configuration
func (f *StoreFactory) CreateStore() (storage.Store, error) {
	storageCfg := f.cfg.GetStorage()
	sweepFreq, err := f.cfg.GetDuration("storage.sweep_frequency")
	if err != nil {
		return nil, fmt.Errorf("invalid storage sweep frequency: %w", err)
	}

	switch storageCfg.Type {
	case "memory":
		return storage.NewMemoryStore(f.logger), nil
	case "sqlite":
		if dir := filepath.Dir(storageCfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
			}
		}
		return storage.NewSQLiteStore(storageCfg.SQLitePath, f.logger, storageCfg.RetentionDays, sweepFreq)
	case "mysql":
		return storage.NewMySQLStore(storageCfg.MySQLDSN, f.logger, storageCfg.RetentionDays, sweepFreq)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageCfg.Type)
	}
}
