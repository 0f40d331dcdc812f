package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/email-guardian/internal/adapters/classifier"
	"github.com/mikey/email-guardian/internal/config"
	"github.com/mikey/email-guardian/internal/core"
	"github.com/mikey/email-guardian/internal/factory"
	"github.com/mikey/email-guardian/internal/logging"
	"github.com/mikey/email-guardian/internal/server"
	"github.com/mikey/email-guardian/internal/storage"
	"github.com/mikey/email-guardian/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register persistence backend
	if err := container.Provide(func(f *factory.StoreFactory) (storage.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(store storage.Store) core.UserRepository {
		return store
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(store storage.Store) core.ScanRepository {
		return store
	}); err != nil {
		return nil, err
	}

	// Register primary classifier
	if err := container.Provide(func(logger *zap.Logger) core.Classifier {
		return classifier.NewKeywordClassifier(logger)
	}); err != nil {
		return nil, err
	}

	// Register secondary opinion provider; nil means not configured
	if err := container.Provide(func(f *factory.LLMFactory) (core.OpinionProvider, error) {
		return f.CreateOpinionProvider()
	}); err != nil {
		return nil, err
	}

	// Register consensus engine
	if err := container.Provide(core.NewConsensusEngine); err != nil {
		return nil, err
	}

	// Register credential service
	if err := container.Provide(core.NewCredentialService); err != nil {
		return nil, err
	}

	// Register scan service
	if err := container.Provide(func(
		cfg *config.Config,
		cls core.Classifier,
		provider core.OpinionProvider,
		engine *core.ConsensusEngine,
		scans core.ScanRepository,
		logger *zap.Logger,
	) (*core.ScanService, error) {
		timeout, err := cfg.GetDuration("scan.secondary_timeout")
		if err != nil {
			return nil, err
		}
		return core.NewScanService(cls, provider, engine, scans, logger,
			cfg.GetInt("scan.max_text_length"), timeout), nil
	}); err != nil {
		return nil, err
	}

	// Register HTTP server
	if err := container.Provide(func(
		cfg *config.Config,
		scans *core.ScanService,
		creds *core.CredentialService,
		provider core.OpinionProvider,
		logger *zap.Logger,
	) (*server.Server, error) {
		readTimeout, err := cfg.GetDuration("server.read_timeout")
		if err != nil {
			return nil, err
		}
		writeTimeout, err := cfg.GetDuration("server.write_timeout")
		if err != nil {
			return nil, err
		}
		shutdownTimeout, err := cfg.GetDuration("server.shutdown_timeout")
		if err != nil {
			return nil, err
		}
		return server.New(scans, creds, logger, server.Options{
			ListenAddress:       cfg.GetString("server.listen_address"),
			ReadTimeout:         readTimeout,
			WriteTimeout:        writeTimeout,
			ShutdownTimeout:     shutdownTimeout,
			SecondaryConfigured: provider != nil,
			StorageType:         cfg.GetString("storage.type"),
		}), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}
