package factory

import (
	"fmt"

	"github.com/mikey/email-guardian/internal/adapters/llm/bedrock"
	"github.com/mikey/email-guardian/internal/adapters/llm/gemini"
	"github.com/mikey/email-guardian/internal/adapters/llm/openai"
	"github.com/mikey/email-guardian/internal/config"
	"github.com/mikey/email-guardian/internal/core"
	"github.com/mikey/email-guardian/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates secondary opinion providers
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateOpinionProvider creates a provider based on the configuration. A nil
// provider (with nil error) means secondary validation is not configured;
// scans then degrade to primary-only results.
func (f *LLMFactory) CreateOpinionProvider() (core.OpinionProvider, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "", "disabled", "none":
		f.logger.Info("Secondary opinion provider disabled")
		return nil, nil
	case "openai":
		if f.cfg.GetOpenAI().APIKey == "" {
			f.logger.Warn("OpenAI api key not set, secondary validation disabled")
			return nil, nil
		}
		factory := openai.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateClient()
	case "gemini":
		if f.cfg.GetGemini().APIKey == "" {
			f.logger.Warn("Gemini api key not set, secondary validation disabled")
			return nil, nil
		}
		factory := gemini.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateClient()
	case "bedrock":
		factory := bedrock.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
