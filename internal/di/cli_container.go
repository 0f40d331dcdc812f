package di

import (
	"flag"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/email-guardian/internal/adapters/classifier"
	"github.com/mikey/email-guardian/internal/config"
	"github.com/mikey/email-guardian/internal/core"
	"github.com/mikey/email-guardian/internal/factory"
	"github.com/mikey/email-guardian/internal/logging"
	"github.com/mikey/email-guardian/internal/utils"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// LLM provider flags
	Provider    string
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxBodySize int

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// OpenAI-compatible flags
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModelName string

	// Scan flags
	MaxTextLength    int
	SecondaryTimeout time.Duration
	NoSecondary      bool

	// Input flags
	InputFile  string
	Format     string
	Verbose    bool
	JSONLog    bool
	ConfigFile string

	// Args holds the remaining positional arguments, treated as literal
	// input text when no input file is given.
	Args []string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// LLM provider flags
	flag.StringVar(&flags.Provider, "provider", "openai", "Secondary opinion provider (openai, gemini, bedrock, none)")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 500, "Maximum tokens for LLM response")
	flag.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for LLM generation")
	flag.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for LLM generation")
	flag.IntVar(&flags.MaxBodySize, "max-body-size", 8000, "Maximum text size to send to the LLM")

	// Bedrock flags
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI-compatible flags
	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for the OpenAI-compatible endpoint")
	flag.StringVar(&flags.OpenAIBaseURL, "openai-base-url", "", "Base URL for the OpenAI-compatible endpoint (e.g. Groq)")
	flag.StringVar(&flags.OpenAIModelName, "openai-model", "llama-3.1-8b-instant", "Model name for the OpenAI-compatible endpoint")

	// Scan flags
	flag.IntVar(&flags.MaxTextLength, "max-text-length", 10000, "Maximum input text length")
	flag.DurationVar(&flags.SecondaryTimeout, "secondary-timeout", 30*time.Second, "Timeout for the secondary opinion call")
	flag.BoolVar(&flags.NoSecondary, "no-secondary", false, "Skip the secondary opinion and classify with keywords only")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input text file (use stdin if not specified)")
	flag.StringVar(&flags.Format, "format", "simple", "Output format (simple, detailed, json)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	flags.Args = flag.Args()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register primary classifier
	if err := container.Provide(func(logger *zap.Logger) core.Classifier {
		return classifier.NewKeywordClassifier(logger)
	}); err != nil {
		return nil, err
	}

	// Register secondary opinion provider
	if err := container.Provide(func(flags *CLIFlags, f *factory.LLMFactory) (core.OpinionProvider, error) {
		if flags.NoSecondary {
			return nil, nil
		}
		return f.CreateOpinionProvider()
	}); err != nil {
		return nil, err
	}

	// Register consensus engine
	if err := container.Provide(core.NewConsensusEngine); err != nil {
		return nil, err
	}

	// Register scan service with no persistence
	if err := container.Provide(func(
		flags *CLIFlags,
		cls core.Classifier,
		provider core.OpinionProvider,
		engine *core.ConsensusEngine,
		logger *zap.Logger,
	) *core.ScanService {
		return core.NewScanService(cls, provider, engine, nil, logger,
			flags.MaxTextLength, flags.SecondaryTimeout)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Set LLM provider
	provider := flags.Provider
	if flags.NoSecondary {
		provider = "none"
	}
	v.Set("llm.provider", provider)

	// Set provider-specific configuration
	switch provider {
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		v.Set("bedrock.model_id", flags.BedrockModelID)
		v.Set("bedrock.max_tokens", flags.MaxTokens)
		v.Set("bedrock.temperature", flags.Temperature)
		v.Set("bedrock.top_p", flags.TopP)
		v.Set("bedrock.max_body_size", flags.MaxBodySize)
	case "gemini":
		v.Set("gemini.api_key", flags.GeminiAPIKey)
		v.Set("gemini.model_name", flags.GeminiModelName)
		v.Set("gemini.max_tokens", flags.MaxTokens)
		v.Set("gemini.temperature", flags.Temperature)
		v.Set("gemini.top_p", flags.TopP)
		v.Set("gemini.max_body_size", flags.MaxBodySize)
	case "openai":
		v.Set("openai.api_key", flags.OpenAIAPIKey)
		v.Set("openai.base_url", flags.OpenAIBaseURL)
		v.Set("openai.model_name", flags.OpenAIModelName)
		v.Set("openai.max_tokens", flags.MaxTokens)
		v.Set("openai.temperature", flags.Temperature)
		v.Set("openai.top_p", flags.TopP)
		v.Set("openai.max_body_size", flags.MaxBodySize)
	}

	// Set scan limits
	v.Set("scan.max_text_length", flags.MaxTextLength)
	v.Set("scan.secondary_timeout", flags.SecondaryTimeout.String())

	return config.NewFromViper(v)
}
