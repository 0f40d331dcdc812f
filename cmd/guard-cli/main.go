package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mikey/email-guardian/internal/core"
	"github.com/mikey/email-guardian/internal/di"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the one-shot classification
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run reads the input text and classifies it once.
func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	scans *core.ScanService,
	provider core.OpinionProvider,
) error {
	defer logger.Sync()

	text, err := readInput(flags, logger)
	if err != nil {
		logger.Fatal("Failed to read input", zap.Error(err))
		return err
	}

	startTime := time.Now()
	outcome, err := scans.Scan(context.Background(), &core.User{ID: "cli"}, core.ScanRequest{
		Text:         text,
		UseSecondary: !flags.NoSecondary,
	})
	if err != nil {
		logger.Fatal("Failed to classify text", zap.Error(err))
		return err
	}
	duration := time.Since(startTime)

	printResult(flags.Format, outcome.Result, duration)

	// Close any resources that need closing
	if closer, ok := provider.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close opinion provider", zap.Error(err))
		}
	}
	return nil
}

func readInput(flags *di.CLIFlags, logger *zap.Logger) (string, error) {
	if flags.InputFile != "" && flags.InputFile != "-" {
		logger.Info("Reading text from file", zap.String("file", flags.InputFile))
		data, err := os.ReadFile(flags.InputFile)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	if flags.InputFile == "" && len(flags.Args) > 0 {
		return strings.Join(flags.Args, " "), nil
	}

	logger.Info("Reading text from stdin")
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printResult(format string, result *core.ConsensusResult, duration time.Duration) {
	switch format {
	case "json":
		out := map[string]any{
			"classification": result.Label,
			"confidence":     result.Confidence,
			"probabilities":  result.Probabilities,
			"explanation":    result.Explanation,
			"source":         result.Source,
			"processing_ms":  duration.Milliseconds(),
		}
		if result.Validation.Enabled {
			out["llm_classification"] = result.Validation.Label
			out["llm_confidence"] = result.Validation.Confidence
			out["llm_reasoning"] = result.Validation.Reasoning
			out["agreement"] = result.Validation.Agreement
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)

	case "detailed":
		fmt.Printf("\n=== Results ===\n")
		fmt.Printf("Classification: %s\n", result.Label)
		fmt.Printf("Confidence: %.4f\n", result.Confidence)
		for _, label := range core.Labels() {
			fmt.Printf("  P(%s): %.4f\n", label, result.Probabilities[label])
		}
		fmt.Printf("Explanation: %s\n", result.Explanation)
		fmt.Printf("Source: %s\n", result.Source)
		if result.Validation.Enabled {
			fmt.Printf("\n=== LLM Validation ===\n")
			fmt.Printf("LLM classification: %s\n", result.Validation.Label)
			fmt.Printf("LLM confidence: %.4f\n", result.Validation.Confidence)
			fmt.Printf("Agreement: %t\n", result.Validation.Agreement)
			fmt.Printf("Recommendation: %s\n", result.Validation.Recommendation)
		} else if note := validationNote(result); note != "" {
			fmt.Printf("LLM validation: %s\n", note)
		}
		fmt.Printf("Processing time: %v\n", duration)

	default:
		fmt.Printf("%s (%.2f)\n", result.Label, result.Confidence)
	}
}

func validationNote(result *core.ConsensusResult) string {
	if result.Validation.Error != "" {
		return result.Validation.Error
	}
	return result.Validation.Reason
}
