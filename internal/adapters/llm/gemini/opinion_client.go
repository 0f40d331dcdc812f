package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/email-guardian/internal/adapters/llm"
	"github.com/mikey/email-guardian/internal/core"
	"github.com/mikey/email-guardian/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// OpinionClient obtains secondary opinions from Google Gemini.
type OpinionClient struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpinionClient creates a new Gemini opinion client
func NewOpinionClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*OpinionClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.SystemPrompt)},
	}

	return &OpinionClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the underlying Gemini client
func (c *OpinionClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Evaluate asks the model for its verdict on the text.
func (c *OpinionClient) Evaluate(ctx context.Context, text string) (*core.SecondaryOpinion, error) {
	processed := c.textProcessor.ProcessText(text, c.maxBodySize)

	resp, err := c.model.GenerateContent(ctx, genai.Text(llm.BuildPrompt(processed)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	opinion, err := llm.ParseOpinion(responseText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}

	c.logger.Debug("Secondary opinion obtained",
		zap.String("model", c.modelName),
		zap.String("label", string(opinion.Label)),
		zap.Float64("confidence", opinion.Confidence))

	return opinion, nil
}
