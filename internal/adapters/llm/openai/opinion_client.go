package openai

import (
	"context"
	"fmt"

	"github.com/mikey/email-guardian/internal/adapters/llm"
	"github.com/mikey/email-guardian/internal/core"
	"github.com/mikey/email-guardian/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpinionClient obtains secondary opinions from an OpenAI-compatible chat
// completion endpoint. Pointing the client at Groq's base URL is the usual
// deployment; the wire protocol is identical.
type OpinionClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpinionClient creates a new OpenAI-compatible opinion client
func NewOpinionClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpinionClient {
	return &OpinionClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Evaluate asks the model for its verdict on the text.
func (c *OpinionClient) Evaluate(ctx context.Context, text string) (*core.SecondaryOpinion, error) {
	processed := c.textProcessor.ProcessText(text, c.maxBodySize)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: llm.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: llm.BuildPrompt(processed),
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model %s", c.modelName)
	}

	opinion, err := llm.ParseOpinion(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	c.logger.Debug("Secondary opinion obtained",
		zap.String("model", c.modelName),
		zap.String("label", string(opinion.Label)),
		zap.Float64("confidence", opinion.Confidence))

	return opinion, nil
}
