// Package llm holds what the secondary opinion providers share: the
// classification prompt and the parser for the model's JSON reply. The
// provider-specific transports live in the subpackages.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikey/email-guardian/internal/core"
)

// SystemPrompt instructs the model to act as an email security analyst and
// reply with a strict JSON verdict.
const SystemPrompt = `You are an expert email security analyst specializing in identifying spam and phishing emails.

Your task is to classify emails into one of three categories:
1. LEGITIMATE - Normal, safe emails
2. SPAM - Unsolicited promotional or marketing emails
3. PHISHING - Malicious emails attempting to steal credentials or personal information

For each classification, provide:
- Your classification (LEGITIMATE, SPAM, or PHISHING)
- Confidence level (0.0 to 1.0)
- Brief reasoning explaining your decision

Focus on key indicators:
- Phishing: Urgent language, credential requests, suspicious links, impersonation
- Spam: Promotional content, offers, unsolicited marketing
- Legitimate: Normal business/personal communication

Respond in JSON format:
{
  "classification": "LEGITIMATE|SPAM|PHISHING",
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation"
}`

// BuildPrompt wraps the text to classify in the user prompt.
func BuildPrompt(text string) string {
	return fmt.Sprintf("Please analyze this email and classify it:\n\nEMAIL CONTENT:\n%s\n\nRespond with your classification in the specified JSON format.", text)
}

// opinionResponse is the wire shape the model is asked to produce.
type opinionResponse struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// ParseOpinion extracts the JSON verdict from a model reply. Models wrap
// their JSON in prose or code fences often enough that the parser hunts for
// the payload; when no JSON can be recovered at all it falls back to keyword
// sniffing of the raw reply rather than failing the validation.
func ParseOpinion(raw string) (*core.SecondaryOpinion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty response")
	}

	jsonStr := raw
	if i := strings.Index(raw, "```json"); i >= 0 {
		rest := raw[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			jsonStr = strings.TrimSpace(rest[:j])
		}
	} else if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			jsonStr = raw[start : end+1]
		}
	}

	var resp opinionResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return fallbackOpinion(raw), nil
	}

	label, ok := core.ParseLabel(strings.ToLower(resp.Classification))
	if !ok {
		label = core.LabelLegitimate
	}
	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	reasoning := resp.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}

	return &core.SecondaryOpinion{
		Label:      label,
		Confidence: confidence,
		Reasoning:  reasoning,
	}, nil
}

// fallbackOpinion classifies by keyword when the reply was not valid JSON.
func fallbackOpinion(raw string) *core.SecondaryOpinion {
	lower := strings.ToLower(raw)
	opinion := &core.SecondaryOpinion{
		Label:      core.LabelLegitimate,
		Confidence: 0.6,
		Reasoning:  "Fallback classification due to parsing error",
	}
	if strings.Contains(lower, "phishing") {
		opinion.Label = core.LabelPhishing
		opinion.Confidence = 0.7
	} else if strings.Contains(lower, "spam") {
		opinion.Label = core.LabelSpam
		opinion.Confidence = 0.7
	}
	return opinion
}
