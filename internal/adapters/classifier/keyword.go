// Package classifier provides the primary text classifier. The keyword
// classifier is a deterministic scorer that satisfies the core.Classifier
// contract: it never fails for any accepted input and always returns a full
// probability distribution over the three labels.
package classifier

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/mikey/email-guardian/internal/core"
	"go.uber.org/zap"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	headerLineRe = regexp.MustCompile(`(?m)^(From|To|Subject|Date|Reply-To):\s*.*$`)
)

var phishingKeywords = []string{
	"urgent", "verify account", "click here", "suspended", "confirm identity",
	"update payment", "security alert", "act now", "limited time", "verify now",
}

var spamKeywords = []string{
	"free", "winner", "congratulations", "prize", "offer", "deal",
	"discount", "save money", "earn money", "work from home",
}

// KeywordClassifier scores text against phishing and spam indicator lists.
type KeywordClassifier struct {
	logger *zap.Logger
}

// NewKeywordClassifier creates a new keyword classifier.
func NewKeywordClassifier(logger *zap.Logger) *KeywordClassifier {
	return &KeywordClassifier{logger: logger}
}

// Classify scores the text and returns the label with synthesized,
// normalized probabilities.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) (*core.Classification, error) {
	processed := preprocess(text)
	lower := strings.ToLower(processed)

	phishingScore := countMatches(lower, phishingKeywords)
	spamScore := countMatches(lower, spamKeywords)

	var (
		label      core.Label
		confidence float64
		probs      map[core.Label]float64
	)

	switch {
	case phishingScore > 2:
		label = core.LabelPhishing
		confidence = math.Min(0.7+float64(phishingScore)*0.05, 0.95)
		probs = map[core.Label]float64{
			core.LabelLegitimate: 0.1,
			core.LabelSpam:       0.2,
			core.LabelPhishing:   confidence,
		}
	case spamScore > 2:
		label = core.LabelSpam
		confidence = math.Min(0.6+float64(spamScore)*0.05, 0.9)
		probs = map[core.Label]float64{
			core.LabelLegitimate: 0.2,
			core.LabelSpam:       confidence,
			core.LabelPhishing:   0.1,
		}
	default:
		label = core.LabelLegitimate
		confidence = 0.7
		probs = map[core.Label]float64{
			core.LabelLegitimate: confidence,
			core.LabelSpam:       0.2,
			core.LabelPhishing:   0.1,
		}
	}

	normalize(probs)

	c.logger.Debug("Keyword classification",
		zap.String("label", string(label)),
		zap.Int("phishing_hits", phishingScore),
		zap.Int("spam_hits", spamScore))

	return &core.Classification{
		Label:         label,
		Confidence:    round4(confidence),
		Probabilities: probs,
		Explanation:   explain(label, confidence, lower),
	}, nil
}

// preprocess collapses whitespace and strips common email header lines.
func preprocess(text string) string {
	text = headerLineRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func countMatches(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

func normalize(probs map[core.Label]float64) {
	total := 0.0
	for _, p := range probs {
		total += p
	}
	if total == 0 {
		return
	}
	for label, p := range probs {
		probs[label] = round4(p / total)
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func explain(label core.Label, confidence float64, lower string) string {
	var base string
	switch label {
	case core.LabelSpam:
		base = fmt.Sprintf("This email is classified as spam with %.1f%% confidence. "+
			"It likely contains promotional content or unsolicited offers.", confidence*100)
	case core.LabelPhishing:
		base = fmt.Sprintf("This email is classified as phishing with %.1f%% confidence. "+
			"It may contain attempts to steal personal information or credentials.", confidence*100)
	default:
		base = fmt.Sprintf("This email appears to be legitimate with %.1f%% confidence. "+
			"The content follows normal email patterns without suspicious indicators.", confidence*100)
	}

	if label == core.LabelPhishing && strings.Contains(lower, "urgent") {
		base += " The email uses urgency tactics commonly found in phishing attempts."
	} else if label == core.LabelSpam && strings.Contains(lower, "free") {
		base += " The email contains promotional language typical of spam messages."
	}

	return base
}
