package core

import (
	"fmt"

	"go.uber.org/zap"
)

// Reconciliation thresholds. The constants are behavioral contract, not
// tunables: downstream consumers depend on the exact confidence arithmetic.
const (
	maxAgreementBoost    = 0.1
	overrideSecondaryMin = 0.8
	overridePrimaryMax   = 0.6
	adoptConfidenceGap   = 0.2
	maxDisagreePenalty   = 0.2
	disagreePenaltyRate  = 0.5
	minFinalConfidence   = 0.1
)

// ConsensusEngine turns a primary classification plus an optional secondary
// opinion into a single final verdict. It is a pure, deterministic policy:
// one pass, no retries, and an unavailable secondary always degrades to the
// primary result instead of failing.
type ConsensusEngine struct {
	logger *zap.Logger
}

// NewConsensusEngine creates a new consensus engine.
func NewConsensusEngine(logger *zap.Logger) *ConsensusEngine {
	return &ConsensusEngine{logger: logger}
}

// Reconcile combines the primary classification with the secondary outcome.
// The primary's probability distribution passes through untouched; only the
// scalar label/confidence pair is subject to reconciliation.
func (e *ConsensusEngine) Reconcile(primary *Classification, secondary SecondaryOutcome) *ConsensusResult {
	if secondary.Opinion == nil {
		return e.primaryOnly(primary, secondary)
	}

	opinion := normalizeOpinion(secondary.Opinion)

	if opinion.Label == primary.Label {
		return e.agree(primary, opinion)
	}
	return e.disagree(primary, opinion)
}

// primaryOnly passes the primary result through unchanged, annotated with the
// reason the secondary was not consulted.
func (e *ConsensusEngine) primaryOnly(primary *Classification, secondary SecondaryOutcome) *ConsensusResult {
	// A provider failure surfaces as Error; the expected skip conditions
	// surface as Reason.
	var reason, errMsg string
	switch secondary.Status {
	case SecondaryDisabled:
		reason = "secondary validation not requested"
	case SecondaryNotConfigured:
		reason = "secondary opinion provider not available or not configured"
	default:
		errMsg = secondary.Err
		if errMsg == "" {
			errMsg = "secondary opinion unavailable"
		}
	}

	return &ConsensusResult{
		Label:         primary.Label,
		Confidence:    clamp01(primary.Confidence),
		Probabilities: primary.Probabilities,
		Explanation:   primary.Explanation,
		Agreement:     false,
		Source:        SourcePrimaryOnly,
		Validation: ValidationSummary{
			Enabled: false,
			Reason:  reason,
			Error:   errMsg,
		},
	}
}

// agree boosts the primary confidence in proportion to how certain the
// secondary is. A secondary below 0.5 confidence drags the boost negative,
// which is intentional: a lukewarm agreement is weak corroboration.
func (e *ConsensusEngine) agree(primary *Classification, opinion *SecondaryOpinion) *ConsensusResult {
	boost := (opinion.Confidence - 0.5) * 0.2
	if boost > maxAgreementBoost {
		boost = maxAgreementBoost
	}
	final := clamp01(primary.Confidence + boost)

	e.logger.Debug("Secondary opinion agrees with primary",
		zap.String("label", string(primary.Label)),
		zap.Float64("boost", boost))

	return &ConsensusResult{
		Label:         primary.Label,
		Confidence:    final,
		Probabilities: primary.Probabilities,
		Explanation:   primary.Explanation,
		Agreement:     true,
		Source:        SourceConsensus,
		Validation: ValidationSummary{
			Enabled:         true,
			Label:           opinion.Label,
			Confidence:      opinion.Confidence,
			Reasoning:       opinion.Reasoning,
			Agreement:       true,
			ConfidenceBoost: final - primary.Confidence,
			Recommendation:  fmt.Sprintf("Both classifiers agree on '%s' - confidence boosted", primary.Label),
		},
	}
}

// disagree resolves a label conflict. Sub-cases are evaluated strictly in
// order: override, confidence adoption, then the default penalty.
func (e *ConsensusEngine) disagree(primary *Classification, opinion *SecondaryOpinion) *ConsensusResult {
	var (
		label          = primary.Label
		explanation    = primary.Explanation
		source         = SourceConsensus
		final          float64
		recommendation string
	)

	switch {
	case opinion.Confidence > overrideSecondaryMin && primary.Confidence < overridePrimaryMax:
		// Confident secondary against an unsure primary wins outright.
		label = opinion.Label
		source = SourceOverridden
		final = (opinion.Confidence + primary.Confidence) / 2
		explanation = fmt.Sprintf("%s [LLM Override: %s]", primary.Explanation, opinion.Reasoning)
		recommendation = fmt.Sprintf("LLM strongly disagrees (LLM: %s, Primary: %s) - overriding",
			opinion.Label, primary.Label)

	case opinion.Confidence > primary.Confidence+adoptConfidenceGap:
		// Keep the primary label but let the confidence reflect the
		// secondary's higher certainty.
		final = (opinion.Confidence + primary.Confidence) / 2
		recommendation = fmt.Sprintf("LLM disagrees (LLM: %s, Primary: %s) but keeping primary classification with adjusted confidence",
			opinion.Label, primary.Label)

	default:
		diff := opinion.Confidence - primary.Confidence
		if diff < 0 {
			diff = -diff
		}
		penalty := diff * disagreePenaltyRate
		if penalty > maxDisagreePenalty {
			penalty = maxDisagreePenalty
		}
		final = primary.Confidence - penalty
		if final < minFinalConfidence {
			final = minFinalConfidence
		}
		recommendation = fmt.Sprintf("Classifiers disagree (LLM: %s, Primary: %s) - lowering confidence",
			opinion.Label, primary.Label)
	}

	final = clamp01(final)

	e.logger.Debug("Secondary opinion disagrees with primary",
		zap.String("primary", string(primary.Label)),
		zap.String("secondary", string(opinion.Label)),
		zap.String("resolution", string(source)))

	return &ConsensusResult{
		Label:         label,
		Confidence:    final,
		Probabilities: primary.Probabilities,
		Explanation:   explanation,
		Agreement:     false,
		Source:        source,
		Validation: ValidationSummary{
			Enabled:         true,
			Label:           opinion.Label,
			Confidence:      opinion.Confidence,
			Reasoning:       opinion.Reasoning,
			Agreement:       false,
			ConfidenceBoost: final - primary.Confidence,
			Recommendation:  recommendation,
		},
	}
}

// normalizeOpinion repairs a malformed upstream opinion instead of rejecting
// it: out-of-range confidence is clamped and an unrecognized label falls back
// to legitimate.
func normalizeOpinion(opinion *SecondaryOpinion) *SecondaryOpinion {
	normalized := *opinion
	normalized.Confidence = clamp01(normalized.Confidence)
	if _, ok := ParseLabel(string(normalized.Label)); !ok {
		normalized.Label = LabelLegitimate
	}
	if normalized.Reasoning == "" {
		normalized.Reasoning = "No reasoning provided"
	}
	return &normalized
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
