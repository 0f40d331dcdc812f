package core

import (
	"time"
)

// Label is one of the three classes the service assigns to scanned text.
type Label string

const (
	LabelLegitimate Label = "legitimate"
	LabelSpam       Label = "spam"
	LabelPhishing   Label = "phishing"
)

// Labels returns all known labels in canonical order.
func Labels() []Label {
	return []Label{LabelLegitimate, LabelSpam, LabelPhishing}
}

// ParseLabel maps a free-form string to a known label.
func ParseLabel(s string) (Label, bool) {
	switch Label(s) {
	case LabelLegitimate, LabelSpam, LabelPhishing:
		return Label(s), true
	}
	return "", false
}

// Classification is the primary classifier's opinion on a piece of text.
type Classification struct {
	Label         Label
	Confidence    float64
	Probabilities map[Label]float64
	Explanation   string
}

// SecondaryOpinion is the LLM's independent verdict on the same text.
type SecondaryOpinion struct {
	Label      Label
	Confidence float64
	Reasoning  string
}

// SecondaryStatus says why no secondary opinion was obtained.
type SecondaryStatus string

const (
	SecondaryDisabled      SecondaryStatus = "disabled"
	SecondaryNotConfigured SecondaryStatus = "not_configured"
	SecondaryError         SecondaryStatus = "error"
)

// SecondaryOutcome is the result of attempting to obtain a secondary opinion.
// Either Opinion is set, or Status (plus Err for the error case) explains its
// absence. An absent opinion is an expected condition, never a failure.
type SecondaryOutcome struct {
	Opinion *SecondaryOpinion
	Status  SecondaryStatus
	Err     string
}

// Source records which path produced the final verdict.
type Source string

const (
	SourcePrimaryOnly Source = "primary-only"
	SourceConsensus   Source = "consensus"
	SourceOverridden  Source = "overridden"
)

// ValidationSummary describes how the secondary opinion was applied. It is
// attached to every consensus result so callers can see whether validation
// ran, what the LLM said, and how the confidence moved.
type ValidationSummary struct {
	Enabled         bool
	Reason          string
	Error           string
	Label           Label
	Confidence      float64
	Reasoning       string
	Agreement       bool
	ConfidenceBoost float64
	Recommendation  string
}

// ConsensusResult is the final verdict after reconciling the primary
// classification with the secondary opinion (when one was available).
type ConsensusResult struct {
	Label         Label
	Confidence    float64
	Probabilities map[Label]float64
	Explanation   string
	Agreement     bool
	Source        Source
	Validation    ValidationSummary
}

// User is a registered account. The APIKey is the bearer credential for all
// owner-scoped operations and never rotates automatically.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	APIKey       string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// ScanMeta carries optional client metadata recorded alongside a scan.
type ScanMeta struct {
	ClientIP  string
	UserAgent string
}

// ScanRecord is one stored scan result, owned by exactly one user.
type ScanRecord struct {
	ID             int64
	OwnerID        string
	Text           string
	Classification Label
	Confidence     float64
	Probabilities  map[Label]float64
	CreatedAt      time.Time
	ClientIP       string
	UserAgent      string
}

// ScanSummary is the listing shape for scan history: the stored text is
// truncated to a bounded preview, the full text is available via GetByID.
type ScanSummary struct {
	ID             int64
	Preview        string
	Classification Label
	Confidence     float64
	CreatedAt      time.Time
}

// DayCount is one bucket of the daily activity series.
type DayCount struct {
	Date  string
	Count int64
}

// ScanStats aggregates one owner's scans over a trailing day window.
type ScanStats struct {
	TotalScans    int64
	Counts        map[Label]int64
	AvgConfidence map[Label]float64
	DailyActivity []DayCount
	PeriodDays    int
}
