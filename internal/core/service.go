package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ScanRequest is one inbound scan submission.
type ScanRequest struct {
	Text         string
	UseSecondary bool
	Meta         ScanMeta
}

// ScanOutcome is the caller-visible result of a scan. Stored reports whether
// persistence succeeded; a failed store never fails the scan itself.
type ScanOutcome struct {
	Result   *ConsensusResult
	RecordID int64
	Stored   bool
}

// ScanService is the composition point: it validates input, obtains the
// primary classification, optionally consults the secondary opinion provider
// under a bounded timeout, reconciles the two through the consensus engine
// and persists the final verdict under the caller's identity.
type ScanService struct {
	classifier       Classifier
	provider         OpinionProvider
	engine           *ConsensusEngine
	scans            ScanRepository
	logger           *zap.Logger
	maxTextLength    int
	secondaryTimeout time.Duration
}

// NewScanService creates a new scan service. provider may be nil when no
// secondary opinion source is configured; scans may be nil for one-shot
// callers that do not persist results.
func NewScanService(
	classifier Classifier,
	provider OpinionProvider,
	engine *ConsensusEngine,
	scans ScanRepository,
	logger *zap.Logger,
	maxTextLength int,
	secondaryTimeout time.Duration,
) *ScanService {
	return &ScanService{
		classifier:       classifier,
		provider:         provider,
		engine:           engine,
		scans:            scans,
		logger:           logger,
		maxTextLength:    maxTextLength,
		secondaryTimeout: secondaryTimeout,
	}
}

// Scan classifies the text and stores the result for its owner.
func (s *ScanService) Scan(ctx context.Context, owner *User, req ScanRequest) (*ScanOutcome, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}
	if len(text) > s.maxTextLength {
		return nil, fmt.Errorf("%w: text too long (max %d characters)", ErrInvalidInput, s.maxTextLength)
	}

	primary, err := s.classifier.Classify(ctx, text)
	if err != nil {
		// The classifier contract is to fall back internally rather than
		// fail; an error here means the model layer itself is broken.
		return nil, fmt.Errorf("primary classification failed: %w", err)
	}

	secondary := s.secondOpinion(ctx, text, req.UseSecondary)
	result := s.engine.Reconcile(primary, secondary)

	s.logger.Info("Text classified",
		zap.String("classification", string(result.Label)),
		zap.Float64("confidence", result.Confidence),
		zap.String("source", string(result.Source)))

	outcome := &ScanOutcome{Result: result}

	// One-shot callers run without a scan repository.
	if s.scans == nil {
		return outcome, nil
	}

	rec := &ScanRecord{
		OwnerID:        owner.ID,
		Text:           text,
		Classification: result.Label,
		Confidence:     result.Confidence,
		Probabilities:  result.Probabilities,
		CreatedAt:      time.Now().UTC(),
		ClientIP:       req.Meta.ClientIP,
		UserAgent:      req.Meta.UserAgent,
	}
	id, err := s.scans.Append(ctx, rec)
	if err != nil {
		// The classification already succeeded; report it anyway.
		s.logger.Error("Failed to store scan result", zap.Error(err), zap.String("owner_id", owner.ID))
	} else {
		outcome.RecordID = id
		outcome.Stored = true
	}

	return outcome, nil
}

// secondOpinion obtains the secondary opinion when requested and possible.
// Every failure mode collapses into an unavailable outcome; nothing on this
// path can fail a scan whose primary classification already succeeded.
func (s *ScanService) secondOpinion(ctx context.Context, text string, requested bool) SecondaryOutcome {
	if !requested {
		return SecondaryOutcome{Status: SecondaryDisabled}
	}
	if s.provider == nil {
		return SecondaryOutcome{Status: SecondaryNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, s.secondaryTimeout)
	defer cancel()

	opinion, err := s.provider.Evaluate(ctx, text)
	if err != nil {
		s.logger.Warn("Secondary opinion unavailable, using primary result", zap.Error(err))
		return SecondaryOutcome{Status: SecondaryError, Err: fmt.Sprintf("validation failed: %v", err)}
	}
	if opinion == nil {
		return SecondaryOutcome{Status: SecondaryError, Err: "validation failed: empty opinion"}
	}
	return SecondaryOutcome{Opinion: opinion}
}

// History lists the owner's recent scans, newest first.
func (s *ScanService) History(ctx context.Context, owner *User, limit, offset int) ([]ScanSummary, error) {
	return s.scans.ListRecent(ctx, owner.ID, limit, offset)
}

// Record returns one of the owner's scans with its full text.
func (s *ScanService) Record(ctx context.Context, owner *User, id int64) (*ScanRecord, error) {
	return s.scans.GetByID(ctx, owner.ID, id)
}

// Delete removes one of the owner's scans.
func (s *ScanService) Delete(ctx context.Context, owner *User, id int64) (bool, error) {
	return s.scans.DeleteByID(ctx, owner.ID, id)
}

// Purge removes the owner's scans older than the given number of days and
// returns the count removed.
func (s *ScanService) Purge(ctx context.Context, owner *User, days int) (int64, error) {
	return s.scans.PurgeOlderThan(ctx, owner.ID, days)
}

// Stats aggregates the owner's scans over a trailing day window.
func (s *ScanService) Stats(ctx context.Context, owner *User, days int) (*ScanStats, error) {
	return s.scans.Aggregate(ctx, owner.ID, days)
}
