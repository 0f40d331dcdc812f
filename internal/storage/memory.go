package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mikey/email-guardian/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory persistence backend. It mirrors the SQL
// backends' semantics exactly and backs the test suite and single-process
// development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*core.User       // by id
	byEmail map[string]string           // email -> id
	byKey   map[string]string           // api key -> id
	scans   map[int64]*core.ScanRecord  // by id
	nextID  int64
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*core.User),
		byEmail: make(map[string]string),
		byKey:   make(map[string]string),
		scans:   make(map[int64]*core.ScanRecord),
		logger:  logger,
	}
}

// Close implements the store lifecycle; nothing to release.
func (s *MemoryStore) Close() error { return nil }

// --- UserRepository ---

func (s *MemoryStore) Create(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return core.ErrDuplicateUser
	}
	if _, ok := s.byKey[user.APIKey]; ok {
		return core.ErrDuplicateAPIKey
	}

	u := *user
	s.users[u.ID] = &u
	s.byEmail[u.Email] = u.ID
	s.byKey[u.APIKey] = u.ID
	return nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *MemoryStore) GetByAPIKey(ctx context.Context, apiKey string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[apiKey]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *MemoryStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	t := at
	user.LastLogin = &t
	return nil
}

// --- ScanRepository ---

func (s *MemoryStore) Append(ctx context.Context, rec *core.ScanRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[rec.OwnerID]; !ok {
		return 0, core.ErrUnknownOwner
	}

	s.nextID++
	r := *rec
	r.ID = s.nextID
	if r.Probabilities != nil {
		probs := make(map[core.Label]float64, len(r.Probabilities))
		for k, v := range r.Probabilities {
			probs[k] = v
		}
		r.Probabilities = probs
	}
	s.scans[r.ID] = &r
	return r.ID, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, ownerID string, limit, offset int) ([]core.ScanSummary, error) {
	limit, offset = clampPage(limit, offset)

	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.ownedRecords(ownerID)
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	summaries := []core.ScanSummary{}
	for i := offset; i < len(owned) && len(summaries) < limit; i++ {
		rec := owned[i]
		summaries = append(summaries, core.ScanSummary{
			ID:             rec.ID,
			Preview:        makePreview(rec.Text),
			Classification: rec.Classification,
			Confidence:     rec.Confidence,
			CreatedAt:      rec.CreatedAt,
		})
	}
	return summaries, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, ownerID string, id int64) (*core.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.scans[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, core.ErrNotFound
	}
	r := *rec
	return &r, nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, ownerID string, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.scans[id]
	if !ok || rec.OwnerID != ownerID {
		return false, nil
	}
	delete(s.scans, id)
	return true, nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, ownerID string, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, rec := range s.scans {
		if rec.OwnerID == ownerID && rec.CreatedAt.Before(cutoff) {
			delete(s.scans, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Aggregate(ctx context.Context, ownerID string, days int) (*core.ScanStats, error) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -days)
	weekCutoff := now.AddDate(0, 0, -7)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := emptyStats(days)
	confidenceSums := map[core.Label]float64{}
	daily := map[string]int64{}

	for _, rec := range s.ownedRecords(ownerID) {
		if !rec.CreatedAt.Before(cutoff) {
			stats.TotalScans++
			stats.Counts[rec.Classification]++
			confidenceSums[rec.Classification] += rec.Confidence
		}
		if !rec.CreatedAt.Before(weekCutoff) {
			daily[rec.CreatedAt.UTC().Format("2006-01-02")]++
		}
	}

	for label, sum := range confidenceSums {
		stats.AvgConfidence[label] = roundTo4(sum / float64(stats.Counts[label]))
	}

	dates := make([]string, 0, len(daily))
	for date := range daily {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	for _, date := range dates {
		stats.DailyActivity = append(stats.DailyActivity, core.DayCount{Date: date, Count: daily[date]})
	}

	return stats, nil
}

func (s *MemoryStore) ownedRecords(ownerID string) []*core.ScanRecord {
	owned := []*core.ScanRecord{}
	for _, rec := range s.scans {
		if rec.OwnerID == ownerID {
			owned = append(owned, rec)
		}
	}
	return owned
}

func copyUser(user *core.User) *core.User {
	u := *user
	if user.LastLogin != nil {
		t := *user.LastLogin
		u.LastLogin = &t
	}
	return &u
}
