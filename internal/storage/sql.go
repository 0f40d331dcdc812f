package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mikey/email-guardian/internal/core"
	"go.uber.org/zap"
)

// sqlStore is the shared implementation behind the sqlite and mysql
// backends. Both dialects accept ? placeholders and the same portable SQL;
// only the driver and the schema DDL differ.
type sqlStore struct {
	db     *sql.DB
	logger *zap.Logger

	retentionDays int
	sweepFreq     time.Duration
	stopCh        chan struct{}
}

func newSQLStore(db *sql.DB, schema []string, logger *zap.Logger, retentionDays int, sweepFreq time.Duration) (*sqlStore, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	s := &sqlStore{
		db:            db,
		logger:        logger,
		retentionDays: retentionDays,
		sweepFreq:     sweepFreq,
		stopCh:        make(chan struct{}),
	}

	if retentionDays > 0 {
		go s.startRetentionSweep()
	}

	return s, nil
}

// Close stops the retention sweep and closes the database.
func (s *sqlStore) Close() error {
	close(s.stopCh)
	return s.db.Close()
}

// --- UserRepository ---

// Create inserts the user. Email and api key uniqueness are enforced by the
// unique indexes, atomically with the insert.
func (s *sqlStore) Create(ctx context.Context, user *core.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, api_key, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.PasswordHash, user.APIKey, user.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *sqlStore) GetByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, api_key, created_at, last_login
		FROM users WHERE email = ?
	`, email)
}

func (s *sqlStore) GetByAPIKey(ctx context.Context, apiKey string) (*core.User, error) {
	return s.getUser(ctx, `
		SELECT id, email, password_hash, api_key, created_at, last_login
		FROM users WHERE api_key = ?
	`, apiKey)
}

func (s *sqlStore) getUser(ctx context.Context, query string, arg any) (*core.User, error) {
	var (
		user      core.User
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.APIKey, &user.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return &user, nil
}

func (s *sqlStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at, userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// --- ScanRepository ---

func (s *sqlStore) Append(ctx context.Context, rec *core.ScanRecord) (int64, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, rec.OwnerID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, core.ErrUnknownOwner
		}
		return 0, fmt.Errorf("failed to verify owner: %w", err)
	}

	probs, err := marshalProbabilities(rec.Probabilities)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (owner_id, text, classification, confidence, probabilities, created_at, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.OwnerID, rec.Text, string(rec.Classification), rec.Confidence, probs, rec.CreatedAt, rec.ClientIP, rec.UserAgent)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, nil
}

func (s *sqlStore) ListRecent(ctx context.Context, ownerID string, limit, offset int) ([]core.ScanSummary, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, classification, confidence, created_at
		FROM scans
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	defer rows.Close()

	summaries := []core.ScanSummary{}
	for rows.Next() {
		var (
			summary        core.ScanSummary
			text           string
			classification string
		)
		if err := rows.Scan(&summary.ID, &text, &classification, &summary.Confidence, &summary.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		summary.Preview = makePreview(text)
		summary.Classification = core.Label(classification)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	return summaries, nil
}

func (s *sqlStore) GetByID(ctx context.Context, ownerID string, id int64) (*core.ScanRecord, error) {
	var (
		rec            core.ScanRecord
		classification string
		probs          string
		clientIP       sql.NullString
		userAgent      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, text, classification, confidence, probabilities, created_at, ip_address, user_agent
		FROM scans
		WHERE id = ? AND owner_id = ?
	`, id, ownerID).Scan(
		&rec.ID, &rec.OwnerID, &rec.Text, &classification, &rec.Confidence, &probs, &rec.CreatedAt, &clientIP, &userAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Missing and not-owned are indistinguishable here.
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query scan record: %w", err)
	}

	rec.Classification = core.Label(classification)
	rec.ClientIP = clientIP.String
	rec.UserAgent = userAgent.String
	rec.Probabilities, err = unmarshalProbabilities(probs)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *sqlStore) DeleteByID(ctx context.Context, ownerID string, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete scan record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) PurgeOlderThan(ctx context.Context, ownerID string, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	// Single statement keeps the returned count consistent with what was
	// actually removed even under concurrent appends.
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE owner_id = ? AND created_at < ?`, ownerID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge scan records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

func (s *sqlStore) Aggregate(ctx context.Context, ownerID string, days int) (*core.ScanStats, error) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -days)
	weekCutoff := now.AddDate(0, 0, -7)

	// Fetch once back to the earlier of the two windows; the per-label
	// aggregation and the activity series are bucketed in Go so the query
	// stays dialect-portable.
	fetchCutoff := cutoff
	if weekCutoff.Before(fetchCutoff) {
		fetchCutoff = weekCutoff
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT classification, confidence, created_at
		FROM scans
		WHERE owner_id = ? AND created_at >= ?
	`, ownerID, fetchCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan stats: %w", err)
	}
	defer rows.Close()

	stats := emptyStats(days)
	confidenceSums := map[core.Label]float64{}
	daily := map[string]int64{}

	for rows.Next() {
		var (
			classification string
			confidence     float64
			createdAt      time.Time
		)
		if err := rows.Scan(&classification, &confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		label := core.Label(classification)

		if !createdAt.Before(cutoff) {
			stats.TotalScans++
			stats.Counts[label]++
			confidenceSums[label] += confidence
		}
		if !createdAt.Before(weekCutoff) {
			daily[createdAt.UTC().Format("2006-01-02")]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats rows: %w", err)
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

func roundTo4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

// startRetentionSweep deletes scans past the configured retention age for
// all owners on a fixed cadence.
func (s *sqlStore) startRetentionSweep() {
	ticker := time.NewTicker(s.sweepFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
			res, err := s.db.Exec(`DELETE FROM scans WHERE created_at < ?`, cutoff)
			if err != nil {
				s.logger.Error("Retention sweep failed", zap.Error(err))
				continue
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				s.logger.Info("Retention sweep removed old scans", zap.Int64("removed", n))
			}
		case <-s.stopCh:
			return
		}
	}
}

// mapUniqueViolation translates a driver unique-constraint error into the
// matching sentinel. Both drivers name the violated index after its column.
func mapUniqueViolation(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique") && !strings.Contains(msg, "duplicate") {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	if strings.Contains(msg, "api_key") {
		return core.ErrDuplicateAPIKey
	}
	if strings.Contains(msg, "email") {
		return core.ErrDuplicateUser
	}
	return fmt.Errorf("failed to insert user: %w", err)
}
