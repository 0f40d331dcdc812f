// Package storage provides the persistence backends for users and scan
// records. The sqlite and mysql backends share one SQL implementation; the
// memory backend serves tests and single-process development.
package storage

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/mikey/email-guardian/internal/core"
)

const (
	// previewLength bounds the text preview in history listings; the full
	// text stays available through GetByID.
	previewLength = 100

	maxListLimit = 100
)

// clampPage forces limit into [1,maxListLimit] and offset to >= 0.
func clampPage(limit, offset int) (int, int) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// makePreview truncates stored text for listing, backing off to a rune
// boundary so the preview stays valid UTF-8.
func makePreview(text string) string {
	if len(text) <= previewLength {
		return text
	}
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func marshalProbabilities(probs map[core.Label]float64) (string, error) {
	if probs == nil {
		probs = map[core.Label]float64{}
	}
	data, err := json.Marshal(probs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal probabilities: %w", err)
	}
	return string(data), nil
}

func unmarshalProbabilities(data string) (map[core.Label]float64, error) {
	probs := map[core.Label]float64{}
	if data == "" {
		return probs, nil
	}
	if err := json.Unmarshal([]byte(data), &probs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal probabilities: %w", err)
	}
	return probs, nil
}

// emptyStats is the zero-valued aggregation: having no data is not an error.
func emptyStats(days int) *core.ScanStats {
	return &core.ScanStats{
		Counts:        map[core.Label]int64{},
		AvgConfidence: map[core.Label]float64{},
		DailyActivity: []core.DayCount{},
		PeriodDays:    days,
	}
}
