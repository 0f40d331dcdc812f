package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mikey/email-guardian/internal/core"
)

// registerRequest is the body for POST /api/register.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerResponse returns the issued credential. The api key is shown once
// here and again on every successful login; it never rotates.
type registerResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// loginRequest is the body for POST /api/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	APIKey string `json:"api_key"`
}

// scanRequest is the body for POST /api/scan. UseLLMValidation defaults to
// true when the field is absent.
type scanRequest struct {
	Text             string `json:"text"`
	UseLLMValidation *bool  `json:"use_llm_validation"`
}

// validationPayload mirrors the llm_validation block of the scan response.
// Exactly one of the detail sets is populated: reason/error when no opinion
// was obtained, the llm_* fields when one was.
type validationPayload struct {
	Enabled           bool     `json:"enabled"`
	Reason            string   `json:"reason,omitempty"`
	Error             string   `json:"error,omitempty"`
	LLMClassification string   `json:"llm_classification,omitempty"`
	LLMConfidence     *float64 `json:"llm_confidence,omitempty"`
	LLMReasoning      string   `json:"llm_reasoning,omitempty"`
	Agreement         *bool    `json:"agreement,omitempty"`
	ConfidenceBoost   *float64 `json:"confidence_boost,omitempty"`
	Recommendation    string   `json:"recommendation,omitempty"`
}

type scanResponse struct {
	Classification string             `json:"classification"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities"`
	Explanation    string             `json:"explanation"`
	Source         string             `json:"source"`
	LLMValidation  validationPayload  `json:"llm_validation"`
	RecordID       int64              `json:"record_id,omitempty"`
	Stored         bool               `json:"stored"`
}

type historyEntry struct {
	ID             int64     `json:"id"`
	TextPreview    string    `json:"text_preview"`
	Classification string    `json:"classification"`
	Confidence     float64   `json:"confidence"`
	Timestamp      time.Time `json:"timestamp"`
}

type historyResponse struct {
	History []historyEntry `json:"history"`
	Count   int            `json:"count"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

type scanDetailResponse struct {
	ID             int64              `json:"id"`
	Text           string             `json:"text"`
	Classification string             `json:"classification"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities"`
	Timestamp      time.Time          `json:"timestamp"`
	IPAddress      string             `json:"ip_address,omitempty"`
	UserAgent      string             `json:"user_agent,omitempty"`
}

type dayActivity struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type statsResponse struct {
	TotalScans      int64              `json:"total_scans"`
	Classifications map[string]int64   `json:"classifications"`
	AvgConfidence   map[string]float64 `json:"avg_confidence"`
	DailyActivity   []dayActivity      `json:"daily_activity"`
	PeriodDays      int                `json:"period_days"`
}

type cleanupRequest struct {
	Days *int `json:"days"`
}

type cleanupResponse struct {
	Success        bool  `json:"success"`
	DeletedRecords int64 `json:"deleted_records"`
	RetentionDays  int   `json:"retention_days"`
}

type healthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LLMConfigured bool      `json:"llm_configured"`
	StorageType   string    `json:"storage_type"`
	APIVersion    string    `json:"api_version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toScanResponse(outcome *core.ScanOutcome) scanResponse {
	result := outcome.Result
	resp := scanResponse{
		Classification: string(result.Label),
		Confidence:     result.Confidence,
		Probabilities:  probabilityMap(result.Probabilities),
		Explanation:    result.Explanation,
		Source:         string(result.Source),
		RecordID:       outcome.RecordID,
		Stored:         outcome.Stored,
	}

	v := result.Validation
	if !v.Enabled {
		resp.LLMValidation = validationPayload{Enabled: false, Reason: v.Reason, Error: v.Error}
		return resp
	}

	agreement := v.Agreement
	boost := v.ConfidenceBoost
	confidence := v.Confidence
	resp.LLMValidation = validationPayload{
		Enabled:           true,
		LLMClassification: string(v.Label),
		LLMConfidence:     &confidence,
		LLMReasoning:      v.Reasoning,
		Agreement:         &agreement,
		ConfidenceBoost:   &boost,
		Recommendation:    v.Recommendation,
	}
	return resp
}

func toDetailResponse(rec *core.ScanRecord) scanDetailResponse {
	return scanDetailResponse{
		ID:             rec.ID,
		Text:           rec.Text,
		Classification: string(rec.Classification),
		Confidence:     rec.Confidence,
		Probabilities:  probabilityMap(rec.Probabilities),
		Timestamp:      rec.CreatedAt,
		IPAddress:      rec.ClientIP,
		UserAgent:      rec.UserAgent,
	}
}

func toStatsResponse(stats *core.ScanStats) statsResponse {
	resp := statsResponse{
		TotalScans:      stats.TotalScans,
		Classifications: make(map[string]int64, len(stats.Counts)),
		AvgConfidence:   make(map[string]float64, len(stats.AvgConfidence)),
		DailyActivity:   make([]dayActivity, 0, len(stats.DailyActivity)),
		PeriodDays:      stats.PeriodDays,
	}
	for label, count := range stats.Counts {
		resp.Classifications[string(label)] = count
	}
	for label, avg := range stats.AvgConfidence {
		resp.AvgConfidence[string(label)] = avg
	}
	for _, day := range stats.DailyActivity {
		resp.DailyActivity = append(resp.DailyActivity, dayActivity{Date: day.Date, Count: day.Count})
	}
	return resp
}

func probabilityMap(probs map[core.Label]float64) map[string]float64 {
	out := make(map[string]float64, len(probs))
	for label, p := range probs {
		out[string(label)] = p
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
