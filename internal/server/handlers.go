package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mikey/email-guardian/internal/core"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	defaultStatsDays    = 30
	defaultCleanupDays  = 90
	maxWindowDays       = 365
	maxRequestBody      = 1 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		LLMConfigured: s.secondaryConfigured,
		StorageType:   s.storageType,
		APIVersion:    "1.0.0",
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	user, err := s.creds.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:    user.ID,
		Email:     user.Email,
		APIKey:    user.APIKey,
		CreatedAt: user.CreatedAt,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	key, err := s.creds.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{APIKey: key})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req scanRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	useSecondary := true
	if req.UseLLMValidation != nil {
		useSecondary = *req.UseLLMValidation
	}

	outcome, err := s.scans.Scan(r.Context(), user, core.ScanRequest{
		Text:         req.Text,
		UseSecondary: useSecondary,
		Meta: core.ScanMeta{
			ClientIP:  clientIP(r),
			UserAgent: r.Header.Get("User-Agent"),
		},
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanResponse(outcome))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	limit := clampInt(queryInt(r, "limit", defaultHistoryLimit), 1, maxHistoryLimit)
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	summaries, err := s.scans.History(r.Context(), user, limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	entries := make([]historyEntry, 0, len(summaries))
	for _, sum := range summaries {
		entries = append(entries, historyEntry{
			ID:             sum.ID,
			TextPreview:    sum.Preview,
			Classification: string(sum.Classification),
			Confidence:     sum.Confidence,
			Timestamp:      sum.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, historyResponse{
		History: entries,
		Count:   len(entries),
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Server) handleScanDetails(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	rec, err := s.scans.Record(r.Context(), user, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDetailResponse(rec))
}

func (s *Server) handleScanDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	deleted, err := s.scans.Delete(r.Context(), user, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	days := clampInt(queryInt(r, "days", defaultStatsDays), 1, maxWindowDays)

	stats, err := s.scans.Stats(r.Context(), user, days)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	// An empty body is fine here; the default retention window applies.
	var req cleanupRequest
	if r.Body != nil {
		json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req)
	}

	days := defaultCleanupDays
	if req.Days != nil {
		days = *req.Days
	}
	days = clampInt(days, 1, maxWindowDays)

	deleted, err := s.scans.Purge(r.Context(), user, days)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cleanupResponse{
		Success:        true,
		DeletedRecords: deleted,
		RetentionDays:  days,
	})
}

// decodeBody parses a JSON request body, answering 400 on malformed input.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// pathID parses the {id} route variable. The route pattern already constrains
// it to digits, so a parse failure means overflow.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Scan not found")
		return 0, false
	}
	return id, true
}

// writeServiceError maps domain errors to HTTP statuses. Unknown errors are
// logged and answered with an opaque 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, core.ErrDuplicateUser):
		writeError(w, http.StatusConflict, "An account with this email already exists")
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "Scan not found")
	default:
		s.logger.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
