package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/email-guardian/internal/adapters/classifier"
	"github.com/mikey/email-guardian/internal/core"
	"github.com/mikey/email-guardian/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	return newTestServerWithProvider(t, nil)
}

func newTestServerWithProvider(t *testing.T, provider core.OpinionProvider) (*Server, *storage.MemoryStore) {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStore(logger)

	creds := core.NewCredentialService(store, logger)
	scans := core.NewScanService(
		classifier.NewKeywordClassifier(logger),
		provider,
		core.NewConsensusEngine(logger),
		store,
		logger,
		10000,
		time.Second,
	)

	srv := New(scans, creds, logger, Options{
		ListenAddress:       "127.0.0.1:0",
		ReadTimeout:         time.Second,
		WriteTimeout:        time.Second,
		ShutdownTimeout:     time.Second,
		SecondaryConfigured: provider != nil,
		StorageType:         "memory",
	})
	return srv, store
}

// failingOpinionProvider simulates an unreachable secondary provider.
type failingOpinionProvider struct{}

func (failingOpinionProvider) Evaluate(ctx context.Context, text string) (*core.SecondaryOpinion, error) {
	return nil, fmt.Errorf("rate limited")
}

func doJSON(t *testing.T, srv *Server, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func registerUser(t *testing.T, srv *Server, email string) registerResponse {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/register", "", registerRequest{Email: email, Password: "secret1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[registerResponse](t, rec)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[healthResponse](t, rec)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "memory", body.StorageType)
	assert.False(t, body.LLMConfigured)
}

func TestRegister(t *testing.T) {
	srv, _ := newTestServer(t)

	body := registerUser(t, srv, "alice@example.com")
	assert.Len(t, body.APIKey, 64)
	assert.Equal(t, "alice@example.com", body.Email)
	assert.NotEmpty(t, body.UserID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv, _ := newTestServer(t)
	registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/register", "", registerRequest{Email: "Alice@Example.com", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/register", "", registerRequest{Email: "not-an-email", Password: "secret1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/register", "", registerRequest{Email: "ok@example.com", Password: "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginReturnsExistingKey(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/login", "", loginRequest{Email: "alice@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[loginResponse](t, rec)
	assert.Equal(t, account.APIKey, body.APIKey)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	srv, _ := newTestServer(t)
	registerUser(t, srv, "alice@example.com")

	wrongPassword := doJSON(t, srv, http.MethodPost, "/api/login", "", loginRequest{Email: "alice@example.com", Password: "nope"})
	unknownEmail := doJSON(t, srv, http.MethodPost, "/api/login", "", loginRequest{Email: "ghost@example.com", Password: "secret1"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestScanRequiresAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/scan", "", scanRequest{Text: "hello"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/scan", "bogus-key", scanRequest{Text: "hello"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScanAcceptsBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(scanRequest{Text: "hello there"}))
	req := httptest.NewRequest(http.MethodPost, "/api/scan", &buf)
	req.Header.Set("Authorization", "Bearer "+account.APIKey)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScanClassifiesAndStores(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/scan", account.APIKey,
		scanRequest{Text: "Congratulations winner! Claim your free prize and discount offer now."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[scanResponse](t, rec)
	assert.Equal(t, "spam", body.Classification)
	assert.True(t, body.Stored)
	assert.Positive(t, body.RecordID)
	assert.NotEmpty(t, body.Explanation)
	// No provider is configured, so validation reports itself unavailable.
	assert.False(t, body.LLMValidation.Enabled)
	assert.NotEmpty(t, body.LLMValidation.Reason)
	assert.Empty(t, body.LLMValidation.Error)
}

func TestScanReportsValidationError(t *testing.T) {
	srv, _ := newTestServerWithProvider(t, failingOpinionProvider{})
	account := registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/scan", account.APIKey,
		scanRequest{Text: "Congratulations winner! Claim your free prize and discount offer now."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The primary verdict still comes back; the failed validation is
	// reported under its own error key.
	body := decodeBody[scanResponse](t, rec)
	assert.Equal(t, "spam", body.Classification)
	assert.True(t, body.Stored)
	assert.False(t, body.LLMValidation.Enabled)
	assert.Empty(t, body.LLMValidation.Reason)
	assert.Contains(t, body.LLMValidation.Error, "validation failed")
}

func TestScanRejectsEmptyText(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/scan", account.APIKey, scanRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryAndDetails(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/scan", account.APIKey,
			scanRequest{Text: fmt.Sprintf("message number %d", i)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/history?limit=2", account.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[historyResponse](t, rec)
	assert.Equal(t, 2, history.Count)
	assert.Equal(t, 2, history.Limit)
	require.Len(t, history.History, 2)

	detail := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/scan/%d", history.History[0].ID), account.APIKey, nil)
	require.Equal(t, http.StatusOK, detail.Code)
	full := decodeBody[scanDetailResponse](t, detail)
	assert.Equal(t, history.History[0].ID, full.ID)
	assert.NotEmpty(t, full.Text)
}

func TestHistoryClampsLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodGet, "/api/history?limit=9999&offset=-3", account.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[historyResponse](t, rec)
	assert.Equal(t, 100, history.Limit)
	assert.Equal(t, 0, history.Offset)
}

func TestScanDetailsHidesOtherOwners(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := registerUser(t, srv, "alice@example.com")
	bob := registerUser(t, srv, "bob@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/scan", alice.APIKey, scanRequest{Text: "private note"})
	require.Equal(t, http.StatusOK, rec.Code)
	scan := decodeBody[scanResponse](t, rec)

	// Bob gets the same 404 for Alice's scan as for a missing one.
	owned := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/scan/%d", scan.RecordID), bob.APIKey, nil)
	missing := doJSON(t, srv, http.MethodGet, "/api/scan/999999", bob.APIKey, nil)
	assert.Equal(t, http.StatusNotFound, owned.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, missing.Body.String(), owned.Body.String())
}

func TestScanDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/scan", account.APIKey, scanRequest{Text: "delete me"})
	require.Equal(t, http.StatusOK, rec.Code)
	scan := decodeBody[scanResponse](t, rec)

	del := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/scan/%d", scan.RecordID), account.APIKey, nil)
	assert.Equal(t, http.StatusOK, del.Code)

	// The second delete of the same id reports not found.
	again := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/scan/%d", scan.RecordID), account.APIKey, nil)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestStatsClampsDays(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodGet, "/api/stats?days=9999", account.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[statsResponse](t, rec)
	assert.Equal(t, 365, stats.PeriodDays)

	rec = doJSON(t, srv, http.MethodGet, "/api/stats?days=-5", account.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats = decodeBody[statsResponse](t, rec)
	assert.Equal(t, 1, stats.PeriodDays)
}

func TestStatsCountsScans(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/scan", account.APIKey, scanRequest{Text: "a perfectly ordinary message"})
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeBody[statsResponse](t, doJSON(t, srv, http.MethodGet, "/api/stats", account.APIKey, nil))
	assert.Equal(t, int64(1), stats.TotalScans)
	assert.Equal(t, int64(1), stats.Classifications["legitimate"])
	assert.Equal(t, 30, stats.PeriodDays)
}

func TestCleanup(t *testing.T) {
	srv, store := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	// Plant an old record directly; the API only creates fresh ones.
	_, err := store.Append(context.Background(), &core.ScanRecord{
		OwnerID:        account.UserID,
		Text:           "ancient",
		Classification: core.LabelSpam,
		Confidence:     0.8,
		CreatedAt:      time.Now().UTC().AddDate(0, 0, -120),
	})
	require.NoError(t, err)

	days := 30
	rec := doJSON(t, srv, http.MethodPost, "/api/cleanup", account.APIKey, cleanupRequest{Days: &days})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[cleanupResponse](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, int64(1), body.DeletedRecords)
	assert.Equal(t, 30, body.RetentionDays)
}

func TestCleanupDefaultsAndClamps(t *testing.T) {
	srv, _ := newTestServer(t)
	account := registerUser(t, srv, "alice@example.com")

	// Empty body falls back to the default window.
	rec := doJSON(t, srv, http.MethodPost, "/api/cleanup", account.APIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[cleanupResponse](t, rec)
	assert.Equal(t, 90, body.RetentionDays)

	days := 100000
	rec = doJSON(t, srv, http.MethodPost, "/api/cleanup", account.APIKey, cleanupRequest{Days: &days})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[cleanupResponse](t, rec)
	assert.Equal(t, 365, body.RetentionDays)
}

func TestUnknownEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/register", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
