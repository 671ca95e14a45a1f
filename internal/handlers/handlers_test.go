package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

type fakeRunner struct {
	result *jobs.CrackResult
	err    error

	got         jobs.CrackRequest
	hadDeadline bool
}

func (f *fakeRunner) Run(ctx context.Context, req jobs.CrackRequest) (*jobs.CrackResult, error) {
	f.got = req
	_, f.hadDeadline = ctx.Deadline()
	return f.result, f.err
}

type fakeLister []jobs.JobSnapshot

func (f fakeLister) Active() []jobs.JobSnapshot {
	return f
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	return apiErr
}

func TestCrack(t *testing.T) {
	runner := &fakeRunner{result: &jobs.CrackResult{
		Status:  jobs.StatusCompleted,
		Secret:  "def",
		Hash:    "cb8379ac2098aa165029e3938a51da0bcecfc008fd6795f401178647f96c5b34",
		Message: "Secret found: def",
	}}
	h := NewCrackHandler(runner, 0)

	req := httptest.NewRequest(http.MethodPost, "/crack", strings.NewReader(`{"token":" a.b.c ","wordlist":"abc\ndef"}`))
	rec := httptest.NewRecorder()
	h.Crack(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "a.b.c", runner.got.Token)
	require.NotNil(t, runner.got.Wordlist)
	assert.Equal(t, "abc\ndef", *runner.got.Wordlist)
	assert.False(t, runner.hadDeadline)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "def", body["secret"])
	assert.Equal(t, "Secret found: def", body["message"])
}

func TestCrackNotFoundHasOnlyStatus(t *testing.T) {
	h := NewCrackHandler(&fakeRunner{result: &jobs.CrackResult{Status: jobs.StatusCompleted}}, time.Minute)

	rec := httptest.NewRecorder()
	h.Crack(rec, httptest.NewRequest(http.MethodPost, "/crack", strings.NewReader(`{"token":"a.b.c"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"completed"}`, rec.Body.String())
}

func TestCrackPassesNonJWTTokenThrough(t *testing.T) {
	runner := &fakeRunner{result: &jobs.CrackResult{Status: jobs.StatusCompleted}}
	h := NewCrackHandler(runner, 0)

	rec := httptest.NewRecorder()
	h.Crack(rec, httptest.NewRequest(http.MethodPost, "/crack", strings.NewReader(`{"token":"T"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "T", runner.got.Token)
	assert.JSONEq(t, `{"status":"completed"}`, rec.Body.String())
}

func TestCrackTimeoutIsApplied(t *testing.T) {
	runner := &fakeRunner{result: &jobs.CrackResult{Status: jobs.StatusCompleted}}
	h := NewCrackHandler(runner, time.Minute)

	rec := httptest.NewRecorder()
	h.Crack(rec, httptest.NewRequest(http.MethodPost, "/crack", strings.NewReader(`{"token":"a.b.c"}`)))
	assert.True(t, runner.hadDeadline)
}

func TestCrackValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"token":`},
		{"missing token", `{"wordlist":"abc"}`},
		{"blank token", `{"token":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			h := NewCrackHandler(runner, 0)

			rec := httptest.NewRecorder()
			h.Crack(rec, httptest.NewRequest(http.MethodPost, "/crack", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, CodeValidation, decodeError(t, rec).Code)
			assert.Empty(t, runner.got.Token, "runner must not be called")
		})
	}
}

func TestCrackErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"provisioning", fmt.Errorf("%w: disk full", jobs.ErrProvisioning), http.StatusInternalServerError, CodeProvisioning},
		{"spawn", fmt.Errorf("%w: not found", jobs.ErrProcessSpawn), http.StatusInternalServerError, CodeSpawn},
		{"timeout", fmt.Errorf("job aborted: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, CodeTimeout},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCrackHandler(&fakeRunner{err: tt.err}, 0)

			rec := httptest.NewRecorder()
			h.Crack(rec, httptest.NewRequest(http.MethodPost, "/crack", strings.NewReader(`{"token":"a.b.c"}`)))

			assert.Equal(t, tt.status, rec.Code)
			apiErr := decodeError(t, rec)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStatusHandler(fakeLister{}).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestJobs(t *testing.T) {
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	lister := fakeLister{{ID: "job-1", State: "running", Detection: "SEARCHING", WordlistSource: "inline", StartedAt: started}}

	rec := httptest.NewRecorder()
	NewStatusHandler(lister).Jobs(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp JobsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "job-1", resp.Jobs[0].ID)
	assert.Equal(t, "inline", resp.Jobs[0].WordlistSource)
	assert.NotContains(t, rec.Body.String(), "token")
}

func TestLogs(t *testing.T) {
	debug.SetEnabled(true)
	debug.SetLevel(debug.LevelDebug)
	debug.ClearBuffer()
	t.Cleanup(debug.ClearBuffer)

	debug.Info("first entry")
	cutoff := time.Now().Add(time.Second).Truncate(time.Second)

	h := NewStatusHandler(fakeLister{})

	rec := httptest.NewRecorder()
	h.Logs(rec, httptest.NewRequest(http.MethodGet, "/debug/logs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LogsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "first entry", resp.Entries[0].Message)
	assert.Equal(t, "INFO", resp.Entries[0].Level)
	assert.Equal(t, "DEBUG", resp.Level)
	assert.True(t, resp.DebugEnabled)

	rec = httptest.NewRecorder()
	h.Logs(rec, httptest.NewRequest(http.MethodGet, "/debug/logs?since="+cutoff.Format(time.RFC3339), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = LogsResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Zero(t, resp.Count)
	assert.NotNil(t, resp.Entries)
}

func TestLogsRejectsBadSince(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStatusHandler(fakeLister{}).Logs(rec, httptest.NewRequest(http.MethodGet, "/debug/logs?since=yesterday", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decodeError(t, rec).Code)
}
