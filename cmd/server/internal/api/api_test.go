package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/factlens/cmd/server/internal/domain/jobs"
	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe/transcribetest"
)

type fakeService struct {
	analyzeReq orchestrator.AnalyzeRequest
	analyzeRes *orchestrator.AnalyzeResult
	analyzeErr error

	jobs       map[string]*models.Job
	history    []models.HistoryItem
	gotLimit   int
	deleteErr  error
	deleted    []string
	deleteAllN int
}

func (f *fakeService) Analyze(_ context.Context, req orchestrator.AnalyzeRequest) (*orchestrator.AnalyzeResult, error) {
	f.analyzeReq = req
	return f.analyzeRes, f.analyzeErr
}

func (f *fakeService) Get(_ context.Context, id string) (*models.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, jobs.ErrNotFound
}

func (f *fakeService) History(_ context.Context, limit int) ([]models.HistoryItem, error) {
	f.gotLimit = limit
	return f.history, nil
}

func (f *fakeService) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) DeleteAll(context.Context) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return f.deleteAllN, nil
}

func newRouter(svc JobService, cfg RouteConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, svc, cfg)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleAnalyze(t *testing.T) {
	svc := &fakeService{analyzeRes: &orchestrator.AnalyzeResult{JobID: "abc", Cached: true}}
	r := newRouter(svc, RouteConfig{})

	w := do(r, http.MethodPost, "/api/analyze", `{"url":"https://youtu.be/x","output_language":"fr","force":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res orchestrator.AnalyzeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "abc", res.JobID)
	assert.True(t, res.Cached)
	assert.False(t, res.IsTranslation)
	assert.Equal(t, "fr", svc.analyzeReq.OutputLanguage)
	assert.True(t, svc.analyzeReq.Force)
}

func TestHandleAnalyzeBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{name: "malformed body", body: `{"url":`, code: http.StatusBadRequest},
		{name: "missing url", body: `{"output_language":"en"}`, code: http.StatusBadRequest},
		{name: "unsupported url", body: `{"url":"ftp://x"}`, err: errs.NewUnsupportedURLError("only http and https URLs are supported"), code: http.StatusBadRequest},
		{name: "unsupported language", body: `{"url":"https://x.com/a","output_language":"xx"}`, err: orchestrator.ErrUnsupportedLanguage, code: http.StatusBadRequest},
		{name: "shutting down", body: `{"url":"https://x.com/a"}`, err: orchestrator.ErrShuttingDown, code: http.StatusServiceUnavailable},
		{name: "store failure", body: `{"url":"https://x.com/a"}`, err: errors.New("disk full"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeService{analyzeErr: tt.err}, RouteConfig{})
			w := do(r, http.MethodPost, "/api/analyze", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestHandleGetJobSortsClaims(t *testing.T) {
	job := &models.Job{
		ID:     "j1",
		Status: models.StatusCompleted,
		Report: &models.Report{Claims: []models.Claim{
			{Claim: "minor", Weight: 10},
			{Claim: "central", Weight: 90},
			{Claim: "middle", Weight: 40},
		}},
	}
	svc := &fakeService{jobs: map[string]*models.Job{"j1": job}}
	r := newRouter(svc, RouteConfig{})

	w := do(r, http.MethodGet, "/api/jobs/j1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Report.Claims, 3)
	assert.Equal(t, "central", got.Report.Claims[0].Claim)
	assert.Equal(t, "middle", got.Report.Claims[1].Claim)
	assert.Equal(t, "minor", job.Report.Claims[0].Claim, "stored order is untouched")

	w = do(r, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetJobEncodesEmptyLists(t *testing.T) {
	job := &models.Job{ID: "q1", Status: models.StatusQueued, ThoughtSummaries: []string{}}
	done := &models.Job{ID: "c1", Status: models.StatusCompleted, ThoughtSummaries: []string{}, Report: &models.Report{}}
	r := newRouter(&fakeService{jobs: map[string]*models.Job{"q1": job, "c1": done}}, RouteConfig{})

	w := do(r, http.MethodGet, "/api/jobs/q1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"thought_summaries":[]`)

	w = do(r, http.MethodGet, "/api/jobs/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "null")
	assert.Contains(t, w.Body.String(), `"claims":[]`)
	assert.Contains(t, w.Body.String(), `"danger":[]`)
}

func TestHandleListHistoryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
		code  int
	}{
		{query: "", want: 50, code: http.StatusOK},
		{query: "?limit=10", want: 10, code: http.StatusOK},
		{query: "?limit=0", want: 1, code: http.StatusOK},
		{query: "?limit=9999", want: 500, code: http.StatusOK},
		{query: "?limit=abc", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := &fakeService{history: []models.HistoryItem{{ID: "a"}}}
			w := do(newRouter(svc, RouteConfig{}), http.MethodGet, "/api/history"+tt.query, "")
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.want, svc.gotLimit)
			}
		})
	}
}

func TestHandleDeleteJob(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, RouteConfig{})

	w := do(r, http.MethodDelete, "/api/history/j1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, []string{"j1"}, svc.deleted)

	svc.deleteErr = jobs.ErrNotFound
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/history/j2", "").Code)

	svc.deleteErr = jobs.ErrJobRunning
	assert.Equal(t, http.StatusConflict, do(r, http.MethodDelete, "/api/history/j3", "").Code)
}

func TestHandleDeleteAllJobs(t *testing.T) {
	svc := &fakeService{deleteAllN: 4}
	r := newRouter(svc, RouteConfig{})

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodDelete, "/api/history", "").Code)

	w := do(r, http.MethodDelete, "/api/history?all=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"deleted":4}`, w.Body.String())

	svc.deleteErr = jobs.ErrJobRunning
	assert.Equal(t, http.StatusConflict, do(r, http.MethodDelete, "/api/history?all=true", "").Code)
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		r := newRouter(&fakeService{}, RouteConfig{Health: HealthDeps{
			Version:     "1.2.3",
			Environment: func() *orchestrator.EnvironmentStatus { return &orchestrator.EnvironmentStatus{Ready: true} },
		}})
		w := do(r, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "1.2.3", resp.Version)
		assert.Contains(t, resp.SupportedPlatforms, "youtube")
		assert.Nil(t, resp.Transcriber)
	})

	t.Run("missing tools degrade", func(t *testing.T) {
		r := newRouter(&fakeService{}, RouteConfig{Health: HealthDeps{
			Environment: func() *orchestrator.EnvironmentStatus {
				return &orchestrator.EnvironmentStatus{Ready: false, Issues: []string{"ffmpeg is not available"}}
			},
		}})
		w := do(r, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"degraded"`)
		assert.Contains(t, w.Body.String(), "ffmpeg is not available")
	})

	t.Run("unhealthy transcriber", func(t *testing.T) {
		fake := transcribetest.New("primary")
		fake.SetHealthy(false, errors.New("401 unauthorized"))
		hc := health.NewHealthChecker(fake, time.Hour, 1)
		hc.CheckNow(context.Background())

		r := newRouter(&fakeService{}, RouteConfig{Health: HealthDeps{HealthChecker: hc}})
		w := do(r, http.MethodGet, "/api/health", "")

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		require.NotNil(t, resp.Transcriber)
		assert.False(t, resp.Transcriber.Status.IsHealthy)
	})
}

func TestHandleClientConfig(t *testing.T) {
	r := newRouter(&fakeService{}, RouteConfig{PollIntervalMS: 1500, MaxURLLength: 1024})
	w := do(r, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)

	var cfg ClientConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, 1500, cfg.PollIntervalMS)
	assert.Equal(t, 1024, cfg.MaxURLLength)
	assert.Equal(t, "ar", cfg.DefaultLanguage)
	require.NotEmpty(t, cfg.Languages)
	assert.Equal(t, "ar", cfg.Languages[0].Code)
	assert.True(t, cfg.Languages[0].RTL)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(&fakeService{}, RouteConfig{})
	w := do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
