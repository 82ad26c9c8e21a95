package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etfscope/internal/config"
	"github.com/aristath/etfscope/internal/database"
	"github.com/aristath/etfscope/internal/di"
	"github.com/aristath/etfscope/internal/domain"
	"github.com/aristath/etfscope/internal/modules/analysis"
	"github.com/aristath/etfscope/internal/modules/prices"
	"github.com/aristath/etfscope/internal/modules/simulation"
	"github.com/aristath/etfscope/internal/scheduler"
)

type emptyBuilder struct{}

func (emptyBuilder) Build(context.Context, prices.BuildRequest) (*domain.Frame, *prices.BuildReport, error) {
	return nil, &prices.BuildReport{}, domain.ErrNoData
}

type fakeLister struct {
	tickers []string
	err     error
}

func (l fakeLister) Tickers(context.Context) ([]string, error) { return l.tickers, l.err }

type fakeJob struct {
	name string
	runs int
}

func (j *fakeJob) Run() error   { j.runs++; return nil }
func (j *fakeJob) Name() string { return j.name }

func newTestServer(t *testing.T, container *di.Container) *Server {
	t.Helper()
	if container.Config == nil {
		container.Config = &config.Config{Analysis: config.AnalysisConfig{Tickers: []string{"SPY"}, RollingWindow: 60}}
	}
	if container.AnalysisService == nil {
		container.AnalysisService = analysis.NewService(emptyBuilder{}, simulation.SamplerConfig{}, zerolog.Nop())
	}
	return New(Config{Log: zerolog.Nop(), Port: 0, DevMode: true, Container: container})
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, &di.Container{})

	rec := get(t, s.Handler(), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "etfscope", body["service"])
	assert.NotContains(t, body, "cache")
}

func TestServer_HealthChecksCacheDatabase(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	s := newTestServer(t, &di.Container{CacheDB: db})

	rec := get(t, s.Handler(), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache":"ok"`)

	require.NoError(t, db.Close())
	rec = get(t, s.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestServer_MountsAnalysisRoutes(t *testing.T) {
	s := newTestServer(t, &di.Container{})

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), http.MethodGet, "/api/analysis/latest").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, get(t, s.Handler(), http.MethodPost, "/api/analysis/run").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), http.MethodGet, "/api/unknown").Code)
}

func TestSystemHandlers_CacheTickers(t *testing.T) {
	s := newTestServer(t, &di.Container{CacheLister: fakeLister{tickers: []string{"VTI", "AGG"}}})

	rec := get(t, s.Handler(), http.MethodGet, "/api/system/cache/tickers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tickers []string `json:"tickers"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"AGG", "VTI"}, body.Tickers)
	assert.Equal(t, 2, body.Count)

	failing := newTestServer(t, &di.Container{CacheLister: fakeLister{err: errors.New("bucket gone")}})
	assert.Equal(t, http.StatusInternalServerError, get(t, failing.Handler(), http.MethodGet, "/api/system/cache/tickers").Code)
}

func TestSystemHandlers_TriggerJobs(t *testing.T) {
	refresh := &fakeJob{name: "refresh_prices"}
	analysisJob := &fakeJob{name: "analysis"}
	s := New(Config{
		Log:     zerolog.Nop(),
		DevMode: true,
		Container: &di.Container{
			Config:          &config.Config{},
			AnalysisService: analysis.NewService(emptyBuilder{}, simulation.SamplerConfig{}, zerolog.Nop()),
		},
		RefreshJob:  refresh,
		AnalysisJob: analysisJob,
	})
	s.system.run = func(job scheduler.Job) { _ = job.Run() }

	rec := get(t, s.Handler(), http.MethodPost, "/api/system/jobs/refresh-prices")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "refresh_prices")
	assert.Equal(t, 1, refresh.runs)

	rec = get(t, s.Handler(), http.MethodPost, "/api/system/jobs/analysis")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, analysisJob.runs)
}

func TestSystemHandlers_JobNotRegistered(t *testing.T) {
	s := newTestServer(t, &di.Container{})

	rec := get(t, s.Handler(), http.MethodPost, "/api/system/jobs/analysis")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job not registered")
}
