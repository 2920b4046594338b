package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridhouse/journal/internal/telemetry/metrics"
)

const ingestPayload = `{
	"workouts": [{
		"source": "Apple Health",
		"externalId": "abc",
		"startTime": "2024-01-01T10:00:00Z",
		"endTime": "2024-01-01T10:45:00Z",
		"type": "Running"
	}],
	"metrics": [{
		"source": "Apple Health",
		"dateISO": "2024-01-01",
		"steps": 8000
	}]
}`

func ingestReq(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/health/ingest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleIngest(t *testing.T) {
	repo := NewRepoMock()
	handler := NewHandler(repo, metrics.NewTestManager())

	rr := httptest.NewRecorder()
	handler.HandleIngest(rr, ingestReq(ingestPayload))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Ok)
	assert.Equal(t, 1, resp.WorkoutsInserted)
	assert.Equal(t, 1, resp.MetricsInserted)

	// every stored record got a generated id
	for _, w := range repo.Workouts {
		assert.NotEmpty(t, w.ID)
		assert.False(t, w.CreatedAt.IsZero())
	}
}

func TestHandleIngest_SecondCallSkipsDuplicates(t *testing.T) {
	repo := NewRepoMock()
	handler := NewHandler(repo, metrics.NewTestManager())

	rr := httptest.NewRecorder()
	handler.HandleIngest(rr, ingestReq(ingestPayload))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.HandleIngest(rr, ingestReq(ingestPayload))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Ok)
	assert.Equal(t, 0, resp.WorkoutsInserted)
	assert.Equal(t, 0, resp.MetricsInserted)
	assert.Len(t, repo.Workouts, 1)
	assert.Len(t, repo.Metrics, 1)
}

func TestHandleIngest_InvalidPayload(t *testing.T) {
	handler := NewHandler(NewRepoMock(), metrics.NewTestManager())

	rr := httptest.NewRecorder()
	handler.HandleIngest(rr, ingestReq("{not json"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// endTime before startTime
	rr = httptest.NewRecorder()
	handler.HandleIngest(rr, ingestReq(`{
		"workouts": [{
			"source": "manual",
			"startTime": "2024-01-01T10:00:00Z",
			"endTime": "2024-01-01T09:00:00Z",
			"type": "Running"
		}]
	}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid workout at index 0")

	rr = httptest.NewRecorder()
	handler.HandleIngest(rr, ingestReq(`{"metrics": [{"source": "Apple Health", "dateISO": "bad"}]}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid metric at index 0")
}

func TestHandleIngest_RepoError(t *testing.T) {
	repo := NewRepoMock()
	repo.InsertWorkoutsErr = assert.AnError
	handler := NewHandler(repo, metrics.NewTestManager())

	rr := httptest.NewRecorder()
	handler.HandleIngest(rr, ingestReq(ingestPayload))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandleListWorkouts(t *testing.T) {
	repo := NewRepoMock()
	handler := NewHandler(repo, metrics.NewTestManager())

	seed := httptest.NewRecorder()
	handler.HandleIngest(seed, ingestReq(ingestPayload))
	require.Equal(t, http.StatusOK, seed.Code)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/workouts?from=2024-01-01&to=2024-01-02", nil)
	handler.HandleListWorkouts(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp WorkoutsListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)

	// from bound is inclusive on startTime
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/workouts?from=2024-01-01T10:00:00Z", nil)
	handler.HandleListWorkouts(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/workouts?from=2024-02-01", nil)
	handler.HandleListWorkouts(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Total)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/workouts?from=gibberish", nil)
	handler.HandleListWorkouts(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleListMetrics(t *testing.T) {
	repo := NewRepoMock()
	handler := NewHandler(repo, metrics.NewTestManager())

	seed := httptest.NewRecorder()
	handler.HandleIngest(seed, ingestReq(ingestPayload))
	require.Equal(t, http.StatusOK, seed.Code)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics?from=2024-01-01&to=2024-01-31", nil)
	handler.HandleListMetrics(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp MetricsListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	require.NotNil(t, resp.Metrics[0].Steps)
	assert.Equal(t, 8000, *resp.Metrics[0].Steps)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/metrics?to=01/31/2024", nil)
	handler.HandleListMetrics(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
