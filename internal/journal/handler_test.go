package journal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journalTestRouter(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/journal/lifts", handler.HandleAddLift).Methods("POST")
	r.HandleFunc("/api/journal/lifts/{lift}", handler.HandleListLifts).Methods("GET")
	r.HandleFunc("/api/journal/lifts/{lift}/progress", handler.HandleLiftProgress).Methods("GET")
	r.HandleFunc("/api/journal/lifts/entry/{id}", handler.HandleGetLift).Methods("GET")
	r.HandleFunc("/api/journal/lifts/entry/{id}", handler.HandleDeleteLift).Methods("DELETE")
	r.HandleFunc("/api/journal/cardio", handler.HandleAddCardio).Methods("POST")
	r.HandleFunc("/api/journal/cardio", handler.HandleListCardio).Methods("GET")
	r.HandleFunc("/api/journal/runs", handler.HandleAddRun).Methods("POST")
	r.HandleFunc("/api/journal/runs", handler.HandleListRuns).Methods("GET")
	return r
}

func newTestHandler() (*Handler, *RepoMock) {
	repo := NewRepoMock()
	return NewHandler(repo, NewAnalyzer(repo, DefaultRPEMinEntries)), repo
}

func TestHandleAddLift(t *testing.T) {
	handler, repo := newTestHandler()
	router := journalTestRouter(handler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/journal/lifts", strings.NewReader(
		`{"dateISO":"2024-01-15","lift":"BackSquat","weightKg":120,"reps":5,"rpe":8.5}`,
	))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var stored LiftEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Len(t, repo.LiftEntries, 1)
}

func TestHandleAddLift_Invalid(t *testing.T) {
	handler, repo := newTestHandler()
	router := journalTestRouter(handler)

	for name, body := range map[string]string{
		"not json":     `{oops`,
		"unknown lift": `{"dateISO":"2024-01-15","lift":"Curl","weightKg":40,"reps":10}`,
		"zero weight":  `{"dateISO":"2024-01-15","lift":"Deadlift","weightKg":0,"reps":5}`,
		"bad rpe":      `{"dateISO":"2024-01-15","lift":"Deadlift","weightKg":100,"reps":5,"rpe":12}`,
	} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/journal/lifts", strings.NewReader(body))
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
	assert.Empty(t, repo.LiftEntries)
}

func TestHandleListLiftsAndProgress(t *testing.T) {
	handler, _ := newTestHandler()
	router := journalTestRouter(handler)

	for i, weight := range []float64{100, 102.5, 105} {
		rr := httptest.NewRecorder()
		body := fmt.Sprintf(
			`{"dateISO":"2024-01-%02d","lift":"Deadlift","weightKg":%v,"reps":5,"rpe":8}`,
			i+1, weight,
		)
		req := httptest.NewRequest(http.MethodPost, "/api/journal/lifts", strings.NewReader(body))
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/journal/lifts/Deadlift", nil)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []LiftEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "2024-01-01", entries[0].DateISO)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/journal/lifts/Deadlift/progress", nil)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var progress LiftProgress
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &progress))
	require.Len(t, progress.Points, 3)
	assert.True(t, progress.RPEAvailable)
	assert.InDelta(t, E1RM(105, 5), progress.Points[2].E1RM, 1e-9)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/journal/lifts/Nothing/progress", nil)
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleAddLift_Duplicate(t *testing.T) {
	handler, repo := newTestHandler()
	router := journalTestRouter(handler)
	repo.AddErr = ErrDuplicateEntry

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/journal/lifts", strings.NewReader(
		`{"dateISO":"2024-01-15","lift":"BackSquat","weightKg":120,"reps":5}`,
	))
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/journal/cardio", strings.NewReader(
		`{"dateISO":"2024-01-15","machine":"RowErg","seconds":1200,"calories":260}`,
	))
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/journal/runs", strings.NewReader(
		`{"dateISO":"2024-01-15","distanceMeters":800,"inputType":"TIME","timeSeconds":228}`,
	))
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandleGetLift(t *testing.T) {
	handler, _ := newTestHandler()
	router := journalTestRouter(handler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/journal/lifts", strings.NewReader(
		`{"dateISO":"2024-01-15","lift":"FrontSquat","weightKg":95,"reps":3}`,
	))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var stored LiftEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/journal/lifts/entry/"+stored.ID, nil)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var fetched LiftEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetched))
	assert.Equal(t, stored.ID, fetched.ID)
	assert.Equal(t, "FrontSquat", fetched.Lift)
	assert.Equal(t, 95.0, fetched.WeightKg)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/journal/lifts/entry/no-such-id", nil)
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleDeleteLift(t *testing.T) {
	handler, repo := newTestHandler()
	router := journalTestRouter(handler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/journal/lifts", strings.NewReader(
		`{"dateISO":"2024-01-15","lift":"BenchPress","weightKg":90,"reps":5}`,
	))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var stored LiftEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/journal/lifts/entry/"+stored.ID, nil)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, repo.LiftEntries)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/journal/lifts/entry/"+stored.ID, nil)
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleAddCardioAndList(t *testing.T) {
	handler, _ := newTestHandler()
	router := journalTestRouter(handler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/journal/cardio", strings.NewReader(
		`{"dateISO":"2024-01-15","machine":"RowErg","seconds":1200,"calories":260}`,
	))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/journal/cardio?machine=RowErg", nil)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []CardioEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 1200, entries[0].Seconds)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/journal/cardio?machine=Treadmill", nil)
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleAddRun_DerivesPace(t *testing.T) {
	handler, _ := newTestHandler()
	router := journalTestRouter(handler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/journal/runs", strings.NewReader(
		`{"dateISO":"2024-01-15","distanceMeters":800,"inputType":"TIME","timeSeconds":228}`,
	))
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var stored RunEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.Equal(t, 1, stored.Rounds)
	require.NotNil(t, stored.PaceSecPerKm)
	assert.InDelta(t, 285, *stored.PaceSecPerKm, 1e-9)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/journal/runs", nil)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []RunEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
}
