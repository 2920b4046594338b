package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/hybridhouse/journal/internal/telemetry/metrics"
	"github.com/hybridhouse/journal/internal/telemetry/tracing"
	"github.com/hybridhouse/journal/pkg"
)

type recordsRepo interface {
	InsertWorkouts(ctx context.Context, workouts []Workout) (UpsertResult, error)
	InsertDailyMetrics(ctx context.Context, metrics []DailyMetric) (UpsertResult, error)
	ListWorkouts(ctx context.Context, from, to time.Time) ([]Workout, error)
	ListDailyMetrics(ctx context.Context, fromISO, toISO string) ([]DailyMetric, error)
}

type IngestRequest struct {
	Workouts []Workout     `json:"workouts,omitempty"`
	Metrics  []DailyMetric `json:"metrics,omitempty"`
}

type IngestResponse struct {
	Ok               bool `json:"ok"`
	WorkoutsInserted int  `json:"workoutsInserted"`
	MetricsInserted  int  `json:"metricsInserted"`
}

type WorkoutsListResponse struct {
	Workouts []Workout `json:"workouts"`
	Total    int       `json:"total"`
}

type MetricsListResponse struct {
	Metrics []DailyMetric `json:"metrics"`
	Total   int           `json:"total"`
}

type Handler struct {
	repo    recordsRepo
	metrics *metrics.Manager
}

func NewHandler(repo recordsRepo, metrics *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metrics,
	}
}

// HandleIngest accepts a batch of canonical workouts and daily metrics from
// the mobile bridge. The whole batch is validated before anything is
// persisted; duplicates are skipped and only reflected in the counts.
func (handler *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.health.ingest")
	defer span.End()

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("ingest, unmarshal json params: %s", err)
		http.Error(w, "malformed ingest payload", http.StatusBadRequest)
		return
	}

	for i := range req.Workouts {
		if err := req.Workouts[i].Validate(); err != nil {
			http.Error(w, fmt.Sprintf("invalid workout at index %d: %s", i, err), http.StatusBadRequest)
			return
		}
		if req.Workouts[i].ID == "" {
			req.Workouts[i].ID = uuid.NewString()
		}
		if req.Workouts[i].CreatedAt.IsZero() {
			req.Workouts[i].CreatedAt = time.Now().UTC()
		}
	}
	for i := range req.Metrics {
		if err := req.Metrics[i].Validate(); err != nil {
			http.Error(w, fmt.Sprintf("invalid metric at index %d: %s", i, err), http.StatusBadRequest)
			return
		}
		if req.Metrics[i].ID == "" {
			req.Metrics[i].ID = uuid.NewString()
		}
		if req.Metrics[i].CreatedAt.IsZero() {
			req.Metrics[i].CreatedAt = time.Now().UTC()
		}
	}

	var workoutsRes, metricsRes UpsertResult
	if len(req.Workouts) > 0 {
		var err error
		workoutsRes, err = handler.repo.InsertWorkouts(ctx, req.Workouts)
		if err != nil {
			log.Errorf("ingest, insert workouts: %s", err)
			http.Error(w, "ingestion failed", http.StatusInternalServerError)
			return
		}
	}
	if len(req.Metrics) > 0 {
		var err error
		metricsRes, err = handler.repo.InsertDailyMetrics(ctx, req.Metrics)
		if err != nil {
			log.Errorf("ingest, insert daily metrics: %s", err)
			http.Error(w, "ingestion failed", http.StatusInternalServerError)
			return
		}
	}

	handler.metrics.CounterWorkoutsIngested.Add(float64(workoutsRes.Inserted))
	handler.metrics.CounterMetricsIngested.Add(float64(metricsRes.Inserted))
	handler.metrics.CounterIngestConflicts.Add(float64(workoutsRes.Skipped + metricsRes.Skipped))

	log.Debugf(
		"ingest: workouts %d inserted / %d skipped, metrics %d inserted / %d skipped",
		workoutsRes.Inserted, workoutsRes.Skipped, metricsRes.Inserted, metricsRes.Skipped,
	)

	respJson, err := json.Marshal(IngestResponse{
		Ok:               true,
		WorkoutsInserted: workoutsRes.Inserted,
		MetricsInserted:  metricsRes.Inserted,
	})
	if err != nil {
		log.Errorf("ingest, marshal response: %s", err)
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

// HandleListWorkouts returns workouts with start_time within the optional
// from/to bounds, both inclusive.
func (handler *Handler) HandleListWorkouts(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.health.listWorkouts")
	defer span.End()

	from, err := parseTimeBound(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "invalid from bound", http.StatusBadRequest)
		return
	}
	to, err := parseTimeBound(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "invalid to bound", http.StatusBadRequest)
		return
	}

	workouts, err := handler.repo.ListWorkouts(ctx, from, to)
	if err != nil {
		log.Errorf("list workouts: %s", err)
		http.Error(w, "failed to list workouts", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(WorkoutsListResponse{Workouts: workouts, Total: len(workouts)})
	if err != nil {
		log.Errorf("list workouts, marshal response: %s", err)
		http.Error(w, "failed to list workouts", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

// HandleListMetrics returns daily metrics with date_iso within the optional
// from/to bounds, both inclusive.
func (handler *Handler) HandleListMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.health.listMetrics")
	defer span.End()

	fromISO := r.URL.Query().Get("from")
	toISO := r.URL.Query().Get("to")
	for _, bound := range []string{fromISO, toISO} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(dateISOLayout, bound); err != nil {
			http.Error(w, "invalid date bound", http.StatusBadRequest)
			return
		}
	}

	dailyMetrics, err := handler.repo.ListDailyMetrics(ctx, fromISO, toISO)
	if err != nil {
		log.Errorf("list daily metrics: %s", err)
		http.Error(w, "failed to list metrics", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(MetricsListResponse{Metrics: dailyMetrics, Total: len(dailyMetrics)})
	if err != nil {
		log.Errorf("list daily metrics, marshal response: %s", err)
		http.Error(w, "failed to list metrics", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

// parseTimeBound accepts RFC3339 timestamps or bare yyyy-mm-dd dates.
// An empty bound means unbounded.
func parseTimeBound(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(dateISOLayout, raw)
}
