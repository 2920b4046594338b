package health

import (
	"context"
	"sync"
	"time"
)

// RepoMock is an in-memory Store used in tests. It mirrors the natural-key
// semantics of the real repo.
type RepoMock struct {
	mu       sync.Mutex
	Workouts map[string]Workout
	Metrics  map[string]DailyMetric

	InsertWorkoutsErr error
	InsertMetricsErr  error
}

func NewRepoMock() *RepoMock {
	return &RepoMock{
		Workouts: map[string]Workout{},
		Metrics:  map[string]DailyMetric{},
	}
}

func (r *RepoMock) InsertWorkouts(_ context.Context, workouts []Workout) (UpsertResult, error) {
	if r.InsertWorkoutsErr != nil {
		return UpsertResult{}, r.InsertWorkoutsErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var res UpsertResult
	for _, w := range workouts {
		key := w.NaturalKey()
		if _, ok := r.Workouts[key]; ok {
			res.Skipped++
			continue
		}
		r.Workouts[key] = w
		res.Inserted++
	}
	return res, nil
}

func (r *RepoMock) InsertDailyMetrics(_ context.Context, metrics []DailyMetric) (UpsertResult, error) {
	if r.InsertMetricsErr != nil {
		return UpsertResult{}, r.InsertMetricsErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var res UpsertResult
	for _, m := range metrics {
		key := m.NaturalKey()
		if _, ok := r.Metrics[key]; ok {
			res.Skipped++
			continue
		}
		r.Metrics[key] = m
		res.Inserted++
	}
	return res, nil
}

func (r *RepoMock) ListWorkouts(_ context.Context, from, to time.Time) ([]Workout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workouts := make([]Workout, 0)
	for _, w := range r.Workouts {
		if !from.IsZero() && w.StartTime.Before(from) {
			continue
		}
		if !to.IsZero() && w.StartTime.After(to) {
			continue
		}
		workouts = append(workouts, w)
	}
	return workouts, nil
}

func (r *RepoMock) ListDailyMetrics(_ context.Context, fromISO, toISO string) ([]DailyMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics := make([]DailyMetric, 0)
	for _, m := range r.Metrics {
		if fromISO != "" && m.DateISO < fromISO {
			continue
		}
		if toISO != "" && m.DateISO > toISO {
			continue
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}
