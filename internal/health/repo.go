package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/hybridhouse/journal/internal/telemetry/tracing"
)

// Repo is the sole write path to the canonical workouts and daily_metrics
// tables.
//
// Schema expectations:
//
//	CREATE TABLE workout (
//	    id             TEXT PRIMARY KEY,
//	    external_id    TEXT,
//	    source         TEXT NOT NULL,
//	    start_time     TIMESTAMPTZ NOT NULL,
//	    end_time       TIMESTAMPTZ NOT NULL,
//	    type           TEXT NOT NULL,
//	    calories       DOUBLE PRECISION,
//	    distance_km    DOUBLE PRECISION,
//	    avg_heart_rate DOUBLE PRECISION,
//	    device         TEXT,
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX workout_source_external_id
//	    ON workout (source, external_id) WHERE external_id IS NOT NULL;
//	CREATE UNIQUE INDEX workout_source_times_type
//	    ON workout (source, start_time, end_time, type) WHERE external_id IS NULL;
//
//	CREATE TABLE daily_metric (
//	    id              TEXT PRIMARY KEY,
//	    date_iso        TEXT NOT NULL,
//	    source          TEXT NOT NULL,
//	    steps           INTEGER,
//	    sleep_hours     DOUBLE PRECISION,
//	    avg_bpm         DOUBLE PRECISION,
//	    calories_burned DOUBLE PRECISION,
//	    sleep_stages    JSONB,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    UNIQUE (source, date_iso)
//	);
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// InsertWorkouts stores a batch of workouts in one transaction. Rows whose
// natural key already exists are skipped and counted, never overwritten.
func (r *Repo) InsertWorkouts(ctx context.Context, workouts []Workout) (res UpsertResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.health.insertWorkouts")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			log.Errorf("insert workouts, rollback: %s", rollbackErr)
		}
	}()

	for _, w := range workouts {
		tag, execErr := tx.Exec(ctx, `
			INSERT INTO workout (
				id, external_id, source, start_time, end_time, type,
				calories, distance_km, avg_heart_rate, device, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT DO NOTHING`,
			w.ID, w.ExternalID, w.Source, w.StartTime, w.EndTime, w.Type,
			w.Calories, w.DistanceKm, w.AvgHeartRate, w.Device, w.CreatedAt,
		)
		if execErr != nil {
			err = fmt.Errorf("insert workout: %w", execErr)
			return UpsertResult{}, err
		}
		if tag.RowsAffected() > 0 {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return UpsertResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

// InsertDailyMetrics stores a batch of daily metrics in one transaction,
// insert-or-ignore on (source, date_iso). First write wins per day and
// source.
func (r *Repo) InsertDailyMetrics(ctx context.Context, metrics []DailyMetric) (res UpsertResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.health.insertDailyMetrics")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			log.Errorf("insert daily metrics, rollback: %s", rollbackErr)
		}
	}()

	for _, m := range metrics {
		var stagesJSON []byte
		if m.SleepStages != nil {
			stagesJSON, err = json.Marshal(m.SleepStages)
			if err != nil {
				return UpsertResult{}, fmt.Errorf("marshal sleep stages: %w", err)
			}
		}

		tag, execErr := tx.Exec(ctx, `
			INSERT INTO daily_metric (
				id, date_iso, source, steps, sleep_hours,
				avg_bpm, calories_burned, sleep_stages, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (source, date_iso) DO NOTHING`,
			m.ID, m.DateISO, m.Source, m.Steps, m.SleepHours,
			m.AvgBPM, m.CaloriesBurned, stagesJSON, m.CreatedAt,
		)
		if execErr != nil {
			err = fmt.Errorf("insert daily metric: %w", execErr)
			return UpsertResult{}, err
		}
		if tag.RowsAffected() > 0 {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return UpsertResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

// ListWorkouts returns workouts whose start_time falls within the given
// bounds, both inclusive. A zero bound means unbounded on that side.
func (r *Repo) ListWorkouts(ctx context.Context, from, to time.Time) (_ []Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.health.listWorkouts")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	query := `
		SELECT
			id, external_id, source, start_time, end_time, type,
			calories, distance_km, avg_heart_rate, device, created_at
		FROM workout`
	var args []any
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" WHERE start_time >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		if len(args) == 1 {
			query += fmt.Sprintf(" WHERE start_time <= $%d", len(args))
		} else {
			query += fmt.Sprintf(" AND start_time <= $%d", len(args))
		}
	}
	query += " ORDER BY start_time"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	defer rows.Close()

	workouts := make([]Workout, 0)
	for rows.Next() {
		var w Workout
		if err = rows.Scan(
			&w.ID, &w.ExternalID, &w.Source, &w.StartTime, &w.EndTime, &w.Type,
			&w.Calories, &w.DistanceKm, &w.AvgHeartRate, &w.Device, &w.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan workout row: %w", err)
		}
		workouts = append(workouts, w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list workouts rows: %w", err)
	}

	return workouts, nil
}

// ListDailyMetrics returns metrics whose date_iso falls within the bounds,
// both inclusive, expanding the persisted sleep-stage json back into a list.
func (r *Repo) ListDailyMetrics(ctx context.Context, fromISO, toISO string) (_ []DailyMetric, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.health.listDailyMetrics")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	query := `
		SELECT
			id, date_iso, source, steps, sleep_hours,
			avg_bpm, calories_burned, sleep_stages, created_at
		FROM daily_metric`
	var args []any
	if fromISO != "" {
		args = append(args, fromISO)
		query += fmt.Sprintf(" WHERE date_iso >= $%d", len(args))
	}
	if toISO != "" {
		args = append(args, toISO)
		if len(args) == 1 {
			query += fmt.Sprintf(" WHERE date_iso <= $%d", len(args))
		} else {
			query += fmt.Sprintf(" AND date_iso <= $%d", len(args))
		}
	}
	query += " ORDER BY date_iso"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]DailyMetric, 0)
	for rows.Next() {
		var m DailyMetric
		var stagesJSON []byte
		if err = rows.Scan(
			&m.ID, &m.DateISO, &m.Source, &m.Steps, &m.SleepHours,
			&m.AvgBPM, &m.CaloriesBurned, &stagesJSON, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan daily metric row: %w", err)
		}
		if len(stagesJSON) > 0 {
			if err = json.Unmarshal(stagesJSON, &m.SleepStages); err != nil {
				return nil, fmt.Errorf("unmarshal sleep stages: %w", err)
			}
		}
		metrics = append(metrics, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list daily metrics rows: %w", err)
	}

	return metrics, nil
}
