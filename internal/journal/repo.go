package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hybridhouse/journal/internal/telemetry/tracing"
	"github.com/hybridhouse/journal/pkg"
)

// Repo persists logged lift, cardio and run entries.
//
// Schema expectations:
//
//	CREATE TABLE lift_entry (
//	    id         TEXT PRIMARY KEY,
//	    date_iso   TEXT NOT NULL,
//	    lift       TEXT NOT NULL,
//	    weight_kg  DOUBLE PRECISION NOT NULL,
//	    reps       INTEGER NOT NULL,
//	    rpe        DOUBLE PRECISION,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE cardio_entry (
//	    id         TEXT PRIMARY KEY,
//	    date_iso   TEXT NOT NULL,
//	    machine    TEXT NOT NULL,
//	    seconds    INTEGER NOT NULL,
//	    calories   DOUBLE PRECISION NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE run_entry (
//	    id              TEXT PRIMARY KEY,
//	    date_iso        TEXT NOT NULL,
//	    distance_meters DOUBLE PRECISION NOT NULL,
//	    input_type      TEXT NOT NULL,
//	    time_seconds    DOUBLE PRECISION,
//	    pace_sec_per_km DOUBLE PRECISION,
//	    rounds          INTEGER NOT NULL,
//	    created_at      TIMESTAMPTZ NOT NULL
//	);
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

func (r *Repo) AddLiftEntry(ctx context.Context, entry LiftEntry) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.journal.addLiftEntry")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	_, err = r.db.Exec(ctx, `
		INSERT INTO lift_entry (id, date_iso, lift, weight_kg, reps, rpe, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.DateISO, entry.Lift, entry.WeightKg, entry.Reps, entry.RPE, entry.CreatedAt,
	)
	if pkg.IsUniqueViolationError(err) {
		return ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("add lift entry: %w", err)
	}
	return nil
}

func (r *Repo) ListLiftEntries(ctx context.Context, lift string) (_ []LiftEntry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.journal.listLiftEntries")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	rows, err := r.db.Query(ctx, `
		SELECT id, date_iso, lift, weight_kg, reps, rpe, created_at
		FROM lift_entry
		WHERE lift = $1
		ORDER BY date_iso`,
		lift,
	)
	if err != nil {
		return nil, fmt.Errorf("list lift entries: %w", err)
	}
	defer rows.Close()

	entries := make([]LiftEntry, 0)
	for rows.Next() {
		var e LiftEntry
		if err = rows.Scan(&e.ID, &e.DateISO, &e.Lift, &e.WeightKg, &e.Reps, &e.RPE, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lift entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list lift entries rows: %w", err)
	}
	return entries, nil
}

func (r *Repo) DeleteLiftEntry(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.journal.deleteLiftEntry")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tag, err := r.db.Exec(ctx, `DELETE FROM lift_entry WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lift entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *Repo) AddCardioEntry(ctx context.Context, entry CardioEntry) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.journal.addCardioEntry")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	_, err = r.db.Exec(ctx, `
		INSERT INTO cardio_entry (id, date_iso, machine, seconds, calories, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.DateISO, entry.Machine, entry.Seconds, entry.Calories, entry.CreatedAt,
	)
	if pkg.IsUniqueViolationError(err) {
		return ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("add cardio entry: %w", err)
	}
	return nil
}

func (r *Repo) ListCardioEntries(ctx context.Context, machine string) (_ []CardioEntry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.journal.listCardioEntries")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	query := `
		SELECT id, date_iso, machine, seconds, calories, created_at
		FROM cardio_entry`
	var args []any
	if machine != "" {
		args = append(args, machine)
		query += " WHERE machine = $1"
	}
	query += " ORDER BY date_iso"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cardio entries: %w", err)
	}
	defer rows.Close()

	entries := make([]CardioEntry, 0)
	for rows.Next() {
		var e CardioEntry
		if err = rows.Scan(&e.ID, &e.DateISO, &e.Machine, &e.Seconds, &e.Calories, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cardio entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list cardio entries rows: %w", err)
	}
	return entries, nil
}

func (r *Repo) AddRunEntry(ctx context.Context, entry RunEntry) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.journal.addRunEntry")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	_, err = r.db.Exec(ctx, `
		INSERT INTO run_entry (
			id, date_iso, distance_meters, input_type,
			time_seconds, pace_sec_per_km, rounds, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.DateISO, entry.DistanceMeters, entry.InputType,
		entry.TimeSeconds, entry.PaceSecPerKm, entry.Rounds, entry.CreatedAt,
	)
	if pkg.IsUniqueViolationError(err) {
		return ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("add run entry: %w", err)
	}
	return nil
}

func (r *Repo) ListRunEntries(ctx context.Context) (_ []RunEntry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.journal.listRunEntries")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	rows, err := r.db.Query(ctx, `
		SELECT
			id, date_iso, distance_meters, input_type,
			time_seconds, pace_sec_per_km, rounds, created_at
		FROM run_entry
		ORDER BY date_iso`,
	)
	if err != nil {
		return nil, fmt.Errorf("list run entries: %w", err)
	}
	defer rows.Close()

	entries := make([]RunEntry, 0)
	for rows.Next() {
		var e RunEntry
		if err = rows.Scan(
			&e.ID, &e.DateISO, &e.DistanceMeters, &e.InputType,
			&e.TimeSeconds, &e.PaceSecPerKm, &e.Rounds, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list run entries rows: %w", err)
	}
	return entries, nil
}

func (r *Repo) GetLiftEntry(ctx context.Context, id string) (_ *LiftEntry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.journal.getLiftEntry")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var e LiftEntry
	err = r.db.QueryRow(ctx, `
		SELECT id, date_iso, lift, weight_kg, reps, rpe, created_at
		FROM lift_entry WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.DateISO, &e.Lift, &e.WeightKg, &e.Reps, &e.RPE, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lift entry: %w", err)
	}
	return &e, nil
}
