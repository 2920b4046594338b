package strava

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/hybridhouse/journal/internal/telemetry/tracing"
)

// Repo persists Strava connections and the raw activity cache.
//
// Schema expectations:
//
//	CREATE TABLE strava_connection (
//	    user_id       TEXT PRIMARY KEY,
//	    athlete_id    BIGINT NOT NULL,
//	    athlete_name  TEXT,
//	    access_token  TEXT NOT NULL,
//	    refresh_token TEXT NOT NULL,
//	    expires_at    BIGINT NOT NULL,
//	    last_sync_at  TIMESTAMPTZ
//	);
//	CREATE TABLE strava_activity (
//	    id                 BIGINT PRIMARY KEY,
//	    user_id            TEXT NOT NULL,
//	    name               TEXT NOT NULL,
//	    type               TEXT NOT NULL,
//	    start_date         TIMESTAMPTZ NOT NULL,
//	    elapsed_time       INTEGER NOT NULL,
//	    moving_time        INTEGER NOT NULL,
//	    distance           DOUBLE PRECISION NOT NULL,
//	    calories           DOUBLE PRECISION,
//	    average_heart_rate DOUBLE PRECISION,
//	    raw                JSONB
//	);
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// UpsertConnection creates or replaces the user's connection row. There is
// at most one connection per user.
func (r *Repo) UpsertConnection(ctx context.Context, conn Connection) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.strava.upsertConnection")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	_, err = r.db.Exec(ctx, `
		INSERT INTO strava_connection (
			user_id, athlete_id, athlete_name, access_token, refresh_token, expires_at, last_sync_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			athlete_id = EXCLUDED.athlete_id,
			athlete_name = EXCLUDED.athlete_name,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at`,
		conn.UserID, conn.AthleteID, conn.AthleteName,
		conn.AccessToken, conn.RefreshToken, conn.ExpiresAt, conn.LastSyncAt,
	)
	if err != nil {
		return fmt.Errorf("upsert strava connection: %w", err)
	}
	return nil
}

func (r *Repo) GetConnection(ctx context.Context, userID string) (_ *Connection, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.strava.getConnection")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var conn Connection
	err = r.db.QueryRow(ctx, `
		SELECT user_id, athlete_id, athlete_name, access_token, refresh_token, expires_at, last_sync_at
		FROM strava_connection
		WHERE user_id = $1`,
		userID,
	).Scan(
		&conn.UserID, &conn.AthleteID, &conn.AthleteName,
		&conn.AccessToken, &conn.RefreshToken, &conn.ExpiresAt, &conn.LastSyncAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("get strava connection: %w", err)
	}
	return &conn, nil
}

// UpdateTokens persists a rotated token grant. Called from the token
// manager before the new access token is handed out.
func (r *Repo) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt int64) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.strava.updateTokens")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tag, err := r.db.Exec(ctx, `
		UPDATE strava_connection
		SET access_token = $2, refresh_token = $3, expires_at = $4
		WHERE user_id = $1`,
		userID, accessToken, refreshToken, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("update strava tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotConnected
	}
	return nil
}

func (r *Repo) UpdateLastSync(ctx context.Context, userID string, lastSyncAt time.Time) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.strava.updateLastSync")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tag, err := r.db.Exec(ctx, `
		UPDATE strava_connection SET last_sync_at = $2 WHERE user_id = $1`,
		userID, lastSyncAt,
	)
	if err != nil {
		return fmt.Errorf("update strava last sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotConnected
	}
	return nil
}

func (r *Repo) DeleteConnection(ctx context.Context, userID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.strava.deleteConnection")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tag, err := r.db.Exec(ctx, `DELETE FROM strava_connection WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete strava connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotConnected
	}
	return nil
}

// UpsertActivities caches fetched activities in one transaction. Keyed on
// the provider's own id; existing rows are overwritten with the latest
// snapshot, the provider is the source of truth here. Returns how many rows
// were new vs refreshed.
func (r *Repo) UpsertActivities(ctx context.Context, userID string, activities []Activity) (imported, updated int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.strava.upsertActivities")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			log.Errorf("upsert strava activities, rollback: %s", rollbackErr)
		}
	}()

	for _, a := range activities {
		// xmax = 0 only holds for freshly inserted rows
		var inserted bool
		if err = tx.QueryRow(ctx, `
			INSERT INTO strava_activity (
				id, user_id, name, type, start_date, elapsed_time,
				moving_time, distance, calories, average_heart_rate, raw
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				type = EXCLUDED.type,
				start_date = EXCLUDED.start_date,
				elapsed_time = EXCLUDED.elapsed_time,
				moving_time = EXCLUDED.moving_time,
				distance = EXCLUDED.distance,
				calories = EXCLUDED.calories,
				average_heart_rate = EXCLUDED.average_heart_rate,
				raw = EXCLUDED.raw
			RETURNING (xmax = 0)`,
			a.ID, userID, a.Name, a.Type, a.StartDate, a.ElapsedTime,
			a.MovingTime, a.Distance, a.Calories, a.AverageHeartRate, []byte(a.Raw),
		).Scan(&inserted); err != nil {
			return 0, 0, fmt.Errorf("upsert strava activity %d: %w", a.ID, err)
		}
		if inserted {
			imported++
		} else {
			updated++
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit tx: %w", err)
	}
	return imported, updated, nil
}
