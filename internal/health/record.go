package health

import (
	"errors"
	"fmt"
	"time"
)

// Normalized activity type labels. Anything a source reports outside of
// this vocabulary lands in ActivityWorkout.
const (
	ActivityRunning    = "Running"
	ActivityWalking    = "Walking"
	ActivityCycling    = "Cycling"
	ActivityStrength   = "Strength"
	ActivityRowing     = "Rowing"
	ActivitySwimming   = "Swimming"
	ActivityElliptical = "Elliptical"
	ActivityCardio     = "Cardio"
	ActivityWorkout    = "Workout"
)

// Known record sources.
const (
	SourceAppleHealth = "Apple Health"
	SourceStrava      = "Strava"
	SourceManual      = "manual"
)

// Sleep stage vocabulary. Raw stage codes outside of it fold into StageCore.
const (
	StageAwake = "Awake"
	StageREM   = "REM"
	StageCore  = "Core"
	StageDeep  = "Deep"
)

const dateISOLayout = "2006-01-02"

var (
	ErrMissingSource = errors.New("source empty")
	ErrBadTimeRange  = errors.New("endTime before startTime")
	ErrBadDate       = errors.New("dateISO not a yyyy-mm-dd date")
)

// Workout is a single canonical workout session, either manually entered,
// imported from a wearable, or normalized from a third-party activity.
// Optional fields are pointers: absence means "unknown", never zero.
type Workout struct {
	ID           string    `json:"id"`
	ExternalID   *string   `json:"externalId,omitempty"`
	Source       string    `json:"source"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Type         string    `json:"type"`
	Calories     *float64  `json:"calories,omitempty"`
	DistanceKm   *float64  `json:"distanceKm,omitempty"`
	AvgHeartRate *float64  `json:"avgHeartRate,omitempty"`
	Device       *string   `json:"device,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (w *Workout) Validate() error {
	if w.Source == "" {
		return ErrMissingSource
	}
	if w.StartTime.IsZero() || w.EndTime.IsZero() {
		return errors.New("startTime or endTime empty")
	}
	if w.EndTime.Before(w.StartTime) {
		return ErrBadTimeRange
	}
	if w.Type == "" {
		return errors.New("type empty")
	}
	return nil
}

// NaturalKey is the de-dup identity of a workout: (source, externalId) when
// the source system gave us one, (source, startTime, endTime, type) otherwise.
func (w *Workout) NaturalKey() string {
	if w.ExternalID != nil && *w.ExternalID != "" {
		return fmt.Sprintf("%s|%s", w.Source, *w.ExternalID)
	}
	return fmt.Sprintf(
		"%s|%s|%s|%s",
		w.Source, w.StartTime.UTC().Format(time.RFC3339), w.EndTime.UTC().Format(time.RFC3339), w.Type,
	)
}

type SleepStage struct {
	Stage   string  `json:"stage"`
	Minutes float64 `json:"minutes"`
}

// DailyMetric holds one day's worth of health aggregates for one source.
// Unique per (source, dateISO); re-ingestion of the same day is a no-op.
type DailyMetric struct {
	ID             string       `json:"id"`
	DateISO        string       `json:"dateISO"`
	Source         string       `json:"source"`
	Steps          *int         `json:"steps,omitempty"`
	SleepHours     *float64     `json:"sleepHours,omitempty"`
	AvgBPM         *float64     `json:"avgBPM,omitempty"`
	CaloriesBurned *float64     `json:"caloriesBurned,omitempty"`
	SleepStages    []SleepStage `json:"sleepStages,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func (m *DailyMetric) Validate() error {
	if m.Source == "" {
		return ErrMissingSource
	}
	if _, err := time.Parse(dateISOLayout, m.DateISO); err != nil {
		return ErrBadDate
	}
	return nil
}

func (m *DailyMetric) NaturalKey() string {
	return fmt.Sprintf("%s|%s", m.Source, m.DateISO)
}

// UpsertResult reports the outcome of a batch upsert. Skipped rows are
// natural-key conflicts, counted and silently ignored - not errors.
type UpsertResult struct {
	Inserted int
	Skipped  int
}
