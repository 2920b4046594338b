package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/hybridhouse/journal/internal/health"
	"github.com/hybridhouse/journal/internal/journal"
	"github.com/hybridhouse/journal/internal/telemetry/tracing"
	"github.com/hybridhouse/journal/pkg"
)

const (
	defaultWindowDays = 30
	maxWindowDays     = 366
	dateISOLayout     = "2006-01-02"
)

type workoutsRepo interface {
	ListWorkouts(ctx context.Context, from, to time.Time) ([]health.Workout, error)
	ListDailyMetrics(ctx context.Context, fromISO, toISO string) ([]health.DailyMetric, error)
}

type liftsRepo interface {
	ListLiftEntries(ctx context.Context, lift string) ([]journal.LiftEntry, error)
}

// Overview is the landing page summary for one time window: journal totals
// plus the device-sourced activity series and daily averages.
type Overview struct {
	WindowDays     int                       `json:"windowDays"`
	WorkoutsCount  int                       `json:"workoutsCount"`
	TonnageTons    float64                   `json:"tonnageTons"`
	TotalReps      int                       `json:"totalReps"`
	HeaviestLiftKg float64                   `json:"heaviestLiftKg"`
	TimeHours      float64                   `json:"timeHours"`
	ActiveCalories float64                   `json:"activeCalories"`
	WorkoutsPerDay []health.DayActivityPoint `json:"workoutsPerDay"`
	Averages       health.PeriodAverages     `json:"averages"`
	LastSleep      []health.StageShare       `json:"lastSleep,omitempty"`
}

type Handler struct {
	healthRepo   workoutsRepo
	journalRepo  liftsRepo
	liftAnalyzer *journal.Analyzer
	nowFunc      func() time.Time
}

func NewHandler(healthRepo workoutsRepo, journalRepo liftsRepo, liftAnalyzer *journal.Analyzer) *Handler {
	return &Handler{
		healthRepo:   healthRepo,
		journalRepo:  journalRepo,
		liftAnalyzer: liftAnalyzer,
		nowFunc:      time.Now,
	}
}

func windowDaysParam(r *http.Request) (int, error) {
	daysParam := r.URL.Query().Get("days")
	if daysParam == "" {
		return defaultWindowDays, nil
	}
	days, err := strconv.Atoi(daysParam)
	if err != nil || days <= 0 || days > maxWindowDays {
		return 0, errors.New("invalid days param")
	}
	return days, nil
}

func (handler *Handler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.overview")
	defer span.End()

	days, err := windowDaysParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	today := handler.nowFunc().UTC().Truncate(24 * time.Hour)
	windowStart := today.AddDate(0, 0, -days)

	workouts, err := handler.healthRepo.ListWorkouts(ctx, windowStart, today.Add(24*time.Hour))
	if err != nil {
		log.Errorf("progress overview, list workouts: %s", err)
		http.Error(w, "failed to get progress overview", http.StatusInternalServerError)
		return
	}

	metrics, err := handler.healthRepo.ListDailyMetrics(
		ctx,
		windowStart.Format(dateISOLayout),
		today.Format(dateISOLayout),
	)
	if err != nil {
		log.Errorf("progress overview, list daily metrics: %s", err)
		http.Error(w, "failed to get progress overview", http.StatusInternalServerError)
		return
	}

	lifts, err := handler.liftsInWindow(ctx, windowStart.Format(dateISOLayout))
	if err != nil {
		log.Errorf("progress overview, list lift entries: %s", err)
		http.Error(w, "failed to get progress overview", http.StatusInternalServerError)
		return
	}

	overview := Overview{
		WindowDays:     days,
		WorkoutsCount:  len(workouts),
		TonnageTons:    journal.TonnageTons(lifts),
		WorkoutsPerDay: health.WorkoutsPerDay(workouts, today, days),
		Averages:       health.AverageMetrics(metrics),
		LastSleep:      lastSleepComposition(metrics),
	}
	for _, workout := range workouts {
		overview.TimeHours += workout.EndTime.Sub(workout.StartTime).Hours()
		if workout.Calories != nil {
			overview.ActiveCalories += *workout.Calories
		}
	}
	for _, l := range lifts {
		overview.TotalReps += l.Reps
		if l.WeightKg > overview.HeaviestLiftKg {
			overview.HeaviestLiftKg = l.WeightKg
		}
	}

	overviewJson, err := json.Marshal(overview)
	if err != nil {
		log.Errorf("progress overview, marshal response: %s", err)
		http.Error(w, "failed to get progress overview", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, overviewJson, http.StatusOK)
}

func (handler *Handler) HandleLift(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.lift")
	defer span.End()

	days, err := windowDaysParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lift := mux.Vars(r)["lift"]
	progress, err := handler.liftAnalyzer.LiftProgress(ctx, lift)
	if err != nil {
		if errors.Is(err, journal.ErrUnknownLift) {
			http.Error(w, "unknown lift", http.StatusBadRequest)
			return
		}
		log.Errorf("lift progress for %s: %s", lift, err)
		http.Error(w, "failed to get lift progress", http.StatusInternalServerError)
		return
	}

	fromISO := handler.nowFunc().UTC().AddDate(0, 0, -days).Format(dateISOLayout)
	points := progress.Points[:0:0]
	for _, p := range progress.Points {
		if p.DateISO >= fromISO {
			points = append(points, p)
		}
	}
	progress.Points = points

	progressJson, err := json.Marshal(progress)
	if err != nil {
		log.Errorf("lift progress, marshal response: %s", err)
		http.Error(w, "failed to get lift progress", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, progressJson, http.StatusOK)
}

func (handler *Handler) liftsInWindow(ctx context.Context, fromISO string) ([]journal.LiftEntry, error) {
	allLifts := []string{
		journal.LiftDeadlift,
		journal.LiftBackSquat,
		journal.LiftFrontSquat,
		journal.LiftBenchPress,
		journal.LiftInclineBenchPress,
	}

	var entries []journal.LiftEntry
	for _, lift := range allLifts {
		liftEntries, err := handler.journalRepo.ListLiftEntries(ctx, lift)
		if err != nil {
			return nil, err
		}
		for _, e := range liftEntries {
			if e.DateISO >= fromISO {
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

// lastSleepComposition picks the most recent day that has sleep stages.
func lastSleepComposition(metrics []health.DailyMetric) []health.StageShare {
	var latest *health.DailyMetric
	for i := range metrics {
		if len(metrics[i].SleepStages) == 0 {
			continue
		}
		if latest == nil || metrics[i].DateISO > latest.DateISO {
			latest = &metrics[i]
		}
	}
	if latest == nil {
		return nil
	}
	return health.SleepComposition(latest.SleepStages)
}
