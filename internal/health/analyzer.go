package health

import "time"

// DayActivityPoint is one day in a gap-filled workouts-per-day series.
type DayActivityPoint struct {
	DateISO  string `json:"dateISO"`
	Workouts int    `json:"workouts"`
}

// WorkoutsPerDay builds a workouts-per-day series over the window
// [today - windowDays, today], both days inclusive, so the series always has
// windowDays+1 points. Days without any workout contribute a zero point, the
// series has no gaps.
func WorkoutsPerDay(workouts []Workout, today time.Time, windowDays int) []DayActivityPoint {
	today = today.UTC().Truncate(24 * time.Hour)
	windowStart := today.AddDate(0, 0, -windowDays)

	countPerDay := map[string]int{}
	for _, w := range workouts {
		day := w.StartTime.UTC().Truncate(24 * time.Hour)
		if day.Before(windowStart) || day.After(today) {
			continue
		}
		countPerDay[day.Format(dateISOLayout)]++
	}

	series := make([]DayActivityPoint, 0, windowDays+1)
	for day := windowStart; !day.After(today); day = day.AddDate(0, 0, 1) {
		dateISO := day.Format(dateISOLayout)
		series = append(series, DayActivityPoint{
			DateISO:  dateISO,
			Workouts: countPerDay[dateISO],
		})
	}
	return series
}

// PeriodAverages are the window averages of the daily aggregates. Each field
// averages only over the days that actually carried that field; a field no
// day carried stays absent.
type PeriodAverages struct {
	Steps          *float64 `json:"steps,omitempty"`
	SleepHours     *float64 `json:"sleepHours,omitempty"`
	AvgBPM         *float64 `json:"avgBPM,omitempty"`
	CaloriesBurned *float64 `json:"caloriesBurned,omitempty"`
}

func AverageMetrics(metrics []DailyMetric) PeriodAverages {
	var (
		avgs      PeriodAverages
		steps     float64
		stepsN    int
		sleep     float64
		sleepN    int
		bpm       float64
		bpmN      int
		calories  float64
		caloriesN int
	)

	for _, m := range metrics {
		if m.Steps != nil {
			steps += float64(*m.Steps)
			stepsN++
		}
		if m.SleepHours != nil {
			sleep += *m.SleepHours
			sleepN++
		}
		if m.AvgBPM != nil {
			bpm += *m.AvgBPM
			bpmN++
		}
		if m.CaloriesBurned != nil {
			calories += *m.CaloriesBurned
			caloriesN++
		}
	}

	if stepsN > 0 {
		avg := steps / float64(stepsN)
		avgs.Steps = &avg
	}
	if sleepN > 0 {
		avg := sleep / float64(sleepN)
		avgs.SleepHours = &avg
	}
	if bpmN > 0 {
		avg := bpm / float64(bpmN)
		avgs.AvgBPM = &avg
	}
	if caloriesN > 0 {
		avg := calories / float64(caloriesN)
		avgs.CaloriesBurned = &avg
	}

	return avgs
}

// StageShare is one sleep stage's share of the night.
type StageShare struct {
	Stage   string  `json:"stage"`
	Minutes float64 `json:"minutes"`
	Percent float64 `json:"percent"`
}

// SleepComposition turns a day's per-stage totals into percentages of the
// whole night (awake time included). Returns nil when there are no stages.
func SleepComposition(stages []SleepStage) []StageShare {
	if len(stages) == 0 {
		return nil
	}

	var totalMinutes float64
	for _, s := range stages {
		totalMinutes += s.Minutes
	}
	if totalMinutes == 0 {
		return nil
	}

	shares := make([]StageShare, 0, len(stages))
	for _, s := range stages {
		shares = append(shares, StageShare{
			Stage:   s.Stage,
			Minutes: s.Minutes,
			Percent: s.Minutes / totalMinutes * 100,
		})
	}
	return shares
}
