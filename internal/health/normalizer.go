package health

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawWorkoutSample is one device workout sample as the mobile bridge reads it
// off the health store, before normalization.
type RawWorkoutSample struct {
	UUID         string    `json:"uuid"`
	ActivityType string    `json:"activityType"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	EnergyBurned *float64  `json:"energyBurned,omitempty"`
	DistanceKm   *float64  `json:"distanceKm,omitempty"`
	AvgHeartRate *float64  `json:"avgHeartRate,omitempty"`
	SourceDevice *string   `json:"sourceDevice,omitempty"`
}

// RawSleepSample is one sleep interval sample with the device's own stage code.
type RawSleepSample struct {
	Stage   string  `json:"stage"`
	Minutes float64 `json:"minutes"`
}

var healthKitActivityTypes = map[string]string{
	"running":                     ActivityRunning,
	"walking":                     ActivityWalking,
	"cycling":                     ActivityCycling,
	"functionalStrengthTraining":  ActivityStrength,
	"traditionalStrengthTraining": ActivityStrength,
	"elliptical":                  ActivityElliptical,
	"rowing":                      ActivityRowing,
	"swimming":                    ActivitySwimming,
}

// NormalizeActivityType maps the device's activity-type vocabulary onto the
// canonical labels. Unrecognized types bucket into the generic workout label
// instead of failing.
func NormalizeActivityType(raw string) string {
	if t, ok := healthKitActivityTypes[raw]; ok {
		return t
	}
	return ActivityWorkout
}

// NormalizeWorkoutSample converts a single device sample into a canonical
// workout. The device sample uuid becomes the external id so re-imports of
// overlapping windows dedupe on it.
func NormalizeWorkoutSample(sample RawWorkoutSample) Workout {
	w := Workout{
		ID:           uuid.NewString(),
		Source:       SourceAppleHealth,
		StartTime:    sample.StartDate,
		EndTime:      sample.EndDate,
		Type:         NormalizeActivityType(sample.ActivityType),
		Calories:     sample.EnergyBurned,
		DistanceKm:   sample.DistanceKm,
		AvgHeartRate: sample.AvgHeartRate,
		Device:       sample.SourceDevice,
		CreatedAt:    time.Now().UTC(),
	}
	if sample.UUID != "" {
		externalID := sample.UUID
		w.ExternalID = &externalID
	}
	return w
}

func NormalizeWorkoutSamples(samples []RawWorkoutSample) []Workout {
	workouts := make([]Workout, 0, len(samples))
	for _, s := range samples {
		workouts = append(workouts, NormalizeWorkoutSample(s))
	}
	return workouts
}

var sleepStageCodes = map[string]string{
	"awake": StageAwake,
	"rem":   StageREM,
	"core":  StageCore,
	"deep":  StageDeep,
}

// FoldSleepStages buckets raw sleep samples into the fixed stage vocabulary,
// summing minutes per stage. Unknown stage codes fold into Core. Returns nil
// when there are no samples, so the field stays absent on the metric.
func FoldSleepStages(samples []RawSleepSample) []SleepStage {
	if len(samples) == 0 {
		return nil
	}

	minutesPerStage := map[string]float64{}
	for _, s := range samples {
		stage, ok := sleepStageCodes[strings.ToLower(s.Stage)]
		if !ok {
			stage = StageCore
		}
		minutesPerStage[stage] += s.Minutes
	}

	// stable order for storage and display
	stages := make([]SleepStage, 0, len(minutesPerStage))
	for _, stage := range []string{StageAwake, StageREM, StageCore, StageDeep} {
		if minutes, ok := minutesPerStage[stage]; ok {
			stages = append(stages, SleepStage{Stage: stage, Minutes: minutes})
		}
	}
	return stages
}

// NormalizeStravaType maps the provider's free-text activity type to either
// Running or Cardio. Everything that is not a run, including activity types
// we have never seen, lands in Cardio so nothing gets dropped.
// TODO: revisit the Cardio default, it misfiles yoga and similar types.
func NormalizeStravaType(raw string) string {
	if strings.ToLower(raw) == "run" {
		return ActivityRunning
	}
	return ActivityCardio
}
