package journal

import (
	"errors"
	"fmt"
	"time"
)

// Lift labels, one top-set per entry.
const (
	LiftDeadlift          = "Deadlift"
	LiftBackSquat         = "BackSquat"
	LiftFrontSquat        = "FrontSquat"
	LiftBenchPress        = "BenchPress"
	LiftInclineBenchPress = "InclineBenchPress"
)

// Cardio machine labels.
const (
	MachineRowErg      = "RowErg"
	MachineBikeErg     = "BikeErg"
	MachineSkiErg      = "SkiErg"
	MachineAssaultBike = "AssaultBike"
)

// Run input types: which of time / pace the user entered, the other one is
// derived once at entry time and stored for display.
const (
	RunInputTime = "TIME"
	RunInputPace = "PACE"
)

const dateISOLayout = "2006-01-02"

var (
	ErrUnknownLift     = errors.New("unknown lift")
	ErrUnknownMachine  = errors.New("unknown machine")
	ErrBadDate         = errors.New("dateISO not a yyyy-mm-dd date")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrDuplicateEntry  = errors.New("duplicate entry")
	ErrBadRunInputType = errors.New("run input type must be TIME or PACE")
)

var knownLifts = map[string]struct{}{
	LiftDeadlift:          {},
	LiftBackSquat:         {},
	LiftFrontSquat:        {},
	LiftBenchPress:        {},
	LiftInclineBenchPress: {},
}

var knownMachines = map[string]struct{}{
	MachineRowErg:      {},
	MachineBikeErg:     {},
	MachineSkiErg:      {},
	MachineAssaultBike: {},
}

// LiftEntry is one logged top set of a barbell lift.
type LiftEntry struct {
	ID        string    `json:"id"`
	DateISO   string    `json:"dateISO"`
	Lift      string    `json:"lift"`
	WeightKg  float64   `json:"weightKg"`
	Reps      int       `json:"reps"`
	RPE       *float64  `json:"rpe,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *LiftEntry) Validate() error {
	if _, ok := knownLifts[e.Lift]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLift, e.Lift)
	}
	if _, err := time.Parse(dateISOLayout, e.DateISO); err != nil {
		return ErrBadDate
	}
	if e.WeightKg <= 0 {
		return errors.New("weightKg must be positive")
	}
	if e.Reps <= 0 {
		return errors.New("reps must be positive")
	}
	if e.RPE != nil && (*e.RPE < 1 || *e.RPE > 10) {
		return errors.New("rpe must be within [1, 10]")
	}
	return nil
}

// CardioEntry is one machine cardio effort.
type CardioEntry struct {
	ID        string    `json:"id"`
	DateISO   string    `json:"dateISO"`
	Machine   string    `json:"machine"`
	Seconds   int       `json:"seconds"`
	Calories  float64   `json:"calories"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *CardioEntry) Validate() error {
	if _, ok := knownMachines[e.Machine]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMachine, e.Machine)
	}
	if _, err := time.Parse(dateISOLayout, e.DateISO); err != nil {
		return ErrBadDate
	}
	if e.Seconds <= 0 {
		return errors.New("seconds must be positive")
	}
	if e.Calories < 0 {
		return errors.New("calories must not be negative")
	}
	return nil
}

// RunEntry is one logged run (possibly repeated rounds of the same
// distance). Exactly one of TimeSeconds / PaceSecPerKm is authoritative per
// InputType; Derive fills in the other one.
type RunEntry struct {
	ID             string    `json:"id"`
	DateISO        string    `json:"dateISO"`
	DistanceMeters float64   `json:"distanceMeters"`
	InputType      string    `json:"inputType"`
	TimeSeconds    *float64  `json:"timeSeconds,omitempty"`
	PaceSecPerKm   *float64  `json:"paceSecPerKm,omitempty"`
	Rounds         int       `json:"rounds"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (e *RunEntry) Validate() error {
	if _, err := time.Parse(dateISOLayout, e.DateISO); err != nil {
		return ErrBadDate
	}
	if e.DistanceMeters <= 0 {
		return errors.New("distanceMeters must be positive")
	}
	if e.Rounds < 1 {
		return errors.New("rounds must be at least 1")
	}
	switch e.InputType {
	case RunInputTime:
		if e.TimeSeconds == nil || *e.TimeSeconds <= 0 {
			return errors.New("timeSeconds must be positive for TIME input")
		}
	case RunInputPace:
		if e.PaceSecPerKm == nil || *e.PaceSecPerKm <= 0 {
			return errors.New("paceSecPerKm must be positive for PACE input")
		}
	default:
		return ErrBadRunInputType
	}
	return nil
}

// Derive computes the non-authoritative run representation from the
// authoritative one. Called once at entry time; the stored values are never
// recomputed later.
func (e *RunEntry) Derive() {
	distanceKm := e.DistanceMeters / 1000
	switch e.InputType {
	case RunInputTime:
		pace := *e.TimeSeconds / distanceKm
		e.PaceSecPerKm = &pace
	case RunInputPace:
		seconds := *e.PaceSecPerKm * distanceKm
		e.TimeSeconds = &seconds
	}
}
