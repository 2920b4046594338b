package journal

import (
	"context"
	"sort"

	"github.com/hybridhouse/journal/internal/telemetry/tracing"
)

// DefaultRPEMinEntries is how many RPE-carrying entries a lift needs before
// the RPE progress view is offered. A data-sufficiency heuristic, not a
// correctness rule.
const DefaultRPEMinEntries = 3

// E1RM estimates a one-rep max from a sub-maximal top set using the Epley
// linear approximation. Reps are not clamped, entry validation already
// guarantees reps > 0.
func E1RM(weightKg float64, reps int) float64 {
	return weightKg * (1 + float64(reps)/30)
}

// TonnageTons sums weight x reps over the entries, in metric tons. An
// approximation: only the top set per entry is recorded, not every set.
func TonnageTons(entries []LiftEntry) float64 {
	var totalKg float64
	for _, e := range entries {
		totalKg += e.WeightKg * float64(e.Reps)
	}
	return totalKg / 1000
}

// RunTimeSeconds reconstructs a run's elapsed time from its stored pace and
// distance. Round-trips with RunEntry.Derive within floating point
// tolerance.
func RunTimeSeconds(paceSecPerKm, distanceMeters float64) float64 {
	return paceSecPerKm * (distanceMeters / 1000)
}

// LiftProgressPoint is one entry's contribution to a lift progress chart.
type LiftProgressPoint struct {
	DateISO  string   `json:"dateISO"`
	WeightKg float64  `json:"weightKg"`
	Reps     int      `json:"reps"`
	E1RM     float64  `json:"e1rm"`
	RPE      *float64 `json:"rpe,omitempty"`
}

type LiftProgress struct {
	Lift         string              `json:"lift"`
	Points       []LiftProgressPoint `json:"points"`
	TonnageTons  float64             `json:"tonnageTons"`
	RPEAvailable bool                `json:"rpeAvailable"`
}

type liftEntriesRepo interface {
	ListLiftEntries(ctx context.Context, lift string) ([]LiftEntry, error)
}

// Analyzer derives progress views from logged entries. It holds no state of
// its own, canonical records stay in the repo.
type Analyzer struct {
	repo          liftEntriesRepo
	rpeMinEntries int
}

func NewAnalyzer(repo liftEntriesRepo, rpeMinEntries int) *Analyzer {
	if rpeMinEntries <= 0 {
		rpeMinEntries = DefaultRPEMinEntries
	}
	return &Analyzer{
		repo:          repo,
		rpeMinEntries: rpeMinEntries,
	}
}

// LiftProgress returns the per-entry e1RM curve and total tonnage for one
// lift, ordered by date. The RPE view is only flagged available once enough
// entries carry an RPE value.
func (a *Analyzer) LiftProgress(ctx context.Context, lift string) (*LiftProgress, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.journal.liftProgress")
	defer span.End()

	if _, ok := knownLifts[lift]; !ok {
		return nil, ErrUnknownLift
	}

	entries, err := a.repo.ListLiftEntries(ctx, lift)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DateISO < entries[j].DateISO
	})

	progress := &LiftProgress{
		Lift:        lift,
		Points:      make([]LiftProgressPoint, 0, len(entries)),
		TonnageTons: TonnageTons(entries),
	}

	withRPE := 0
	for _, e := range entries {
		if e.RPE != nil {
			withRPE++
		}
		progress.Points = append(progress.Points, LiftProgressPoint{
			DateISO:  e.DateISO,
			WeightKg: e.WeightKg,
			Reps:     e.Reps,
			E1RM:     E1RM(e.WeightKg, e.Reps),
			RPE:      e.RPE,
		})
	}
	progress.RPEAvailable = withRPE >= a.rpeMinEntries

	return progress, nil
}
