package journal

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE1RM(t *testing.T) {
	assert.InDelta(t, 116.67, E1RM(100, 5), 0.01)
	assert.InDelta(t, 100, E1RM(100, 0), 1e-9)

	// for fixed reps, heavier top set means higher estimate
	assert.Less(t, E1RM(100, 5), E1RM(102.5, 5))
	assert.Less(t, E1RM(60, 8), E1RM(61, 8))
}

func TestTonnageTons(t *testing.T) {
	entries := []LiftEntry{
		{WeightKg: 100, Reps: 5},
		{WeightKg: 120, Reps: 3},
		{WeightKg: 80, Reps: 10},
	}
	// 500 + 360 + 800 = 1660 kg
	assert.InDelta(t, 1.66, TonnageTons(entries), 1e-9)
	assert.InDelta(t, 0, TonnageTons(nil), 1e-9)
}

func TestTonnageTons_random(t *testing.T) {
	var (
		entries    []LiftEntry
		expectedKg float64
	)
	for i := 0; i < 50; i++ {
		weightKg := gofakeit.Float64Range(20, 250)
		reps := gofakeit.Number(1, 12)
		expectedKg += weightKg * float64(reps)
		entries = append(entries, LiftEntry{WeightKg: weightKg, Reps: reps})
	}
	assert.InDelta(t, expectedKg/1000, TonnageTons(entries), 1e-6)
}

func TestPaceRoundTrip(t *testing.T) {
	timeSeconds := 228.0
	entry := RunEntry{
		DateISO:        "2024-05-01",
		DistanceMeters: 800,
		InputType:      RunInputTime,
		TimeSeconds:    &timeSeconds,
		Rounds:         1,
	}
	require.NoError(t, entry.Validate())
	entry.Derive()

	require.NotNil(t, entry.PaceSecPerKm)
	assert.InDelta(t, 285, *entry.PaceSecPerKm, 1e-9)

	reconstructed := RunTimeSeconds(*entry.PaceSecPerKm, entry.DistanceMeters)
	assert.InDelta(t, timeSeconds, reconstructed, 1e-6)
}

func TestDeriveFromPace(t *testing.T) {
	pace := 270.0
	entry := RunEntry{
		DateISO:        "2024-05-01",
		DistanceMeters: 5000,
		InputType:      RunInputPace,
		PaceSecPerKm:   &pace,
		Rounds:         1,
	}
	require.NoError(t, entry.Validate())
	entry.Derive()

	require.NotNil(t, entry.TimeSeconds)
	assert.InDelta(t, 1350, *entry.TimeSeconds, 1e-9)
}

func liftEntryWithRPE(dateISO string, weightKg float64, reps int, rpe float64) LiftEntry {
	return LiftEntry{DateISO: dateISO, Lift: LiftDeadlift, WeightKg: weightKg, Reps: reps, RPE: &rpe}
}

func TestLiftProgress(t *testing.T) {
	ctx := context.Background()
	repo := NewRepoMock()
	analyzer := NewAnalyzer(repo, DefaultRPEMinEntries)

	require.NoError(t, repo.AddLiftEntry(ctx, LiftEntry{
		ID: "1", DateISO: "2024-02-01", Lift: LiftDeadlift, WeightKg: 140, Reps: 5,
	}))
	require.NoError(t, repo.AddLiftEntry(ctx, LiftEntry{
		ID: "2", DateISO: "2024-01-01", Lift: LiftDeadlift, WeightKg: 130, Reps: 5,
	}))

	progress, err := analyzer.LiftProgress(ctx, LiftDeadlift)
	require.NoError(t, err)

	require.Len(t, progress.Points, 2)
	assert.Equal(t, "2024-01-01", progress.Points[0].DateISO)
	assert.Equal(t, "2024-02-01", progress.Points[1].DateISO)
	assert.InDelta(t, E1RM(130, 5), progress.Points[0].E1RM, 1e-9)
	assert.InDelta(t, 1.35, progress.TonnageTons, 1e-9)
	assert.False(t, progress.RPEAvailable)
}

func TestLiftProgress_RPEGating(t *testing.T) {
	ctx := context.Background()
	repo := NewRepoMock()
	analyzer := NewAnalyzer(repo, DefaultRPEMinEntries)

	e1 := liftEntryWithRPE("2024-01-01", 100, 5, 8)
	e1.ID = "1"
	e2 := liftEntryWithRPE("2024-01-08", 102.5, 5, 8.5)
	e2.ID = "2"
	require.NoError(t, repo.AddLiftEntry(ctx, e1))
	require.NoError(t, repo.AddLiftEntry(ctx, e2))

	// two entries with rpe, threshold is three
	progress, err := analyzer.LiftProgress(ctx, LiftDeadlift)
	require.NoError(t, err)
	assert.False(t, progress.RPEAvailable)

	e3 := liftEntryWithRPE("2024-01-15", 105, 5, 9)
	e3.ID = "3"
	require.NoError(t, repo.AddLiftEntry(ctx, e3))

	progress, err = analyzer.LiftProgress(ctx, LiftDeadlift)
	require.NoError(t, err)
	assert.True(t, progress.RPEAvailable)

	// threshold is configurable
	strict := NewAnalyzer(repo, 5)
	progress, err = strict.LiftProgress(ctx, LiftDeadlift)
	require.NoError(t, err)
	assert.False(t, progress.RPEAvailable)
}

func TestLiftProgress_UnknownLift(t *testing.T) {
	analyzer := NewAnalyzer(NewRepoMock(), DefaultRPEMinEntries)
	_, err := analyzer.LiftProgress(context.Background(), "CurlBro")
	assert.ErrorIs(t, err, ErrUnknownLift)
}
