package health

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hybridhouse/journal/internal/telemetry/tracing"
)

// DaySource reads one day's worth of a single sub-measurement. Each call
// returns a nil value when the source has no data for that day.
type DaySource interface {
	Steps(ctx context.Context, dateISO string) (*int, error)
	SleepSamples(ctx context.Context, dateISO string) ([]RawSleepSample, error)
	AvgHeartRate(ctx context.Context, dateISO string) (*float64, error)
	CaloriesBurned(ctx context.Context, dateISO string) (*float64, error)
}

// Collector joins the independent per-day sub-measurements of a DaySource
// into DailyMetric records.
type Collector struct {
	source         DaySource
	subtaskTimeout time.Duration
}

func NewCollector(source DaySource) *Collector {
	return &Collector{
		source:         source,
		subtaskTimeout: 10 * time.Second,
	}
}

// CollectDay fetches all sub-measurements for one day concurrently and joins
// them into a single metric. A sub-measurement that fails or times out leaves
// its field absent; the metric is still emitted. Partial data is kept, never
// discarded.
func (c *Collector) CollectDay(ctx context.Context, dateISO string) (_ DailyMetric, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "health.collector.collectDay")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	metric := DailyMetric{
		ID:        uuid.NewString(),
		DateISO:   dateISO,
		Source:    SourceAppleHealth,
		CreatedAt: time.Now().UTC(),
	}
	if err = metric.Validate(); err != nil {
		return DailyMetric{}, err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		subCtx, cancel := context.WithTimeout(gctx, c.subtaskTimeout)
		defer cancel()
		steps, stepsErr := c.source.Steps(subCtx, dateISO)
		if stepsErr != nil {
			log.Debugf("collect day %s: steps unavailable: %s", dateISO, stepsErr)
			return nil
		}
		metric.Steps = steps
		return nil
	})

	g.Go(func() error {
		subCtx, cancel := context.WithTimeout(gctx, c.subtaskTimeout)
		defer cancel()
		samples, sleepErr := c.source.SleepSamples(subCtx, dateISO)
		if sleepErr != nil {
			log.Debugf("collect day %s: sleep unavailable: %s", dateISO, sleepErr)
			return nil
		}
		stages := FoldSleepStages(samples)
		if stages == nil {
			return nil
		}
		metric.SleepStages = stages
		var totalMinutes float64
		for _, s := range stages {
			if s.Stage != StageAwake {
				totalMinutes += s.Minutes
			}
		}
		hours := totalMinutes / 60
		metric.SleepHours = &hours
		return nil
	})

	g.Go(func() error {
		subCtx, cancel := context.WithTimeout(gctx, c.subtaskTimeout)
		defer cancel()
		bpm, bpmErr := c.source.AvgHeartRate(subCtx, dateISO)
		if bpmErr != nil {
			log.Debugf("collect day %s: heart rate unavailable: %s", dateISO, bpmErr)
			return nil
		}
		metric.AvgBPM = bpm
		return nil
	})

	g.Go(func() error {
		subCtx, cancel := context.WithTimeout(gctx, c.subtaskTimeout)
		defer cancel()
		calories, calErr := c.source.CaloriesBurned(subCtx, dateISO)
		if calErr != nil {
			log.Debugf("collect day %s: calories unavailable: %s", dateISO, calErr)
			return nil
		}
		metric.CaloriesBurned = calories
		return nil
	})

	// sub-tasks never return errors, the wait is just the join point
	if err = g.Wait(); err != nil {
		return DailyMetric{}, err
	}

	return metric, nil
}

// CollectDays emits one metric per day in [from, to] inclusive.
func (c *Collector) CollectDays(ctx context.Context, from, to time.Time) ([]DailyMetric, error) {
	var metrics []DailyMetric
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		metric, err := c.CollectDay(ctx, day.Format(dateISOLayout))
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	return metrics, nil
}
