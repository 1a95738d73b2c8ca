package predictor

import (
	"time"

	"github.com/shardpulse/shardpulse/internal/models"
)

// Weighting between the trend extrapolation and the seasonal adjustment
// in the hybrid strategy
const (
	hybridTrendWeight    = 0.7
	hybridSeasonalWeight = 0.3
)

// HybridForecaster combines linear trend extrapolation with a seasonal
// adjustment. The seasonal signal is the deviation of the newest sample from
// the mean of same-phase historical samples, where phase is the sample's
// position within a repeating cycle of SeasonalPeriod buckets. With fewer
// than two full cycles of history the seasonal term contributes nothing and
// the result reduces to the trend forecast.
type HybridForecaster struct{}

func init() {
	RegisterForecaster(&HybridForecaster{})
}

// Name returns the strategy name
func (f *HybridForecaster) Name() Strategy {
	return StrategyHybrid
}

// Forecast blends trend and seasonal estimates per metric
func (f *HybridForecaster) Forecast(samples []models.MetricSample, horizon time.Duration, cfg Config) Forecast {
	window := recentWindow(samples, cfg.TrendWindow)
	steps := stepsAhead(window, horizon, cfg.Interval)

	forecastMetric := func(value func(models.MetricSample) float64) float64 {
		trend := extrapolate(window, steps, value)

		last := value(samples[len(samples)-1])
		seasonal := last + seasonalDeviation(samples, cfg.SeasonalPeriod, value)

		return clamp(hybridTrendWeight*trend + hybridSeasonalWeight*seasonal)
	}

	return Forecast{
		CPU:         forecastMetric(func(s models.MetricSample) float64 { return s.CPU }),
		Memory:      forecastMetric(func(s models.MetricSample) float64 { return s.Memory }),
		NetworkLoad: forecastMetric(func(s models.MetricSample) float64 { return s.NetworkLoad }),
		Confidence:  confidence(samples),
		Strategy:    StrategyHybrid,
		GeneratedAt: time.Now(),
	}
}

// seasonalDeviation returns how far the newest sample sits from the mean of
// earlier samples in the same phase of the cycle. Zero when history is short
// of two full cycles or the phase has no earlier occupants.
func seasonalDeviation(samples []models.MetricSample, period int, value func(models.MetricSample) float64) float64 {
	if period < 2 || len(samples) < period*2 {
		return 0
	}

	lastIdx := len(samples) - 1
	phase := lastIdx % period

	sum := 0.0
	count := 0
	for i := phase; i < lastIdx; i += period {
		sum += value(samples[i])
		count++
	}
	if count == 0 {
		return 0
	}

	return value(samples[lastIdx]) - sum/float64(count)
}
