package predictor

import (
	"time"

	"github.com/shardpulse/shardpulse/internal/models"
)

// TrendForecaster extrapolates each metric linearly from a least-squares fit
// over the most recent sub-window
type TrendForecaster struct{}

func init() {
	RegisterForecaster(&TrendForecaster{})
}

// Name returns the strategy name
func (f *TrendForecaster) Name() Strategy {
	return StrategyTrend
}

// Forecast extrapolates the fitted line stepsAhead intervals past the window
func (f *TrendForecaster) Forecast(samples []models.MetricSample, horizon time.Duration, cfg Config) Forecast {
	window := recentWindow(samples, cfg.TrendWindow)
	steps := stepsAhead(window, horizon, cfg.Interval)

	return Forecast{
		CPU:         clamp(extrapolate(window, steps, func(s models.MetricSample) float64 { return s.CPU })),
		Memory:      clamp(extrapolate(window, steps, func(s models.MetricSample) float64 { return s.Memory })),
		NetworkLoad: clamp(extrapolate(window, steps, func(s models.MetricSample) float64 { return s.NetworkLoad })),
		Confidence:  confidence(samples),
		Strategy:    StrategyTrend,
		GeneratedAt: time.Now(),
	}
}

// recentWindow returns the most recent n samples
func recentWindow(samples []models.MetricSample, n int) []models.MetricSample {
	if n > 0 && len(samples) > n {
		return samples[len(samples)-n:]
	}
	return samples
}

// extrapolate fits value = slope*i + intercept over the window and evaluates
// it steps intervals past the last sample
func extrapolate(samples []models.MetricSample, steps float64, value func(models.MetricSample) float64) float64 {
	n := float64(len(samples))
	if n == 0 {
		return 0
	}
	if n == 1 {
		return value(samples[0])
	}

	sumX, sumY, sumXY, sumX2 := 0.0, 0.0, 0.0, 0.0
	for i, s := range samples {
		x := float64(i)
		y := value(s)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return value(samples[len(samples)-1])
	}

	slope := (n*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / n

	return intercept + slope*(n-1+steps)
}
