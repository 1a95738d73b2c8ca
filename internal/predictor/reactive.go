package predictor

import (
	"time"

	"github.com/shardpulse/shardpulse/internal/models"
)

// ReactiveForecaster returns the newest sample unchanged. It is the fallback
// for every other strategy when the window is too small.
type ReactiveForecaster struct{}

func init() {
	RegisterForecaster(&ReactiveForecaster{})
}

// Name returns the strategy name
func (f *ReactiveForecaster) Name() Strategy {
	return StrategyReactive
}

// Forecast echoes the last observed sample
func (f *ReactiveForecaster) Forecast(samples []models.MetricSample, _ time.Duration, _ Config) Forecast {
	last := samples[len(samples)-1]

	return Forecast{
		CPU:         clamp(last.CPU),
		Memory:      clamp(last.Memory),
		NetworkLoad: clamp(last.NetworkLoad),
		Confidence:  confidence(samples),
		Strategy:    StrategyReactive,
		GeneratedAt: time.Now(),
	}
}
