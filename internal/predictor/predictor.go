package predictor

import (
	"math"
	"sync"
	"time"

	"github.com/shardpulse/shardpulse/internal/models"
)

// Strategy selects the forecasting algorithm
type Strategy string

const (
	StrategyReactive Strategy = "reactive"
	StrategyTrend    Strategy = "trend"
	StrategyHybrid   Strategy = "hybrid"
)

// InsufficientDataConfidence is the confidence ceiling applied when a node
// has fewer samples than the configured minimum
const InsufficientDataConfidence = 0.3

// Forecast is a predicted metric triple with a confidence score.
// Values are clamped to [0, 100]; Confidence is in [0, 1].
type Forecast struct {
	CPU         float64   `json:"cpu"`
	Memory      float64   `json:"memory"`
	NetworkLoad float64   `json:"network_load"`
	Confidence  float64   `json:"confidence"`
	Strategy    Strategy  `json:"strategy"` // strategy actually applied, after any fallback
	GeneratedAt time.Time `json:"generated_at"`
}

// Config holds forecasting parameters
type Config struct {
	Strategy       Strategy
	MinSamples     int           // below this the predictor degrades to reactive
	SeasonalPeriod int           // buckets per repeating cycle
	TrendWindow    int           // most recent samples used for the linear fit
	Interval       time.Duration // expected sample spacing, used when it cannot be derived
}

// DefaultConfig returns default forecasting parameters
func DefaultConfig() Config {
	return Config{
		Strategy:       StrategyHybrid,
		MinSamples:     3,
		SeasonalPeriod: 24,
		TrendWindow:    10,
		Interval:       30 * time.Second,
	}
}

// Forecaster is a single forecasting algorithm
type Forecaster interface {
	// Name returns the strategy name
	Name() Strategy
	// Forecast predicts the metric triple horizon ahead of the newest sample
	Forecast(samples []models.MetricSample, horizon time.Duration, cfg Config) Forecast
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Strategy]Forecaster)
)

// RegisterForecaster adds a forecaster to the registry
func RegisterForecaster(f Forecaster) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f.Name()] = f
}

// getForecaster returns a registered forecaster, falling back to reactive
func getForecaster(name Strategy) Forecaster {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if f, ok := registry[name]; ok {
		return f
	}
	return registry[StrategyReactive]
}

// Predictor produces load forecasts from a node's metric window
type Predictor struct {
	cfg Config
}

// New creates a predictor. Zero-valued config fields get defaults.
func New(cfg Config) *Predictor {
	def := DefaultConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.MinSamples < 1 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.SeasonalPeriod < 2 {
		cfg.SeasonalPeriod = def.SeasonalPeriod
	}
	if cfg.TrendWindow < 2 {
		cfg.TrendWindow = def.TrendWindow
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Predictor{cfg: cfg}
}

// Strategy returns the configured strategy
func (p *Predictor) Strategy() Strategy {
	return p.cfg.Strategy
}

// Forecast predicts the node's metrics horizon ahead of its newest sample.
// With fewer than MinSamples samples it degrades to the reactive strategy
// and caps confidence, regardless of the configured strategy.
func (p *Predictor) Forecast(samples []models.MetricSample, horizon time.Duration) Forecast {
	if len(samples) == 0 {
		return Forecast{Strategy: StrategyReactive, GeneratedAt: time.Now()}
	}

	if len(samples) < p.cfg.MinSamples {
		fc := getForecaster(StrategyReactive).Forecast(samples, horizon, p.cfg)
		if fc.Confidence > InsufficientDataConfidence {
			fc.Confidence = InsufficientDataConfidence
		}
		return fc
	}

	return getForecaster(p.cfg.Strategy).Forecast(samples, horizon, p.cfg)
}

// confidence scores a forecast: monotonically increasing in sample count,
// monotonically decreasing in sample variance
func confidence(samples []models.MetricSample) float64 {
	n := float64(len(samples))
	if n == 0 {
		return 0
	}

	countFactor := n / (n + 5)
	varFactor := 1 / (1 + sampleVariance(samples, func(s models.MetricSample) float64 { return s.CPU })/100)

	c := countFactor * varFactor
	if c > 1 {
		c = 1
	}
	return c
}

// sampleVariance computes population variance of one metric over the window
func sampleVariance(samples []models.MetricSample, value func(models.MetricSample) float64) float64 {
	n := float64(len(samples))
	if n == 0 {
		return 0
	}

	mean := 0.0
	for _, s := range samples {
		mean += value(s)
	}
	mean /= n

	variance := 0.0
	for _, s := range samples {
		d := value(s) - mean
		variance += d * d
	}
	return variance / n
}

// stepsAhead converts the horizon into a number of sample intervals,
// deriving the spacing from the window when possible
func stepsAhead(samples []models.MetricSample, horizon time.Duration, fallback time.Duration) float64 {
	interval := fallback
	if len(samples) >= 2 {
		span := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
		if span > 0 {
			interval = span / time.Duration(len(samples)-1)
		}
	}
	if interval <= 0 {
		return 1
	}

	steps := float64(horizon) / float64(interval)
	if steps < 1 {
		steps = 1
	}
	return steps
}

// clamp bounds a predicted metric to [0, 100]
func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
