package capacity

import "github.com/shardpulse/shardpulse/internal/models"

// DefaultMemoryPressureThreshold is the memory% above which effective
// capacity starts to be penalized
const DefaultMemoryPressureThreshold = 70.0

// Estimator computes a node's effective capacity from a snapshot of its
// declared capabilities and live metrics. Stateless; safe for concurrent use.
type Estimator struct {
	memoryPressureThreshold float64
}

// NewEstimator creates an estimator with the given memory pressure threshold.
// Values outside (0, 100) fall back to the default.
func NewEstimator(memoryPressureThreshold float64) *Estimator {
	if memoryPressureThreshold <= 0 || memoryPressureThreshold >= 100 {
		memoryPressureThreshold = DefaultMemoryPressureThreshold
	}
	return &Estimator{memoryPressureThreshold: memoryPressureThreshold}
}

// Estimate returns the node's effective capacity score:
// processing_power × health_score × (1 − memory_pressure_penalty).
// The penalty is 0 below the threshold and ramps linearly to 1 at 100% memory.
func (e *Estimator) Estimate(node models.Node) float64 {
	power := node.Capabilities.ProcessingPower
	if power <= 0 {
		return 0
	}

	health := node.HealthScore
	if health < 0 {
		health = 0
	} else if health > 1 {
		health = 1
	}

	return power * health * (1 - e.memoryPressurePenalty(node.Metrics.MemoryUsage))
}

// memoryPressurePenalty returns a penalty in [0, 1] for the given memory%
func (e *Estimator) memoryPressurePenalty(memory float64) float64 {
	if memory <= e.memoryPressureThreshold {
		return 0
	}
	if memory >= 100 {
		return 1
	}
	return (memory - e.memoryPressureThreshold) / (100 - e.memoryPressureThreshold)
}

// HealthScore derives a [0, 1] health score from live metrics.
// Uptime dominates; cpu and memory headroom contribute the rest.
func HealthScore(m models.NodeMetrics) float64 {
	uptime := clampPct(m.Uptime) / 100
	cpuHeadroom := 1 - clampPct(m.CPUUsage)/100
	memHeadroom := 1 - clampPct(m.MemoryUsage)/100

	score := 0.5*uptime + 0.25*cpuHeadroom + 0.25*memHeadroom
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
