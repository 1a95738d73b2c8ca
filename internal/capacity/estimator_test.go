package capacity

import (
	"testing"

	"github.com/shardpulse/shardpulse/internal/models"
)

func TestEstimator_Estimate(t *testing.T) {
	e := NewEstimator(70)

	tests := []struct {
		name     string
		node     models.Node
		expected float64
	}{
		{
			name: "full_health_no_pressure",
			node: models.Node{
				Capabilities: models.Capabilities{ProcessingPower: 100},
				HealthScore:  1.0,
				Metrics:      models.NodeMetrics{MemoryUsage: 50},
			},
			expected: 100,
		},
		{
			name: "half_health",
			node: models.Node{
				Capabilities: models.Capabilities{ProcessingPower: 100},
				HealthScore:  0.5,
				Metrics:      models.NodeMetrics{MemoryUsage: 30},
			},
			expected: 50,
		},
		{
			name: "memory_at_threshold_no_penalty",
			node: models.Node{
				Capabilities: models.Capabilities{ProcessingPower: 100},
				HealthScore:  1.0,
				Metrics:      models.NodeMetrics{MemoryUsage: 70},
			},
			expected: 100,
		},
		{
			name: "memory_pressure_halfway",
			node: models.Node{
				Capabilities: models.Capabilities{ProcessingPower: 100},
				HealthScore:  1.0,
				Metrics:      models.NodeMetrics{MemoryUsage: 85},
			},
			expected: 50, // penalty ramps linearly: (85-70)/(100-70) = 0.5
		},
		{
			name: "memory_saturated",
			node: models.Node{
				Capabilities: models.Capabilities{ProcessingPower: 100},
				HealthScore:  1.0,
				Metrics:      models.NodeMetrics{MemoryUsage: 100},
			},
			expected: 0,
		},
		{
			name:     "zero_power",
			node:     models.Node{HealthScore: 1.0},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Estimate(tt.node)
			if diff := got - tt.expected; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Estimate() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestEstimator_ClampsHealthScore(t *testing.T) {
	e := NewEstimator(70)

	node := models.Node{
		Capabilities: models.Capabilities{ProcessingPower: 100},
		HealthScore:  1.5,
	}
	if got := e.Estimate(node); got != 100 {
		t.Errorf("Expected health clamped to 1, got capacity %v", got)
	}

	node.HealthScore = -0.2
	if got := e.Estimate(node); got != 0 {
		t.Errorf("Expected health clamped to 0, got capacity %v", got)
	}
}

func TestNewEstimator_InvalidThresholdFallsBack(t *testing.T) {
	for _, threshold := range []float64{0, -5, 100, 150} {
		e := NewEstimator(threshold)
		if e.memoryPressureThreshold != DefaultMemoryPressureThreshold {
			t.Errorf("threshold %v: expected fallback to default, got %v",
				threshold, e.memoryPressureThreshold)
		}
	}
}

func TestHealthScore(t *testing.T) {
	perfect := HealthScore(models.NodeMetrics{Uptime: 100, CPUUsage: 0, MemoryUsage: 0})
	if perfect != 1.0 {
		t.Errorf("Expected perfect health 1.0, got %v", perfect)
	}

	dead := HealthScore(models.NodeMetrics{Uptime: 0, CPUUsage: 100, MemoryUsage: 100})
	if dead != 0.0 {
		t.Errorf("Expected zero health, got %v", dead)
	}

	// Higher uptime must never lower the score
	low := HealthScore(models.NodeMetrics{Uptime: 50, CPUUsage: 40, MemoryUsage: 40})
	high := HealthScore(models.NodeMetrics{Uptime: 90, CPUUsage: 40, MemoryUsage: 40})
	if high <= low {
		t.Errorf("Expected health to increase with uptime: %v <= %v", high, low)
	}

	// Out-of-range inputs stay bounded
	weird := HealthScore(models.NodeMetrics{Uptime: 150, CPUUsage: -20, MemoryUsage: 300})
	if weird < 0 || weird > 1 {
		t.Errorf("Expected health in [0,1], got %v", weird)
	}
}
