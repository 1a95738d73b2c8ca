package models

import "time"

// MetricSample is a single observation collected from a node.
// Immutable once recorded; values are percentages in [0, 100].
type MetricSample struct {
	Timestamp   time.Time `json:"timestamp"`
	CPU         float64   `json:"cpu"`
	Memory      float64   `json:"memory"`
	NetworkLoad float64   `json:"network_load"`
}

// SystemMetrics is the aggregate view across all live nodes for one tick
type SystemMetrics struct {
	AvgCPU             float64   `json:"avg_cpu"`
	AvgMemory          float64   `json:"avg_memory"`
	AvgNetworkLoad     float64   `json:"avg_network_load"`
	ActiveNodes        int       `json:"active_nodes"` // nodes that responded this tick
	TotalNodes         int       `json:"total_nodes"`
	TotalConnections   int       `json:"total_connections"`
	PredictionAccuracy float64   `json:"prediction_accuracy"` // rolling forecast-vs-realized score in [0, 1]
	UpdatedAt          time.Time `json:"updated_at"`
}
