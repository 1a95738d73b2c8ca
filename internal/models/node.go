package models

import "time"

// Node represents a registered worker node in the mesh
type Node struct {
	ID           string       `json:"id"`
	Address      string       `json:"address"` // host:port for metric collection / probing
	Capabilities Capabilities `json:"capabilities"`
	Location     Location     `json:"location"`
	Metrics      NodeMetrics  `json:"metrics"`
	Connections  []string     `json:"connections"` // peer connection ids
	HealthScore  float64      `json:"health_score"`
	RegisteredAt time.Time    `json:"registered_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Capabilities represents a node's declared capabilities
type Capabilities struct {
	ProcessingPower float64  `json:"processing_power"` // abstract compute units
	StorageCapacity int64    `json:"storage_capacity"` // bytes
	MaxConnections  int      `json:"max_connections"`
	Protocols       []string `json:"protocols"`
}

// Location represents node placement metadata
type Location struct {
	Region string `json:"region,omitempty"`
	Zone   string `json:"zone,omitempty"`
}

// NodeMetrics represents a node's live resource metrics, each in [0, 100]
// except Uptime which is a percentage of observed availability
type NodeMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	NetworkLoad float64 `json:"network_load"`
	Uptime      float64 `json:"uptime"`
}
