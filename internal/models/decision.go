package models

import "time"

// ScalingAction is the action emitted by the decision engine
type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionNoOp      ScalingAction = "noop"
)

// ScalingDecision represents a single decision made for a node
type ScalingDecision struct {
	ID        string        `json:"id"`
	NodeID    string        `json:"node_id"`
	Action    ScalingAction `json:"action"`
	Reason    string        `json:"reason"`
	Timestamp time.Time     `json:"timestamp"`
}
