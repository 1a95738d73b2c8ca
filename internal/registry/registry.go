package registry

import (
	"context"
	"errors"

	"github.com/shardpulse/shardpulse/internal/models"
)

// ErrNodeNotFound is returned when deregistering an unknown node
var ErrNodeNotFound = errors.New("node not found")

// EventType classifies membership changes
type EventType int

const (
	NodeJoined EventType = iota
	NodeLeft
)

// Event is a single membership change delivered by Watch
type Event struct {
	Type   EventType
	Node   models.Node // populated for NodeJoined
	NodeID string
}

// NodeRegistry supplies the live node set to the control loop. The core only
// consumes this narrow interface; discovery (gossip, heartbeats, leases)
// lives behind it.
type NodeRegistry interface {
	// Register adds or refreshes a node
	Register(ctx context.Context, node models.Node) error
	// Deregister removes a node
	Deregister(ctx context.Context, nodeID string) error
	// ListLive returns all currently registered nodes
	ListLive(ctx context.Context) ([]models.Node, error)
	// Watch streams membership changes until ctx is cancelled.
	// The returned channel is closed when the watch ends.
	Watch(ctx context.Context) (<-chan Event, error)
	// Close releases registry resources
	Close() error
}
