package registry

import (
	"context"
	"sync"

	"github.com/shardpulse/shardpulse/internal/models"
)

// MemoryRegistry implements NodeRegistry with an in-process map.
// Used for tests and single-process deployments without etcd.
type MemoryRegistry struct {
	mu       sync.RWMutex
	nodes    map[string]models.Node
	watchers []chan Event
	closed   bool
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		nodes: make(map[string]models.Node),
	}
}

// Register adds or refreshes a node and notifies watchers
func (r *MemoryRegistry) Register(_ context.Context, node models.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes[node.ID] = node
	r.notify(Event{Type: NodeJoined, Node: node, NodeID: node.ID})
	return nil
}

// Deregister removes a node and notifies watchers
func (r *MemoryRegistry) Deregister(_ context.Context, nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeID]; !exists {
		return ErrNodeNotFound
	}
	delete(r.nodes, nodeID)
	r.notify(Event{Type: NodeLeft, NodeID: nodeID})
	return nil
}

// ListLive returns all registered nodes
func (r *MemoryRegistry) ListLive(_ context.Context) ([]models.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]models.Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Watch streams membership changes until ctx is cancelled
func (r *MemoryRegistry) Watch(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)

	r.mu.Lock()
	r.watchers = append(r.watchers, ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()

		r.mu.Lock()
		defer r.mu.Unlock()
		for i, w := range r.watchers {
			if w == ch {
				r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// Close drops all watchers
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	for _, w := range r.watchers {
		close(w)
	}
	r.watchers = nil
	return nil
}

// notify delivers an event to all watchers without blocking.
// Must be called with mu held.
func (r *MemoryRegistry) notify(ev Event) {
	for _, w := range r.watchers {
		select {
		case w <- ev:
		default:
			// Slow watcher; drop rather than stall registration.
		}
	}
}
