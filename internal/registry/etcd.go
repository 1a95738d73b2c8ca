package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/shardpulse/shardpulse/internal/config"
	"github.com/shardpulse/shardpulse/internal/logging"
	"github.com/shardpulse/shardpulse/internal/models"
)

const nodePrefix = "/shardpulse/nodes/"

// EtcdRegistry implements NodeRegistry on etcd. Each node is stored as a
// JSON value under /shardpulse/nodes/<id>, bound to a TTL lease kept alive
// in the background; a node that stops heartbeating disappears when its
// lease expires, which Watch surfaces as a NodeLeft event.
type EtcdRegistry struct {
	client   *clientv3.Client
	leaseTTL int64
	logger   *logging.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

// NewEtcdRegistry connects to etcd and creates a registry
func NewEtcdRegistry(cfg config.EtcdConfig, logger *logging.Logger) (*EtcdRegistry, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = 10
	}

	return &EtcdRegistry{
		client:   client,
		leaseTTL: ttl,
		logger:   logger,
		leases:   make(map[string]clientv3.LeaseID),
	}, nil
}

// Register writes the node under a fresh lease and starts its keep-alive loop
func (r *EtcdRegistry) Register(ctx context.Context, node models.Node) error {
	lease, err := r.client.Grant(ctx, r.leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal node info: %w", err)
	}

	key := nodePrefix + node.ID
	if _, err := r.client.Put(ctx, key, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}

	r.mu.Lock()
	r.leases[node.ID] = lease.ID
	r.mu.Unlock()

	r.logger.Info("Node registered",
		"node_id", node.ID,
		"address", node.Address,
		"lease_ttl", r.leaseTTL)

	go r.keepAlive(ctx, node, lease.ID)

	return nil
}

// keepAlive maintains the node's lease; a closed keep-alive channel triggers
// one re-registration attempt after a short delay
func (r *EtcdRegistry) keepAlive(ctx context.Context, node models.Node, leaseID clientv3.LeaseID) {
	ch, err := r.client.KeepAlive(ctx, leaseID)
	if err != nil {
		r.logger.Error("Failed to start keep-alive", "node_id", node.ID, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ka, ok := <-ch:
			if !ok {
				r.logger.Warn("Keep-alive channel closed, attempting re-registration",
					"node_id", node.ID)
				time.Sleep(2 * time.Second)
				if err := r.Register(context.Background(), node); err != nil {
					r.logger.Error("Failed to re-register node",
						"node_id", node.ID, "error", err)
				}
				return
			}
			if ka == nil {
				continue
			}
			r.logger.Debug("Heartbeat sent", "node_id", node.ID, "ttl", ka.TTL)
		}
	}
}

// Deregister deletes the node key and revokes its lease
func (r *EtcdRegistry) Deregister(ctx context.Context, nodeID string) error {
	resp, err := r.client.Delete(ctx, nodePrefix+nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete node key: %w", err)
	}
	if resp.Deleted == 0 {
		return ErrNodeNotFound
	}

	r.mu.Lock()
	leaseID, hasLease := r.leases[nodeID]
	delete(r.leases, nodeID)
	r.mu.Unlock()

	if hasLease {
		if _, err := r.client.Revoke(ctx, leaseID); err != nil {
			r.logger.Error("Failed to revoke lease", "node_id", nodeID, "error", err)
		}
	}

	r.logger.Info("Node deregistered", "node_id", nodeID)
	return nil
}

// ListLive returns every node currently registered under the prefix
func (r *EtcdRegistry) ListLive(ctx context.Context) ([]models.Node, error) {
	resp, err := r.client.Get(ctx, nodePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	nodes := make([]models.Node, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var node models.Node
		if err := json.Unmarshal(kv.Value, &node); err != nil {
			r.logger.Warn("Skipping malformed node entry",
				"key", string(kv.Key), "error", err)
			continue
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// Watch converts etcd watch events on the node prefix into membership events
func (r *EtcdRegistry) Watch(ctx context.Context) (<-chan Event, error) {
	watchCh := r.client.Watch(ctx, nodePrefix, clientv3.WithPrefix())
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		for resp := range watchCh {
			if err := resp.Err(); err != nil {
				r.logger.Error("Registry watch error", "error", err)
				return
			}

			for _, ev := range resp.Events {
				switch ev.Type {
				case clientv3.EventTypePut:
					var node models.Node
					if err := json.Unmarshal(ev.Kv.Value, &node); err != nil {
						r.logger.Warn("Skipping malformed node event",
							"key", string(ev.Kv.Key), "error", err)
						continue
					}
					out <- Event{Type: NodeJoined, Node: node, NodeID: node.ID}

				case clientv3.EventTypeDelete:
					nodeID := strings.TrimPrefix(string(ev.Kv.Key), nodePrefix)
					out <- Event{Type: NodeLeft, NodeID: nodeID}
				}
			}
		}
	}()

	return out, nil
}

// Close closes the etcd client
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
