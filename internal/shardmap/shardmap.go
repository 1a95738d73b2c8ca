package shardmap

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shardpulse/shardpulse/internal/cache"
	"github.com/shardpulse/shardpulse/internal/capacity"
	"github.com/shardpulse/shardpulse/internal/logging"
	"github.com/shardpulse/shardpulse/internal/models"
)

// ErrNoLiveNodes is returned when a shard has no assigned nodes
var ErrNoLiveNodes = errors.New("no live nodes assigned to shard")

// Config holds shard map parameters
type Config struct {
	TotalShards       int
	ReplicationFactor int
	CacheTTL          time.Duration // primary-lookup memoization TTL
}

// Statistics is the read-only load view of the shard map
type Statistics struct {
	TotalShards     int            `json:"total_shards"`
	TotalNodes      int            `json:"total_nodes"`
	ShardLoads      []int          `json:"shard_loads"`      // assigned node count per shard
	NodeLoads       map[string]int `json:"node_loads"`       // shard count per node
	UnderReplicated int            `json:"under_replicated"` // shards below the replication factor
}

// snapshot is an immutable shard→nodes view. Readers always see a complete
// snapshot; mutations build a new one and swap it in atomically.
type snapshot struct {
	assignments [][]string // shard id -> ordered node ids, primary first
}

// ShardMap maintains the capacity-weighted rendezvous assignment of shards
// to nodes. Placement is deterministic for a fixed node set and capacities,
// and topology changes only reassign the shards whose top-K ranking the
// changed node affects.
//
// Mutations are single-writer (serialized by mu); reads are lock-free against
// the current snapshot and never observe a partially rebalanced map.
type ShardMap struct {
	totalShards       int
	replicationFactor int
	estimator         *capacity.Estimator
	logger            *logging.Logger

	mu         sync.Mutex // serializes all mutation
	nodes      map[string]models.Node
	capacities map[string]float64 // effective capacity hints used for placement

	snap         atomic.Pointer[snapshot]
	primaryCache *cache.Cache[string]
}

// New creates an empty shard map
func New(cfg Config, estimator *capacity.Estimator, logger *logging.Logger) *ShardMap {
	if cfg.TotalShards < 1 {
		cfg.TotalShards = 1
	}
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	sm := &ShardMap{
		totalShards:       cfg.TotalShards,
		replicationFactor: cfg.ReplicationFactor,
		estimator:         estimator,
		logger:            logger,
		nodes:             make(map[string]models.Node),
		capacities:        make(map[string]float64),
		primaryCache:      cache.New[string](cfg.CacheTTL),
	}

	sm.snap.Store(&snapshot{assignments: make([][]string, cfg.TotalShards)})

	return sm
}

// ShardFor deterministically maps a key to a shard id
func (sm *ShardMap) ShardFor(key string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(sm.totalShards))
}

// NodesFor returns the shard's current assignment, ordered primary first.
// An out-of-range shard id yields nil.
func (sm *ShardMap) NodesFor(shardID int) []string {
	if shardID < 0 || shardID >= sm.totalShards {
		return nil
	}

	assigned := sm.snap.Load().assignments[shardID]
	out := make([]string, len(assigned))
	copy(out, assigned)
	return out
}

// PrimaryFor returns the primary node for a key, memoized until the next
// assignment change or cache expiry
func (sm *ShardMap) PrimaryFor(key string) (string, error) {
	if primary, ok := sm.primaryCache.Get(key); ok {
		return primary, nil
	}

	assigned := sm.snap.Load().assignments[sm.ShardFor(key)]
	if len(assigned) == 0 {
		return "", ErrNoLiveNodes
	}

	sm.primaryCache.Set(key, assigned[0])
	return assigned[0], nil
}

// AddNode registers a node and recomputes every shard's ranking, since a new
// node may enter any shard's top-K. Node joins are rare relative to ticks.
func (sm *ShardMap) AddNode(node models.Node) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.nodes[node.ID] = node
	sm.capacities[node.ID] = sm.estimator.Estimate(node)

	next := &snapshot{assignments: make([][]string, sm.totalShards)}
	for shard := 0; shard < sm.totalShards; shard++ {
		next.assignments[shard] = sm.rankShard(shard)
	}

	sm.commit(next)
	sm.logger.Info("Node added to shard map",
		"node_id", node.ID,
		"capacity", sm.capacities[node.ID],
		"total_nodes", len(sm.nodes))
}

// RemoveNode deregisters a node and recomputes only the shards it was
// assigned to; every other shard's assignment is carried over untouched
func (sm *ShardMap) RemoveNode(nodeID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.nodes[nodeID]; !exists {
		return
	}
	delete(sm.nodes, nodeID)
	delete(sm.capacities, nodeID)

	current := sm.snap.Load()
	next := &snapshot{assignments: make([][]string, sm.totalShards)}

	touched := 0
	for shard := 0; shard < sm.totalShards; shard++ {
		if containsNode(current.assignments[shard], nodeID) {
			next.assignments[shard] = sm.rankShard(shard)
			touched++
		} else {
			next.assignments[shard] = current.assignments[shard]
		}
	}

	sm.commit(next)
	sm.logger.Info("Node removed from shard map",
		"node_id", nodeID,
		"shards_rebalanced", touched,
		"total_nodes", len(sm.nodes))
}

// UpdateCapacity stores a new capacity hint for a node. The hint takes
// effect on the next Rebalance; the current assignment is left in place.
func (sm *ShardMap) UpdateCapacity(nodeID string, cap float64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.nodes[nodeID]; !exists {
		return
	}
	sm.capacities[nodeID] = cap
}

// Rebalance recomputes every shard from the current capacity hints
func (sm *ShardMap) Rebalance() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	next := &snapshot{assignments: make([][]string, sm.totalShards)}
	for shard := 0; shard < sm.totalShards; shard++ {
		next.assignments[shard] = sm.rankShard(shard)
	}

	sm.commit(next)
}

// Statistics returns per-shard and per-node load plus the count of
// under-replicated shards. Under-replication is flagged, never an error.
func (sm *ShardMap) Statistics() Statistics {
	snap := sm.snap.Load()

	sm.mu.Lock()
	totalNodes := len(sm.nodes)
	sm.mu.Unlock()

	stats := Statistics{
		TotalShards: sm.totalShards,
		TotalNodes:  totalNodes,
		ShardLoads:  make([]int, sm.totalShards),
		NodeLoads:   make(map[string]int),
	}

	for shard, assigned := range snap.assignments {
		stats.ShardLoads[shard] = len(assigned)
		for _, nodeID := range assigned {
			stats.NodeLoads[nodeID]++
		}
		if len(assigned) < sm.replicationFactor {
			stats.UnderReplicated++
		}
	}

	return stats
}

// NodeIDs returns the currently registered node ids, sorted
func (sm *ShardMap) NodeIDs() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ids := make([]string, 0, len(sm.nodes))
	for id := range sm.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// commit validates a snapshot and swaps it in. Must be called with mu held.
func (sm *ShardMap) commit(next *snapshot) {
	sm.verify(next)
	sm.snap.Store(next)
	sm.primaryCache.Clear()
}

// verify fails fast on corrupted assignments: a duplicate node within one
// shard or a reference to a deregistered node is a programming error, not an
// environmental fault. Must be called with mu held.
func (sm *ShardMap) verify(snap *snapshot) {
	for shard, assigned := range snap.assignments {
		seen := make(map[string]bool, len(assigned))
		for _, nodeID := range assigned {
			if seen[nodeID] {
				panic(fmt.Sprintf("shardmap: duplicate node %s in shard %d", nodeID, shard))
			}
			seen[nodeID] = true
			if _, exists := sm.nodes[nodeID]; !exists {
				panic(fmt.Sprintf("shardmap: shard %d references unknown node %s", shard, nodeID))
			}
		}
	}
}

// rankShard computes the shard's capacity-weighted rendezvous ranking and
// returns the top replication_factor node ids, highest weight first.
// Must be called with mu held.
func (sm *ShardMap) rankShard(shardID int) []string {
	if len(sm.nodes) == 0 {
		return nil
	}

	ids := make([]string, 0, len(sm.nodes))
	for id := range sm.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	type nodeWeight struct {
		node   string
		weight float64
	}

	weights := make([]nodeWeight, len(ids))
	for i, id := range ids {
		weights[i] = nodeWeight{node: id, weight: rendezvousWeight(shardID, id, sm.capacities[id])}
	}

	sort.SliceStable(weights, func(i, j int) bool {
		if weights[i].weight != weights[j].weight {
			return weights[i].weight > weights[j].weight
		}
		return weights[i].node < weights[j].node
	})

	count := sm.replicationFactor
	if count > len(weights) {
		count = len(weights)
	}

	assigned := make([]string, count)
	for i := 0; i < count; i++ {
		assigned[i] = weights[i].node
	}
	return assigned
}

// rendezvousWeight computes the weighted highest-random-weight score for a
// (shard, node) pair: the FNV-64a hash is mapped to u ∈ (0, 1) and scaled as
// capacity / −ln(u), so expected shard share is proportional to capacity
// while staying fully deterministic.
func rendezvousWeight(shardID int, nodeID string, cap float64) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.Itoa(shardID)))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(nodeID))

	// Map the hash to (0, 1); the +1 offsets keep u strictly inside the
	// interval so the logarithm is finite and non-zero.
	u := (float64(h.Sum64()) + 1) / (math.MaxUint64 + 2)

	effective := cap
	if effective <= 0 {
		// Zero-capacity nodes still count as live; an epsilon keeps the
		// ordering hash-driven instead of collapsing every weight to zero.
		effective = 1e-9
	}

	return -effective / math.Log(u)
}

// containsNode reports whether an assignment includes the node
func containsNode(assigned []string, nodeID string) bool {
	for _, id := range assigned {
		if id == nodeID {
			return true
		}
	}
	return false
}
