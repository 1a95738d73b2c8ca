package shardmap

import (
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shardpulse/shardpulse/internal/capacity"
	"github.com/shardpulse/shardpulse/internal/logging"
	"github.com/shardpulse/shardpulse/internal/models"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, zerolog.Disabled)
}

func testNode(id string, power float64) models.Node {
	return models.Node{
		ID:           id,
		Address:      id + ":9000",
		Capabilities: models.Capabilities{ProcessingPower: power},
		HealthScore:  1.0,
	}
}

func newTestMap(totalShards, rf int) *ShardMap {
	cfg := Config{TotalShards: totalShards, ReplicationFactor: rf, CacheTTL: time.Minute}
	return New(cfg, capacity.NewEstimator(70), testLogger())
}

func TestShardFor_Deterministic(t *testing.T) {
	sm := newTestMap(64, 2)

	for _, key := range []string{"user:1", "user:2", "stream-alpha", ""} {
		first := sm.ShardFor(key)
		if first < 0 || first >= 64 {
			t.Fatalf("ShardFor(%q) = %d, out of range", key, first)
		}
		for i := 0; i < 10; i++ {
			if got := sm.ShardFor(key); got != first {
				t.Errorf("ShardFor(%q) not deterministic: %d vs %d", key, got, first)
			}
		}
	}
}

func TestAssignment_Deterministic(t *testing.T) {
	build := func() *ShardMap {
		sm := newTestMap(16, 2)
		sm.AddNode(testNode("node1", 100))
		sm.AddNode(testNode("node2", 100))
		sm.AddNode(testNode("node3", 100))
		return sm
	}

	a, b := build(), build()
	for shard := 0; shard < 16; shard++ {
		if !reflect.DeepEqual(a.NodesFor(shard), b.NodesFor(shard)) {
			t.Errorf("Shard %d assignment differs between identical maps: %v vs %v",
				shard, a.NodesFor(shard), b.NodesFor(shard))
		}
	}
}

func TestReplication_ThreeEqualNodes(t *testing.T) {
	// 16 shards, replication factor 2, three equal nodes: every shard gets
	// exactly 2 distinct nodes and per-node loads sum to 32.
	sm := newTestMap(16, 2)
	sm.AddNode(testNode("node1", 100))
	sm.AddNode(testNode("node2", 100))
	sm.AddNode(testNode("node3", 100))

	stats := sm.Statistics()
	if stats.UnderReplicated != 0 {
		t.Errorf("Expected no under-replicated shards, got %d", stats.UnderReplicated)
	}

	sum := 0
	for shard := 0; shard < 16; shard++ {
		assigned := sm.NodesFor(shard)
		if len(assigned) != 2 {
			t.Errorf("Shard %d has %d nodes, expected 2", shard, len(assigned))
		}
		if len(assigned) == 2 && assigned[0] == assigned[1] {
			t.Errorf("Shard %d assigned the same node twice: %v", shard, assigned)
		}
	}
	for _, load := range stats.NodeLoads {
		sum += load
	}
	if sum != 32 {
		t.Errorf("Per-node loads sum to %d, expected 32", sum)
	}
}

func TestRemoveNode_MinimalDisruption(t *testing.T) {
	sm := newTestMap(64, 2)
	for _, id := range []string{"node1", "node2", "node3", "node4"} {
		sm.AddNode(testNode(id, 100))
	}

	before := make([][]string, 64)
	touched := make([]bool, 64)
	for shard := 0; shard < 64; shard++ {
		before[shard] = sm.NodesFor(shard)
		for _, id := range before[shard] {
			if id == "node2" {
				touched[shard] = true
			}
		}
	}

	sm.RemoveNode("node2")

	for shard := 0; shard < 64; shard++ {
		after := sm.NodesFor(shard)
		if touched[shard] {
			for _, id := range after {
				if id == "node2" {
					t.Errorf("Shard %d still references removed node", shard)
				}
			}
			continue
		}
		if !reflect.DeepEqual(after, before[shard]) {
			t.Errorf("Untouched shard %d changed: %v -> %v", shard, before[shard], after)
		}
	}
}

func TestRemoveNode_PrimaryPromotion(t *testing.T) {
	// Removing a shard's primary promotes the old second-ranked node, since
	// remaining nodes' rendezvous weights are unaffected by the departure.
	sm := newTestMap(32, 3)
	for _, id := range []string{"node1", "node2", "node3", "node4"} {
		sm.AddNode(testNode(id, 100))
	}

	type expectation struct {
		oldPrimary string
		oldSecond  string
	}
	expected := make(map[int]expectation)
	for shard := 0; shard < 32; shard++ {
		assigned := sm.NodesFor(shard)
		if len(assigned) >= 2 {
			expected[shard] = expectation{oldPrimary: assigned[0], oldSecond: assigned[1]}
		}
	}

	victim := expected[0].oldPrimary
	sm.RemoveNode(victim)

	for shard, exp := range expected {
		if exp.oldPrimary != victim {
			continue
		}
		after := sm.NodesFor(shard)
		if len(after) == 0 {
			t.Fatalf("Shard %d lost all nodes", shard)
		}
		if after[0] != exp.oldSecond {
			t.Errorf("Shard %d: expected promoted primary %s, got %s",
				shard, exp.oldSecond, after[0])
		}
	}
}

func TestUnderReplication_Flagged(t *testing.T) {
	sm := newTestMap(8, 3)
	sm.AddNode(testNode("node1", 100))
	sm.AddNode(testNode("node2", 100))

	stats := sm.Statistics()
	if stats.UnderReplicated != 8 {
		t.Errorf("Expected all 8 shards under-replicated with 2 nodes and rf 3, got %d",
			stats.UnderReplicated)
	}
	for shard := 0; shard < 8; shard++ {
		if len(sm.NodesFor(shard)) != 2 {
			t.Errorf("Shard %d should hold both live nodes", shard)
		}
	}
}

func TestPrimaryFor(t *testing.T) {
	sm := newTestMap(16, 2)

	if _, err := sm.PrimaryFor("user:1"); err != ErrNoLiveNodes {
		t.Errorf("Expected ErrNoLiveNodes on empty map, got %v", err)
	}

	sm.AddNode(testNode("node1", 100))
	sm.AddNode(testNode("node2", 100))

	primary, err := sm.PrimaryFor("user:1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expected := sm.NodesFor(sm.ShardFor("user:1"))[0]
	if primary != expected {
		t.Errorf("PrimaryFor = %s, expected shard primary %s", primary, expected)
	}

	// Memoized lookups must agree with the live assignment
	again, err := sm.PrimaryFor("user:1")
	if err != nil || again != primary {
		t.Errorf("Cached lookup diverged: %s vs %s (err %v)", again, primary, err)
	}
}

func TestPrimaryFor_CacheClearedOnTopologyChange(t *testing.T) {
	sm := newTestMap(16, 2)
	sm.AddNode(testNode("node1", 100))
	sm.AddNode(testNode("node2", 100))

	primary, err := sm.PrimaryFor("user:1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sm.RemoveNode(primary)

	after, err := sm.PrimaryFor("user:1")
	if err != nil {
		t.Fatalf("Unexpected error after removal: %v", err)
	}
	if after == primary {
		t.Errorf("Primary lookup still returns removed node %s", primary)
	}
}

func TestCapacityWeighting_SkewsLoad(t *testing.T) {
	sm := newTestMap(256, 1)
	sm.AddNode(testNode("big", 300))
	sm.AddNode(testNode("small", 100))

	stats := sm.Statistics()
	big, small := stats.NodeLoads["big"], stats.NodeLoads["small"]
	if big <= small {
		t.Errorf("Expected 3x-capacity node to carry more shards: big=%d small=%d", big, small)
	}
	// Expected share is ~3:1; allow generous slack for hash noise over 256 shards
	if big < 150 {
		t.Errorf("Expected big node to hold well over half the shards, got %d/256", big)
	}
}

func TestUpdateCapacity_TakesEffectOnRebalance(t *testing.T) {
	sm := newTestMap(256, 1)
	sm.AddNode(testNode("node1", 100))
	sm.AddNode(testNode("node2", 100))

	before := sm.Statistics()

	// Hints alone leave the assignment in place
	sm.UpdateCapacity("node2", 1)
	unchanged := sm.Statistics()
	if !reflect.DeepEqual(unchanged.NodeLoads, before.NodeLoads) {
		t.Error("Capacity hint should not move shards before Rebalance")
	}

	sm.Rebalance()
	after := sm.Statistics()
	if after.NodeLoads["node2"] >= before.NodeLoads["node2"] {
		t.Errorf("Expected node2 load to drop after rebalance: before=%d after=%d",
			before.NodeLoads["node2"], after.NodeLoads["node2"])
	}
}

func TestUpdateCapacity_UnknownNodeIgnored(t *testing.T) {
	sm := newTestMap(16, 2)
	sm.AddNode(testNode("node1", 100))

	sm.UpdateCapacity("ghost", 500)
	sm.Rebalance()

	for shard := 0; shard < 16; shard++ {
		for _, id := range sm.NodesFor(shard) {
			if id == "ghost" {
				t.Fatalf("Shard %d assigned to unregistered node", shard)
			}
		}
	}
}

func TestNodesFor_OutOfRange(t *testing.T) {
	sm := newTestMap(16, 2)
	sm.AddNode(testNode("node1", 100))

	if got := sm.NodesFor(-1); got != nil {
		t.Errorf("Expected nil for negative shard id, got %v", got)
	}
	if got := sm.NodesFor(16); got != nil {
		t.Errorf("Expected nil for shard id past range, got %v", got)
	}
}

func TestNodesFor_ReturnsCopy(t *testing.T) {
	sm := newTestMap(16, 2)
	sm.AddNode(testNode("node1", 100))
	sm.AddNode(testNode("node2", 100))

	assigned := sm.NodesFor(0)
	if len(assigned) == 0 {
		t.Fatal("Expected assignment for shard 0")
	}
	assigned[0] = "mutated"

	if sm.NodesFor(0)[0] == "mutated" {
		t.Error("Mutating the returned slice must not affect the shard map")
	}
}

func TestRemoveNode_Unknown(t *testing.T) {
	sm := newTestMap(16, 2)
	sm.AddNode(testNode("node1", 100))

	before := sm.Statistics()
	sm.RemoveNode("ghost")
	after := sm.Statistics()

	if !reflect.DeepEqual(before.NodeLoads, after.NodeLoads) {
		t.Error("Removing an unknown node must be a no-op")
	}
}

func TestNodeIDs_Sorted(t *testing.T) {
	sm := newTestMap(16, 2)
	sm.AddNode(testNode("zeta", 100))
	sm.AddNode(testNode("alpha", 100))
	sm.AddNode(testNode("mid", 100))

	ids := sm.NodeIDs()
	expected := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(ids, expected) {
		t.Errorf("NodeIDs() = %v, expected %v", ids, expected)
	}
}
