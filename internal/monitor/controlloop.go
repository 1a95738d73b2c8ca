package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shardpulse/shardpulse/internal/capacity"
	"github.com/shardpulse/shardpulse/internal/config"
	"github.com/shardpulse/shardpulse/internal/decision"
	"github.com/shardpulse/shardpulse/internal/export"
	"github.com/shardpulse/shardpulse/internal/history"
	"github.com/shardpulse/shardpulse/internal/logging"
	"github.com/shardpulse/shardpulse/internal/models"
	"github.com/shardpulse/shardpulse/internal/predictor"
	"github.com/shardpulse/shardpulse/internal/registry"
	"github.com/shardpulse/shardpulse/internal/shardmap"
	"github.com/shardpulse/shardpulse/internal/transport"
)

// Status is the read-only system snapshot exposed to callers
type Status struct {
	Metrics         models.SystemMetrics     `json:"metrics"`
	Strategy        string                   `json:"strategy"`
	RecentDecisions []models.ScalingDecision `json:"recent_decisions"`
}

// collectResult is one node's outcome for a tick's collection fan-out
type collectResult struct {
	node   models.Node
	sample models.MetricSample
	err    error
}

// ControlLoop is the single authoritative capacity-management driver.
// Each tick it fans out metric collection to every tracked node, joins on a
// barrier, then runs prediction and scaling decisions sequentially. The loop
// is the sole mutator of the shard map and decision state, so no external
// synchronization is needed beyond its own single-writer discipline.
type ControlLoop struct {
	cfg       config.ControllerConfig
	logger    *logging.Logger
	registry  registry.NodeRegistry
	collector transport.MetricsCollector
	prober    *transport.HealthProber // optional: confirms death before removal
	exporter  export.Exporter         // optional: opportunistic snapshot sink

	history   *history.History
	predictor *predictor.Predictor
	engine    *decision.Engine
	shards    *shardmap.ShardMap
	estimator *capacity.Estimator

	mu            sync.RWMutex
	nodes         map[string]models.Node
	failures      map[string]int // consecutive collection failures per node
	lastForecasts map[string]predictor.Forecast
	accuracyErrs  []float64 // rolling forecast errors, ring-buffered
	accuracyIdx   int
	accuracyFull  bool
	system        models.SystemMetrics

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// Options carries the loop's collaborators. Registry and Collector are
// required; Prober and Exporter may be nil.
type Options struct {
	Registry  registry.NodeRegistry
	Collector transport.MetricsCollector
	Prober    *transport.HealthProber
	Exporter  export.Exporter
	Logger    *logging.Logger
}

// New wires a control loop from explicitly constructed components
func New(cfg config.ControllerConfig, opts Options) *ControlLoop {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Global()
	}

	estimator := capacity.NewEstimator(cfg.MemoryPressureThreshold)

	return &ControlLoop{
		cfg:       cfg,
		logger:    logger,
		registry:  opts.Registry,
		collector: opts.Collector,
		prober:    opts.Prober,
		exporter:  opts.Exporter,
		history:   history.New(cfg.HistoryWindow, cfg.MinSamples),
		predictor: predictor.New(predictor.Config{
			Strategy:       predictor.Strategy(cfg.Strategy),
			MinSamples:     cfg.MinSamples,
			SeasonalPeriod: cfg.SeasonalPeriod,
			Interval:       cfg.MonitoringInterval,
		}),
		engine: decision.NewEngine(decision.Config{
			HighWatermark:  cfg.HighWatermark,
			LowWatermark:   cfg.LowWatermark,
			CooldownPeriod: cfg.CooldownPeriod,
			LogSize:        cfg.DecisionLogSize,
		}, estimator, logger),
		shards: shardmap.New(shardmap.Config{
			TotalShards:       cfg.TotalShards,
			ReplicationFactor: cfg.ReplicationFactor,
		}, estimator, logger),
		estimator:     estimator,
		nodes:         make(map[string]models.Node),
		failures:      make(map[string]int),
		lastForecasts: make(map[string]predictor.Forecast),
		accuracyErrs:  make([]float64, max(cfg.AccuracyWindow, 1)),
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
}

// Start seeds the node set from the registry and launches the tick driver
// and the membership watcher. Both share the loop's stop signal; a failure
// in either is logged, never silently swallowed.
func (l *ControlLoop) Start(ctx context.Context) error {
	nodes, err := l.registry.ListLive(ctx)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		l.trackNode(node)
	}

	l.logger.Info("Control loop starting",
		"nodes", len(nodes),
		"strategy", l.cfg.Strategy,
		"interval", l.cfg.MonitoringInterval)

	events, err := l.registry.Watch(ctx)
	if err != nil {
		return err
	}

	l.wg.Add(2)
	go l.run(ctx)
	go l.watchMembership(ctx, events)

	return nil
}

// Stop requests a cooperative shutdown and waits for in-flight work.
// Latency is bounded by one tick plus the per-node collection timeout.
func (l *ControlLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// run drives ticks at the monitoring interval
func (l *ControlLoop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.tick(ctx)
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		}
	}
}

// watchMembership folds registry join/leave events into the tracked set
func (l *ControlLoop) watchMembership(ctx context.Context, events <-chan registry.Event) {
	defer l.wg.Done()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				l.logger.Warn("Registry watch ended; continuing without membership events")
				return
			}
			switch ev.Type {
			case registry.NodeJoined:
				l.trackNode(ev.Node)
			case registry.NodeLeft:
				l.untrackNode(ev.NodeID)
			}
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		}
	}
}

// tick runs one full monitoring cycle: collect, record, prune, predict,
// decide, aggregate, export
func (l *ControlLoop) tick(ctx context.Context) {
	nodes := l.trackedNodes()
	if len(nodes) == 0 {
		return
	}

	results := l.collectAll(ctx, nodes)

	// Cooperative stop point: collection has completed or timed out for
	// every node, nothing has been recorded yet.
	select {
	case <-l.stopCh:
		return
	default:
	}

	responded := l.recordResults(results)
	l.pruneFailedNodes(ctx)
	l.decide(responded)
	l.aggregate(responded)
	l.exportSnapshot(ctx)
}

// collectAll fans out collection to every node with a per-node time box and
// joins on the barrier; a timeout excludes the node from this tick only
func (l *ControlLoop) collectAll(ctx context.Context, nodes []models.Node) []collectResult {
	results := make([]collectResult, len(nodes))

	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func(i int, node models.Node) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, l.cfg.CollectTimeout)
			defer cancel()

			sample, err := l.collector.Collect(cctx, node)
			results[i] = collectResult{node: node, sample: sample, err: err}
		}(i, node)
	}
	wg.Wait()

	return results
}

// recordResults applies successful samples to node state and history, and
// advances failure counters for silent nodes. Returns the nodes that
// responded this tick with their fresh samples.
func (l *ControlLoop) recordResults(results []collectResult) []collectResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	responded := make([]collectResult, 0, len(results))
	for _, res := range results {
		node, tracked := l.nodes[res.node.ID]
		if !tracked {
			continue // removed by a membership event mid-tick
		}

		if res.err != nil {
			l.failures[node.ID]++
			l.logger.Debug("Metric collection failed",
				"node_id", node.ID,
				"consecutive_failures", l.failures[node.ID],
				"error", res.err)
			continue
		}

		l.failures[node.ID] = 0
		node.Metrics.CPUUsage = res.sample.CPU
		node.Metrics.MemoryUsage = res.sample.Memory
		node.Metrics.NetworkLoad = res.sample.NetworkLoad
		node.HealthScore = capacity.HealthScore(node.Metrics)
		node.UpdatedAt = l.now()
		l.nodes[node.ID] = node

		l.history.Record(node.ID, res.sample)

		res.node = node
		responded = append(responded, res)
	}

	return responded
}

// pruneFailedNodes removes nodes whose consecutive-failure count crossed the
// threshold, rebalancing only their shards. When a prober is configured, a
// node that still answers a health check gets a reprieve.
func (l *ControlLoop) pruneFailedNodes(ctx context.Context) {
	l.mu.Lock()
	var candidates []models.Node
	for id, count := range l.failures {
		if count >= l.cfg.ConsecutiveFailureThreshold {
			if node, tracked := l.nodes[id]; tracked {
				candidates = append(candidates, node)
			}
		}
	}
	l.mu.Unlock()

	for _, node := range candidates {
		if l.prober != nil && node.Address != "" {
			pctx, cancel := context.WithTimeout(ctx, l.cfg.CollectTimeout)
			err := l.prober.Probe(pctx, node.Address)
			cancel()
			if err == nil {
				l.logger.Warn("Node silent on collection but passed health probe, keeping",
					"node_id", node.ID)
				l.mu.Lock()
				l.failures[node.ID] = 0
				l.mu.Unlock()
				continue
			}
		}

		l.logger.Warn("Removing unhealthy node",
			"node_id", node.ID,
			"consecutive_failures", l.cfg.ConsecutiveFailureThreshold)
		l.untrackNode(node.ID)
	}
}

// decide runs forecast and scaling evaluation sequentially for every node
// that responded this tick, then rebalances once if any capacity hint moved
func (l *ControlLoop) decide(responded []collectResult) {
	hintsChanged := false

	for _, res := range responded {
		window := l.history.Window(res.node.ID)
		fc := l.predictor.Forecast(window, l.cfg.PredictionHorizon)

		l.scoreForecast(res.node.ID, res.sample)

		l.mu.Lock()
		l.lastForecasts[res.node.ID] = fc
		l.mu.Unlock()

		dec := l.engine.Evaluate(res.node, fc)
		if dec.Action == models.ActionNoOp {
			continue
		}

		// Provisioning is an external effect; locally the decision updates
		// the node's capacity hint so placement tracks its real headroom.
		l.shards.UpdateCapacity(res.node.ID, l.estimator.Estimate(res.node))
		hintsChanged = true
	}

	if hintsChanged {
		l.shards.Rebalance()
	}
}

// scoreForecast folds the previous tick's forecast against the realized
// sample into the rolling accuracy window
func (l *ControlLoop) scoreForecast(nodeID string, realized models.MetricSample) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.lastForecasts[nodeID]
	if !ok {
		return
	}

	denom := realized.CPU
	if denom < 1 {
		denom = 1
	}
	ape := math.Abs(prev.CPU-realized.CPU) / denom
	if ape > 1 {
		ape = 1
	}

	l.accuracyErrs[l.accuracyIdx] = ape
	l.accuracyIdx = (l.accuracyIdx + 1) % len(l.accuracyErrs)
	if l.accuracyIdx == 0 {
		l.accuracyFull = true
	}
}

// aggregate recomputes the system-wide metrics for this tick
func (l *ControlLoop) aggregate(responded []collectResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	metrics := models.SystemMetrics{
		ActiveNodes: len(responded),
		TotalNodes:  len(l.nodes),
		UpdatedAt:   l.now(),
	}

	for _, res := range responded {
		metrics.AvgCPU += res.sample.CPU
		metrics.AvgMemory += res.sample.Memory
		metrics.AvgNetworkLoad += res.sample.NetworkLoad
	}
	if len(responded) > 0 {
		n := float64(len(responded))
		metrics.AvgCPU /= n
		metrics.AvgMemory /= n
		metrics.AvgNetworkLoad /= n
	}

	for _, node := range l.nodes {
		metrics.TotalConnections += len(node.Connections)
	}

	metrics.PredictionAccuracy = l.accuracyLocked()
	l.system = metrics
}

// accuracyLocked computes 1 − mean forecast error over the rolling window.
// Must be called with mu held.
func (l *ControlLoop) accuracyLocked() float64 {
	count := l.accuracyIdx
	if l.accuracyFull {
		count = len(l.accuracyErrs)
	}
	if count == 0 {
		return 0
	}

	sum := 0.0
	for i := 0; i < count; i++ {
		sum += l.accuracyErrs[i]
	}

	acc := 1 - sum/float64(count)
	if acc < 0 {
		return 0
	}
	return acc
}

// exportSnapshot hands the decision log and system metrics to the exporter.
// Failures are logged and dropped; the next tick is unaffected.
func (l *ControlLoop) exportSnapshot(ctx context.Context) {
	if l.exporter == nil {
		return
	}

	snapshot := export.Snapshot{
		Decisions:  l.engine.RecentDecisions(l.cfg.DecisionLogSize),
		Metrics:    l.SystemMetrics(),
		ExportedAt: l.now(),
	}

	ectx, cancel := context.WithTimeout(ctx, l.cfg.CollectTimeout)
	defer cancel()

	if err := l.exporter.Export(ectx, snapshot); err != nil {
		l.logger.Error("Snapshot export failed", "error", err)
	}
}

// trackNode registers a node with the loop and the shard map
func (l *ControlLoop) trackNode(node models.Node) {
	if node.HealthScore == 0 {
		node.HealthScore = capacity.HealthScore(node.Metrics)
	}
	if node.RegisteredAt.IsZero() {
		node.RegisteredAt = l.now()
	}

	l.mu.Lock()
	_, known := l.nodes[node.ID]
	l.nodes[node.ID] = node
	l.failures[node.ID] = 0
	l.mu.Unlock()

	if !known {
		l.shards.AddNode(node)
	}
}

// untrackNode removes a node from the loop, the shard map, its history,
// and its decision state
func (l *ControlLoop) untrackNode(nodeID string) {
	l.mu.Lock()
	_, known := l.nodes[nodeID]
	delete(l.nodes, nodeID)
	delete(l.failures, nodeID)
	delete(l.lastForecasts, nodeID)
	l.mu.Unlock()

	if !known {
		return
	}

	l.shards.RemoveNode(nodeID)
	l.history.Drop(nodeID)
	l.engine.Forget(nodeID)
}

// trackedNodes snapshots the current node set
func (l *ControlLoop) trackedNodes() []models.Node {
	l.mu.RLock()
	defer l.mu.RUnlock()

	nodes := make([]models.Node, 0, len(l.nodes))
	for _, node := range l.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}

// GetSystemStatus returns a read-only snapshot of system metrics, the
// active strategy, and recent scaling decisions
func (l *ControlLoop) GetSystemStatus() Status {
	return Status{
		Metrics:         l.SystemMetrics(),
		Strategy:        string(l.predictor.Strategy()),
		RecentDecisions: l.engine.RecentDecisions(10),
	}
}

// GetShardStatistics returns the shard map's load view
func (l *ControlLoop) GetShardStatistics() shardmap.Statistics {
	return l.shards.Statistics()
}

// SystemMetrics returns the last aggregated system metrics
func (l *ControlLoop) SystemMetrics() models.SystemMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.system
}

// RecentDecisions returns up to limit audit-log entries, most recent first
func (l *ControlLoop) RecentDecisions(limit int) []models.ScalingDecision {
	return l.engine.RecentDecisions(limit)
}

// ShardMap exposes the shard map for read-side collaborators
func (l *ControlLoop) ShardMap() *shardmap.ShardMap {
	return l.shards
}
