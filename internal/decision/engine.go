package decision

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shardpulse/shardpulse/internal/capacity"
	"github.com/shardpulse/shardpulse/internal/logging"
	"github.com/shardpulse/shardpulse/internal/models"
	"github.com/shardpulse/shardpulse/internal/predictor"
)

// Rationales attached to emitted decisions
const (
	ReasonHighWatermark = "forecast load exceeds high watermark"
	ReasonLowWatermark  = "forecast load below low watermark, scale-down opportunity"
	ReasonCooldown      = "cooldown active"
	ReasonWithinBand    = "forecast load within watermarks"
)

// State is a node's position in the hysteresis state machine
type State int

const (
	StateStable State = iota
	StateCooldown
)

// String returns the state name
func (s State) String() string {
	if s == StateCooldown {
		return "cooldown"
	}
	return "stable"
}

// Config holds decision engine parameters
type Config struct {
	HighWatermark  float64       // fraction of capacity triggering scale-up
	LowWatermark   float64       // fraction of capacity triggering scale-down
	CooldownPeriod time.Duration // hysteresis window after a scaling decision
	LogSize        int           // audit ring buffer capacity
}

// DefaultConfig returns default engine parameters
func DefaultConfig() Config {
	return Config{
		HighWatermark:  0.85,
		LowWatermark:   0.40,
		CooldownPeriod: 5 * time.Minute,
		LogSize:        100,
	}
}

// nodeState tracks one node's hysteresis position
type nodeState struct {
	state         State
	cooldownUntil time.Time
}

// Engine turns per-node forecasts into scaling decisions with cooldown
// hysteresis: after a ScaleUp or ScaleDown the node enters Cooldown and
// emits only NoOps until the cooldown expires, so no two scaling decisions
// for the same node land within one cooldown period.
type Engine struct {
	cfg       Config
	estimator *capacity.Estimator
	logger    *logging.Logger

	mu     sync.Mutex
	states map[string]*nodeState

	// Bounded audit log of ScaleUp/ScaleDown decisions; NoOps are
	// timestamped but not retained.
	log  []models.ScalingDecision
	head int // next write position once the ring is full
	full bool

	now func() time.Time // injectable clock
}

// NewEngine creates a decision engine
func NewEngine(cfg Config, estimator *capacity.Estimator, logger *logging.Logger) *Engine {
	if cfg.LogSize < 1 {
		cfg.LogSize = DefaultConfig().LogSize
	}
	return &Engine{
		cfg:       cfg,
		estimator: estimator,
		logger:    logger,
		states:    make(map[string]*nodeState),
		log:       make([]models.ScalingDecision, 0, cfg.LogSize),
		now:       time.Now,
	}
}

// Evaluate runs the transition rule once for a node, comparing its forecast
// load against watermark fractions of its effective capacity. Every returned
// decision is timestamped; ScaleUp and ScaleDown are appended to the audit
// log and flip the node into Cooldown.
func (e *Engine) Evaluate(node models.Node, fc predictor.Forecast) models.ScalingDecision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	st, exists := e.states[node.ID]
	if !exists {
		st = &nodeState{state: StateStable}
		e.states[node.ID] = st
	}

	if st.state == StateCooldown {
		if now.Before(st.cooldownUntil) {
			return e.emit(node.ID, models.ActionNoOp, ReasonCooldown, now)
		}
		st.state = StateStable
	}

	cap := e.estimator.Estimate(node)
	load := fc.CPU

	switch {
	case load > cap*e.cfg.HighWatermark:
		st.state = StateCooldown
		st.cooldownUntil = now.Add(e.cfg.CooldownPeriod)
		return e.emit(node.ID, models.ActionScaleUp, ReasonHighWatermark, now)

	case load < cap*e.cfg.LowWatermark:
		st.state = StateCooldown
		st.cooldownUntil = now.Add(e.cfg.CooldownPeriod)
		return e.emit(node.ID, models.ActionScaleDown, ReasonLowWatermark, now)

	default:
		return e.emit(node.ID, models.ActionNoOp, ReasonWithinBand, now)
	}
}

// StateOf returns a node's current machine state, resolving expired cooldowns
func (e *Engine) StateOf(nodeID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, exists := e.states[nodeID]
	if !exists {
		return StateStable
	}
	if st.state == StateCooldown && !e.now().Before(st.cooldownUntil) {
		return StateStable
	}
	return st.state
}

// Forget drops a node's state when it leaves the mesh
func (e *Engine) Forget(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, nodeID)
}

// RecentDecisions returns up to limit audit-log entries, most recent first
func (e *Engine) RecentDecisions(limit int) []models.ScalingDecision {
	e.mu.Lock()
	defer e.mu.Unlock()

	ordered := e.chronological()
	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}

	out := make([]models.ScalingDecision, limit)
	for i := 0; i < limit; i++ {
		out[i] = ordered[len(ordered)-1-i]
	}
	return out
}

// emit builds the decision and records scaling actions in the ring buffer.
// Must be called with mu held.
func (e *Engine) emit(nodeID string, action models.ScalingAction, reason string, now time.Time) models.ScalingDecision {
	d := models.ScalingDecision{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Action:    action,
		Reason:    reason,
		Timestamp: now,
	}

	if action != models.ActionNoOp {
		e.append(d)
		e.logger.Info("Scaling decision emitted",
			"node_id", nodeID,
			"action", string(action),
			"reason", reason)
	}

	return d
}

// append writes into the bounded ring, dropping the oldest on overflow.
// Must be called with mu held.
func (e *Engine) append(d models.ScalingDecision) {
	if !e.full && len(e.log) < e.cfg.LogSize {
		e.log = append(e.log, d)
		if len(e.log) == e.cfg.LogSize {
			e.full = true
		}
		return
	}

	e.log[e.head] = d
	e.head = (e.head + 1) % e.cfg.LogSize
}

// chronological flattens the ring into oldest-first order.
// Must be called with mu held.
func (e *Engine) chronological() []models.ScalingDecision {
	if !e.full {
		out := make([]models.ScalingDecision, len(e.log))
		copy(out, e.log)
		return out
	}

	out := make([]models.ScalingDecision, 0, e.cfg.LogSize)
	out = append(out, e.log[e.head:]...)
	out = append(out, e.log[:e.head]...)
	return out
}
