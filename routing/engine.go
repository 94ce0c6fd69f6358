package routing

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/types"
)

// EngineConfig is the inspectable routing configuration table.
type EngineConfig struct {
	// DefaultAgent receives tasks with no specialization overlap.
	DefaultAgent string `yaml:"default_agent" json:"default_agent"`

	// NeedsLocalReasoning lists declared types that route to the local
	// backend when the task complexity is high.
	NeedsLocalReasoning []string `yaml:"needs_local_reasoning" json:"needs_local_reasoning"`
}

// Engine routes tasks to agents. Routing is pure computation over the task,
// the registry snapshot, and the configuration table.
type Engine struct {
	registry   *Registry
	defaultID  string
	needsLocal map[string]struct{}
	logger     *zap.Logger
}

// NewEngine creates a routing engine over the given registry. The default
// agent must be registered.
func NewEngine(registry *Registry, config EngineConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("registry is empty")
	}
	if _, ok := registry.Get(config.DefaultAgent); !ok {
		return nil, fmt.Errorf("default agent %q is not registered", config.DefaultAgent)
	}

	needsLocal := make(map[string]struct{}, len(config.NeedsLocalReasoning))
	for _, t := range config.NeedsLocalReasoning {
		needsLocal[strings.ToLower(t)] = struct{}{}
	}
	return &Engine{
		registry:   registry,
		defaultID:  config.DefaultAgent,
		needsLocal: needsLocal,
		logger:     logger.With(zap.String("component", "routing")),
	}, nil
}

// Route selects the agent whose specialization tags best overlap the task's
// extracted keywords and declared type. Ties break on the lowest priority
// rank, then on the lexicographically smallest id so the decision stays
// deterministic. With zero overlap anywhere the engine falls back to the
// default agent and marks the decision non-deterministic; that fallback is
// logged as ROUTING_AMBIGUOUS but never fails the call.
func (e *Engine) Route(task types.Task) types.RoutingDecision {
	keywords := ExtractKeywords(task.DeclaredType + " " + task.Description)

	var (
		best      types.AgentProfile
		bestScore int
		found     bool
	)
	for _, p := range e.registry.All() {
		score := types.TagOverlap(keywords, p.SpecializationTags)
		if score == 0 {
			continue
		}
		if !found || score > bestScore ||
			(score == bestScore && p.PriorityRank < best.PriorityRank) ||
			(score == bestScore && p.PriorityRank == best.PriorityRank && p.ID < best.ID) {
			best, bestScore, found = p, score, true
		}
	}

	decision := types.RoutingDecision{
		TaskID:       task.ID,
		BackendClass: e.backendFor(task),
	}
	if found {
		decision.SelectedAgent = best.ID
		decision.Deterministic = true
		decision.Rationale = fmt.Sprintf("matched %d specialization tag(s) of %s", bestScore, best.ID)
	} else {
		decision.SelectedAgent = e.defaultID
		decision.Deterministic = false
		decision.Rationale = "no specialization overlap; routed to default agent"
		e.logger.Warn("routing fell back to default agent",
			zap.String("code", string(types.ErrRoutingAmbiguous)),
			zap.String("task_id", task.ID),
			zap.String("declared_type", task.DeclaredType),
			zap.String("default_agent", e.defaultID))
	}
	return decision
}

// backendFor applies the configured backend table: high-complexity tasks
// whose declared type needs local reasoning run locally, everything else
// runs on the remote backend.
func (e *Engine) backendFor(task types.Task) types.BackendClass {
	if task.Complexity != types.ComplexityHigh {
		return types.BackendRemote
	}
	if _, ok := e.needsLocal[strings.ToLower(task.DeclaredType)]; ok {
		return types.BackendLocal
	}
	return types.BackendRemote
}

// Registry exposes the engine's registry snapshot.
func (e *Engine) Registry() *Registry { return e.registry }
