package crew

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/internal/metrics"
	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/rag"
	"github.com/crewmind-ai/crewmind/routing"
	"github.com/crewmind-ai/crewmind/types"
)

// OrchestratorConfig tunes session execution.
type OrchestratorConfig struct {
	// ParticipantTimeout bounds each agent's turn. A participant that
	// exceeds it is marked failed without cancelling its siblings.
	// Defaults to 30 seconds.
	ParticipantTimeout time.Duration `yaml:"participant_timeout" json:"participant_timeout"`
}

func normalizeOrchestratorConfig(cfg OrchestratorConfig) OrchestratorConfig {
	if cfg.ParticipantTimeout <= 0 {
		cfg.ParticipantTimeout = 30 * time.Second
	}
	return cfg
}

// OrchestratorOptions carries the optional orchestrator collaborators.
type OrchestratorOptions struct {
	Collector *metrics.Collector
	Logger    *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Orchestrator runs multi-agent sessions over a shared pipeline and writes
// each session's synthesis back to shared memory.
type Orchestrator struct {
	pipeline  *rag.Pipeline
	store     memory.Store
	config    OrchestratorConfig
	collector *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator wires an orchestrator over the given pipeline and store.
func NewOrchestrator(pipeline *rag.Pipeline, store memory.Store, config OrchestratorConfig,
	opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		pipeline:  pipeline,
		store:     store,
		config:    normalizeOrchestratorConfig(config),
		collector: opts.Collector,
		logger:    logger.With(zap.String("component", "crew_orchestrator")),
		now:       now,
	}
}

// Run executes one session end to end.
//
// Participant failures (errors, timeouts, degraded empty responses) never
// abort the session; they only downgrade the final state to partially
// completed. Run returns an error alongside the result only when every
// participant failed, in which case no synthesis record is written.
func (o *Orchestrator) Run(ctx context.Context, req types.SessionRequest) (*SessionResult, error) {
	if strings.TrimSpace(req.Task) == "" {
		return nil, types.NewInvalidRequestError("task is empty")
	}
	mode := req.Mode
	if mode == "" {
		mode = types.ModeParallel
	}
	if mode != types.ModeParallel && mode != types.ModeChained {
		return nil, types.NewInvalidRequestError(fmt.Sprintf("unknown session mode %q", mode))
	}

	participants, err := o.resolveParticipants(req.Participants)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	started := o.now().UTC()
	result := &SessionResult{
		SessionID:         sessionID,
		Mode:              mode,
		State:             StateCreated,
		Participants:      participants,
		IndividualOutputs: make(map[string]*rag.Response),
		Failures:          make(map[string]string),
		StartedAt:         started,
	}
	o.logger.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("mode", string(mode)),
		zap.Strings("participants", participants))

	result.State = StateFanningOut
	var turns []ParticipantResult
	if mode == types.ModeChained {
		turns = o.runChained(ctx, sessionID, req, participants)
	} else {
		turns = o.runParallel(ctx, sessionID, req, participants)
	}

	result.State = StateAggregating
	for _, turn := range turns {
		if turn.Failed {
			result.Failures[turn.AgentID] = turn.Error
			continue
		}
		result.IndividualOutputs[turn.AgentID] = turn.Response
	}

	if len(result.IndividualOutputs) == 0 {
		result.State = StatePartiallyCompleted
		result.Duration = o.now().UTC().Sub(started)
		o.collector.ObserveSession(string(result.State), result.Duration)
		o.logger.Error("session failed, no participant succeeded",
			zap.String("session_id", sessionID),
			zap.Int("participants", len(participants)))
		return result, types.NewError(types.ErrPartialFailure,
			fmt.Sprintf("all %d participants failed", len(participants)))
	}

	outputs := make(map[string]string, len(result.IndividualOutputs))
	for agentID, resp := range result.IndividualOutputs {
		outputs[agentID] = resp.Content
	}
	result.ConsensusPoints, result.DivergentPoints, result.Recommendations =
		aggregateOutputs(outputs, o.priorityRanks())

	result.SynthesisRecordID = o.persistSynthesis(ctx, sessionID, req.Task, result)

	if len(result.Failures) > 0 {
		result.State = StatePartiallyCompleted
	} else {
		result.State = StateCompleted
	}
	result.Duration = o.now().UTC().Sub(started)

	o.collector.ObserveSession(string(result.State), result.Duration)
	o.logger.Info("session finished",
		zap.String("session_id", sessionID),
		zap.String("state", string(result.State)),
		zap.Int("succeeded", len(result.IndividualOutputs)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// resolveParticipants expands the "all" sentinel and validates every
// participant against the registry. The resolved list preserves request
// order with duplicates dropped.
func (o *Orchestrator) resolveParticipants(requested []string) ([]string, error) {
	registry := o.pipeline.Engine().Registry()
	for _, p := range requested {
		if p == types.ParticipantsAll {
			return registry.IDs(), nil
		}
	}
	if len(requested) == 0 {
		return nil, types.NewInvalidRequestError("at least one participant required")
	}
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, p := range requested {
		if _, ok := registry.Get(p); !ok {
			return nil, types.NewInvalidRequestError(fmt.Sprintf("unknown participant %q", p))
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// runParallel fans the task out to every participant at once. Session wall
// time is bounded by the slowest participant, not the sum.
func (o *Orchestrator) runParallel(ctx context.Context, sessionID string,
	req types.SessionRequest, participants []string) []ParticipantResult {
	results := make(chan ParticipantResult, len(participants))
	var wg sync.WaitGroup
	for _, agentID := range participants {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			results <- o.runParticipant(ctx, sessionID, agentID, req.Task, req.Focus)
		}(agentID)
	}
	wg.Wait()
	close(results)

	turns := make([]ParticipantResult, 0, len(participants))
	for turn := range results {
		turns = append(turns, turn)
	}
	return turns
}

// runChained executes participants in request order, feeding each agent the
// outputs of the agents before it. A failed link is skipped; the chain
// continues on whatever context has accumulated.
func (o *Orchestrator) runChained(ctx context.Context, sessionID string,
	req types.SessionRequest, participants []string) []ParticipantResult {
	turns := make([]ParticipantResult, 0, len(participants))
	var upstream []string
	for _, agentID := range participants {
		task := req.Task
		if len(upstream) > 0 {
			task = req.Task + "\n\nupstream findings:\n" + strings.Join(upstream, "\n")
		}
		turn := o.runParticipant(ctx, sessionID, agentID, task, req.Focus)
		turns = append(turns, turn)
		if !turn.Failed {
			upstream = append(upstream, fmt.Sprintf("[%s] %s", agentID, turn.Response.Content))
		}
	}
	return turns
}

// runParticipant runs one agent's turn under the participant timeout. The
// timeout is enforced with a select so a provider that ignores context
// cancellation still cannot stall the session.
func (o *Orchestrator) runParticipant(ctx context.Context, sessionID, agentID,
	task, focus string) ParticipantResult {
	turnCtx, cancel := context.WithTimeout(ctx, o.config.ParticipantTimeout)
	defer cancel()

	type answer struct {
		resp *rag.Response
		err  error
	}
	done := make(chan answer, 1)
	start := time.Now()
	go func() {
		resp, err := o.pipeline.Answer(turnCtx, types.AnalysisRequest{
			AgentID:   agentID,
			Content:   task,
			MissionID: sessionID,
			Focus:     focus,
		})
		done <- answer{resp: resp, err: err}
	}()

	turn := ParticipantResult{AgentID: agentID}
	select {
	case a := <-done:
		turn.Duration = time.Since(start)
		switch {
		case a.err != nil:
			turn.Failed = true
			turn.Error = a.err.Error()
		case a.resp.Degraded && a.resp.Content == "":
			// The pipeline degrades generator failures instead of
			// erroring; for a session that still counts as a failed
			// turn.
			turn.Failed = true
			turn.Error = "degraded response with no content"
		default:
			turn.Response = a.resp
		}
	case <-turnCtx.Done():
		turn.Duration = time.Since(start)
		turn.Failed = true
		turn.Error = fmt.Sprintf("participant timed out after %s", o.config.ParticipantTimeout)
	}

	if turn.Failed {
		o.logger.Warn("participant failed",
			zap.String("session_id", sessionID),
			zap.String("agent", agentID),
			zap.String("reason", turn.Error))
	}
	return turn
}

// persistSynthesis writes the session synthesis to shared memory so later
// retrievals and audits can see it. Participant exchanges are already
// persisted by the pipeline, so a failed synthesis write is logged and
// skipped rather than failing the session.
func (o *Orchestrator) persistSynthesis(ctx context.Context, sessionID, task string,
	result *SessionResult) string {
	tags := append([]string{"synthesis", "mode:" + string(result.Mode)},
		limitKeywords(routing.ExtractKeywords(task), 5)...)
	rec := &types.MemoryRecord{
		Owner:      types.OwnerShared,
		MissionID:  sessionID,
		Kind:       types.KindSynthesis,
		Content:    renderSynthesis(task, result),
		Importance: types.ImportanceHigh,
		Tags:       tags,
	}
	id, err := o.store.Insert(ctx, rec)
	if err != nil {
		o.logger.Error("synthesis write-back failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return ""
	}
	return id
}

func renderSynthesis(task string, result *SessionResult) string {
	var b strings.Builder
	b.WriteString("task: ")
	b.WriteString(task)

	agents := make([]string, 0, len(result.IndividualOutputs))
	for agentID := range result.IndividualOutputs {
		agents = append(agents, agentID)
	}
	sort.Strings(agents)
	b.WriteString("\nagents: ")
	b.WriteString(strings.Join(agents, ", "))

	writeSection := func(heading string, lines []string) {
		if len(lines) == 0 {
			return
		}
		b.WriteString("\n")
		b.WriteString(heading)
		b.WriteString(":")
		for _, line := range lines {
			b.WriteString("\n- ")
			b.WriteString(line)
		}
	}
	writeSection("consensus", result.ConsensusPoints)
	writeSection("divergent", result.DivergentPoints)
	writeSection("recommendations", result.Recommendations)
	return b.String()
}

func (o *Orchestrator) priorityRanks() map[string]int {
	profiles := o.pipeline.Engine().Registry().All()
	ranks := make(map[string]int, len(profiles))
	for _, p := range profiles {
		ranks[p.ID] = p.PriorityRank
	}
	return ranks
}

func limitKeywords(keywords []string, n int) []string {
	if len(keywords) > n {
		return keywords[:n]
	}
	return keywords
}
