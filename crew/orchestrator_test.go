package crew

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/provider"
	"github.com/crewmind-ai/crewmind/rag"
	"github.com/crewmind-ai/crewmind/routing"
	"github.com/crewmind-ai/crewmind/types"
)

// scriptedGenerator answers with per-agent latency, failure, and reply
// scripts, recording every prompt it sees.
type scriptedGenerator struct {
	latency map[string]time.Duration
	fail    map[string]bool
	reply   func(req *provider.GenerateRequest) string

	mu      sync.Mutex
	prompts map[string][]string
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		latency: make(map[string]time.Duration),
		fail:    make(map[string]bool),
		prompts: make(map[string][]string),
	}
}

func (g *scriptedGenerator) Generate(ctx context.Context, req *provider.GenerateRequest) (*provider.GenerateResult, error) {
	g.mu.Lock()
	g.prompts[req.Agent.ID] = append(g.prompts[req.Agent.ID], req.Prompt)
	g.mu.Unlock()

	if d := g.latency[req.Agent.ID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, types.NewProviderUnavailableError("llm", ctx.Err())
		}
	}
	if g.fail[req.Agent.ID] {
		return nil, types.NewProviderUnavailableError("llm", fmt.Errorf("scripted failure"))
	}
	if g.reply != nil {
		return &provider.GenerateResult{Text: g.reply(req)}, nil
	}
	return &provider.GenerateResult{Text: fmt.Sprintf("agent %s recommends to review %s", req.Agent.ID, req.Prompt)}, nil
}

func (g *scriptedGenerator) promptsFor(agentID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts[agentID]...)
}

var _ provider.Generator = (*scriptedGenerator)(nil)

type crewFixture struct {
	store        *memory.InMemoryStore
	generator    *scriptedGenerator
	orchestrator *Orchestrator
}

func newCrewFixture(t *testing.T, cfg OrchestratorConfig) *crewFixture {
	t.Helper()
	reg, err := routing.NewRegistry([]types.AgentProfile{
		{ID: "data", DisplayName: "Data Analyst", SpecializationTags: []string{"data", "metrics"}, PriorityRank: 1},
		{ID: "ops", DisplayName: "Ops Engineer", SpecializationTags: []string{"deploy", "infra"}, PriorityRank: 2},
		{ID: "sec", DisplayName: "Security Reviewer", SpecializationTags: []string{"security", "audit"}, PriorityRank: 3},
	})
	require.NoError(t, err)
	eng, err := routing.NewEngine(reg, routing.EngineConfig{DefaultAgent: "data"}, zap.NewNop())
	require.NoError(t, err)

	f := &crewFixture{
		store:     memory.NewInMemoryStore(memory.InMemoryStoreConfig{}, zap.NewNop()),
		generator: newScriptedGenerator(),
	}
	pipe := rag.NewPipeline(f.store, eng, provider.NewMockEmbedder(8), f.generator,
		rag.PipelineConfig{}, rag.PipelineOptions{Logger: zap.NewNop()})
	f.orchestrator = NewOrchestrator(pipe, f.store, cfg, OrchestratorOptions{Logger: zap.NewNop()})
	return f
}

func TestRun_ParallelCompletes(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})
	ctx := context.Background()

	result, err := f.orchestrator.Run(ctx, types.SessionRequest{
		SessionID:    "s1",
		Participants: []string{"data", "ops", "sec"},
		Mode:         types.ModeParallel,
		Task:         "evaluate the cache eviction policy",
	})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, "s1", result.SessionID)
	assert.Len(t, result.IndividualOutputs, 3)
	assert.Empty(t, result.Failures)
	assert.NotEmpty(t, result.SynthesisRecordID)

	// The synthesis lands in shared memory under the session's mission.
	recs, qerr := f.store.Query(ctx, memory.Filter{
		Owners: []string{types.OwnerShared}, MissionID: "s1", Kind: types.KindSynthesis})
	require.NoError(t, qerr)
	require.Len(t, recs, 1)
	assert.Equal(t, result.SynthesisRecordID, recs[0].ID)
	assert.Contains(t, recs[0].Content, "evaluate the cache eviction policy")
	assert.Equal(t, types.ImportanceHigh, recs[0].Importance)

	// Each participant's exchange is owned by that agent.
	for _, agentID := range []string{"data", "ops", "sec"} {
		exchanges, qerr := f.store.Query(ctx, memory.Filter{
			Owners: []string{agentID}, MissionID: "s1", Kind: types.KindExchange})
		require.NoError(t, qerr)
		assert.Len(t, exchanges, 1, "agent %s", agentID)
	}
}

func TestRun_ParallelBoundedBySlowestParticipant(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})
	f.generator.latency["data"] = 100 * time.Millisecond
	f.generator.latency["ops"] = 300 * time.Millisecond
	f.generator.latency["sec"] = 150 * time.Millisecond

	start := time.Now()
	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		Participants: []string{"data", "ops", "sec"},
		Mode:         types.ModeParallel,
		Task:         "profile the ingestion path",
	})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	// Well under the 550ms a sequential run would take.
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestRun_ParticipantFailureIsIsolated(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})
	f.generator.fail["ops"] = true

	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		Participants: []string{"data", "ops", "sec"},
		Mode:         types.ModeParallel,
		Task:         "review the release checklist",
	})
	require.NoError(t, err)

	assert.Equal(t, StatePartiallyCompleted, result.State)
	assert.Len(t, result.IndividualOutputs, 2)
	require.Contains(t, result.Failures, "ops")
	assert.NotEmpty(t, result.SynthesisRecordID)
}

func TestRun_ParticipantTimeoutDoesNotCancelSiblings(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{ParticipantTimeout: 80 * time.Millisecond})
	f.generator.latency["sec"] = 400 * time.Millisecond

	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		Participants: []string{"data", "ops", "sec"},
		Mode:         types.ModeParallel,
		Task:         "summarize open incidents",
	})
	require.NoError(t, err)

	assert.Equal(t, StatePartiallyCompleted, result.State)
	assert.Contains(t, result.Failures, "sec")
	assert.Len(t, result.IndividualOutputs, 2)
}

func TestRun_AllParticipantsFail(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})
	for _, agentID := range []string{"data", "ops", "sec"} {
		f.generator.fail[agentID] = true
	}

	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		SessionID:    "s-doomed",
		Participants: []string{"data", "ops", "sec"},
		Mode:         types.ModeParallel,
		Task:         "triage the outage",
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrPartialFailure))

	require.NotNil(t, result)
	assert.Equal(t, StatePartiallyCompleted, result.State)
	assert.Len(t, result.Failures, 3)
	assert.Empty(t, result.SynthesisRecordID)

	// No synthesis record is written for a fully failed session.
	recs, qerr := f.store.Query(context.Background(), memory.Filter{
		Owners: []string{types.OwnerShared}, MissionID: "s-doomed", Kind: types.KindSynthesis})
	require.NoError(t, qerr)
	assert.Empty(t, recs)
}

func TestRun_ChainedFeedsUpstreamOutputs(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})

	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		Participants: []string{"data", "ops"},
		Mode:         types.ModeChained,
		Task:         "plan the migration",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)

	// The first agent sees only the task.
	dataPrompts := f.generator.promptsFor("data")
	require.Len(t, dataPrompts, 1)
	assert.Equal(t, "plan the migration", dataPrompts[0])

	// The second agent sees the first agent's output appended.
	opsPrompts := f.generator.promptsFor("ops")
	require.Len(t, opsPrompts, 1)
	assert.Contains(t, opsPrompts[0], "plan the migration")
	assert.Contains(t, opsPrompts[0], "upstream findings:")
	assert.Contains(t, opsPrompts[0], "[data]")
}

func TestRun_ChainedSkipsFailedLink(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})
	f.generator.fail["data"] = true

	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		Participants: []string{"data", "ops", "sec"},
		Mode:         types.ModeChained,
		Task:         "plan the migration",
	})
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyCompleted, result.State)
	assert.Contains(t, result.Failures, "data")

	// Downstream agents still ran; sec got ops's output but nothing
	// from the failed data agent.
	secPrompts := f.generator.promptsFor("sec")
	require.Len(t, secPrompts, 1)
	assert.Contains(t, secPrompts[0], "[ops]")
	assert.NotContains(t, secPrompts[0], "[data]")
}

func TestRun_AllSentinelExpandsRegistry(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})

	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		Participants: []string{types.ParticipantsAll},
		Mode:         types.ModeParallel,
		Task:         "assess quarterly priorities",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"data", "ops", "sec"}, result.Participants)
	assert.Len(t, result.IndividualOutputs, 3)
}

func TestRun_GeneratesSessionID(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})

	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		Participants: []string{"data"},
		Mode:         types.ModeParallel,
		Task:         "check backlog health",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
}

func TestRun_InvalidRequests(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})
	ctx := context.Background()

	cases := []struct {
		name string
		req  types.SessionRequest
	}{
		{"empty task", types.SessionRequest{Participants: []string{"data"}, Mode: types.ModeParallel}},
		{"no participants", types.SessionRequest{Mode: types.ModeParallel, Task: "t"}},
		{"unknown participant", types.SessionRequest{Participants: []string{"ghost"}, Mode: types.ModeParallel, Task: "t"}},
		{"unknown mode", types.SessionRequest{Participants: []string{"data"}, Mode: "quorum", Task: "t"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orchestrator.Run(ctx, tc.req)
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
		})
	}
}

func TestRun_ConsensusAcrossAgents(t *testing.T) {
	t.Parallel()
	f := newCrewFixture(t, OrchestratorConfig{})
	f.generator.reply = func(req *provider.GenerateRequest) string {
		switch req.Agent.ID {
		case "data":
			return "Latency regressions come from the cache layer. We should increase the cache size."
		case "ops":
			return "Latency regressions come from the cache layer. Deployment windows look fine."
		default:
			return "No security impact observed in the cache layer changes."
		}
	}

	result, err := f.orchestrator.Run(context.Background(), types.SessionRequest{
		Participants: []string{"data", "ops", "sec"},
		Mode:         types.ModeParallel,
		Task:         "investigate latency regressions",
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.ConsensusPoints)
	assert.True(t, strings.Contains(result.ConsensusPoints[0], "cache layer"))
	require.NotEmpty(t, result.Recommendations)
	assert.Contains(t, result.Recommendations[0], "increase the cache size")
}
