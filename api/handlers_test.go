package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/audit"
	"github.com/crewmind-ai/crewmind/crew"
	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/provider"
	"github.com/crewmind-ai/crewmind/rag"
	"github.com/crewmind-ai/crewmind/routing"
	"github.com/crewmind-ai/crewmind/types"
)

type apiFixture struct {
	store     *memory.InMemoryStore
	generator *provider.MockGenerator
	mux       *http.ServeMux
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	reg, err := routing.NewRegistry([]types.AgentProfile{
		{ID: "data", DisplayName: "Data Analyst", SpecializationTags: []string{"data", "metrics"}, PriorityRank: 1},
		{ID: "ops", DisplayName: "Ops Engineer", SpecializationTags: []string{"deploy", "infra"}, PriorityRank: 2},
	})
	require.NoError(t, err)
	eng, err := routing.NewEngine(reg, routing.EngineConfig{DefaultAgent: "data"}, zap.NewNop())
	require.NoError(t, err)

	f := &apiFixture{
		store:     memory.NewInMemoryStore(memory.InMemoryStoreConfig{}, zap.NewNop()),
		generator: provider.NewMockGenerator(),
	}
	pipe := rag.NewPipeline(f.store, eng, provider.NewMockEmbedder(8), f.generator,
		rag.PipelineConfig{}, rag.PipelineOptions{Logger: zap.NewNop()})
	orch := crew.NewOrchestrator(pipe, f.store, crew.OrchestratorConfig{}, crew.OrchestratorOptions{Logger: zap.NewNop()})
	auditor := audit.NewAuditor(f.store, audit.AuditorConfig{}, audit.AuditorOptions{Logger: zap.NewNop()})

	h := NewHandler(pipe, orch, auditor, f.store, HandlerOptions{Logger: zap.NewNop()})
	f.mux = h.Routes(nil)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleAnalyze(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/analyze", types.AnalysisRequest{
		AgentID: "data", Content: "inspect ingestion metrics", MissionID: "m1"})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	var result types.AnalysisResult
	raw, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, types.StatusSuccess, result.Status)
	assert.Equal(t, "data", result.Agent)
	assert.NotEmpty(t, result.Content)
}

func TestHandleAnalyze_UnknownAgent(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/analyze", types.AnalysisRequest{
		AgentID: "ghost", Content: "anything"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, string(types.ErrInvalidRequest), env.Error.Code)
}

func TestHandleAnalyze_InvalidJSON(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBatchAnalyze(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/analyze/batch", types.BatchAnalysisRequest{
		AgentID:  "data",
		Contents: []string{"first finding", "second finding", ""},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var out types.BatchAnalysisResult
	raw, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 2, out.Successful)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, out.Results, 3)
	// Results keep request order; the empty content fails in place.
	assert.Equal(t, types.StatusSuccess, out.Results[0].Status)
	assert.Equal(t, types.StatusError, out.Results[2].Status)
	assert.Equal(t, types.ErrInvalidRequest, out.Results[2].ErrorCode)
}

func TestHandleBatchAnalyze_Empty(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/analyze/batch", types.BatchAnalysisRequest{AgentID: "data"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSession(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/sessions", types.SessionRequest{
		Participants: []string{"data", "ops"},
		Mode:         types.ModeParallel,
		Task:         "review deploy risks",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var result crew.SessionResult
	raw, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, crew.StateCompleted, result.State)
	assert.Len(t, result.IndividualOutputs, 2)
}

func TestHandleSession_AllParticipantsFail(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	f.generator.Fail.Store(true)

	rec := f.do(t, http.MethodPost, "/v1/sessions", types.SessionRequest{
		Participants: []string{"data", "ops"},
		Mode:         types.ModeParallel,
		Task:         "review deploy risks",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, string(types.ErrPartialFailure), env.Error.Code)
	// The partial result still ships so callers can see who failed.
	assert.NotNil(t, env.Data)
}

func TestHandleAudit(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ctx := context.Background()

	for i, content := range []string{"migration succeeded cleanly", "migration failed at step two"} {
		_, err := f.store.Insert(ctx, &types.MemoryRecord{
			Owner:     types.OwnerShared,
			MissionID: "m-audit",
			Kind:      types.KindSystemNote,
			Content:   content,
			Tags:      []string{"migration", fmt.Sprintf("note%d", i)},
		})
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodPost, "/v1/audit", AuditRequest{MissionID: "m-audit"})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var report audit.Report
	raw, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, 2, report.TotalRecords)
	assert.Equal(t, 2, report.ConflictingRecords)
	assert.Equal(t, 0.0, report.ConsistencyScore)
}

func TestHandleAudit_EmptyScope(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/audit", AuditRequest{MissionID: "nothing-here"})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var report audit.Report
	raw, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, 100.0, report.ConsistencyScore)
}

func TestHandleListAgents(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var agents []agentInfo
	raw, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(raw, &agents))
	require.Len(t, agents, 2)
	assert.Equal(t, "data", agents[0].ID)
}

func TestHandleMemoryStats(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ctx := context.Background()

	_, err := f.store.Insert(ctx, &types.MemoryRecord{
		Owner: "data", MissionID: "m1", Kind: types.KindExchange,
		Content: "task: x\nresponse: y", Tags: []string{"x"}})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/v1/memory/stats?owner=data&mission_id=m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	var stats memoryStats
	raw, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(raw, &stats))
	assert.Equal(t, int64(1), stats.Total)
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
