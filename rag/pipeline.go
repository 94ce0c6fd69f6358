package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/internal/metrics"
	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/provider"
	"github.com/crewmind-ai/crewmind/routing"
	"github.com/crewmind-ai/crewmind/types"
)

// Confidence blends retrieval quality with the provider's self-reported
// certainty. The weights are fixed by contract; only the default certainty
// is configurable.
const (
	retrievalWeight = 0.6
	certaintyWeight = 0.4
)

const confidenceTagPrefix = "confidence:"

// Response is the outcome of one pipeline answer.
type Response struct {
	Agent           string    `json:"agent"`
	Content         string    `json:"content"`
	Confidence      float64   `json:"confidence"`
	SourceRecordIDs []string  `json:"source_record_ids,omitempty"`
	RecordID        string    `json:"record_id,omitempty"`
	CacheHit        bool      `json:"cache_hit"`
	Degraded        bool      `json:"degraded,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// PipelineConfig tunes the answer flow.
type PipelineConfig struct {
	// TopK is the retrieval depth. Defaults to 5.
	TopK int `yaml:"top_k" json:"top_k"`

	// MinScore is the retrieval similarity cutoff. Defaults to 0.25.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// CacheTTL bounds idempotency cache entries. Defaults to an hour; the
	// store's hash tags serve replays beyond it.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// DefaultCertainty substitutes when the provider reports none.
	// Defaults to 0.7.
	DefaultCertainty float64 `yaml:"default_certainty" json:"default_certainty"`
}

func normalizePipelineConfig(cfg PipelineConfig) PipelineConfig {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.25
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.DefaultCertainty <= 0 {
		cfg.DefaultCertainty = 0.7
	}
	return cfg
}

// Pipeline answers tasks with retrieval-augmented generation and writes each
// exchange back to the shared memory store.
type Pipeline struct {
	store     memory.Store
	index     *Index
	engine    *routing.Engine
	embedder  provider.Embedder
	generator provider.Generator
	cache     ResponseCache
	config    PipelineConfig
	collector *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time
}

// PipelineOptions carries the optional pipeline collaborators.
type PipelineOptions struct {
	// Cache is the idempotency fast path. Defaults to an in-memory cache.
	Cache ResponseCache

	// Collector receives pipeline metrics. Nil disables them.
	Collector *metrics.Collector

	Logger *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewPipeline wires a pipeline over the given store, routing engine, and
// providers.
func NewPipeline(store memory.Store, engine *routing.Engine, embedder provider.Embedder,
	generator provider.Generator, config PipelineConfig, opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewInMemoryCache()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		store:     store,
		index:     NewIndex(store, logger),
		engine:    engine,
		embedder:  embedder,
		generator: generator,
		cache:     cache,
		config:    normalizePipelineConfig(config),
		collector: opts.Collector,
		logger:    logger.With(zap.String("component", "rag_pipeline")),
		now:       now,
	}
}

// Engine exposes the routing engine the pipeline answers through.
func (p *Pipeline) Engine() *routing.Engine { return p.engine }

// Answer runs the full retrieval-augmented flow for one request.
//
// Provider failures degrade the response instead of failing the call: a dead
// embedder falls back to tag-overlap retrieval, a dead generator yields an
// empty zero-confidence response. The single aborting failure is a failed
// memory write-back, surfaced as STORE_UNAVAILABLE, because a lost exchange
// breaks knowledge accumulation.
func (p *Pipeline) Answer(ctx context.Context, req types.AnalysisRequest) (*Response, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, types.NewInvalidRequestError("content is empty")
	}

	agentID, decision, err := p.resolveAgent(req)
	if err != nil {
		return nil, err
	}
	agent, _ := p.engine.Registry().Get(agentID)

	key := HashKey(agentID, req.Content, req.MissionID)
	if resp, ok := p.lookupReplay(ctx, key, agentID, req.MissionID); ok {
		p.collector.IncCacheHit()
		p.collector.IncAnalyze(types.StatusSuccess)
		return resp, nil
	}

	embedding, err := p.embedder.Embed(ctx, req.Content)
	if err != nil {
		p.collector.IncProviderFailure("embedding")
		p.logger.Warn("embedding provider failed, degrading to tag retrieval",
			zap.String("agent", agentID), zap.Error(err))
		embedding = nil
	}

	fallbackTags := routing.ExtractKeywords(req.Content + " " + req.Focus)
	search, err := p.index.SimilaritySearch(ctx, SearchQuery{
		Embedding: embedding,
		Tags:      fallbackTags,
		Owner:     agentID,
		K:         p.config.TopK,
		MinScore:  p.config.MinScore,
	})
	if err != nil {
		return nil, err
	}

	sourceIDs := make([]string, 0, len(search.Hits))
	contextRecords := make([]types.MemoryRecord, 0, len(search.Hits))
	var scoreSum float64
	for _, hit := range search.Hits {
		sourceIDs = append(sourceIDs, hit.Record.ID)
		contextRecords = append(contextRecords, hit.Record)
		scoreSum += hit.Score
	}
	meanScore := 0.0
	if len(search.Hits) > 0 {
		meanScore = scoreSum / float64(len(search.Hits))
	}

	genResult, err := p.generator.Generate(ctx, &provider.GenerateRequest{
		Agent:   agent,
		Prompt:  req.Content,
		Focus:   req.Focus,
		Context: contextRecords,
	})
	if err != nil {
		// Partial failure, not a crash: the caller gets an explicit
		// degraded zero-confidence response.
		p.collector.IncProviderFailure("llm")
		p.collector.IncAnalyze("degraded")
		p.logger.Warn("llm provider failed, returning degraded response",
			zap.String("agent", agentID), zap.Error(err))
		return &Response{
			Agent:           agentID,
			Content:         "",
			Confidence:      0,
			SourceRecordIDs: sourceIDs,
			Degraded:        true,
			Timestamp:       p.now().UTC(),
		}, nil
	}

	certainty := p.config.DefaultCertainty
	if genResult.Certainty != nil {
		certainty = *genResult.Certainty
	}
	confidence := clamp01(retrievalWeight*meanScore + certaintyWeight*certainty)

	recordID, err := p.writeBack(ctx, agentID, req, key, embedding, genResult.Text, confidence, fallbackTags)
	if err != nil {
		p.collector.IncAnalyze(types.StatusError)
		return nil, err
	}

	resp := &Response{
		Agent:           agentID,
		Content:         genResult.Text,
		Confidence:      confidence,
		SourceRecordIDs: sourceIDs,
		RecordID:        recordID,
		Degraded:        search.Degraded,
		Timestamp:       p.now().UTC(),
	}
	if err := p.cache.Set(ctx, key, resp, p.config.CacheTTL); err != nil {
		// Cache loss only costs a store lookup on replay.
		p.logger.Warn("idempotency cache write failed", zap.Error(err))
	}

	p.collector.IncAnalyze(types.StatusSuccess)
	p.logger.Info("task answered",
		zap.String("agent", agentID),
		zap.Bool("routed", req.AgentID == ""),
		zap.Bool("deterministic", decision.Deterministic),
		zap.String("backend", string(decision.BackendClass)),
		zap.Int("retrieved", len(search.Hits)),
		zap.Float64("confidence", confidence))
	return resp, nil
}

// resolveAgent validates an explicitly requested agent or routes the task.
func (p *Pipeline) resolveAgent(req types.AnalysisRequest) (string, types.RoutingDecision, error) {
	decision := p.engine.Route(types.Task{
		ID:           uuid.NewString(),
		Description:  req.Content,
		DeclaredType: req.Focus,
		Complexity:   types.ComplexityMedium,
		MissionID:    req.MissionID,
	})
	if req.AgentID == "" {
		return decision.SelectedAgent, decision, nil
	}
	if _, ok := p.engine.Registry().Get(req.AgentID); !ok {
		return "", decision, types.NewInvalidRequestError(fmt.Sprintf("unknown agent %q", req.AgentID))
	}
	decision.SelectedAgent = req.AgentID
	decision.Deterministic = true
	decision.Rationale = "agent explicitly requested"
	return req.AgentID, decision, nil
}

// lookupReplay serves idempotent repeats: first from the response cache,
// then from the store's hash-tagged exchange records when the cache is cold.
func (p *Pipeline) lookupReplay(ctx context.Context, key, agentID, missionID string) (*Response, bool) {
	if resp, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		resp.CacheHit = true
		return resp, true
	} else if err != nil {
		p.logger.Warn("idempotency cache read failed", zap.Error(err))
	}

	prior, err := p.store.Query(ctx, memory.Filter{
		Owners:    []string{agentID},
		MissionID: missionID,
		Kind:      types.KindExchange,
		AnyTags:   []string{types.ContentHashTagPrefix + key},
		Limit:     1,
	})
	if err != nil || len(prior) == 0 {
		return nil, false
	}

	rec := prior[0]
	_, answer, ok := parseExchange(rec.Content)
	if !ok {
		return nil, false
	}
	resp := &Response{
		Agent:      agentID,
		Content:    answer,
		Confidence: confidenceFromTags(&rec),
		RecordID:   rec.ID,
		CacheHit:   true,
		Timestamp:  p.now().UTC(),
	}
	// Repopulate the cache so the next replay skips the store.
	if err := p.cache.Set(ctx, key, resp, p.config.CacheTTL); err != nil {
		p.logger.Warn("idempotency cache write failed", zap.Error(err))
	}
	return resp, true
}

// writeBack persists the exchange as a new memory record owned by the
// responding agent.
func (p *Pipeline) writeBack(ctx context.Context, agentID string, req types.AnalysisRequest,
	key string, embedding []float64, answer string, confidence float64, keywords []string) (string, error) {
	tags := []string{
		types.ContentHashTagPrefix + key,
		confidenceTagPrefix + strconv.FormatFloat(confidence, 'f', 4, 64),
	}
	if req.Focus != "" {
		tags = append(tags, strings.ToLower(req.Focus))
	}
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	tags = append(tags, keywords...)

	rec := &types.MemoryRecord{
		Owner:      agentID,
		MissionID:  req.MissionID,
		Kind:       types.KindExchange,
		Content:    formatExchange(req.Content, answer),
		Embedding:  embedding,
		Importance: importanceFor(req.Content),
		Tags:       tags,
	}
	id, err := p.store.Insert(ctx, rec)
	if err != nil {
		p.logger.Error("exchange write-back failed", zap.String("agent", agentID), zap.Error(err))
		return "", err
	}
	return id, nil
}

const exchangeResponseMarker = "\nresponse: "

func formatExchange(task, answer string) string {
	return "task: " + task + exchangeResponseMarker + answer
}

func parseExchange(content string) (task, answer string, ok bool) {
	rest, found := strings.CutPrefix(content, "task: ")
	if !found {
		return "", "", false
	}
	task, answer, found = strings.Cut(rest, exchangeResponseMarker)
	if !found {
		return "", "", false
	}
	return task, answer, true
}

func confidenceFromTags(rec *types.MemoryRecord) float64 {
	raw, ok := rec.TagWithPrefix(confidenceTagPrefix)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return clamp01(f)
}

// importanceFor grades a record from urgency markers in the task content.
func importanceFor(content string) types.Importance {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "critical") || strings.Contains(lower, "outage"):
		return types.ImportanceCritical
	case strings.Contains(lower, "urgent") || strings.Contains(lower, "important"):
		return types.ImportanceHigh
	default:
		return types.ImportanceMedium
	}
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
