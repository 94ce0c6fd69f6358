// Package crewmind provides a top-level convenience entry point for running
// the multi-agent memory stack in process, without the HTTP service.
//
// Usage:
//
//	import "github.com/crewmind-ai/crewmind"
//
//	c, err := crewmind.New(
//	    crewmind.WithAgents(
//	        types.AgentProfile{ID: "researcher", SpecializationTags: []string{"papers"}},
//	        types.AgentProfile{ID: "critic", SpecializationTags: []string{"review"}},
//	    ),
//	    crewmind.WithDefaultAgent("researcher"),
//	    crewmind.WithGenerator(myGenerator),
//	)
//
// The resulting [Client] bundles the memory store, routing engine, answer
// pipeline, session orchestrator, and consistency auditor over one shared
// in-memory store. Servers that need sqlite, redis, or metrics should wire
// the packages directly instead.
package crewmind

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/crewmind-ai/crewmind/audit"
	"github.com/crewmind-ai/crewmind/crew"
	"github.com/crewmind-ai/crewmind/memory"
	"github.com/crewmind-ai/crewmind/provider"
	"github.com/crewmind-ai/crewmind/rag"
	"github.com/crewmind-ai/crewmind/routing"
	"github.com/crewmind-ai/crewmind/types"
)

// Client bundles the assembled components.
type Client struct {
	Store        memory.Store
	Engine       *routing.Engine
	Pipeline     *rag.Pipeline
	Orchestrator *crew.Orchestrator
	Auditor      *audit.Auditor
}

type options struct {
	agents       []types.AgentProfile
	defaultAgent string
	store        memory.Store
	embedder     provider.Embedder
	generator    provider.Generator
	logger       *zap.Logger
	pipeline     rag.PipelineConfig
}

// Option configures the client created by [New].
type Option func(*options)

// WithAgents sets the agent roster.
func WithAgents(agents ...types.AgentProfile) Option {
	return func(o *options) { o.agents = append(o.agents, agents...) }
}

// WithDefaultAgent names the routing fallback agent. Defaults to the first
// agent in the roster.
func WithDefaultAgent(id string) Option {
	return func(o *options) { o.defaultAgent = id }
}

// WithStore replaces the default in-memory store.
func WithStore(store memory.Store) Option {
	return func(o *options) { o.store = store }
}

// WithEmbedder sets the embedding provider. Defaults to a deterministic
// in-process mock.
func WithEmbedder(e provider.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithGenerator sets the LLM provider. Defaults to a deterministic
// in-process mock.
func WithGenerator(g provider.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPipelineConfig tunes the answer pipeline.
func WithPipelineConfig(cfg rag.PipelineConfig) Option {
	return func(o *options) { o.pipeline = cfg }
}

// New assembles a Client. At minimum one agent must be supplied via
// [WithAgents].
func New(opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.agents) == 0 {
		return nil, fmt.Errorf("at least one agent required")
	}
	if o.defaultAgent == "" {
		o.defaultAgent = o.agents[0].ID
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.store == nil {
		o.store = memory.NewInMemoryStore(memory.InMemoryStoreConfig{}, o.logger)
	}
	if o.embedder == nil {
		o.embedder = provider.NewMockEmbedder(0)
	}
	if o.generator == nil {
		o.generator = provider.NewMockGenerator()
	}

	registry, err := routing.NewRegistry(o.agents)
	if err != nil {
		return nil, err
	}
	engine, err := routing.NewEngine(registry, routing.EngineConfig{DefaultAgent: o.defaultAgent}, o.logger)
	if err != nil {
		return nil, err
	}

	pipeline := rag.NewPipeline(o.store, engine, o.embedder, o.generator,
		o.pipeline, rag.PipelineOptions{Logger: o.logger})
	return &Client{
		Store:        o.store,
		Engine:       engine,
		Pipeline:     pipeline,
		Orchestrator: crew.NewOrchestrator(pipeline, o.store, crew.OrchestratorConfig{}, crew.OrchestratorOptions{Logger: o.logger}),
		Auditor:      audit.NewAuditor(o.store, audit.AuditorConfig{}, audit.AuditorOptions{Logger: o.logger}),
	}, nil
}
