package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
	Routing   RoutingConfig   `yaml:"routing" env:"ROUTING"`
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`
	Audit     AuditConfig     `yaml:"audit" env:"AUDIT"`
	Crew      CrewConfig      `yaml:"crew" env:"CREW"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`

	// Agents is the agent roster. YAML only; rosters do not fit flat
	// environment variables.
	Agents []AgentConfig `yaml:"agents" env:"-"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// BatchConcurrency bounds parallel items within one batch request.
	BatchConcurrency int `yaml:"batch_concurrency" env:"BATCH_CONCURRENCY"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the memory store settings.
type DatabaseConfig struct {
	// Driver selects the store backend: "sqlite" or "memory".
	Driver string `yaml:"driver" env:"DRIVER"`

	// Path is the sqlite database file. ":memory:" keeps it in process.
	Path string `yaml:"path" env:"PATH"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return d.Path
}

// RedisConfig holds the idempotency cache settings. When disabled the
// service falls back to an in-process cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// ProviderConfig holds the settings of one external provider endpoint.
type ProviderConfig struct {
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	Model             string        `yaml:"model" env:"MODEL"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`

	// Dimensions is the embedding vector length. Only the embedding
	// provider reads it.
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`

	// Mock replaces the provider with a deterministic in-process stub, for
	// local development without credentials.
	Mock bool `yaml:"mock" env:"MOCK"`
}

// ProvidersConfig groups the external providers.
type ProvidersConfig struct {
	Embedding ProviderConfig `yaml:"embedding" env:"EMBEDDING"`
	LLM       ProviderConfig `yaml:"llm" env:"LLM"`
}

// AgentConfig declares one agent in the roster.
type AgentConfig struct {
	ID           string   `yaml:"id"`
	DisplayName  string   `yaml:"display_name"`
	Tags         []string `yaml:"tags"`
	PriorityRank int      `yaml:"priority_rank"`
}

// RoutingConfig holds the task router settings.
type RoutingConfig struct {
	DefaultAgent string `yaml:"default_agent" env:"DEFAULT_AGENT"`

	// NeedsLocalReasoning lists declared task types that must run on the
	// local backend when complexity is high.
	NeedsLocalReasoning []string `yaml:"needs_local_reasoning" env:"NEEDS_LOCAL_REASONING"`
}

// RetrievalConfig holds the answer pipeline settings.
type RetrievalConfig struct {
	TopK             int           `yaml:"top_k" env:"TOP_K"`
	MinScore         float64       `yaml:"min_score" env:"MIN_SCORE"`
	CacheTTL         time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	DefaultCertainty float64       `yaml:"default_certainty" env:"DEFAULT_CERTAINTY"`
}

// AuditConfig holds the consistency auditor settings.
type AuditConfig struct {
	ClusterThreshold float64 `yaml:"cluster_threshold" env:"CLUSTER_THRESHOLD"`
}

// CrewConfig holds the session orchestrator settings.
type CrewConfig struct {
	ParticipantTimeout time.Duration `yaml:"participant_timeout" env:"PARTICIPANT_TIMEOUT"`
}

// MetricsConfig holds the prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is "json" or "console".
	Format string `yaml:"format" env:"FORMAT"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "invalid server port")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "memory" {
		errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		errs = append(errs, "database path required for sqlite driver")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis addr required when redis is enabled")
	}

	if len(c.Agents) == 0 {
		errs = append(errs, "at least one agent required")
	}
	ids := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, "agent id must not be empty")
			continue
		}
		if _, dup := ids[a.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate agent id %q", a.ID))
		}
		ids[a.ID] = struct{}{}
		if len(a.Tags) == 0 {
			errs = append(errs, fmt.Sprintf("agent %q has no specialization tags", a.ID))
		}
	}
	if c.Routing.DefaultAgent == "" {
		errs = append(errs, "routing default_agent required")
	} else if _, ok := ids[c.Routing.DefaultAgent]; !ok && len(c.Agents) > 0 {
		errs = append(errs, fmt.Sprintf("routing default_agent %q not in roster", c.Routing.DefaultAgent))
	}

	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, "retrieval min_score must be within [0, 1]")
	}
	if c.Audit.ClusterThreshold < 0 || c.Audit.ClusterThreshold > 1 {
		errs = append(errs, "audit cluster_threshold must be within [0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
