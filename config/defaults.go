package config

import "time"

// DefaultConfig returns a configuration that runs entirely in process:
// in-memory friendly sqlite, no redis, mocked providers, and a single
// generalist agent. Production deployments override it via YAML and
// environment variables.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			BatchConcurrency: 4,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "crewmind.db",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Providers: ProvidersConfig{
			Embedding: ProviderConfig{
				Model:             "text-embedding-3-small",
				Timeout:           15 * time.Second,
				RequestsPerSecond: 10,
				Dimensions:        1536,
				Mock:              true,
			},
			LLM: ProviderConfig{
				Model:             "gpt-4o-mini",
				Timeout:           60 * time.Second,
				RequestsPerSecond: 5,
				Mock:              true,
			},
		},
		Routing: RoutingConfig{
			DefaultAgent:        "generalist",
			NeedsLocalReasoning: []string{"architecture", "incident"},
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			MinScore:         0.25,
			CacheTTL:         time.Hour,
			DefaultCertainty: 0.7,
		},
		Audit: AuditConfig{
			ClusterThreshold: 0.8,
		},
		Crew: CrewConfig{
			ParticipantTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "crewmind",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Agents: []AgentConfig{
			{
				ID:           "generalist",
				DisplayName:  "Generalist",
				Tags:         []string{"general", "analysis", "summary"},
				PriorityRank: 100,
			},
		},
	}
}
