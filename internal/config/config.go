// Package config resolves process-wide configuration for recall.
//
// Everything is read once at startup from RECALL_* environment variables and
// handed to collaborators by value; nothing in this package is consulted
// again after Load returns. Defaults match the standard deployment topology
// (qdrant and the embedding server as sibling containers).
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix is the prefix for all environment variables.
const envPrefix = "recall"

// Config holds all settings for a single recall invocation.
type Config struct {
	Agent       AgentConfig
	Vector      VectorConfig
	Embedding   EmbeddingConfig
	LLM         LLMConfig
	Hybrid      HybridConfig
	Sync        SyncConfig
	Consolidate ConsolidateConfig

	// LogLevel is a zerolog level name: trace, debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"warn"`
}

// AgentConfig scopes every operation to one agent and one collection.
type AgentConfig struct {
	// AgentID is stamped into every payload and every query filter.
	// Cross-agent reads are impossible regardless of caller flags.
	AgentID string `envconfig:"AGENT_ID" default:"default"`

	// Collection is the vector-store collection / namespace name.
	Collection string `envconfig:"COLLECTION" default:"agent_memory"`
}

// VectorConfig selects and configures the vector store backend.
type VectorConfig struct {
	// Backend is one of: qdrant, pgvector, chromem.
	Backend string `envconfig:"VECTOR_BACKEND" default:"qdrant"`

	// QdrantURL is the base URL of the Qdrant REST API.
	QdrantURL string `envconfig:"QDRANT_URL" default:"http://memory-qdrant:6333"`

	// PostgresDSN is the connection string for the pgvector backend.
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// TimeoutSeconds bounds every vector-store HTTP call.
	TimeoutSeconds int `envconfig:"VECTOR_TIMEOUT_SECONDS" default:"15"`
}

// Timeout returns TimeoutSeconds as a duration.
func (c VectorConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

// EmbeddingConfig configures the embedding server client.
type EmbeddingConfig struct {
	// URL is the base URL of the embedding server (TEI-style API).
	URL string `envconfig:"EMBEDDINGS_URL" default:"http://memory-embeddings:8000"`

	// Dimension is the dense vector width the collection was created with.
	Dimension int `envconfig:"EMBEDDING_DIMENSION" default:"1024"`

	// TimeoutSeconds bounds every embedding HTTP call.
	TimeoutSeconds int `envconfig:"EMBEDDING_TIMEOUT_SECONDS" default:"30"`

	// CacheEnabled turns on the in-process embedding cache. Bulk import and
	// ingest re-embed identical content often enough that this pays off.
	CacheEnabled bool `envconfig:"EMBEDDING_CACHE" default:"true"`
}

// Timeout returns TimeoutSeconds as a duration.
func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLMConfig configures the consolidation LLM provider.
type LLMConfig struct {
	// Provider is one of: ollama, openai, anthropic.
	Provider string `envconfig:"LLM_PROVIDER" default:"ollama"`

	OllamaURL   string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaModel string `envconfig:"OLLAMA_MODEL" default:"qwen2.5:7b"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel  string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY" default:""`
	AnthropicModel  string `envconfig:"ANTHROPIC_MODEL" default:"claude-haiku-4-5-20251001"`

	// TimeoutSeconds bounds every completion call.
	TimeoutSeconds int `envconfig:"LLM_TIMEOUT_SECONDS" default:"60"`
}

// Timeout returns TimeoutSeconds as a duration.
func (c LLMConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

// HybridConfig holds the default hybrid ranking weights. The weights are
// not required to sum to 1.
type HybridConfig struct {
	DenseWeight   float64 `envconfig:"DENSE_WEIGHT" default:"0.7"`
	KeywordWeight float64 `envconfig:"KEYWORD_WEIGHT" default:"0.3"`
}

// SyncConfig configures markdown import/export.
type SyncConfig struct {
	// StatePath is the SQLite database tracking already-synced sections.
	StatePath string `envconfig:"SYNC_STATE_PATH" default:"./recall-sync.db"`

	// MinSectionLength drops markdown sections shorter than this on import.
	MinSectionLength int `envconfig:"SYNC_MIN_SECTION" default:"50"`

	// ExportMinImportance is the importance floor for exported memories.
	ExportMinImportance float64 `envconfig:"EXPORT_MIN_IMPORTANCE" default:"0.5"`

	// RatePerSecond bounds bulk upserts during import and ingest.
	RatePerSecond float64 `envconfig:"SYNC_RATE_PER_SECOND" default:"10"`
}

// ConsolidateConfig holds the consolidation trigger policy.
type ConsolidateConfig struct {
	// MinEpisodic is the unconsolidated episodic backlog that triggers a run.
	MinEpisodic int `envconfig:"CONSOLIDATE_MIN_EPISODIC" default:"20"`

	// MinAgeHours is how old the oldest backlog record must be.
	MinAgeHours int `envconfig:"CONSOLIDATE_MIN_AGE_HOURS" default:"1"`

	// MaxBatch caps how many episodic records one run distills.
	MaxBatch int `envconfig:"CONSOLIDATE_MAX_BATCH" default:"50"`
}

// Load resolves configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Vector.Backend {
	case "qdrant", "pgvector", "chromem":
	default:
		return fmt.Errorf("config: unsupported vector backend %q", c.Vector.Backend)
	}
	switch c.LLM.Provider {
	case "ollama", "openai", "anthropic":
	default:
		return fmt.Errorf("config: unsupported LLM provider %q", c.LLM.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Vector.Backend == "pgvector" && c.Vector.PostgresDSN == "" {
		return fmt.Errorf("config: RECALL_POSTGRES_DSN is required for the pgvector backend")
	}
	return nil
}
