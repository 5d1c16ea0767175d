package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Injection methods for retrieved memories.
const (
	InjectUserPrompt         = "user_prompt"
	InjectSystemPrompt       = "system_prompt"
	InjectInsertSystemPrompt = "insert_system_prompt"
)

// Config is the full configuration surface of the memory engine.
type Config struct {
	// DataDir holds the counter database and any backend files.
	DataDir string `yaml:"data_dir"`

	// Collection is the active vector collection name.
	Collection string `yaml:"collection"`

	Vector    Vector    `yaml:"vector"`
	Embedding Embedding `yaml:"embedding"`
	LLM       LLM       `yaml:"llm"`
	Retrieval Retrieval `yaml:"retrieval"`
	Summary   Summary   `yaml:"summary"`
}

// Vector selects and configures the vector store backend.
type Vector struct {
	// Backend is one of "chromem" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the backend storage location (ignored by in-memory backends).
	Path string `yaml:"path"`
	// IndexParams are passed through to the backend at index creation.
	IndexParams map[string]string `yaml:"index_params"`
	// SearchParams are passed through to the backend on every search.
	SearchParams map[string]string `yaml:"search_params"`
}

// Embedding configures the text-to-vector provider.
type Embedding struct {
	// Service is one of "openai", "ollama", "gemini" or "mock".
	Service string `yaml:"service"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// Dim is the embedding dimension; it is fixed per collection at
	// creation time.
	Dim int `yaml:"dim"`
}

// LLM configures the summarization model provider.
type LLM struct {
	// Provider is one of "openai", "ollama", "gemini", "anthropic" or "stub".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// Retrieval configures the RAG query and injection path.
type Retrieval struct {
	TopK                 int    `yaml:"top_k"`
	SearchTimeoutSeconds int    `yaml:"search_timeout_seconds"`
	UsePersonaFiltering  bool   `yaml:"use_personality_filtering"`
	InjectionMethod      string `yaml:"injection_method"`
	MemoryPrefix         string `yaml:"memory_prefix"`
	MemorySuffix         string `yaml:"memory_suffix"`
	EntryFormat          string `yaml:"entry_format"`
	// KeepMemoryBlocks is how many previously injected memory blocks
	// survive a strip pass; 0 removes them all.
	KeepMemoryBlocks int `yaml:"keep_memory_blocks"`
}

// Summary configures the summarization triggers and storage.
type Summary struct {
	// NumPairs is the count-based trigger threshold in turns.
	NumPairs int `yaml:"num_pairs"`
	// CheckIntervalSeconds is the background sweep period.
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	// TimeThresholdSeconds forces summarization of idle sessions;
	// a value <= 0 disables time-based triggering.
	TimeThresholdSeconds int `yaml:"time_threshold_seconds"`
	// FlushAfterInsert trades write latency for read-after-write visibility.
	FlushAfterInsert bool `yaml:"flush_after_insert"`
	// DefaultPersona is the placeholder persona stored when none resolves.
	DefaultPersona string `yaml:"default_persona"`
	// Prompt is the system instruction for the summarization call.
	Prompt string `yaml:"prompt"`
	// LLMParams are handed to the provider verbatim.
	LLMParams map[string]any `yaml:"llm_params"`
}

// DefaultSummaryPrompt instructs the LLM to produce a storable memory entry.
const DefaultSummaryPrompt = "Summarize the following conversation into a " +
	"concise, objective long-term memory entry. Keep key facts, decisions " +
	"and preferences; drop pleasantries and filler."

// Default returns a Config with all defaults applied.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".engram")
	return &Config{
		DataDir:    dataDir,
		Collection: "engram_memory",
		Vector: Vector{
			Backend: "chromem",
			Path:    filepath.Join(dataDir, "vectors"),
		},
		Embedding: Embedding{
			Service: "openai",
			Dim:     1536,
		},
		LLM: LLM{
			Provider: "openai",
		},
		Retrieval: Retrieval{
			TopK:                 5,
			SearchTimeoutSeconds: 10,
			InjectionMethod:      InjectUserPrompt,
			MemoryPrefix:         "<memory> Relevant long-term memories:",
			MemorySuffix:         "</memory>",
			EntryFormat:          "- [{time}] {content}",
			KeepMemoryBlocks:     0,
		},
		Summary: Summary{
			NumPairs:             10,
			CheckIntervalSeconds: 300,
			TimeThresholdSeconds: 1800,
			DefaultPersona:       "unknown_persona",
			Prompt:               DefaultSummaryPrompt,
		},
	}
}

// Load reads a YAML config file and applies defaults for absent fields.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
// These are fatal at initialization, not recoverable at runtime.
func (c *Config) Validate() error {
	switch c.Vector.Backend {
	case "chromem", "sqlite":
	default:
		return fmt.Errorf("unsupported vector backend %q (use chromem or sqlite)", c.Vector.Backend)
	}

	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", c.Embedding.Dim)
	}

	switch c.Embedding.Service {
	case "openai", "gemini":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding service %q requires an api_key", c.Embedding.Service)
		}
	case "ollama", "mock":
	default:
		return fmt.Errorf("unsupported embedding service %q", c.Embedding.Service)
	}

	switch c.LLM.Provider {
	case "openai", "gemini", "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm provider %q requires an api_key", c.LLM.Provider)
		}
	case "ollama", "stub":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}

	if c.Collection == "" {
		return fmt.Errorf("collection name must not be empty")
	}

	switch strings.TrimSpace(c.Retrieval.InjectionMethod) {
	case InjectUserPrompt, InjectSystemPrompt, InjectInsertSystemPrompt:
	case "":
		c.Retrieval.InjectionMethod = InjectUserPrompt
	default:
		// Unknown methods fall back to user_prompt at injection time with a
		// warning; they are not a startup failure.
	}

	return nil
}
