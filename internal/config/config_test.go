package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Expected top_k 5, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.SearchTimeoutSeconds != 10 {
		t.Errorf("Expected search timeout 10, got %d", cfg.Retrieval.SearchTimeoutSeconds)
	}
	if cfg.Summary.NumPairs != 10 {
		t.Errorf("Expected num_pairs 10, got %d", cfg.Summary.NumPairs)
	}
	if cfg.Summary.CheckIntervalSeconds != 300 {
		t.Errorf("Expected check interval 300, got %d", cfg.Summary.CheckIntervalSeconds)
	}
	if cfg.Summary.TimeThresholdSeconds != 1800 {
		t.Errorf("Expected time threshold 1800, got %d", cfg.Summary.TimeThresholdSeconds)
	}
	if cfg.Retrieval.InjectionMethod != InjectUserPrompt {
		t.Errorf("Expected user_prompt injection, got %q", cfg.Retrieval.InjectionMethod)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Collection != "engram_memory" {
		t.Errorf("Expected default collection, got %q", cfg.Collection)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
collection: custom
vector:
  backend: sqlite
embedding:
  service: mock
  dim: 64
llm:
  provider: stub
retrieval:
  top_k: 7
summary:
  num_pairs: 3
  llm_params:
    temperature: 0.3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Collection != "custom" {
		t.Errorf("Expected custom collection, got %q", cfg.Collection)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("Expected top_k 7, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Summary.NumPairs != 3 {
		t.Errorf("Expected num_pairs 3, got %d", cfg.Summary.NumPairs)
	}
	if cfg.Summary.LLMParams["temperature"] != 0.3 {
		t.Errorf("Expected llm_params passed through, got %v", cfg.Summary.LLMParams)
	}
	// Untouched fields keep their defaults.
	if cfg.Retrieval.SearchTimeoutSeconds != 10 {
		t.Errorf("Expected default search timeout preserved, got %d", cfg.Retrieval.SearchTimeoutSeconds)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Embedding.Service = "mock"
		cfg.LLM.Provider = "stub"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	cfg := base()
	cfg.Vector.Backend = "milvus"
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected unsupported backend to fail")
	}

	cfg = base()
	cfg.Embedding.Dim = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected zero dimension to fail")
	}

	cfg = base()
	cfg.Embedding.Service = "openai"
	cfg.Embedding.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected missing api key to fail")
	}

	cfg = base()
	cfg.Collection = ""
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected empty collection name to fail")
	}

	// Unknown injection methods are a runtime fallback, not a startup error.
	cfg = base()
	cfg.Retrieval.InjectionMethod = "smoke_signals"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected unknown injection method to pass validation, got %v", err)
	}
}
