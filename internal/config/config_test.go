package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Validate()
	for _, w := range warnings {
		if strings.Contains(w, "api_key") || strings.Contains(w, "temperature") {
			t.Errorf("zero config should not warn about llm: %v", w)
		}
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := &Config{
		LLM:    LLMConfig{Provider: "openai"},
		Vector: VectorConfig{Limit: 3},
	}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "api_key") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_InvalidTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want bool // true = should warn
	}{
		{"zero", 0, false},
		{"normal", 0.3, false},
		{"max", 2.0, false},
		{"negative", -1, true},
		{"too_high", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LLM: LLMConfig{Temperature: tt.temp}, Vector: VectorConfig{Limit: 3}}
			warnings := cfg.Validate()
			hasWarn := false
			for _, w := range warnings {
				if strings.Contains(w, "temperature") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("temperature=%.1f: hasWarn=%v, want=%v", tt.temp, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_ThresholdRange(t *testing.T) {
	tests := []struct {
		name      string
		threshold float32
		want      bool
	}{
		{"zero", 0, false},
		{"default", 0.65, false},
		{"one", 1.0, false},
		{"negative", -0.1, true},
		{"above_one", 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Vector: VectorConfig{Threshold: tt.threshold, Limit: 3}}
			warnings := cfg.Validate()
			hasWarn := false
			for _, w := range warnings {
				if strings.Contains(w, "threshold") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("threshold=%.2f: hasWarn=%v, want=%v", tt.threshold, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_NonPositiveLimit(t *testing.T) {
	cfg := &Config{Vector: VectorConfig{Limit: 0}}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "limit") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about non-positive limit")
	}
}

func TestValidate_NoneProvider(t *testing.T) {
	// "none" provider with no API key should not warn
	cfg := &Config{LLM: LLMConfig{Provider: "none"}, Vector: VectorConfig{Limit: 3}}
	warnings := cfg.Validate()
	for _, w := range warnings {
		if strings.Contains(w, "api_key") {
			t.Error("'none' provider should not warn about missing api_key")
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	cfg := Default()
	if cfg.Vector.Threshold != 0.65 {
		t.Errorf("default threshold = %v", cfg.Vector.Threshold)
	}
	if cfg.Vector.Limit != 3 {
		t.Errorf("default limit = %v", cfg.Vector.Limit)
	}
	if cfg.Vector.VectorSize != 1536 {
		t.Errorf("default vector size = %v", cfg.Vector.VectorSize)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Errorf("default temperature = %v", cfg.LLM.Temperature)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vector.Collection != "ecom_faq" {
		t.Errorf("collection = %q", cfg.Vector.Collection)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
vector:
  collection: staging_faq
  threshold: 0.5
memory:
  ttl: 48h
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vector.Collection != "staging_faq" {
		t.Errorf("collection = %q", cfg.Vector.Collection)
	}
	if cfg.Vector.Threshold != 0.5 {
		t.Errorf("threshold = %v", cfg.Vector.Threshold)
	}
	if cfg.Memory.TTL != 48*time.Hour {
		t.Errorf("ttl = %v", cfg.Memory.TTL)
	}
	// Untouched keys keep their defaults.
	if cfg.Vector.Limit != 3 {
		t.Errorf("limit = %v", cfg.Vector.Limit)
	}
}

func TestSecretsBackendSelection(t *testing.T) {
	cfg := Default()
	if cfg.Secrets.Provider != "env" {
		t.Errorf("default secrets provider = %q, want env", cfg.Secrets.Provider)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
secrets:
  provider: file
  file_path: /var/lib/shopclerk/secrets.json
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Secrets.Provider != "file" {
		t.Errorf("secrets provider = %q", cfg.Secrets.Provider)
	}
	if cfg.Secrets.FilePath != "/var/lib/shopclerk/secrets.json" {
		t.Errorf("secrets file path = %q", cfg.Secrets.FilePath)
	}
}

func TestSecretsEnvOverride(t *testing.T) {
	t.Setenv("SHOPCLERK_SECRETS_PROVIDER", "file")
	t.Setenv("SHOPCLERK_SECRETS_FILE_PATH", "/tmp/secrets.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Secrets.Provider != "file" || cfg.Secrets.FilePath != "/tmp/secrets.json" {
		t.Errorf("secrets = %+v", cfg.Secrets)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SHOPCLERK_VECTOR_COLLECTION", "env_faq")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vector.Collection != "env_faq" {
		t.Errorf("env override ignored, collection = %q", cfg.Vector.Collection)
	}
}
