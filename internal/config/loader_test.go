package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lampd.yaml")
	if err := os.WriteFile(path, []byte("server:\n  shutdown_grace: 2s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ShutdownGrace != 2*time.Second {
		t.Errorf("ShutdownGrace = %v, want 2s", cfg.Server.ShutdownGrace)
	}
	if cfg.Storage.MemoryPath == "" {
		t.Error("expected default MemoryPath to survive a partial override")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lampd.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  api_key: ${LAMPCORE_TEST_KEY}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LAMPCORE_TEST_KEY", "sk-test-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q, want sk-test-123", cfg.LLM.APIKey)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lampd.yaml")
	if err := os.WriteFile(path, []byte("bogus_section:\n  x: 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown top-level field")
	}
}
