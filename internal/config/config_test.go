package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("GENERATE_MAX_COUNT", "")
	t.Setenv("MINIO_USE_SSL", "")

	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.GenerateMaxCount != 10 {
		t.Fatalf("GenerateMaxCount = %d", cfg.GenerateMaxCount)
	}
	if cfg.MinioUseSSL {
		t.Fatal("MinioUseSSL should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("ACCESS_TTL_SECONDS", "60")
	t.Setenv("SYNTH_BACKEND", "model")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("WORKSPACE_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.Addr != ":9000" || cfg.AccessTTL != time.Minute || cfg.SynthBackend != "model" || !cfg.MinioUseSSL {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.WorkspaceTTL != 24*time.Hour {
		t.Fatalf("WorkspaceTTL = %v, want fallback", cfg.WorkspaceTTL)
	}
}
