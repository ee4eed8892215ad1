package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_ADDR", "DOWNLOAD_DIR", "TEMP_DIR", "PROGRESS_TICK_INTERVAL", "REDIS_URL", "MINIO_ENDPOINT", "LLM_API_KEY", "GEMINI_API_KEY"} {
		unsetenv(t, key)
	}

	cfg := Load()

	if cfg.ServerAddr != ":8095" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.DownloadDir != "downloads" || cfg.TempDir != "temp_downloads" {
		t.Errorf("dirs = %q, %q", cfg.DownloadDir, cfg.TempDir)
	}
	if cfg.TickInterval != 2*time.Second || cfg.TickStep != 5 || cfg.TickCeiling != 90 {
		t.Errorf("ticker = %v/%v/%v", cfg.TickInterval, cfg.TickStep, cfg.TickCeiling)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.CacheEnabled() || cfg.MirrorEnabled() {
		t.Error("optional backends should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("PROGRESS_TICK_INTERVAL", "500ms")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	unsetenv(t, "LLM_API_KEY")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()

	if cfg.ServerAddr != ":9000" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.TickInterval != 500*time.Millisecond {
		t.Errorf("TickInterval = %v", cfg.TickInterval)
	}
	if cfg.LLMAPIKey != "gem-key" {
		t.Errorf("LLMAPIKey = %q, want GEMINI_API_KEY fallback", cfg.LLMAPIKey)
	}
	if !cfg.MirrorEnabled() || !cfg.MinioUseSSL {
		t.Error("expected mirror enabled over SSL")
	}
}

// unsetenv removes key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}
