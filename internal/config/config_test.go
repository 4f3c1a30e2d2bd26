package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Scoring.Factors.Session != 10 || cfg.Scoring.Factors.Download != 20 {
		t.Errorf("Expected default scoring factors, got %+v", cfg.Scoring.Factors)
	}
	if cfg.Scoring.Deltas.Redirect != 20 {
		t.Errorf("Expected redirect delta 20, got %d", cfg.Scoring.Deltas.Redirect)
	}
	if cfg.Labels.Anonymous != "Anonymous" {
		t.Errorf("Expected default anonymous label, got %q", cfg.Labels.Anonymous)
	}
	if cfg.Cleanup.Time != "02:00" {
		t.Errorf("Expected cleanup time 02:00, got %q", cfg.Cleanup.Time)
	}
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "SERVER_PORT=9090\nSCORING_DOWNLOAD=50\nLABEL_ANONYMOUS=Anonym\nDB_CONN_MAX_LIFE=90\nCLEANUP_INTERVAL=15m\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	// The process environment wins over the file
	t.Setenv("SCORING_DOWNLOAD", "35")
	// godotenv.Load sets the remaining keys process-wide
	for _, key := range []string{"SERVER_PORT", "LABEL_ANONYMOUS", "DB_CONN_MAX_LIFE", "CLEANUP_INTERVAL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Scoring.Factors.Download != 35 {
		t.Errorf("Expected download factor 35, got %d", cfg.Scoring.Factors.Download)
	}
	if cfg.Labels.Anonymous != "Anonym" {
		t.Errorf("Expected label Anonym, got %q", cfg.Labels.Anonymous)
	}
	if cfg.Database.ConnMaxLife != 90*time.Second {
		t.Errorf("Expected 90s connection lifetime, got %v", cfg.Database.ConnMaxLife)
	}
	if cfg.Cleanup.Interval != 15*time.Minute {
		t.Errorf("Expected 15m cleanup interval, got %v", cfg.Cleanup.Interval)
	}
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected missing env file to be ignored, got %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"SERVER_PORT":          "70000",
		"GIN_MODE":             "verbose",
		"CLEANUP_TIME":         "2am",
		"CLEANUP_UNKNOWN_DAYS": "-1",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Errorf("Expected %s=%s to be rejected", key, value)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "not a number")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_DURATION", "garbage")

	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("Expected fallback 7, got %d", got)
	}
	if got := getEnvBool("TEST_BOOL", true); got != false {
		t.Errorf("Expected false, got %v", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("Expected fallback 1m, got %v", got)
	}
}
