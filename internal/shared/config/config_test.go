package config

import (
	"os"
	"path/filepath"
	"testing"

	"proxynexus/internal/shared/types"
)

func TestLoadIniOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "poold.ini")
	content := `
[log]
level = debug

[orchestrator]
workers = 8
queueCapacity = 200

[scoring]
acceptThreshold = 75
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write ini: %v", err)
	}

	cfg := types.NewDefaultConfig()
	if err := LoadIni(cfg, path); err != nil {
		t.Fatalf("load ini: %v", err)
	}

	if cfg.LogConf.Level != "debug" {
		t.Fatalf("level = %q, want debug", cfg.LogConf.Level)
	}
	if cfg.OrchestratorConf.Workers != 8 || cfg.OrchestratorConf.QueueCapacity != 200 {
		t.Fatalf("orchestrator = %+v, want workers=8 queueCapacity=200", cfg.OrchestratorConf)
	}
	if cfg.ScoringConf.AcceptThreshold != 75 {
		t.Fatalf("threshold = %.0f, want 75", cfg.ScoringConf.AcceptThreshold)
	}
	// Untouched sections keep their defaults.
	if cfg.CoordinatorConf.MaxConcurrentSources != 5 {
		t.Fatalf("maxConcurrentSources = %d, want default 5", cfg.CoordinatorConf.MaxConcurrentSources)
	}
}

func TestLoadIniMissingFileKeepsDefaults(t *testing.T) {
	cfg := types.NewDefaultConfig()
	if err := LoadIni(cfg, filepath.Join(t.TempDir(), "nope.ini")); err != nil {
		t.Fatalf("missing ini must not error: %v", err)
	}
	if cfg.OrchestratorConf.Workers != 4 {
		t.Fatalf("workers = %d, want default 4", cfg.OrchestratorConf.Workers)
	}
}

func TestLoadIniEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "poold.ini")
	if err := os.WriteFile(path, []byte("[log]\nlevel = info\n"), 0644); err != nil {
		t.Fatalf("write ini: %v", err)
	}

	t.Setenv("POOLD_LOG_LEVEL", "trace")
	t.Setenv("POOLD_WORKERS", "2")

	cfg := types.NewDefaultConfig()
	if err := LoadIni(cfg, path); err != nil {
		t.Fatalf("load ini: %v", err)
	}
	if cfg.LogConf.Level != "trace" {
		t.Fatalf("level = %q, want env override trace", cfg.LogConf.Level)
	}
	if cfg.OrchestratorConf.Workers != 2 {
		t.Fatalf("workers = %d, want env override 2", cfg.OrchestratorConf.Workers)
	}
}

func TestSourcesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	want := []*types.SourceProfile{
		{
			Name:               "proxy-list.download",
			Enabled:            true,
			Extractor:          "plaintext",
			URL:                "https://www.proxy-list.download/api/v1/get?type=http",
			Protocol:           "http",
			RateLimitPerMinute: 10,
		},
		{
			Name:      "free-proxy-list",
			Enabled:   false,
			Extractor: "htmltable",
			URL:       "https://free-proxy-list.net/",
		},
	}

	if err := SaveSources(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSources(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d profiles, want 2", len(got))
	}
	if got[0].Name != want[0].Name || got[0].RateLimitPerMinute != 10 {
		t.Fatalf("profile 0 = %+v, want %+v", got[0], want[0])
	}
	if got[1].Enabled {
		t.Fatal("disabled flag lost in round trip")
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	profiles, err := LoadSources(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing sources must not error: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("profiles = %d, want empty list", len(profiles))
	}
}

func TestLoadSourcesMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSources(path); err == nil {
		t.Fatal("malformed sources.json must error")
	}
}
