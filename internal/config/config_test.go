package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load(writeConfig(t, "app:\n  debug: false\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cluster.WindowHours != 6 {
		t.Errorf("Expected default window of 6 hours, got %d", cfg.Cluster.WindowHours)
	}
	if cfg.Cluster.PrefixBits != 16 {
		t.Errorf("Expected default prefix of 16 bits, got %d", cfg.Cluster.PrefixBits)
	}
	if cfg.Cluster.MinClusterSize != 1 {
		t.Errorf("Expected default min cluster size 1, got %d", cfg.Cluster.MinClusterSize)
	}
	if cfg.Generation.Enabled {
		t.Error("Generation should default to disabled")
	}
	if cfg.Fetch.PerSourceChars != 1500 {
		t.Errorf("Expected default per-source budget 1500, got %d", cfg.Fetch.PerSourceChars)
	}
	if cfg.Window() != 6*time.Hour {
		t.Errorf("Expected Window() of 6h, got %v", cfg.Window())
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load(writeConfig(t, `
cluster:
  window_hours: 12
  prefix_bits: 8
  min_cluster_size: 2
  excluded_domains:
    - nytimes.com
generation:
  legacy_gate: true
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cluster.WindowHours != 12 || cfg.Cluster.PrefixBits != 8 || cfg.Cluster.MinClusterSize != 2 {
		t.Errorf("File overrides not applied: %+v", cfg.Cluster)
	}
	if len(cfg.Cluster.ExcludedDomains) != 1 || cfg.Cluster.ExcludedDomains[0] != "nytimes.com" {
		t.Errorf("Expected excluded domain, got %v", cfg.Cluster.ExcludedDomains)
	}
	if !cfg.Generation.LegacyGate {
		t.Error("Expected legacy gate enabled")
	}
}

func TestLoad_ExplicitFileReloads(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load(writeConfig(t, "cluster:\n  window_hours: 3\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cluster.WindowHours != 3 {
		t.Fatalf("Expected window of 3 hours, got %d", cfg.Cluster.WindowHours)
	}

	// An explicit path must not be ignored in favor of the cached config.
	cfg, err = Load(writeConfig(t, "cluster:\n  window_hours: 9\n"))
	if err != nil {
		t.Fatalf("Second Load failed: %v", err)
	}
	if cfg.Cluster.WindowHours != 9 {
		t.Errorf("Expected reload from explicit file, got window of %d hours", cfg.Cluster.WindowHours)
	}

	// An empty path reuses whatever was loaded last.
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Cached Load failed: %v", err)
	}
	if cfg.Cluster.WindowHours != 9 {
		t.Errorf("Expected cached config, got window of %d hours", cfg.Cluster.WindowHours)
	}
}

func TestLoad_RejectsInvalidPrefixBits(t *testing.T) {
	testCases := []int{-4, 0, 7, 68}
	for _, bits := range testCases {
		Reset()
		_, err := Load(writeConfig(t, "cluster:\n  prefix_bits: "+strconv.Itoa(bits)+"\n"))
		if err == nil {
			t.Errorf("Expected validation error for prefix_bits=%d", bits)
		}
	}
	Reset()
}

func TestParseTimeout(t *testing.T) {
	testCases := []struct {
		input    string
		fallback time.Duration
		want     time.Duration
	}{
		{"30s", time.Minute, 30 * time.Second},
		{"2m", time.Minute, 2 * time.Minute},
		{"", time.Minute, time.Minute},
		{"nonsense", 10 * time.Second, 10 * time.Second},
		{"-5s", 10 * time.Second, 10 * time.Second},
	}

	for _, tc := range testCases {
		if got := ParseTimeout(tc.input, tc.fallback); got != tc.want {
			t.Errorf("ParseTimeout(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
