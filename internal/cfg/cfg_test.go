package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PROPERTY_DATA_PATH", "SHARED_DATA_PATH",
		"ARTIFACTS_DIR", "STORE_PATH", "METRICS_PORT",
		"FOREST_TREES", "FOREST_MAX_DEPTH",
		"FOREST_MIN_SAMPLES_SPLIT", "FOREST_MIN_SAMPLES_LEAF",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if settings.PropertyDataPath != "data/train_property.csv" {
		t.Errorf("PropertyDataPath = %q", settings.PropertyDataPath)
	}
	if settings.SharedDataPath != "data/train_shared.csv" {
		t.Errorf("SharedDataPath = %q", settings.SharedDataPath)
	}
	if settings.ArtifactsDir != "models/saved_data" {
		t.Errorf("ArtifactsDir = %q", settings.ArtifactsDir)
	}
	if settings.StorePath != "" {
		t.Errorf("StorePath = %q, want empty", settings.StorePath)
	}
	if settings.MetricsPort != 0 {
		t.Errorf("MetricsPort = %d, want 0", settings.MetricsPort)
	}
	if settings.Trees != 100 || settings.MaxDepth != 15 {
		t.Errorf("forest defaults = %d trees depth %d", settings.Trees, settings.MaxDepth)
	}
	if settings.MinSamplesSplit != 5 || settings.MinSamplesLeaf != 2 {
		t.Errorf("split defaults = %d/%d", settings.MinSamplesSplit, settings.MinSamplesLeaf)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROPERTY_DATA_PATH", "/tmp/prop.csv")
	t.Setenv("FOREST_TREES", "50")
	t.Setenv("METRICS_PORT", "9090")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.PropertyDataPath != "/tmp/prop.csv" {
		t.Errorf("PropertyDataPath = %q", settings.PropertyDataPath)
	}
	if settings.Trees != 50 {
		t.Errorf("Trees = %d, want 50", settings.Trees)
	}
	if settings.MetricsPort != 9090 {
		t.Errorf("MetricsPort = %d, want 9090", settings.MetricsPort)
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)

	content := `
data:
  propertyFile: /srv/rent/property.csv
  sharedFile: /srv/rent/shared.csv
  storePath: /srv/rent/store
training:
  trees: 200
  maxDepth: 20
system:
  artifactsDir: /srv/rent/models
  metricsPort: 8080
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.PropertyDataPath != "/srv/rent/property.csv" {
		t.Errorf("PropertyDataPath = %q", settings.PropertyDataPath)
	}
	if settings.SharedDataPath != "/srv/rent/shared.csv" {
		t.Errorf("SharedDataPath = %q", settings.SharedDataPath)
	}
	if settings.StorePath != "/srv/rent/store" {
		t.Errorf("StorePath = %q", settings.StorePath)
	}
	if settings.Trees != 200 || settings.MaxDepth != 20 {
		t.Errorf("training = %d trees depth %d", settings.Trees, settings.MaxDepth)
	}
	// Values the file leaves out fall back to defaults.
	if settings.MinSamplesSplit != 5 {
		t.Errorf("MinSamplesSplit = %d, want default 5", settings.MinSamplesSplit)
	}
	if settings.ArtifactsDir != "/srv/rent/models" {
		t.Errorf("ArtifactsDir = %q", settings.ArtifactsDir)
	}
	if settings.MetricsPort != 8080 {
		t.Errorf("MetricsPort = %d", settings.MetricsPort)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	clearEnv(t)

	content := `
training:
  trees: 200
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("FOREST_TREES", "10")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Trees != 10 {
		t.Errorf("Trees = %d, want env override 10", settings.Trees)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", "/nonexistent/config.yaml")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"bad port", func(s *Settings) { s.MetricsPort = 80 }, "metrics port"},
		{"zero trees", func(s *Settings) { s.Trees = 0 }, "forest size"},
		{"too many trees", func(s *Settings) { s.Trees = 5000 }, "forest size"},
		{"bad depth", func(s *Settings) { s.MaxDepth = 0 }, "max tree depth"},
		{"bad split", func(s *Settings) { s.MinSamplesSplit = 1 }, "min samples per split"},
		{"bad leaf", func(s *Settings) { s.MinSamplesLeaf = 0 }, "min samples per leaf"},
		{"empty property path", func(s *Settings) { s.PropertyDataPath = "" }, "property training data"},
		{"empty artifacts", func(s *Settings) { s.ArtifactsDir = "" }, "artifacts directory"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := Settings{
				PropertyDataPath: "a.csv",
				SharedDataPath:   "b.csv",
				ArtifactsDir:     "models",
				Trees:            100,
				MaxDepth:         15,
				MinSamplesSplit:  5,
				MinSamplesLeaf:   2,
			}
			tc.mutate(&settings)
			err := validateSettings(&settings)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEncoderPrefixes(t *testing.T) {
	s := Settings{ArtifactsDir: "models/saved_data"}
	if got := s.PropertyEncoderPrefix(); got != "models/saved_data/property_" {
		t.Errorf("PropertyEncoderPrefix = %q", got)
	}
	if got := s.SharedEncoderPrefix(); got != "models/saved_data/shared_" {
		t.Errorf("SharedEncoderPrefix = %q", got)
	}
}
