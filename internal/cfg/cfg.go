// Package cfg loads estimator settings from a YAML config file and the
// environment. Environment variables override file values; sensible
// defaults apply when neither is set.
package cfg

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	PropertyDataPath string
	SharedDataPath   string
	ArtifactsDir     string
	StorePath        string
	MetricsPort      int

	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int
}

// ConfigFile mirrors the YAML layout.
type ConfigFile struct {
	Data struct {
		PropertyFile string `yaml:"propertyFile"`
		SharedFile   string `yaml:"sharedFile"`
		StorePath    string `yaml:"storePath"`
	} `yaml:"data"`

	Training struct {
		Trees           int `yaml:"trees"`
		MaxDepth        int `yaml:"maxDepth"`
		MinSamplesSplit int `yaml:"minSamplesSplit"`
		MinSamplesLeaf  int `yaml:"minSamplesLeaf"`
		Seed            int `yaml:"seed"`
	} `yaml:"training"`

	System struct {
		ArtifactsDir string `yaml:"artifactsDir"`
		MetricsPort  int    `yaml:"metricsPort"`
	} `yaml:"system"`
}

// Load resolves settings from CONFIG_FILE when set, otherwise from the
// environment alone.
func Load() (Settings, error) {
	// A missing .env file is fine, the system environment still applies.
	_ = godotenv.Load()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Settings{
		PropertyDataPath: getEnvOrDefault("PROPERTY_DATA_PATH", orDefault(config.Data.PropertyFile, "data/train_property.csv")),
		SharedDataPath:   getEnvOrDefault("SHARED_DATA_PATH", orDefault(config.Data.SharedFile, "data/train_shared.csv")),
		ArtifactsDir:     getEnvOrDefault("ARTIFACTS_DIR", orDefault(config.System.ArtifactsDir, "models/saved_data")),
		StorePath:        getEnvOrDefault("STORE_PATH", config.Data.StorePath),
		MetricsPort:      getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		Trees:            getIntFromEnvOrConfig("FOREST_TREES", orDefaultInt(config.Training.Trees, 100)),
		MaxDepth:         getIntFromEnvOrConfig("FOREST_MAX_DEPTH", orDefaultInt(config.Training.MaxDepth, 15)),
		MinSamplesSplit:  getIntFromEnvOrConfig("FOREST_MIN_SAMPLES_SPLIT", orDefaultInt(config.Training.MinSamplesSplit, 5)),
		MinSamplesLeaf:   getIntFromEnvOrConfig("FOREST_MIN_SAMPLES_LEAF", orDefaultInt(config.Training.MinSamplesLeaf, 2)),
		Seed:             getIntFromEnvOrConfig("FOREST_SEED", orDefaultInt(config.Training.Seed, 42)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		PropertyDataPath: getEnvOrDefault("PROPERTY_DATA_PATH", "data/train_property.csv"),
		SharedDataPath:   getEnvOrDefault("SHARED_DATA_PATH", "data/train_shared.csv"),
		ArtifactsDir:     getEnvOrDefault("ARTIFACTS_DIR", "models/saved_data"),
		StorePath:        os.Getenv("STORE_PATH"), // optional
		MetricsPort:      getIntOrDefault("METRICS_PORT", 0),
		Trees:            getIntOrDefault("FOREST_TREES", 100),
		MaxDepth:         getIntOrDefault("FOREST_MAX_DEPTH", 15),
		MinSamplesSplit:  getIntOrDefault("FOREST_MIN_SAMPLES_SPLIT", 5),
		MinSamplesLeaf:   getIntOrDefault("FOREST_MIN_SAMPLES_LEAF", 2),
		Seed:             getIntOrDefault("FOREST_SEED", 42),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// PropertyEncoderPrefix returns the artifact prefix for the
// whole-property pipeline's encoders.
func (s *Settings) PropertyEncoderPrefix() string {
	return s.ArtifactsDir + "/property_"
}

// SharedEncoderPrefix returns the artifact prefix for the shared-room
// pipeline's encoders.
func (s *Settings) SharedEncoderPrefix() string {
	return s.ArtifactsDir + "/shared_"
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

// validateSettings performs range validation of configuration values.
func validateSettings(settings *Settings) error {
	if settings.PropertyDataPath == "" {
		return fmt.Errorf("property training data path cannot be empty")
	}
	if settings.SharedDataPath == "" {
		return fmt.Errorf("shared training data path cannot be empty")
	}
	if settings.ArtifactsDir == "" {
		return fmt.Errorf("artifacts directory cannot be empty")
	}

	// Port 0 disables the metrics endpoint.
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be 0 or between 1024 and 65535, got %d", settings.MetricsPort)
	}

	if settings.Trees <= 0 || settings.Trees > 1000 {
		return fmt.Errorf("forest size must be between 1 and 1000 trees, got %d", settings.Trees)
	}
	if settings.MaxDepth <= 0 || settings.MaxDepth > 64 {
		return fmt.Errorf("max tree depth must be between 1 and 64, got %d", settings.MaxDepth)
	}
	if settings.MinSamplesSplit < 2 || settings.MinSamplesSplit > 100 {
		return fmt.Errorf("min samples per split must be between 2 and 100, got %d", settings.MinSamplesSplit)
	}
	if settings.MinSamplesLeaf < 1 || settings.MinSamplesLeaf > 100 {
		return fmt.Errorf("min samples per leaf must be between 1 and 100, got %d", settings.MinSamplesLeaf)
	}
	return nil
}
