// Package config loads the runtime configuration: compiled defaults, an
// optional YAML file, then environment overrides, in that order.
package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wanderloop/wanderloop/tour"
)

const (
	configPathEnv   = "WANDERLOOP_CONFIG"
	databasePathEnv = "WANDERLOOP_DB_PATH"
	logLevelEnv     = "WANDERLOOP_LOG_LEVEL"
	logFormatEnv    = "WANDERLOOP_LOG_FORMAT"
	voiceEnv        = "WANDERLOOP_VOICE"
	languageEnv     = "WANDERLOOP_LANGUAGE"
)

// Config holds the settings shared across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Search   SearchConfig   `yaml:"search"`
	Tours    ToursConfig    `yaml:"tours"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Speech   SpeechConfig   `yaml:"speech"`
}

// LoggingConfig selects the log level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig names the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig tunes place discovery and the escalating query.
type SearchConfig struct {
	MinPlaces         int      `yaml:"minPlaces"`
	RadiusMeters      float64  `yaml:"radiusMeters"`
	EscalationFactor  float64  `yaml:"escalationFactor"`
	PrimaryCategories []string `yaml:"primaryCategories"`
}

// ToursConfig tunes candidate selection.
type ToursConfig struct {
	MaxCandidates int `yaml:"maxCandidates"`
	MinStops      int `yaml:"minStops"`
}

// PipelineConfig tunes the graph runs. Durations are plain integers with the
// unit in the field name so they read unambiguously in YAML.
type PipelineConfig struct {
	FanoutLimit        int `yaml:"fanoutLimit"`
	PollIntervalMs     int `yaml:"pollIntervalMs"`
	StepTimeoutSeconds int `yaml:"stepTimeoutSeconds"`
	CheckpointTTLHours int `yaml:"checkpointTtlHours"`
}

// SpeechConfig selects the narration voice.
type SpeechConfig struct {
	Voice    string `yaml:"voice"`
	Language string `yaml:"language"`
}

// Load reads the configuration. An empty path falls back to the
// WANDERLOOP_CONFIG environment variable; a missing or unparsable file is
// logged and skipped rather than fatal.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (using defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (using defaults)", path, err)
			} else {
				cfg = merge(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Tour maps the loaded configuration onto the pipeline knobs.
func (c Config) Tour() tour.Config {
	return tour.Config{
		MinPlaces:          c.Search.MinPlaces,
		SearchRadiusMeters: c.Search.RadiusMeters,
		EscalationFactor:   c.Search.EscalationFactor,
		PrimaryCategories:  c.Search.PrimaryCategories,
		MaxCandidates:      c.Tours.MaxCandidates,
		MinStops:           c.Tours.MinStops,
		FanoutLimit:        c.Pipeline.FanoutLimit,
		PollInterval:       time.Duration(c.Pipeline.PollIntervalMs) * time.Millisecond,
		StepTimeout:        time.Duration(c.Pipeline.StepTimeoutSeconds) * time.Second,
		CheckpointTTL:      time.Duration(c.Pipeline.CheckpointTTLHours) * time.Hour,
		Voice:              c.Speech.Voice,
		Language:           c.Speech.Language,
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(voiceEnv); v != "" {
		c.Speech.Voice = v
	}
	if v := os.Getenv(languageEnv); v != "" {
		c.Speech.Language = v
	}
}

func merge(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Path != "" {
		base.Database.Path = override.Database.Path
	}

	if override.Search.MinPlaces > 0 {
		base.Search.MinPlaces = override.Search.MinPlaces
	}
	if override.Search.RadiusMeters > 0 {
		base.Search.RadiusMeters = override.Search.RadiusMeters
	}
	if override.Search.EscalationFactor > 1 {
		base.Search.EscalationFactor = override.Search.EscalationFactor
	}
	if len(override.Search.PrimaryCategories) > 0 {
		base.Search.PrimaryCategories = override.Search.PrimaryCategories
	}

	if override.Tours.MaxCandidates > 0 {
		base.Tours.MaxCandidates = override.Tours.MaxCandidates
	}
	if override.Tours.MinStops > 0 {
		base.Tours.MinStops = override.Tours.MinStops
	}

	if override.Pipeline.FanoutLimit > 0 {
		base.Pipeline.FanoutLimit = override.Pipeline.FanoutLimit
	}
	if override.Pipeline.PollIntervalMs > 0 {
		base.Pipeline.PollIntervalMs = override.Pipeline.PollIntervalMs
	}
	if override.Pipeline.StepTimeoutSeconds > 0 {
		base.Pipeline.StepTimeoutSeconds = override.Pipeline.StepTimeoutSeconds
	}
	if override.Pipeline.CheckpointTTLHours > 0 {
		base.Pipeline.CheckpointTTLHours = override.Pipeline.CheckpointTTLHours
	}

	if override.Speech.Voice != "" {
		base.Speech.Voice = override.Speech.Voice
	}
	if override.Speech.Language != "" {
		base.Speech.Language = override.Speech.Language
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: "wanderloop.db"},
		Search: SearchConfig{
			MinPlaces:        40,
			RadiusMeters:     800,
			EscalationFactor: 1.5,
			PrimaryCategories: []string{
				"tourist_attraction", "museum", "landmark", "monument", "place_of_worship",
			},
		},
		Tours: ToursConfig{MaxCandidates: 3, MinStops: 2},
		Pipeline: PipelineConfig{
			FanoutLimit:        4,
			PollIntervalMs:     500,
			CheckpointTTLHours: 24,
		},
		Speech: SpeechConfig{Voice: "guide", Language: "en"},
	}
}
