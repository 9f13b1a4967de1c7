package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/gemini"
	"github.com/fpang/video-insight/internal/history"
	"github.com/fpang/video-insight/internal/media"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvModel       = "GEMINI_MODEL"
	EnvLogLevel    = "GEMINI_LOG_LEVEL"
	EnvHistory     = "VIDEO_INSIGHT_HISTORY"
	EnvDataDir     = "VIDEO_INSIGHT_DATA_DIR"
	EnvDynamoTable = "VIDEO_INSIGHT_DYNAMO_TABLE"
	EnvPort        = "PORT"
)

// DefaultFileName is looked up under ~/.video-insight when no path is given.
const DefaultFileName = "config.yaml"

type AnalysisConfig struct {
	InlineThresholdBytes int64         `yaml:"inline_threshold_bytes"`
	MaxFileBytes         int64         `yaml:"max_file_bytes"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	MaxPollAttempts      int           `yaml:"max_poll_attempts"`
	ProbeDuration        *bool         `yaml:"probe_duration"`
}

type GeminiConfig struct {
	Model string `yaml:"model"`
}

type HistoryConfig struct {
	Backend     string `yaml:"backend"` // memory|sqlite|dynamodb
	DataDir     string `yaml:"data_dir"`
	DynamoTable string `yaml:"dynamo_table"`
	AWSRegion   string `yaml:"aws_region"`
}

type ServerConfig struct {
	Port          int   `yaml:"port"`
	MaxUploadSize int64 `yaml:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // console|json
}

type MetricsConfig struct {
	EMF     bool   `yaml:"emf"` // write EMF records to stdout
	Service string `yaml:"service"`
}

type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	History  HistoryConfig  `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// Path is the file the config was read from, empty when none was found.
	Path string `yaml:"-"`
}

// Load reads the YAML file at path, applies environment overrides and fills
// defaults. An empty path looks for ~/.video-insight/config.yaml and is not
// an error when that file is absent.
func Load(path string) (*Config, error) {
	var cfg Config

	explicit := path != ""
	if !explicit {
		path = defaultPath()
	}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.Path = path
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".video-insight", DefaultFileName)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvModel); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvHistory); v != "" {
		c.History.Backend = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.History.DataDir = v
	}
	if v := os.Getenv(EnvDynamoTable); v != "" {
		c.History.DynamoTable = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Analysis.InlineThresholdBytes <= 0 {
		c.Analysis.InlineThresholdBytes = media.InlineThreshold
	}
	if c.Analysis.MaxFileBytes <= 0 {
		c.Analysis.MaxFileBytes = media.MaxFileSize
	}
	if c.Analysis.PollInterval <= 0 {
		c.Analysis.PollInterval = analysis.DefaultPollInterval
	}
	if c.Analysis.MaxPollAttempts <= 0 {
		c.Analysis.MaxPollAttempts = analysis.DefaultMaxPollAttempts
	}
	if c.Analysis.ProbeDuration == nil {
		probe := true
		c.Analysis.ProbeDuration = &probe
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = gemini.DefaultModelName
	}
	if c.History.Backend == "" {
		c.History.Backend = history.BackendSQLite
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = c.Analysis.MaxFileBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Metrics.Service == "" {
		c.Metrics.Service = "video-insight"
	}
}

// Validate rejects values the rest of the program cannot use.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case history.BackendMemory, history.BackendSQLite:
	case history.BackendDynamo:
		if c.History.DynamoTable == "" {
			return errors.New("history.dynamo_table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("history.backend %q must be memory, sqlite or dynamodb", c.History.Backend)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q must be console or json", c.Log.Format)
	}
	if c.Analysis.InlineThresholdBytes > c.Analysis.MaxFileBytes {
		return fmt.Errorf("analysis.inline_threshold_bytes (%d) exceeds analysis.max_file_bytes (%d)",
			c.Analysis.InlineThresholdBytes, c.Analysis.MaxFileBytes)
	}
	if c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// AnalysisOptions converts the config for analysis.NewAnalyzer.
func (c *Config) AnalysisOptions() analysis.Options {
	return analysis.Options{
		Model:           c.Gemini.Model,
		InlineThreshold: c.Analysis.InlineThresholdBytes,
		MaxFileSize:     c.Analysis.MaxFileBytes,
		PollInterval:    c.Analysis.PollInterval,
		MaxPollAttempts: c.Analysis.MaxPollAttempts,
		ProbeDuration:   c.Analysis.ProbeDuration != nil && *c.Analysis.ProbeDuration,
	}
}

// HistoryOptions converts the config for history.Open.
func (c *Config) HistoryOptions() history.Options {
	return history.Options{
		Backend:     c.History.Backend,
		DataDir:     c.History.DataDir,
		DynamoTable: c.History.DynamoTable,
		AWSRegion:   c.History.AWSRegion,
	}
}
