package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "WIKILOAD_"

// Config defines configuration for the loader tools.
type Config struct {
	ListingURL      string     `yaml:"listing_url"`
	Wiki            string     `yaml:"wiki"`
	WorkDir         string     `yaml:"work_dir"`
	RetainDownloads bool       `yaml:"retain_downloads"`
	Progress        bool       `yaml:"progress"`
	LogLevel        string     `yaml:"log_level"`
	LogFormat       string     `yaml:"log_format"`
	LogBucket       string     `yaml:"log_bucket"`
	HTTP            HTTPConfig `yaml:"http"`
	Ingest          JobConfig  `yaml:"ingest"`
	Facet           JobConfig  `yaml:"facet"`
}

// HTTPConfig defines the HTTP client behavior.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Retry     RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// JobConfig describes how to launch an external job.
type JobConfig struct {
	Program   string   `yaml:"program"`
	Args      []string `yaml:"args"`
	ArgsFlag  string   `yaml:"args_flag"`
	HeapSize  string   `yaml:"heap_size"`
	LogConfig string   `yaml:"log_config"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ListingURL:      "https://dumps.wikimedia.org/enwiki/latest/",
		Wiki:            "enwiki",
		WorkDir:         "work",
		RetainDownloads: true,
		LogLevel:        "info",
		LogFormat:       "console",
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
			Retry: RetryConfig{
				Attempts:   5,
				Backoff:    time.Second,
				MaxBackoff: 30 * time.Second,
			},
		},
		Ingest: mavenJob("com.machinelinking.cli.loader"),
		Facet:  mavenJob("com.machinelinking.cli.facetloader"),
	}
}

func mavenJob(mainClass string) JobConfig {
	return JobConfig{
		Program:   "mvn",
		Args:      []string{"exec:java", "-Dexec.mainClass=" + mainClass},
		ArgsFlag:  "-Dexec.args=",
		HeapSize:  "8g",
		LogConfig: "conf/log4j.properties",
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and
// optional booleans.
type yamlConfig struct {
	ListingURL      string         `yaml:"listing_url"`
	Wiki            string         `yaml:"wiki"`
	WorkDir         string         `yaml:"work_dir"`
	RetainDownloads *bool          `yaml:"retain_downloads"`
	Progress        bool           `yaml:"progress"`
	LogLevel        string         `yaml:"log_level"`
	LogFormat       string         `yaml:"log_format"`
	LogBucket       string         `yaml:"log_bucket"`
	HTTP            yamlHTTPConfig `yaml:"http"`
	Ingest          JobConfig      `yaml:"ingest"`
	Facet           JobConfig      `yaml:"facet"`
}

type yamlHTTPConfig struct {
	Timeout   string          `yaml:"timeout"`
	UserAgent string          `yaml:"user_agent"`
	Retry     yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   *int   `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.ListingURL != "" {
		cfg.ListingURL = yc.ListingURL
	}
	if yc.Wiki != "" {
		cfg.Wiki = yc.Wiki
	}
	if yc.WorkDir != "" {
		cfg.WorkDir = yc.WorkDir
	}
	if yc.RetainDownloads != nil {
		cfg.RetainDownloads = *yc.RetainDownloads
	}
	cfg.Progress = yc.Progress
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.LogFormat != "" {
		cfg.LogFormat = yc.LogFormat
	}
	cfg.LogBucket = yc.LogBucket
	if yc.HTTP.Timeout != "" {
		d, err := time.ParseDuration(yc.HTTP.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse http.timeout: %w", err)
		}
		cfg.HTTP.Timeout = d
	}
	if yc.HTTP.UserAgent != "" {
		cfg.HTTP.UserAgent = yc.HTTP.UserAgent
	}
	if yc.HTTP.Retry.Attempts != nil {
		cfg.HTTP.Retry.Attempts = *yc.HTTP.Retry.Attempts
	}
	if yc.HTTP.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.HTTP.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse http.retry.backoff: %w", err)
		}
		cfg.HTTP.Retry.Backoff = d
	}
	if yc.HTTP.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.HTTP.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse http.retry.max_backoff: %w", err)
		}
		cfg.HTTP.Retry.MaxBackoff = d
	}
	cfg.Ingest = cfg.Ingest.merge(yc.Ingest)
	cfg.Facet = cfg.Facet.merge(yc.Facet)

	return cfg, nil
}

// Load returns Default, or the settings file at path when path is not
// empty, with environment overrides applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the WIKILOAD_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "LISTING_URL"); v != "" {
		c.ListingURL = v
	}
	if v := os.Getenv(EnvPrefix + "WIKI"); v != "" {
		c.Wiki = v
	}
	if v := os.Getenv(EnvPrefix + "WORK_DIR"); v != "" {
		c.WorkDir = v
	}
	if v := os.Getenv(EnvPrefix + "RETAIN_DOWNLOADS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sRETAIN_DOWNLOADS: %w", EnvPrefix, err)
		}
		c.RetainDownloads = b
	}
	if v := os.Getenv(EnvPrefix + "PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_BUCKET"); v != "" {
		c.LogBucket = v
	}
	if v := os.Getenv(EnvPrefix + "HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sHTTP_TIMEOUT: %w", EnvPrefix, err)
		}
		c.HTTP.Timeout = d
	}
	if v := os.Getenv(EnvPrefix + "RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sRETRY_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.HTTP.Retry.Attempts = n
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sRETRY_BACKOFF: %w", EnvPrefix, err)
		}
		c.HTTP.Retry.Backoff = d
	}
	if v := os.Getenv(EnvPrefix + "INGEST_PROGRAM"); v != "" {
		c.Ingest = c.Ingest.merge(JobConfig{Program: v})
	}
	if v := os.Getenv(EnvPrefix + "INGEST_ARGS"); v != "" {
		c.Ingest.Args = strings.Fields(v)
	}
	if v := os.Getenv(EnvPrefix + "FACET_PROGRAM"); v != "" {
		c.Facet = c.Facet.merge(JobConfig{Program: v})
	}
	if v := os.Getenv(EnvPrefix + "HEAP_SIZE"); v != "" {
		c.Ingest.HeapSize = v
		c.Facet.HeapSize = v
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ListingURL == "" {
		return errors.New("config: listing_url is required")
	}
	if c.Wiki == "" {
		return errors.New("config: wiki is required")
	}
	if c.WorkDir == "" {
		return errors.New("config: work_dir is required")
	}
	if c.Ingest.Program == "" {
		return errors.New("config: ingest.program is required")
	}
	if c.HTTP.Retry.Attempts < 0 {
		return errors.New("config: http.retry.attempts must not be negative")
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("config: http.timeout must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so RetainDownloads can only be
// switched off through the file or environment.
func (c Config) Merge(override Config) Config {
	if override.ListingURL != "" {
		c.ListingURL = override.ListingURL
	}
	if override.Wiki != "" {
		c.Wiki = override.Wiki
	}
	if override.WorkDir != "" {
		c.WorkDir = override.WorkDir
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		c.LogFormat = override.LogFormat
	}
	if override.LogBucket != "" {
		c.LogBucket = override.LogBucket
	}
	if override.HTTP.Timeout != 0 {
		c.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.UserAgent != "" {
		c.HTTP.UserAgent = override.HTTP.UserAgent
	}
	if override.HTTP.Retry.Attempts != 0 {
		c.HTTP.Retry.Attempts = override.HTTP.Retry.Attempts
	}
	if override.HTTP.Retry.Backoff != 0 {
		c.HTTP.Retry.Backoff = override.HTTP.Retry.Backoff
	}
	if override.HTTP.Retry.MaxBackoff != 0 {
		c.HTTP.Retry.MaxBackoff = override.HTTP.Retry.MaxBackoff
	}
	c.Ingest = c.Ingest.merge(override.Ingest)
	c.Facet = c.Facet.merge(override.Facet)
	return c
}

func (j JobConfig) merge(override JobConfig) JobConfig {
	if override.Program != "" {
		j.Program = override.Program
		// A new program brings its own arguments and JVM options.
		j.Args = override.Args
		j.ArgsFlag = override.ArgsFlag
		j.HeapSize = override.HeapSize
		j.LogConfig = override.LogConfig
	}
	if len(override.Args) > 0 {
		j.Args = override.Args
	}
	if override.ArgsFlag != "" {
		j.ArgsFlag = override.ArgsFlag
	}
	if override.HeapSize != "" {
		j.HeapSize = override.HeapSize
	}
	if override.LogConfig != "" {
		j.LogConfig = override.LogConfig
	}
	return j
}
