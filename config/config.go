// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"cardiopredict/clinical"
)

const DefaultPath = "config.yaml"

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Model      ModelConfig      `yaml:"model"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Validation ValidationConfig `yaml:"validation"`
	Wizard     WizardConfig     `yaml:"wizard"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	Timeout         time.Duration `yaml:"timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

func (h HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", h.Port)
}

type ModelConfig struct {
	// Path of the artifact holding the fitted model and its feature schema.
	Path string `yaml:"path"`
}

type DatabaseConfig struct {
	// Path of the sqlite run log. Empty disables it.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type ValidationConfig struct {
	CategoryPolicy string `yaml:"category_policy"`
}

type WizardConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8080,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    1 << 20,
			AllowedOrigins:  []string{"*"},
		},
		Model:    ModelConfig{Path: "models/heart_model.json"},
		Database: DatabaseConfig{Path: "data/cardiopredict.db"},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Validation: ValidationConfig{CategoryPolicy: string(clinical.PolicyStrict)},
		Wizard:     WizardConfig{MaxSessions: 1024, SessionTTL: 30 * time.Minute},
		Metrics:    MetricsConfig{Enabled: true, Namespace: "cardiopredict"},
	}
}

// Load reads path (or ../path when the binary runs from a subdirectory) over
// the defaults, then applies CARDIO_* environment overrides and validates.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved, err := resolve(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		if err := readFile(resolved, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolve(path string) (string, error) {
	if path == "" {
		path = DefaultPath
	}
	candidates := []string{path}
	if !filepath.IsAbs(path) {
		candidates = append(candidates, filepath.Join("..", path))
	}
	for _, candidate := range candidates {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}

func readFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Port = getEnvInt("CARDIO_HTTP_PORT", cfg.HTTP.Port)
	cfg.HTTP.Timeout = getEnvDuration("CARDIO_HTTP_TIMEOUT", cfg.HTTP.Timeout)
	cfg.HTTP.AllowedOrigins = getEnvSlice("CARDIO_ALLOWED_ORIGINS", cfg.HTTP.AllowedOrigins)
	cfg.Model.Path = getEnv("CARDIO_MODEL_PATH", cfg.Model.Path)
	cfg.Database.Path = getEnv("CARDIO_DB_PATH", cfg.Database.Path)
	cfg.Log.Level = getEnv("CARDIO_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("CARDIO_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("CARDIO_LOG_FILE", cfg.Log.File)
	cfg.Validation.CategoryPolicy = getEnv("CARDIO_CATEGORY_POLICY", cfg.Validation.CategoryPolicy)
	cfg.Wizard.MaxSessions = getEnvInt("CARDIO_WIZARD_MAX_SESSIONS", cfg.Wizard.MaxSessions)
	cfg.Metrics.Enabled = getEnvBool("CARDIO_METRICS_ENABLED", cfg.Metrics.Enabled)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var err error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.Timeout <= 0 {
		err = multierr.Append(err, errors.New("http.timeout must be positive"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		err = multierr.Append(err, errors.New("http.max_body_bytes must be positive"))
	}
	if c.Model.Path == "" {
		err = multierr.Append(err, errors.New("model.path is required"))
	}
	if _, perr := zapcore.ParseLevel(c.Log.Level); perr != nil {
		err = multierr.Append(err, perr)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	if _, perr := clinical.ParseCategoryPolicy(c.Validation.CategoryPolicy); perr != nil {
		err = multierr.Append(err, perr)
	}
	if c.Wizard.MaxSessions <= 0 {
		err = multierr.Append(err, errors.New("wizard.max_sessions must be positive"))
	}
	if c.Wizard.SessionTTL < 0 {
		err = multierr.Append(err, errors.New("wizard.session_ttl must not be negative"))
	}
	return err
}

// CategoryPolicy returns the parsed validation policy. Call after Validate.
func (c *Config) CategoryPolicy() clinical.CategoryPolicy {
	policy, _ := clinical.ParseCategoryPolicy(c.Validation.CategoryPolicy)
	return policy
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
