// Package config provides centralized configuration management for the price
// retrieval components. Configuration is layered: defaults, then an optional
// JSON file, then a .env file, then CRYPTOPRICE_* environment variables, and
// is validated as a whole before use.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "CRYPTOPRICE_"

// Profile names a preset of retry and range settings.
type Profile string

const (
	// ProfileInteractive favours completing a query: many attempts, long cooldown
	ProfileInteractive Profile = "interactive"
	// ProfileCLI favours failing fast: few attempts, short cooldown, 90 day cap
	ProfileCLI Profile = "cli"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName    string  `json:"app_name"`
	Version    string  `json:"version"`
	Profile    Profile `json:"profile"`
	ConfigPath string  `json:"-"`

	// Price provider configuration
	API APIConfig `json:"api"`

	// Retry configuration for provider requests
	Retry RetryConfig `json:"retry"`

	// Batch run configuration
	Batch BatchConfig `json:"batch"`

	// Request range limits
	Range RangeConfig `json:"range"`

	// CSV export configuration
	Export ExportConfig `json:"export"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Telemetry configuration
	Telemetry TelemetryConfig `json:"telemetry"`
}

// APIConfig configures the CoinGecko client
type APIConfig struct {
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"api_key"`
	Timeout           string `json:"timeout"`             // HTTP request timeout
	RequestsPerMinute int    `json:"requests_per_minute"` // Client-side rate limit, 0 disables it
	Burst             int    `json:"burst"`
}

// RetryConfig configures retry behavior of a single fetch
type RetryConfig struct {
	MaxAttempts       int    `json:"max_attempts"`        // Total requests including the first
	RateLimitCooldown string `json:"rate_limit_cooldown"` // Wait after HTTP 429
	TransportDelay    string `json:"transport_delay"`     // Initial wait after a transport failure
	MaxTransportDelay string `json:"max_transport_delay"` // Cap for growing strategies
	BackoffStrategy   string `json:"backoff_strategy"`    // fixed, linear, exponential
	Jitter            bool   `json:"jitter"`
}

// BatchConfig configures batch runs
type BatchConfig struct {
	ItemDelay string   `json:"item_delay"` // Pause between consecutive coins
	Coins     []string `json:"coins"`      // Default coin list; empty means the whole registry
}

// RangeConfig bounds requested date ranges
type RangeConfig struct {
	MaxDays     int  `json:"max_days"`     // Exclusive cap on to - from, 0 disables it
	AllowFuture bool `json:"allow_future"` // Accept dates after today
}

// ExportConfig configures CSV output
type ExportConfig struct {
	OutputDir string `json:"output_dir"`
	Summary   bool   `json:"summary"` // Write a batch summary file next to the price files
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level"`       // Log level: debug, info, warn, error
	Format        string            `json:"format"`      // Log format: json, text
	Output        string            `json:"output"`      // Output: stdout, stderr, file
	FilePath      string            `json:"file_path"`   // Log file path
	MaxSize       int               `json:"max_size"`    // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups"` // Maximum log file backups
	MaxAge        int               `json:"max_age"`     // Maximum log file age in days
	Compress      bool              `json:"compress"`    // Compress old log files
	ContextFields map[string]string `json:"context_fields"`
}

// TelemetryConfig configures in-process metrics
type TelemetryConfig struct {
	Enabled bool `json:"enabled"` // Collect counters and print them when a command ends
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	envFiles   []string
	logger     *slog.Logger
}

// NewConfigManager creates a new configuration manager. envFiles are loaded
// with godotenv before the environment is read; missing files are ignored.
func NewConfigManager(configPath string, logger *slog.Logger, envFiles ...string) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		envFiles:   envFiles,
		logger:     logger,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables, including those from .env files (highest priority)
// 2. Configuration file
// 3. Profile preset
// 4. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		config.ConfigPath = cm.configPath
	}

	cm.loadEnvFiles()

	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config
	cm.logger.Debug("configuration loaded",
		"config_path", cm.configPath,
		"profile", config.Profile,
		"max_attempts", config.Retry.MaxAttempts,
		"max_days", config.Range.MaxDays,
		"api_key_set", config.API.APIKey != "",
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a JSON file. A "profile" key in the
// file is applied before the rest of the file so explicit values win.
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	var head struct {
		Profile Profile `json:"profile"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}
	if head.Profile != "" {
		if err := config.ApplyProfile(head.Profile); err != nil {
			return err
		}
	}

	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

func (cm *ConfigManager) loadEnvFiles() {
	for _, path := range cm.envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// godotenv.Load never overrides variables already set in the process
		if err := godotenv.Load(path); err != nil {
			cm.logger.Warn("failed to load env file", "path", path, "error", err)
			continue
		}
		cm.logger.Debug("loaded env file", "path", path)
	}
}

// loadFromEnv loads configuration from CRYPTOPRICE_* environment variables
func (cm *ConfigManager) loadFromEnv(config *AppConfig) error {
	if val := getenv("PROFILE"); val != "" {
		if err := config.ApplyProfile(Profile(val)); err != nil {
			return err
		}
	}

	// API config
	if val := getenv("BASE_URL"); val != "" {
		config.API.BaseURL = val
	}
	if val := getenv("API_KEY"); val != "" {
		config.API.APIKey = val
	}
	if val := getenv("TIMEOUT"); val != "" {
		config.API.Timeout = val
	}
	if err := envInt("REQUESTS_PER_MINUTE", &config.API.RequestsPerMinute); err != nil {
		return err
	}

	// Retry config
	if err := envInt("MAX_ATTEMPTS", &config.Retry.MaxAttempts); err != nil {
		return err
	}
	if val := getenv("RATE_LIMIT_COOLDOWN"); val != "" {
		config.Retry.RateLimitCooldown = val
	}
	if val := getenv("TRANSPORT_DELAY"); val != "" {
		config.Retry.TransportDelay = val
	}
	if val := getenv("BACKOFF_STRATEGY"); val != "" {
		config.Retry.BackoffStrategy = val
	}

	// Batch config
	if val := getenv("ITEM_DELAY"); val != "" {
		config.Batch.ItemDelay = val
	}
	if val := getenv("COINS"); val != "" {
		config.Batch.Coins = splitList(val)
	}

	// Range config
	if err := envInt("MAX_DAYS", &config.Range.MaxDays); err != nil {
		return err
	}
	if val := getenv("ALLOW_FUTURE"); val != "" {
		config.Range.AllowFuture = val == "true"
	}

	// Export config
	if val := getenv("OUTPUT_DIR"); val != "" {
		config.Export.OutputDir = val
	}

	// Logging config
	if val := getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := getenv("LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
	if val := getenv("LOG_FILE_PATH"); val != "" {
		config.Logging.FilePath = val
	}

	// Telemetry config
	if val := getenv("TELEMETRY_ENABLED"); val != "" {
		config.Telemetry.Enabled = val == "true"
	}

	return nil
}

// validateConfig validates the configuration for consistency and required fields
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	return config.Validate()
}

// Validate checks the configuration and reports every problem at once.
func (c *AppConfig) Validate() error {
	var errors []string

	// API
	if c.API.BaseURL == "" {
		errors = append(errors, "api.base_url is required")
	}
	if c.API.RequestsPerMinute < 0 {
		errors = append(errors, "api.requests_per_minute cannot be negative")
	}
	errors = appendDurationError(errors, "api.timeout", c.API.Timeout, true)

	// Retry
	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, "retry.max_attempts must be at least 1")
	}
	errors = appendDurationError(errors, "retry.rate_limit_cooldown", c.Retry.RateLimitCooldown, false)
	errors = appendDurationError(errors, "retry.transport_delay", c.Retry.TransportDelay, false)
	errors = appendDurationError(errors, "retry.max_transport_delay", c.Retry.MaxTransportDelay, false)
	validStrategies := map[string]bool{"fixed": true, "linear": true, "exponential": true}
	if !validStrategies[c.Retry.BackoffStrategy] {
		errors = append(errors, "retry.backoff_strategy must be one of: fixed, linear, exponential")
	}

	// Batch
	errors = appendDurationError(errors, "batch.item_delay", c.Batch.ItemDelay, false)

	// Range
	if c.Range.MaxDays < 0 {
		errors = append(errors, "range.max_days cannot be negative")
	}

	// Logging
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}

	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[c.Logging.Output] {
		errors = append(errors, "logging.output must be one of: stdout, stderr, file")
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		errors = append(errors, "logging.file_path is required when logging.output is file")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// SaveConfig saves the current configuration to the config file
func (cm *ConfigManager) SaveConfig(ctx context.Context) error {
	if cm.configPath == "" {
		return fmt.Errorf("no config path specified")
	}
	if cm.config == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if err := os.MkdirAll(filepath.Dir(cm.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The API key stays out of the file
	sanitized := *cm.config
	sanitized.API.APIKey = ""

	data, err := json.MarshalIndent(&sanitized, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	cm.logger.Info("configuration saved", "path", cm.configPath)
	return nil
}

// DefaultConfig returns the interactive profile defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "cryptoprice",
		Version: "1.0.0",
		Profile: ProfileInteractive,
		API: APIConfig{
			BaseURL:           "https://api.coingecko.com/api/v3",
			Timeout:           "30s",
			RequestsPerMinute: 30,
			Burst:             1,
		},
		Retry: RetryConfig{
			MaxAttempts:       20,
			RateLimitCooldown: "15s",
			TransportDelay:    "2s",
			MaxTransportDelay: "30s",
			BackoffStrategy:   "fixed",
		},
		Batch: BatchConfig{
			ItemDelay: "2s",
		},
		Range: RangeConfig{
			MaxDays: 365,
		},
		Export: ExportConfig{
			OutputDir: ".",
			Summary:   true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSize:    10, // 10MB
			MaxBackups: 3,
			MaxAge:     30, // 30 days
			Compress:   true,
		},
	}
}

// ApplyProfile overwrites retry and range settings with a preset.
func (c *AppConfig) ApplyProfile(p Profile) error {
	switch p {
	case ProfileInteractive:
		c.Retry.MaxAttempts = 20
		c.Retry.RateLimitCooldown = "15s"
		c.Range.MaxDays = 365
	case ProfileCLI:
		c.Retry.MaxAttempts = 3
		c.Retry.RateLimitCooldown = "5s"
		c.Range.MaxDays = 90
	default:
		return fmt.Errorf("unknown profile %q (want %s or %s)", p, ProfileInteractive, ProfileCLI)
	}
	c.Profile = p
	return nil
}

// HTTPTimeout returns the parsed API timeout.
func (c *AppConfig) HTTPTimeout() time.Duration {
	return mustDuration(c.API.Timeout)
}

// RateLimitCooldown returns the parsed cooldown after HTTP 429.
func (c *AppConfig) RateLimitCooldown() time.Duration {
	return mustDuration(c.Retry.RateLimitCooldown)
}

// TransportDelay returns the parsed initial delay after a transport failure.
func (c *AppConfig) TransportDelay() time.Duration {
	return mustDuration(c.Retry.TransportDelay)
}

// MaxTransportDelay returns the parsed delay cap.
func (c *AppConfig) MaxTransportDelay() time.Duration {
	return mustDuration(c.Retry.MaxTransportDelay)
}

// ItemDelay returns the parsed pause between batch items.
func (c *AppConfig) ItemDelay() time.Duration {
	return mustDuration(c.Batch.ItemDelay)
}

// GetLoggingConfig returns logging-specific configuration
func (c *AppConfig) GetLoggingConfig() LoggingConfig {
	return c.Logging
}

// String returns a string representation of the configuration (excluding sensitive data)
func (c *AppConfig) String() string {
	sanitized := *c
	if sanitized.API.APIKey != "" {
		sanitized.API.APIKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(&sanitized, "", "  ")
	return string(data)
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func envInt(name string, dst *int) error {
	val := getenv(name)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s%s must be an integer: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendDurationError(errors []string, field, value string, positive bool) []string {
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errors, fmt.Sprintf("%s is not a valid duration: %v", field, err))
	}
	if d < 0 || (positive && d == 0) {
		return append(errors, fmt.Sprintf("%s must be positive", field))
	}
	return errors
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
