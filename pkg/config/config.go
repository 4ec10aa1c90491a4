package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "FOLLOWSWEEP_"

// Config holds all configuration options for followsweep
type Config struct {
	// Browser driving the remote follower list
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Collection loop timings
	Collection CollectionConfig `yaml:"collection" json:"collection"`

	// Rate-limit guard and operator action pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Local follower database
	Store StoreConfig `yaml:"store" json:"store"`

	// Filter settings file
	Settings SettingsConfig `yaml:"settings" json:"settings"`

	// Operator HTTP API
	Server ServerConfig `yaml:"server" json:"server"`

	// CSV export
	Export ExportConfig `yaml:"export" json:"export"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BrowserConfig holds the automation channel settings
type BrowserConfig struct {
	Bin               string        `yaml:"bin" json:"bin"`
	Headless          bool          `yaml:"headless" json:"headless"`
	UserDataDir       string        `yaml:"user_data_dir" json:"user_data_dir"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	LoginTimeout      time.Duration `yaml:"login_timeout" json:"login_timeout"`
	MonitorInterval   time.Duration `yaml:"monitor_interval" json:"monitor_interval"`
	Stealth           bool          `yaml:"stealth" json:"stealth"`
}

// CollectionConfig holds the collection loop timings
type CollectionConfig struct {
	InitialSettle   time.Duration `yaml:"initial_settle" json:"initial_settle"`
	RenderSettle    time.Duration `yaml:"render_settle" json:"render_settle"`
	AnchorTimeout   time.Duration `yaml:"anchor_timeout" json:"anchor_timeout"`
	StallBaseDelay  time.Duration `yaml:"stall_base_delay" json:"stall_base_delay"`
	MaxStallRetries int           `yaml:"max_stall_retries" json:"max_stall_retries"`
	PaceBase        time.Duration `yaml:"pace_base" json:"pace_base"`
	PaceJitter      time.Duration `yaml:"pace_jitter" json:"pace_jitter"`
	NudgeOffset     int           `yaml:"nudge_offset" json:"nudge_offset"`
}

// RateLimitConfig holds the rate-limit guard configuration
type RateLimitConfig struct {
	BaseWait              time.Duration `yaml:"base_wait" json:"base_wait"`
	SettleDelay           time.Duration `yaml:"settle_delay" json:"settle_delay"`
	MaxAttempts           int           `yaml:"max_attempts" json:"max_attempts"`
	BlockActionsPerMinute int           `yaml:"block_actions_per_minute" json:"block_actions_per_minute"`
}

// StoreConfig holds the follower database location
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SettingsConfig holds the filter settings file location
type SettingsConfig struct {
	Path  string `yaml:"path" json:"path"`
	Watch bool   `yaml:"watch" json:"watch"`
}

// ServerConfig holds the operator API listener
type ServerConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// ExportConfig holds the CSV export directory
type ExportConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Directory  string `yaml:"directory" json:"directory"`
	File       string `yaml:"file" json:"file"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			UserDataDir:       "./data/user-data",
			BaseURL:           "https://x.com",
			NavigationTimeout: 30 * time.Second,
			LoginTimeout:      2 * time.Second,
			MonitorInterval:   2 * time.Second,
			Stealth:           true,
		},
		Collection: CollectionConfig{
			InitialSettle:   5 * time.Second,
			RenderSettle:    1 * time.Second,
			AnchorTimeout:   5 * time.Second,
			StallBaseDelay:  10 * time.Second,
			MaxStallRetries: 3,
			PaceBase:        5 * time.Second,
			PaceJitter:      1 * time.Second,
			NudgeOffset:     1000,
		},
		RateLimit: RateLimitConfig{
			BaseWait:              60 * time.Second,
			SettleDelay:           10 * time.Second,
			MaxAttempts:           10,
			BlockActionsPerMinute: 20,
		},
		Store: StoreConfig{
			Path: "./data/follower.db",
		},
		Settings: SettingsConfig{
			Path:  "./data/user-settings.json",
			Watch: true,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8787",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Export: ExportConfig{
			Directory: "./data/exports",
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "desktop",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "./data/logs",
			MaxBackups: 5,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if bin := os.Getenv(EnvPrefix + "BROWSER_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if headless := os.Getenv(EnvPrefix + "HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) == "true"
	}
	if dir := os.Getenv(EnvPrefix + "USER_DATA_DIR"); dir != "" {
		c.Browser.UserDataDir = dir
	}
	if baseURL := os.Getenv(EnvPrefix + "BASE_URL"); baseURL != "" {
		c.Browser.BaseURL = baseURL
	}
	if userAgent := os.Getenv(EnvPrefix + "USER_AGENT"); userAgent != "" {
		c.Browser.UserAgent = userAgent
	}

	if attempts := os.Getenv(EnvPrefix + "RATE_LIMIT_MAX_ATTEMPTS"); attempts != "" {
		var val int
		fmt.Sscanf(attempts, "%d", &val)
		if val > 0 {
			c.RateLimit.MaxAttempts = val
		}
	}
	if wait := os.Getenv(EnvPrefix + "RATE_LIMIT_BASE_WAIT"); wait != "" {
		if d, err := time.ParseDuration(wait); err == nil && d > 0 {
			c.RateLimit.BaseWait = d
		}
	}

	if dbPath := os.Getenv(EnvPrefix + "DB_PATH"); dbPath != "" {
		c.Store.Path = dbPath
	}
	if settingsPath := os.Getenv(EnvPrefix + "SETTINGS_PATH"); settingsPath != "" {
		c.Settings.Path = settingsPath
	}
	if addr := os.Getenv(EnvPrefix + "ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if exportDir := os.Getenv(EnvPrefix + "EXPORT_DIR"); exportDir != "" {
		c.Export.Directory = exportDir
	}

	if notifEnabled := os.Getenv(EnvPrefix + "NOTIFICATIONS_ENABLED"); notifEnabled != "" {
		c.Notifications.Enabled = strings.ToLower(notifEnabled) == "true"
	}

	if logLevel := os.Getenv(EnvPrefix + "LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logDir := os.Getenv(EnvPrefix + "LOG_DIR"); logDir != "" {
		c.Logging.Directory = logDir
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".followsweep.yaml",
		".followsweep.yml",
		filepath.Join(home, ".config", "followsweep", "config.yaml"),
		filepath.Join(home, ".config", "followsweep", "config.yml"),
		filepath.Join(home, ".followsweep.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Browser.BaseURL == "" {
		errs = append(errs, errors.New("browser base URL is required"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}

	if c.Collection.MaxStallRetries <= 0 {
		errs = append(errs, errors.New("max stall retries must be positive"))
	}
	if c.Collection.StallBaseDelay < 0 || c.Collection.RenderSettle < 0 || c.Collection.PaceBase < 0 || c.Collection.PaceJitter < 0 {
		errs = append(errs, errors.New("collection delays cannot be negative"))
	}
	if c.Collection.AnchorTimeout <= 0 {
		errs = append(errs, errors.New("anchor timeout must be positive"))
	}

	if c.RateLimit.MaxAttempts <= 0 {
		errs = append(errs, errors.New("rate limit max attempts must be positive"))
	}
	if c.RateLimit.BaseWait <= 0 {
		errs = append(errs, errors.New("rate limit base wait must be positive"))
	}
	if c.RateLimit.BlockActionsPerMinute <= 0 {
		errs = append(errs, errors.New("block actions per minute must be positive"))
	}

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	if c.Settings.Path == "" {
		errs = append(errs, errors.New("settings path is required"))
	}
	if c.Export.Directory == "" {
		errs = append(errs, errors.New("export directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, errors.New("log max backups cannot be negative"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if bin, ok := flags["browser-bin"].(string); ok && bin != "" {
		c.Browser.Bin = bin
	}
	if dbPath, ok := flags["db"].(string); ok && dbPath != "" {
		c.Store.Path = dbPath
	}
	if settingsPath, ok := flags["settings"].(string); ok && settingsPath != "" {
		c.Settings.Path = settingsPath
	}
	if addr, ok := flags["addr"].(string); ok && addr != "" {
		c.Server.Addr = addr
	}
	if exportDir, ok := flags["export-dir"].(string); ok && exportDir != "" {
		c.Export.Directory = exportDir
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.RateLimit.MaxAttempts = attempts
	}
	if enabled, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = enabled
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".followsweep.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
