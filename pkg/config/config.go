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

// Config holds all configuration options for the Instagram post monitor
type Config struct {
	// Profiles to watch and freshness policy
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Browser session connection
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// MonitorConfig holds the watch list and freshness policy
type MonitorConfig struct {
	Usernames       []string      `yaml:"usernames" json:"usernames"`
	FreshnessWindow time.Duration `yaml:"freshness_window" json:"freshness_window"`
	StrictFilter    bool          `yaml:"strict_filter" json:"strict_filter"`
	MaxPostsPerScan int           `yaml:"max_posts_per_scan" json:"max_posts_per_scan"`
	ScrollCount     int           `yaml:"scroll_count" json:"scroll_count"`
	RunTimeout      time.Duration `yaml:"run_timeout" json:"run_timeout"`
}

// BrowserConfig holds the connection to the already-authenticated session
type BrowserConfig struct {
	DebuggingURL   string        `yaml:"debugging_url" json:"debugging_url"`
	AllowLaunch    bool          `yaml:"allow_launch" json:"allow_launch"`
	Headless       bool          `yaml:"headless" json:"headless"`
	ExecPath       string        `yaml:"exec_path" json:"exec_path"`
	PageTimeout    time.Duration `yaml:"page_timeout" json:"page_timeout"`
	MinActionDelay time.Duration `yaml:"min_action_delay" json:"min_action_delay"`
	MaxActionDelay time.Duration `yaml:"max_action_delay" json:"max_action_delay"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory    string `yaml:"base_directory" json:"base_directory"`
	CaptionExtension string `yaml:"caption_extension" json:"caption_extension"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Workers           int           `yaml:"workers" json:"workers"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts     int           `yaml:"retry_attempts" json:"retry_attempts"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			FreshnessWindow: 24 * time.Hour,
			StrictFilter:    false,
			MaxPostsPerScan: 12,
			ScrollCount:     5,
			RunTimeout:      30 * time.Minute,
		},
		Browser: BrowserConfig{
			DebuggingURL:   "http://localhost:9222",
			AllowLaunch:    false,
			Headless:       true,
			PageTimeout:    30 * time.Second,
			MinActionDelay: 1 * time.Second,
			MaxActionDelay: 3 * time.Second,
		},
		Output: OutputConfig{
			BaseDirectory:    "./data",
			CaptionExtension: ".txt",
		},
		Download: DownloadConfig{
			Workers:           3,
			Timeout:           30 * time.Second,
			RetryAttempts:     3,
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if users := os.Getenv("IGMONITOR_USERNAMES"); users != "" {
		var list []string
		for _, u := range strings.Split(users, ",") {
			if u = strings.TrimSpace(u); u != "" {
				list = append(list, u)
			}
		}
		c.Monitor.Usernames = list
	}
	if window := os.Getenv("IGMONITOR_FRESHNESS_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil && d > 0 {
			c.Monitor.FreshnessWindow = d
		}
	}
	if debugURL := os.Getenv("IGMONITOR_DEBUGGING_URL"); debugURL != "" {
		c.Browser.DebuggingURL = debugURL
	}
	if outputDir := os.Getenv("IGMONITOR_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if workers := os.Getenv("IGMONITOR_WORKERS"); workers != "" {
		var val int
		fmt.Sscanf(workers, "%d", &val)
		if val > 0 {
			c.Download.Workers = val
		}
	}
	if logLevel := os.Getenv("IGMONITOR_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
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
	// Check in order of precedence
	locations := []string{
		".igmonitor.yaml",
		".igmonitor.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "igmonitor", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "igmonitor", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".igmonitor.yaml"),
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

	if len(c.Monitor.Usernames) == 0 {
		errs = append(errs, errors.New("at least one username to monitor is required"))
	}
	if c.Monitor.FreshnessWindow <= 0 {
		errs = append(errs, errors.New("freshness window must be positive"))
	}
	if c.Monitor.MaxPostsPerScan <= 0 {
		errs = append(errs, errors.New("max posts per scan must be positive"))
	}
	if c.Monitor.ScrollCount < 0 {
		errs = append(errs, errors.New("scroll count cannot be negative"))
	}

	if c.Browser.DebuggingURL == "" && !c.Browser.AllowLaunch {
		errs = append(errs, errors.New("a debugging URL is required unless launching is allowed"))
	}
	if c.Browser.PageTimeout <= 0 {
		errs = append(errs, errors.New("page timeout must be positive"))
	}
	if c.Browser.MinActionDelay < 0 || c.Browser.MaxActionDelay < c.Browser.MinActionDelay {
		errs = append(errs, errors.New("action delay range is invalid"))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("download workers must be positive"))
	}
	if c.Download.Workers > 10 {
		errs = append(errs, errors.New("download workers should not exceed 10"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
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
	if users, ok := flags["users"].([]string); ok && len(users) > 0 {
		c.Monitor.Usernames = users
	}
	if window, ok := flags["window"].(time.Duration); ok && window > 0 {
		c.Monitor.FreshnessWindow = window
	}
	if strict, ok := flags["strict"].(bool); ok {
		c.Monitor.StrictFilter = strict
	}
	if debugURL, ok := flags["debugging-url"].(string); ok && debugURL != "" {
		c.Browser.DebuggingURL = debugURL
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Download.Workers = workers
	}
	if timeout, ok := flags["run-timeout"].(time.Duration); ok && timeout > 0 {
		c.Monitor.RunTimeout = timeout
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igmonitor.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
