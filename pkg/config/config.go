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

// Config holds all configuration options for the course archiver
type Config struct {
	// Site access settings (browser engine, session cookies)
	Site SiteConfig `yaml:"site" json:"site"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Interception capture tuning
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SiteConfig holds settings for reaching the content host
type SiteConfig struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	UserAgent  string `yaml:"user_agent" json:"user_agent"`
	CookieFile string `yaml:"cookie_file" json:"cookie_file"`
	Headless   bool   `yaml:"headless" json:"headless"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	UnitDelay         time.Duration `yaml:"unit_delay" json:"unit_delay"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	CheckpointPath    string `yaml:"checkpoint_path" json:"checkpoint_path"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Quality         string        `yaml:"quality" json:"quality"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	NavTimeout      time.Duration `yaml:"nav_timeout" json:"nav_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts"`
	MinOutputBytes  int64         `yaml:"min_output_bytes" json:"min_output_bytes"`
	FFmpegPath      string        `yaml:"ffmpeg_path" json:"ffmpeg_path"`
}

// CaptureConfig tunes the browser interception capture loop.
// Fragment timing assumes ~10 second transport-stream segments.
type CaptureConfig struct {
	PlaybackRate     float64       `yaml:"playback_rate" json:"playback_rate"`
	FragmentSeconds  float64       `yaml:"fragment_seconds" json:"fragment_seconds"`
	SeekInterval     int           `yaml:"seek_interval" json:"seek_interval"`
	SeekJump         float64       `yaml:"seek_jump" json:"seek_jump"`
	IdleCooldown     int           `yaml:"idle_cooldown" json:"idle_cooldown"`
	MaxReloads       int           `yaml:"max_reloads" json:"max_reloads"`
	FragmentCeiling  int           `yaml:"fragment_ceiling" json:"fragment_ceiling"`
	AcceptRatio      float64       `yaml:"accept_ratio" json:"accept_ratio"`
	IdleStopRatio    float64       `yaml:"idle_stop_ratio" json:"idle_stop_ratio"`
	SuccessRatio     float64       `yaml:"success_ratio" json:"success_ratio"`
	DurationDriftSec float64       `yaml:"duration_drift_sec" json:"duration_drift_sec"`
	MinTimeout       time.Duration `yaml:"min_timeout" json:"min_timeout"`
	MaxTimeout       time.Duration `yaml:"max_timeout" json:"max_timeout"`
	UnknownTimeout   time.Duration `yaml:"unknown_timeout" json:"unknown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:    "https://platzi.com",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:141.0) Gecko/20100101 Firefox/141.0",
			CookieFile: "session.json",
			Headless:   true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			UnitDelay:         1500 * time.Millisecond,
			MaxRetries:        5,
			RetryDelay:        time.Second,
		},
		Output: OutputConfig{
			BaseDirectory:     "./Courses",
			CheckpointPath:    "download_progress.json",
			OverwriteExisting: false,
		},
		Download: DownloadConfig{
			Quality:         "best",
			DownloadTimeout: 30 * time.Second,
			NavTimeout:      60 * time.Second,
			RetryAttempts:   5,
			MinOutputBytes:  100 * 1024,
			FFmpegPath:      "ffmpeg",
		},
		Capture: CaptureConfig{
			PlaybackRate:     4.0,
			FragmentSeconds:  10,
			SeekInterval:     15,
			SeekJump:         60,
			IdleCooldown:     60,
			MaxReloads:       2,
			FragmentCeiling:  3000,
			AcceptRatio:      0.85,
			IdleStopRatio:    0.7,
			SuccessRatio:     0.95,
			DurationDriftSec: 30,
			MinTimeout:       10 * time.Minute,
			MaxTimeout:       30 * time.Minute,
			UnknownTimeout:   15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if cookieFile := os.Getenv("COURSEVAULT_COOKIE_FILE"); cookieFile != "" {
		c.Site.CookieFile = cookieFile
	}
	if userAgent := os.Getenv("COURSEVAULT_USER_AGENT"); userAgent != "" {
		c.Site.UserAgent = userAgent
	}

	if rpm := os.Getenv("COURSEVAULT_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	if outputDir := os.Getenv("COURSEVAULT_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if checkpoint := os.Getenv("COURSEVAULT_CHECKPOINT"); checkpoint != "" {
		c.Output.CheckpointPath = checkpoint
	}
	if ffmpeg := os.Getenv("COURSEVAULT_FFMPEG"); ffmpeg != "" {
		c.Download.FFmpegPath = ffmpeg
	}

	if logLevel := os.Getenv("COURSEVAULT_LOG_LEVEL"); logLevel != "" {
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
		".coursevault.yaml",
		".coursevault.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "coursevault", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "coursevault", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".coursevault.yaml"),
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

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.MinOutputBytes < 0 {
		errs = append(errs, errors.New("min output bytes cannot be negative"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.CheckpointPath == "" {
		errs = append(errs, errors.New("checkpoint path is required"))
	}

	if c.Capture.PlaybackRate < 1 {
		errs = append(errs, errors.New("playback rate must be at least 1"))
	}
	if c.Capture.FragmentSeconds <= 0 {
		errs = append(errs, errors.New("fragment seconds must be positive"))
	}
	if c.Capture.AcceptRatio <= 0 || c.Capture.AcceptRatio > 1 {
		errs = append(errs, errors.New("accept ratio must be in (0, 1]"))
	}
	if c.Capture.SuccessRatio <= 0 || c.Capture.SuccessRatio > 1 {
		errs = append(errs, errors.New("success ratio must be in (0, 1]"))
	}
	if c.Capture.FragmentCeiling <= 0 {
		errs = append(errs, errors.New("fragment ceiling must be positive"))
	}
	if c.Capture.MaxReloads < 0 {
		errs = append(errs, errors.New("max reloads cannot be negative"))
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

// MergeCommandLineFlags merges command line flags into the configuration.
// Quality, overwrite and checkpoint path are passed through as-is.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if checkpoint, ok := flags["checkpoint"].(string); ok && checkpoint != "" {
		c.Output.CheckpointPath = checkpoint
	}
	if quality, ok := flags["quality"].(string); ok && quality != "" {
		c.Download.Quality = quality
	}
	if overwrite, ok := flags["overwrite"].(bool); ok {
		c.Output.OverwriteExisting = overwrite
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Site.Headless = headless
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
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".coursevault.env"))

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
