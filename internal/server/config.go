// Package server provides configuration helpers that define runtime defaults,
// file and environment loading, and validation for the relay.
package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/tcprelay/internal/logging"
	"gopkg.in/yaml.v3"
)

// HTTPDisabled as HTTPAddr turns off the HTTP surface (health, metrics and
// WebSocket bridge).
const HTTPDisabled = "off"

const (
	defaultListenAddr      = "0.0.0.0:5000"
	defaultHTTPAddr        = ":8080"
	defaultMetricsPath     = "/metrics"
	defaultAllowedOrigin   = "http://localhost:8080"
	defaultMaxMessageSize  = 4096
	defaultEventQueueSize  = 1024
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds the relay configuration.
type Config struct {
	ListenAddr      string          `yaml:"listen_addr"`
	HTTPAddr        string          `yaml:"http_addr"`
	MetricsPath     string          `yaml:"metrics_path"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	MaxMessageSize  int64           `yaml:"max_message_size"`
	ReadBufferSize  int             `yaml:"read_buffer_size"`
	EventQueueSize  int             `yaml:"event_queue_size"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Log             logging.Config  `yaml:"log"`
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file, fills in defaults and applies
// environment overrides. A missing file yields an error wrapping
// os.ErrNotExist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.SetDefaults()
	cfg.ApplyEnvOverrides()
	return &cfg, nil
}

// SetDefaults replaces unset or non-positive values with defaults.
func (c *Config) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if c.MetricsPath == "" {
		c.MetricsPath = defaultMetricsPath
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBufferSize
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = defaultEventQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Second
	}
	if c.RateLimit.Policy == "" {
		c.RateLimit.Policy = RateLimitOff
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// ApplyEnvOverrides applies environment variable overrides. Unparseable
// numeric values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("RELAY_LISTEN_ADDR"); val != "" {
		c.ListenAddr = val
	}
	if val := os.Getenv("RELAY_HTTP_ADDR"); val != "" {
		c.HTTPAddr = val
	}
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		c.AllowedOrigins = parseOrigins(val)
	}
	if val := os.Getenv("MAX_MESSAGE_SIZE"); val != "" {
		c.MaxMessageSize = parseMaxMessageSize(val, c.MaxMessageSize)
	}
	if val := os.Getenv("EVENT_QUEUE_SIZE"); val != "" {
		c.EventQueueSize = parseIntValue(val, c.EventQueueSize)
	}
	if val := os.Getenv("WRITE_TIMEOUT_SECONDS"); val != "" {
		c.WriteTimeout = parseSeconds(val, c.WriteTimeout)
	}
	if val := os.Getenv("RATE_LIMIT_WINDOW"); val != "" {
		c.RateLimit.Window = parseDuration(val, c.RateLimit.Window)
	}
	if val := os.Getenv("RATE_LIMIT_POLICY"); val != "" {
		c.RateLimit.Policy = RateLimitPolicy(strings.ToLower(strings.TrimSpace(val)))
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := parseRateLimitPolicy(string(c.RateLimit.Policy)); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics path %q must start with /", c.MetricsPath)
	}
	return nil
}

// HTTPEnabled reports whether the HTTP surface should be started.
func (c *Config) HTTPEnabled() bool {
	return c.HTTPAddr != "" && !strings.EqualFold(c.HTTPAddr, HTTPDisabled)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// parseDuration accepts Go durations ("500ms") or whole seconds ("2").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return parseSeconds(value, defaultValue)
}
