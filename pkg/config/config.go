package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/browsercast/pkg/browser"
	"github.com/odvcencio/browsercast/pkg/logging"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBind              = "127.0.0.1:3000"
	DefaultNavigationTimeout = 30 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultSweepInterval     = time.Minute
	DefaultLocale            = "en-US"
	DefaultAcceptLanguage    = "en-US,en;q=0.9"
	DefaultStreamQuality     = 85
	DefaultNATSSubject       = "browsercast.events"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BROWSERCAST_"
)

// Config represents the complete browsercast configuration
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Browser   BrowserConfig     `yaml:"browser"`
	Session   SessionConfig     `yaml:"session"`
	Stream    StreamConfig      `yaml:"stream"`
	Platforms map[string]string `yaml:"platforms"`
	RateLimit RateLimitConfig   `yaml:"ratelimit"`
	Logging   logging.Config    `yaml:"logging"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig configures the HTTP and websocket listener.
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	TrustProxy      bool          `yaml:"trust_proxy"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
}

// BrowserConfig configures the shared chromium process.
type BrowserConfig struct {
	Bin              string          `yaml:"bin"`
	ControlURL       string          `yaml:"control_url"`
	Headful          bool            `yaml:"headful"`
	Leakless         bool            `yaml:"leakless"`
	ExtraFlags       []string        `yaml:"extra_flags"`
	OperationTimeout time.Duration   `yaml:"operation_timeout"`
	HealthInterval   time.Duration   `yaml:"health_interval"`
	PingTimeout      time.Duration   `yaml:"ping_timeout"`
	MaxPingFailures  int             `yaml:"max_ping_failures"`
	Backoff          browser.Backoff `yaml:"backoff"`
}

// SessionConfig configures page setup and idle reclamation.
type SessionConfig struct {
	Viewport          browser.Viewport `yaml:"viewport"`
	NavigationTimeout time.Duration    `yaml:"navigation_timeout"`
	TeardownTimeout   time.Duration    `yaml:"teardown_timeout"`
	IdleTimeout       time.Duration    `yaml:"idle_timeout"`
	SweepInterval     time.Duration    `yaml:"sweep_interval"`
	Locale            string           `yaml:"locale"`
	AcceptLanguage    string           `yaml:"accept_language"`
	PageStyle         string           `yaml:"page_style"`
}

// StreamConfig configures session screencasts.
type StreamConfig struct {
	Format        string        `yaml:"format"`
	Quality       int           `yaml:"quality"`
	MaxWidth      int           `yaml:"max_width"`
	MaxHeight     int           `yaml:"max_height"`
	EveryNthFrame int           `yaml:"every_nth_frame"`
	Repaint       bool          `yaml:"repaint"`
	AckTimeout    time.Duration `yaml:"ack_timeout"`
}

// Options converts the section to capture options.
func (s StreamConfig) Options() browser.StreamOptions {
	return browser.StreamOptions{
		Format:        browser.FrameFormat(strings.ToLower(strings.TrimSpace(s.Format))),
		Quality:       s.Quality,
		MaxWidth:      s.MaxWidth,
		MaxHeight:     s.MaxHeight,
		EveryNthFrame: s.EveryNthFrame,
	}
}

// RateLimitConfig bounds inbound traffic. A zero session_create_per_second
// disables the per-IP limit.
type RateLimitConfig struct {
	InboundPerSecond       float64 `yaml:"inbound_per_second"`
	InboundBurst           int     `yaml:"inbound_burst"`
	SessionCreatePerSecond float64 `yaml:"session_create_per_second"`
	SessionCreateBurst     int     `yaml:"session_create_burst"`
}

// TelemetryConfig configures event forwarding and tracing.
type TelemetryConfig struct {
	NATS    NATSConfig    `yaml:"nats"`
	Tracing TracingConfig `yaml:"tracing"`
}

// NATSConfig configures the lifecycle event forwarder.
type NATSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	Subject        string        `yaml:"subject"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Output is "stdout", "stderr" or a file path.
	Output string `yaml:"output"`
}

// DefaultPlatforms is the built-in allow-list.
func DefaultPlatforms() map[string]string {
	return map[string]string{
		"facebook":  "https://www.facebook.com",
		"instagram": "https://www.instagram.com",
		"x":         "https://x.com/",
		"tiktok":    "https://www.tiktok.com",
		"linkedin":  "https://www.linkedin.com",
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:            DefaultBind,
			AllowedOrigins:  []string{"http://localhost", "http://127.0.0.1"},
			MaxConnections:  512,
			MaxBodyBytes:    16 << 10,
			ShutdownTimeout: 10 * time.Second,
			PingInterval:    30 * time.Second,
		},
		Browser: BrowserConfig{
			OperationTimeout: 10 * time.Second,
			HealthInterval:   5 * time.Second,
			PingTimeout:      3 * time.Second,
			MaxPingFailures:  2,
			Backoff:          browser.DefaultBackoff(),
		},
		Session: SessionConfig{
			Viewport:          browser.DefaultViewport(),
			NavigationTimeout: DefaultNavigationTimeout,
			TeardownTimeout:   5 * time.Second,
			IdleTimeout:       DefaultIdleTimeout,
			SweepInterval:     DefaultSweepInterval,
			Locale:            DefaultLocale,
			AcceptLanguage:    DefaultAcceptLanguage,
		},
		Stream: StreamConfig{
			Format:        string(browser.FrameFormatJPEG),
			Quality:       DefaultStreamQuality,
			MaxWidth:      1080,
			MaxHeight:     1920,
			EveryNthFrame: 1,
			Repaint:       true,
			AckTimeout:    5 * time.Second,
		},
		Platforms: DefaultPlatforms(),
		RateLimit: RateLimitConfig{
			InboundPerSecond:       200,
			InboundBurst:           400,
			SessionCreatePerSecond: 2,
			SessionCreateBurst:     10,
		},
		Logging: logging.DefaultConfig(),
		Telemetry: TelemetryConfig{
			NATS: NATSConfig{
				URL:            "nats://127.0.0.1:4222",
				Subject:        DefaultNATSSubject,
				ConnectTimeout: 5 * time.Second,
			},
			Tracing: TracingConfig{Output: "stdout"},
		},
	}
}

// UserConfigPath returns ~/.browsercast/config.yaml, or "" without a home.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".browsercast", "config.yaml")
}

// ProjectConfigPath is the project file merged over the user file.
const ProjectConfigPath = "browsercast.yaml"

// Load loads configuration from default locations with proper precedence
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if userConfigPath := UserConfigPath(); userConfigPath != "" {
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	if err := loadAndMerge(cfg, ProjectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies BROWSERCAST_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := env("BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := env("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCommaList(v)
	}
	if val, ok := envBool("TRUST_PROXY"); ok {
		cfg.Server.TrustProxy = val
	}
	if v := env("CHROME_BIN"); v != "" {
		cfg.Browser.Bin = v
	}
	if v := env("CHROME_CONTROL_URL"); v != "" {
		cfg.Browser.ControlURL = v
	}
	if val, ok := envBool("HEADFUL"); ok {
		cfg.Browser.Headful = val
	}
	if v := env("CHROME_FLAGS"); v != "" {
		cfg.Browser.ExtraFlags = append(cfg.Browser.ExtraFlags, splitCommaList(v)...)
	}
	if v := env("STREAM_QUALITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSTREAM_QUALITY: %w", EnvPrefix, err)
		}
		cfg.Stream.Quality = n
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"NAVIGATION_TIMEOUT", &cfg.Session.NavigationTimeout},
		{"IDLE_TIMEOUT", &cfg.Session.IdleTimeout},
		{"SWEEP_INTERVAL", &cfg.Session.SweepInterval},
	} {
		v := env(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, d.key, err)
		}
		*d.dst = parsed
	}
	if v := env("PLATFORMS"); v != "" {
		platforms, err := parsePlatformList(v)
		if err != nil {
			return fmt.Errorf("%sPLATFORMS: %w", EnvPrefix, err)
		}
		cfg.Platforms = platforms
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = logging.Format(strings.ToLower(v))
	}
	if v := env("NATS_URL"); v != "" {
		cfg.Telemetry.NATS.URL = v
		cfg.Telemetry.NATS.Enabled = true
	}
	if v := env("NATS_SUBJECT"); v != "" {
		cfg.Telemetry.NATS.Subject = v
	}
	if val, ok := envBool("TRACING"); ok {
		cfg.Telemetry.Tracing.Enabled = val
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

// parsePlatformList reads "name=url,name=url".
func parsePlatformList(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range splitCommaList(raw) {
		name, target, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q must be name=url", entry)
		}
		out[name] = target
	}
	return normalizePlatforms(out), nil
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func envBool(key string) (bool, bool) {
	val := env(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// IsLoopbackBind reports whether addr only listens on a loopback interface.
func IsLoopbackBind(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	switch strings.ToLower(host) {
	case "localhost":
		return true
	case "0.0.0.0", "::":
		return false
	default:
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ip.IsLoopback()
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind %q: %w", c.Server.Bind, err)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must be zero or positive")
	}

	if err := validatePlatforms(c.Platforms); err != nil {
		return err
	}

	if c.Session.Viewport.Width <= 0 || c.Session.Viewport.Height <= 0 {
		return fmt.Errorf("session.viewport must have a positive width and height")
	}
	if c.Session.NavigationTimeout <= 0 {
		return fmt.Errorf("session.navigation_timeout must be positive")
	}
	if c.Session.IdleTimeout < 0 || c.Session.SweepInterval < 0 {
		return fmt.Errorf("session.idle_timeout and session.sweep_interval must not be negative")
	}

	if err := c.Stream.Options().Validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	if c.Browser.Backoff.Initial <= 0 || c.Browser.Backoff.Max < c.Browser.Backoff.Initial {
		return fmt.Errorf("browser.backoff: initial must be positive and not above max")
	}
	if c.Browser.Backoff.Multiplier < 1 {
		return fmt.Errorf("browser.backoff.multiplier must be at least 1")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case logging.FormatJSON, logging.FormatConsole, "":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}

	if c.RateLimit.InboundPerSecond < 0 || c.RateLimit.SessionCreatePerSecond < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	if c.Telemetry.NATS.Enabled && strings.TrimSpace(c.Telemetry.NATS.Subject) == "" {
		return fmt.Errorf("telemetry.nats.subject is required when nats is enabled")
	}
	return nil
}

func validatePlatforms(platforms map[string]string) error {
	if len(platforms) == 0 {
		return fmt.Errorf("platforms: at least one platform is required")
	}
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(name) == "" || name != strings.ToLower(name) {
			return fmt.Errorf("platforms: name %q must be non-empty lowercase", name)
		}
		u, err := url.Parse(platforms[name])
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("platforms.%s: %q is not an absolute http(s) URL", name, platforms[name])
		}
	}
	return nil
}

// ValidationWarnings returns non-fatal configuration concerns.
func (c *Config) ValidationWarnings() []string {
	var warnings []string
	if !IsLoopbackBind(c.Server.Bind) {
		for _, origin := range c.Server.AllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				warnings = append(warnings, "server.allowed_origins contains * on a non-loopback bind")
				break
			}
		}
	}
	if c.Browser.Headful {
		warnings = append(warnings, "browser.headful is set; sessions will open visible windows")
	}
	if c.Session.IdleTimeout == 0 {
		warnings = append(warnings, "session.idle_timeout is 0; abandoned sessions are never reclaimed")
	}
	return warnings
}
