package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/browsercast/pkg/browser"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return mergeYAML(cfg, data)
}

func mergeYAML(cfg *Config, data []byte) error {
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values leave base untouched
// except for booleans explicitly present in raw. A platforms section
// replaces the whole allow-list.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	mergeString(&base.Server.Bind, override.Server.Bind)
	if override.Server.AllowedOrigins != nil {
		base.Server.AllowedOrigins = append([]string{}, override.Server.AllowedOrigins...)
	}
	if boolFieldSet(raw, "server", "trust_proxy") {
		base.Server.TrustProxy = override.Server.TrustProxy
	}
	if override.Server.MaxConnections != 0 {
		base.Server.MaxConnections = override.Server.MaxConnections
	}
	if override.Server.MaxBodyBytes != 0 {
		base.Server.MaxBodyBytes = override.Server.MaxBodyBytes
	}
	mergeDuration(&base.Server.ShutdownTimeout, override.Server.ShutdownTimeout)
	mergeDuration(&base.Server.PingInterval, override.Server.PingInterval)

	mergeString(&base.Browser.Bin, override.Browser.Bin)
	mergeString(&base.Browser.ControlURL, override.Browser.ControlURL)
	if boolFieldSet(raw, "browser", "headful") {
		base.Browser.Headful = override.Browser.Headful
	}
	if boolFieldSet(raw, "browser", "leakless") {
		base.Browser.Leakless = override.Browser.Leakless
	}
	if override.Browser.ExtraFlags != nil {
		base.Browser.ExtraFlags = append([]string{}, override.Browser.ExtraFlags...)
	}
	mergeDuration(&base.Browser.OperationTimeout, override.Browser.OperationTimeout)
	mergeDuration(&base.Browser.HealthInterval, override.Browser.HealthInterval)
	mergeDuration(&base.Browser.PingTimeout, override.Browser.PingTimeout)
	if override.Browser.MaxPingFailures != 0 {
		base.Browser.MaxPingFailures = override.Browser.MaxPingFailures
	}
	base.Browser.Backoff = mergeBackoff(base.Browser.Backoff, override.Browser.Backoff)

	if override.Session.Viewport.Width != 0 {
		base.Session.Viewport.Width = override.Session.Viewport.Width
	}
	if override.Session.Viewport.Height != 0 {
		base.Session.Viewport.Height = override.Session.Viewport.Height
	}
	if override.Session.Viewport.DeviceScaleFactor != 0 {
		base.Session.Viewport.DeviceScaleFactor = override.Session.Viewport.DeviceScaleFactor
	}
	mergeDuration(&base.Session.NavigationTimeout, override.Session.NavigationTimeout)
	mergeDuration(&base.Session.TeardownTimeout, override.Session.TeardownTimeout)
	if boolFieldSet(raw, "session", "idle_timeout") {
		base.Session.IdleTimeout = override.Session.IdleTimeout
	}
	mergeDuration(&base.Session.SweepInterval, override.Session.SweepInterval)
	mergeString(&base.Session.Locale, override.Session.Locale)
	mergeString(&base.Session.AcceptLanguage, override.Session.AcceptLanguage)
	mergeString(&base.Session.PageStyle, override.Session.PageStyle)

	mergeString(&base.Stream.Format, override.Stream.Format)
	if override.Stream.Quality != 0 {
		base.Stream.Quality = override.Stream.Quality
	}
	if override.Stream.MaxWidth != 0 {
		base.Stream.MaxWidth = override.Stream.MaxWidth
	}
	if override.Stream.MaxHeight != 0 {
		base.Stream.MaxHeight = override.Stream.MaxHeight
	}
	if override.Stream.EveryNthFrame != 0 {
		base.Stream.EveryNthFrame = override.Stream.EveryNthFrame
	}
	if boolFieldSet(raw, "stream", "repaint") {
		base.Stream.Repaint = override.Stream.Repaint
	}
	mergeDuration(&base.Stream.AckTimeout, override.Stream.AckTimeout)

	if override.Platforms != nil {
		base.Platforms = normalizePlatforms(override.Platforms)
	}

	if boolFieldSet(raw, "ratelimit", "inbound_per_second") {
		base.RateLimit.InboundPerSecond = override.RateLimit.InboundPerSecond
	}
	if override.RateLimit.InboundBurst != 0 {
		base.RateLimit.InboundBurst = override.RateLimit.InboundBurst
	}
	if boolFieldSet(raw, "ratelimit", "session_create_per_second") {
		base.RateLimit.SessionCreatePerSecond = override.RateLimit.SessionCreatePerSecond
	}
	if override.RateLimit.SessionCreateBurst != 0 {
		base.RateLimit.SessionCreateBurst = override.RateLimit.SessionCreateBurst
	}

	mergeString(&base.Logging.Level, override.Logging.Level)
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if override.Logging.OutputPaths != nil {
		base.Logging.OutputPaths = append([]string{}, override.Logging.OutputPaths...)
	}

	if boolFieldSet(raw, "telemetry", "nats", "enabled") {
		base.Telemetry.NATS.Enabled = override.Telemetry.NATS.Enabled
	}
	mergeString(&base.Telemetry.NATS.URL, override.Telemetry.NATS.URL)
	mergeString(&base.Telemetry.NATS.Subject, override.Telemetry.NATS.Subject)
	mergeDuration(&base.Telemetry.NATS.ConnectTimeout, override.Telemetry.NATS.ConnectTimeout)
	if boolFieldSet(raw, "telemetry", "tracing", "enabled") {
		base.Telemetry.Tracing.Enabled = override.Telemetry.Tracing.Enabled
	}
	mergeString(&base.Telemetry.Tracing.Output, override.Telemetry.Tracing.Output)
}

func mergeString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func mergeBackoff(base, override browser.Backoff) browser.Backoff {
	if override.Initial != 0 {
		base.Initial = override.Initial
	}
	if override.Max != 0 {
		base.Max = override.Max
	}
	if override.Multiplier != 0 {
		base.Multiplier = override.Multiplier
	}
	return base
}

func normalizePlatforms(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for name, target := range in {
		out[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(target)
	}
	return out
}

func boolFieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
