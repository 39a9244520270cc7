package chromium

import (
	"errors"
	"strings"
	"time"
)

// DefaultFlags are the launch flags every process gets. They keep a
// containerized chromium rendering hidden tabs with a bounded footprint.
var DefaultFlags = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--no-zygote",
	"--lang=en-US",
}

// Config controls how the chromium adapter launches and drives the browser.
type Config struct {
	// Bin is the chromium binary. Empty lets rod locate or download one.
	Bin              string
	// ControlURL connects to an already running browser instead of launching.
	ControlURL       string
	// Headful shows the browser window; processes are headless by default.
	Headful          bool
	Leakless         bool
	ExtraFlags       []string
	OperationTimeout time.Duration
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{OperationTimeout: 10 * time.Second}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	defaults.Bin = strings.TrimSpace(c.Bin)
	defaults.ControlURL = strings.TrimSpace(c.ControlURL)
	defaults.Headful = c.Headful
	defaults.Leakless = c.Leakless
	defaults.ExtraFlags = append([]string(nil), c.ExtraFlags...)
	if c.OperationTimeout != 0 {
		defaults.OperationTimeout = c.OperationTimeout
	}
	return defaults
}

// Validate checks whether the config is usable.
func (c Config) Validate() error {
	if c.OperationTimeout < 0 {
		return errors.New("operation_timeout must be zero or positive")
	}
	for _, f := range c.ExtraFlags {
		if !strings.HasPrefix(f, "--") || len(f) == 2 {
			return errors.New("extra flags must look like --name or --name=value")
		}
	}
	return nil
}

// launchFlags returns name/value pairs for DefaultFlags plus ExtraFlags.
// A later flag with the same name overrides an earlier one.
func (c Config) launchFlags() [][2]string {
	all := append(append([]string(nil), DefaultFlags...), c.ExtraFlags...)
	index := make(map[string]int, len(all))
	out := make([][2]string, 0, len(all))
	for _, raw := range all {
		name, val, _ := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if i, ok := index[name]; ok {
			out[i][1] = val
			continue
		}
		index[name] = len(out)
		out = append(out, [2]string{name, val})
	}
	return out
}
