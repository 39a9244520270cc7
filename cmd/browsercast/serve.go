package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/browsercast/pkg/browser"
	"github.com/odvcencio/browsercast/pkg/browser/adapters/chromium"
	"github.com/odvcencio/browsercast/pkg/config"
	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
	"github.com/odvcencio/browsercast/pkg/input"
	"github.com/odvcencio/browsercast/pkg/ipc"
	"github.com/odvcencio/browsercast/pkg/logging"
	"github.com/odvcencio/browsercast/pkg/session"
	"github.com/odvcencio/browsercast/pkg/stream"
	"github.com/odvcencio/browsercast/pkg/telemetry"
)

var serveBind string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Launch chromium and serve the session API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return configError(err, "load config")
		}
		if serveBind != "" {
			cfg.Server.Bind = serveBind
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "address to listen on (overrides server.bind)")
}

var loadConfigFn = config.Load
var loadConfigFromPathFn = config.LoadFromPath

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return loadConfigFromPathFn(configPath)
	}
	return loadConfigFn()
}

// watchedConfigPath returns the file whose platforms section is hot-reloaded.
func watchedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(config.ProjectConfigPath); err == nil {
		return config.ProjectConfigPath
	}
	return ""
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return configError(err, "logging")
	}
	defer func() { _ = logger.Sync() }()
	for _, warning := range cfg.ValidationWarnings() {
		logger.Warn("config warning", zap.String("warning", warning))
	}

	if cfg.Telemetry.Tracing.Enabled {
		out, closeOut, err := traceOutput(cfg.Telemetry.Tracing.Output)
		if err != nil {
			return configError(err, "tracing output")
		}
		defer closeOut()
		tp, err := telemetry.NewTracerProvider("browsercast", version, out)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	events := telemetry.NewHub()
	defer events.Close()
	metrics := browser.NewMetrics()
	metrics.EnableTelemetry(events)

	launcher, err := chromium.NewLauncher(chromiumConfig(cfg.Browser), logger.Named("chromium"))
	if err != nil {
		return configError(err, "browser")
	}
	sup := browser.NewSupervisor(launcher, supervisorConfig(cfg.Browser), logger.Named("supervisor"), metrics)
	defer func() { _ = sup.Close() }()
	if err := sup.Start(ctx); err != nil {
		return bcerrors.Wrap(err, bcerrors.ErrCodeBrowserLaunch, "start browser").
			WithRemediation("install chromium or set browser.bin", "or point browser.control_url at a running instance")
	}

	registry := session.NewRegistry(session.RegistryConfig{
		NavigationTimeout: cfg.Session.NavigationTimeout,
		TeardownTimeout:   cfg.Session.TeardownTimeout,
		Logger:            logger,
		Metrics:           metrics,
	})
	defer registry.Close()
	sup.OnLost(func(generation uint64) {
		registry.PurgeGeneration(generation)
	})

	platforms := config.NewPlatforms(cfg.Platforms)
	server := ipc.NewServer(serverConfig(cfg), ipc.Deps{
		Registry:  registry,
		Opener:    session.NewOpener(sup, openerConfig(cfg.Session), logger),
		Pipeline:  stream.NewPipeline(streamConfig(cfg.Stream), logger, metrics),
		Router:    input.NewRouter(logger, metrics),
		Browser:   sup,
		Platforms: platforms,
		Metrics:   metrics,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	if cfg.Session.IdleTimeout > 0 {
		sweeper := session.NewSweeper(registry, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}
	if path := watchedConfigPath(); path != "" {
		watcher := config.NewWatcher(path, platforms, logger)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				logger.Warn("config watcher stopped", zap.Error(err))
			}
			return nil
		})
	}
	if cfg.Telemetry.NATS.Enabled {
		forwarder, err := telemetry.NewNATSForwarder(telemetry.NATSConfig{
			URL:            cfg.Telemetry.NATS.URL,
			Subject:        cfg.Telemetry.NATS.Subject,
			ConnectTimeout: cfg.Telemetry.NATS.ConnectTimeout,
		}, logger)
		if err != nil {
			logger.Warn("nats forwarder disabled", zap.Error(err))
		} else {
			defer func() { _ = forwarder.Close() }()
			g.Go(func() error {
				return forwarder.Run(gctx, events)
			})
		}
	}

	logger.Info("browsercast started",
		zap.String("version", version),
		zap.String("bind", cfg.Server.Bind),
		zap.Int("platforms", len(cfg.Platforms)))

	err = g.Wait()
	logger.Info("browsercast stopping", zap.Int("sessions", registry.Len()))
	return err
}

func traceOutput(target string) (io.Writer, func(), error) {
	switch target {
	case "", "stdout":
		return os.Stdout, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func chromiumConfig(c config.BrowserConfig) chromium.Config {
	return chromium.Config{
		Bin:              c.Bin,
		ControlURL:       c.ControlURL,
		Headful:          c.Headful,
		Leakless:         c.Leakless,
		ExtraFlags:       c.ExtraFlags,
		OperationTimeout: c.OperationTimeout,
	}
}

func supervisorConfig(c config.BrowserConfig) browser.SupervisorConfig {
	return browser.SupervisorConfig{
		HealthInterval:  c.HealthInterval,
		PingTimeout:     c.PingTimeout,
		MaxPingFailures: c.MaxPingFailures,
		Backoff:         c.Backoff,
	}
}

func openerConfig(c config.SessionConfig) session.OpenerConfig {
	oc := session.DefaultOpenerConfig()
	oc.Page = browser.PageOptions{
		Viewport:       c.Viewport,
		Locale:         c.Locale,
		AcceptLanguage: c.AcceptLanguage,
	}
	if c.PageStyle != "" {
		oc.Style = c.PageStyle
	}
	return oc
}

func streamConfig(c config.StreamConfig) stream.Config {
	sc := stream.DefaultConfig()
	sc.Repaint = c.Repaint
	if c.AckTimeout > 0 {
		sc.AckTimeout = c.AckTimeout
	}
	return sc
}

func serverConfig(cfg *config.Config) ipc.Config {
	sc := ipc.DefaultConfig()
	sc.BindAddress = cfg.Server.Bind
	sc.AllowedOrigins = cfg.Server.AllowedOrigins
	sc.TrustProxy = cfg.Server.TrustProxy
	sc.MaxConnections = cfg.Server.MaxConnections
	if cfg.Server.MaxBodyBytes > 0 {
		sc.MaxBodyBytes = cfg.Server.MaxBodyBytes
	}
	if cfg.Server.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	if cfg.Server.PingInterval > 0 {
		sc.PingInterval = cfg.Server.PingInterval
	}
	sc.InboundRate = cfg.RateLimit.InboundPerSecond
	sc.InboundBurst = cfg.RateLimit.InboundBurst
	sc.SessionCreateRate = cfg.RateLimit.SessionCreatePerSecond
	sc.SessionCreateBurst = cfg.RateLimit.SessionCreateBurst
	sc.Stream = cfg.Stream.Options()
	sc.Version = version
	return sc
}
