package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/odvcencio/browsercast/pkg/browser"
	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
	"github.com/odvcencio/browsercast/pkg/telemetry"
)

// DefaultPageStyle nudges the tone of the remote page.
const DefaultPageStyle = `html { filter: brightness(1.1) contrast(1.05) saturate(1.1) !important; }`

// Acquirer hands out the current browser lease.
type Acquirer interface {
	Acquire(ctx context.Context) (*browser.Lease, error)
}

// OpenerConfig configures new pages.
type OpenerConfig struct {
	Page  browser.PageOptions
	Style string
}

// DefaultOpenerConfig matches a portrait phone-sized viewport in en-US.
func DefaultOpenerConfig() OpenerConfig {
	return OpenerConfig{
		Page: browser.PageOptions{
			Viewport:       browser.DefaultViewport(),
			Locale:         "en-US",
			AcceptLanguage: "en-US,en;q=0.9",
		},
		Style: DefaultPageStyle,
	}
}

// Opener builds session factories on top of the supervised browser.
type Opener struct {
	acquirer Acquirer
	cfg      OpenerConfig
	logger   *zap.Logger
}

// NewOpener creates an opener.
func NewOpener(acquirer Acquirer, cfg OpenerConfig, logger *zap.Logger) *Opener {
	if cfg.Page.Viewport.Width == 0 || cfg.Page.Viewport.Height == 0 {
		cfg.Page.Viewport = browser.DefaultViewport()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opener{acquirer: acquirer, cfg: cfg, logger: logger}
}

// Open returns a Factory that opens a fresh context, navigates a page to
// url and applies the page style.
func (o *Opener) Open(platform, url string) Factory {
	return func(ctx context.Context) (*Resources, error) {
		lease, err := o.acquirer.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		trace.SpanFromContext(ctx).SetAttributes(
			telemetry.AttrURL.String(url),
			telemetry.AttrGeneration.Int64(int64(lease.Generation)),
		)

		bctx, err := lease.NewContext(ctx)
		if err != nil {
			return nil, err
		}
		page, err := bctx.NewPage(ctx, o.cfg.Page)
		if err != nil {
			_ = bctx.Close()
			return nil, err
		}

		start := time.Now()
		if err := page.Navigate(ctx, url); err != nil {
			_ = page.Close()
			_ = bctx.Close()
			return nil, bcerrors.Wrap(err, bcerrors.ErrCodeNavigationFailed, "failed to start session").
				WithContext("platform", platform).
				WithContext("url", url)
		}
		latency := time.Since(start)

		if o.cfg.Style != "" {
			if err := page.AddStyle(ctx, o.cfg.Style); err != nil {
				o.logger.Debug("page style not applied", zap.String("platform", platform), zap.Error(err))
			}
		}

		return &Resources{
			Context:           bctx,
			Page:              page,
			Platform:          platform,
			URL:               url,
			Viewport:          o.cfg.Page.Viewport,
			Generation:        lease.Generation,
			NavigationLatency: latency,
		}, nil
	}
}
