package input

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/browsercast/pkg/browser"
	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

//go:generate mockgen -package=input -destination=mock_surface_test.go github.com/odvcencio/browsercast/pkg/input Surface

// Surface is the page input surface events are injected into.
type Surface interface {
	browser.Input
}

var errMissingKey = errors.New("key is required")

// Router dispatches events onto a Surface.
type Router struct {
	logger  *zap.Logger
	metrics *browser.Metrics
}

// NewRouter creates a router.
func NewRouter(logger *zap.Logger, metrics *browser.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{logger: logger, metrics: metrics}
}

// Dispatch injects ev into s. Unknown kinds are dropped and return nil.
// Injection failures, panics included, are logged and returned as
// INJECTION_FAILED so callers can carry on with the next event.
func (r *Router) Dispatch(ctx context.Context, sessionID string, s Surface, ev Event) error {
	if !ev.Type.Known() {
		r.metrics.RecordInputDropped()
		r.logger.Debug("dropping unknown input event",
			zap.String("session", sessionID),
			zap.String("type", string(ev.Type)))
		return nil
	}

	err := r.inject(ctx, s, ev)
	r.metrics.RecordInput(sessionID, string(ev.Type), err)
	if err == nil {
		return nil
	}

	r.logger.Warn("input injection failed",
		zap.String("session", sessionID),
		zap.String("type", string(ev.Type)),
		zap.Error(err))
	return bcerrors.Wrap(err, bcerrors.ErrCodeInjectionFailed, "input injection failed").
		WithContext("kind", string(ev.Type))
}

func (r *Router) inject(ctx context.Context, s Surface, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("input panic: %v", rec)
		}
	}()

	switch ev.Type {
	case KindClick:
		return s.Click(ctx, ev.X, ev.Y, parseButton(ev.Button))
	case KindMouseMove:
		return s.MouseMove(ctx, ev.X, ev.Y)
	case KindScroll:
		return s.Scroll(ctx, ev.DeltaX, ev.DeltaY)
	case KindType:
		if ev.Text == "" {
			return nil
		}
		return s.InsertText(ctx, ev.Text)
	case KindKey, KindKeyPress:
		key := NormalizeKey(ev.Key)
		if key == "" {
			return errMissingKey
		}
		return s.KeyPress(ctx, key)
	case KindKeyDown:
		key := NormalizeKey(ev.Key)
		if key == "" {
			return errMissingKey
		}
		return s.KeyDown(ctx, key)
	case KindKeyUp:
		key := NormalizeKey(ev.Key)
		if key == "" {
			return errMissingKey
		}
		return s.KeyUp(ctx, key)
	}
	return nil
}

func parseButton(b string) browser.MouseButton {
	switch strings.ToLower(strings.TrimSpace(b)) {
	case "right":
		return browser.MouseButtonRight
	case "middle":
		return browser.MouseButtonMiddle
	default:
		return browser.MouseButtonLeft
	}
}
