package ipc

import (
	"errors"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	bcerrors "github.com/odvcencio/browsercast/pkg/errors"
)

type startSessionRequest struct {
	Platform string `json:"platform"`
}

type startSessionResponse struct {
	SessionID string `json:"sessionId"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type endSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type healthResponse struct {
	Status   string        `json:"status"`
	Version  string        `json:"version,omitempty"`
	Browser  browserHealth `json:"browser"`
	Sessions int           `json:"sessions"`
	Channels int           `json:"channels"`
	Time     string        `json:"time"`
}

type browserHealth struct {
	Generation uint64 `json:"generation"`
	Live       bool   `json:"live"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if !s.createLimiter.Allow(clientIP(r)) {
		metricSessionStarts.WithLabelValues("rate_limited").Inc()
		err := bcerrors.New(bcerrors.ErrCodeRateLimited, "too many session requests").WithRetryable(true)
		respondError(w, err.HTTPStatus(), err)
		return
	}

	req, decodeErr := decodeBody[startSessionRequest](w, r, s.cfg.MaxBodyBytes)
	if decodeErr != nil {
		metricSessionStarts.WithLabelValues("invalid").Inc()
		respondError(w, decodeErr.HTTPStatus(), decodeErr)
		return
	}

	platform := normalizePlatform(req.Platform)
	target, ok := s.platforms.Lookup(platform)
	if !ok {
		metricSessionStarts.WithLabelValues("rejected").Inc()
		s.logger.Info("platform not allowed", zap.String("platform", req.Platform))
		err := bcerrors.New(bcerrors.ErrCodePlatformNotAllowed, "platform not allowed").
			WithContext("platform", req.Platform).
			WithUserMessage("Platform not allowed")
		respondError(w, err.HTTPStatus(), err)
		return
	}

	sess, err := s.registry.Create(r.Context(), s.opener.Open(platform, target))
	if err != nil {
		metricSessionStarts.WithLabelValues("failed").Inc()
		s.logger.Warn("session start failed", zap.String("platform", platform), zap.Error(err))
		bcErr, ok := bcerrors.As(err)
		if !ok {
			bcErr = bcerrors.Wrap(err, bcerrors.ErrCodeNavigationFailed, "failed to start session")
		}
		if bcErr.UserMessage == "" {
			bcErr = bcErr.WithUserMessage("Failed to start session")
		}
		respondError(w, bcErr.HTTPStatus(), bcErr)
		return
	}

	metricSessionStarts.WithLabelValues("ok").Inc()
	respondJSON(w, startSessionResponse{
		SessionID: sess.ID,
		Width:     sess.Viewport.Width,
		Height:    sess.Viewport.Height,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	req, decodeErr := decodeBody[endSessionRequest](w, r, s.cfg.MaxBodyBytes)
	if decodeErr != nil {
		respondError(w, decodeErr.HTTPStatus(), decodeErr)
		return
	}
	if req.SessionID == "" {
		err := bcerrors.New(bcerrors.ErrCodeInvalidRequest, "sessionId is required")
		respondError(w, err.HTTPStatus(), err)
		return
	}
	s.registry.Delete(req.SessionID)
	respondJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Version:  s.cfg.Version,
		Sessions: s.registry.Len(),
		Channels: s.hub.Len(),
		Time:     time.Now().UTC().Format(time.RFC3339),
	}
	if s.browser != nil {
		if lease := s.browser.Current(); lease != nil {
			resp.Browser = browserHealth{Generation: lease.Generation, Live: true}
		}
	}
	status := http.StatusOK
	if !resp.Browser.Live {
		resp.Status = "degraded"
		resp.Browser.Generation = s.metrics.Snapshot().BrowserGeneration
		status = http.StatusServiceUnavailable
	}
	respondJSONStatus(w, status, resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.isWebSocketOriginAllowed(r) {
		respondError(w, http.StatusForbidden, errors.New("origin not allowed"))
		return
	}
	if !s.wsLimiter.Acquire() {
		respondError(w, http.StatusServiceUnavailable, errors.New("too many connections"))
		return
	}
	defer s.wsLimiter.Release()

	// Origin was checked above.
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	c := newConn(r.Context(), s, ws, ulid.Make().String())
	s.hub.register(c)
	startWSPing(c.ctx, ws, s.cfg.PingInterval, func(err error) {
		c.logger.Debug("websocket ping failed", zap.Error(err))
		c.cancel()
	})
	c.logger.Debug("connection opened", zap.String("remote", clientIP(r)))
	c.serve()
}
