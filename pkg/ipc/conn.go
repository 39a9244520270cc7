package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/odvcencio/browsercast/pkg/browser"
	"github.com/odvcencio/browsercast/pkg/session"
	"github.com/odvcencio/browsercast/pkg/stream"
)

const writeTimeout = 10 * time.Second

var errConnClosed = errors.New("connection closed")

// connState is the protocol state of one duplex channel.
type connState int32

const (
	stateConnected connState = iota
	stateBound
	stateStreaming
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateBound:
		return "bound"
	case stateStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// conn multiplexes control messages, input and frames over one websocket.
// Inbound messages are handled one at a time in arrival order. Every write,
// text or binary, goes through writeMu.
type conn struct {
	id      string
	ws      wsConn
	srv     *Server
	logger  *zap.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	state   atomic.Int32

	mu        sync.Mutex
	sessionID string
	stream    *stream.Handle
}

func newConn(parent context.Context, srv *Server, ws wsConn, id string) *conn {
	ctx, cancel := context.WithCancel(parent)
	c := &conn{
		id:      id,
		ws:      ws,
		srv:     srv,
		logger:  srv.logger.With(zap.String("conn", id)),
		limiter: rate.NewLimiter(rate.Limit(srv.cfg.InboundRate), srv.cfg.InboundBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.state.Store(int32(stateConnected))
	return c
}

func (c *conn) ID() string { return c.id }

func (c *conn) Open() bool {
	return connState(c.state.Load()) != stateClosed
}

func (c *conn) State() connState {
	return connState(c.state.Load())
}

// NotifyEnded tells the client its session is gone.
func (c *conn) NotifyEnded(ctx context.Context, message string) error {
	c.mu.Lock()
	c.sessionID = ""
	c.stream = nil
	c.mu.Unlock()
	c.state.CompareAndSwap(int32(stateStreaming), int32(stateConnected))
	c.state.CompareAndSwap(int32(stateBound), int32(stateConnected))
	return c.send(ctx, reply{Type: typeSessionEnded, Message: message})
}

// serve reads until the peer goes away, then tears the connection down.
func (c *conn) serve() {
	defer c.close()
	for {
		msgType, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				c.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if msgType == websocket.MessageBinary && (len(data) == 0 || data[0] != '{') {
			continue
		}
		if !c.limiter.Allow() {
			metricMessagesDropped.Inc()
			continue
		}
		c.handle(data)
	}
}

func (c *conn) handle(data []byte) {
	msg, err := decodeMessage(data)
	if err != nil {
		metricMessages.WithLabelValues("invalid").Inc()
		c.logger.Debug("ignoring malformed message", zap.Error(err))
		return
	}
	if ping, ok := msg.(pingMessage); ok {
		metricMessages.WithLabelValues("ping").Inc()
		if ping.SessionID != "" {
			// Heartbeats keep the session alive but never get a reply.
			c.srv.registry.Get(ping.SessionID)
		}
		return
	}

	sess, ok := c.srv.registry.Get(msg.session())
	if !ok {
		metricMessages.WithLabelValues("invalid_session").Inc()
		_ = c.send(c.ctx, reply{Type: typeError, Message: msgInvalidSession})
		return
	}
	c.bind(sess)

	switch m := msg.(type) {
	case startStreamMessage:
		metricMessages.WithLabelValues("start_stream").Inc()
		c.startStream(sess)
	case stopStreamMessage:
		metricMessages.WithLabelValues("stop_stream").Inc()
		c.stopStream(sess)
	case inputMessage:
		metricMessages.WithLabelValues("input").Inc()
		// Failures are logged by the router; the channel carries on.
		_ = c.srv.router.Dispatch(c.ctx, sess.ID, sess.Page(), m.Event)
	}
}

// bind attaches the connection to sess, releasing any stream it owned on a
// previously bound session.
func (c *conn) bind(sess *session.Session) {
	c.mu.Lock()
	prevID, prevStream := c.sessionID, c.stream
	if prevID == sess.ID {
		c.mu.Unlock()
		return
	}
	c.sessionID = sess.ID
	c.stream = nil
	c.mu.Unlock()

	if prevID != "" {
		c.release(prevID, prevStream)
	}
	c.srv.registry.Update(sess.ID, session.Patch{Channel: c})
	c.state.Store(int32(stateBound))
	c.logger.Debug("bound to session", zap.String("session", sess.ID))
}

func (c *conn) startStream(sess *session.Session) {
	if sess.Streaming() {
		c.logger.Warn("stream already active", zap.String("session", sess.ID))
		c.mu.Lock()
		own := c.stream != nil
		c.mu.Unlock()
		if own {
			c.state.Store(int32(stateStreaming))
		}
		c.sendStarted(sess)
		return
	}

	h, err := c.srv.pipeline.Start(c.ctx, sess.ID, sess.Page(), c.srv.cfg.Stream, c.sendFrame)
	if err != nil {
		c.logger.Warn("stream start failed", zap.String("session", sess.ID), zap.Error(err))
		_ = c.send(c.ctx, reply{Type: typeError, Message: msgStreamStartFailed})
		return
	}
	if err := c.srv.registry.AttachStream(sess.ID, h); err != nil {
		_ = h.Stop(context.Background())
		if errors.Is(err, session.ErrStreamActive) {
			c.sendStarted(sess)
			return
		}
		_ = c.send(c.ctx, reply{Type: typeError, Message: msgInvalidSession})
		return
	}

	c.mu.Lock()
	c.stream = h
	c.mu.Unlock()
	c.state.Store(int32(stateStreaming))
	go c.watchStream(sess.ID, h)

	c.logger.Info("stream started", zap.String("session", sess.ID))
	c.sendStarted(sess)
}

// watchStream detaches a stream that ended on its own.
func (c *conn) watchStream(sessionID string, h *stream.Handle) {
	<-h.Done()
	c.srv.registry.DetachStream(sessionID, h)
	c.mu.Lock()
	mine := c.stream == h
	if mine {
		c.stream = nil
	}
	c.mu.Unlock()
	if mine {
		c.state.CompareAndSwap(int32(stateStreaming), int32(stateBound))
	}
}

func (c *conn) stopStream(sess *session.Session) {
	if st := sess.Stream(); st != nil {
		if err := st.Stop(c.ctx); err != nil {
			c.logger.Debug("stop stream", zap.String("session", sess.ID), zap.Error(err))
		}
		c.srv.registry.DetachStream(sess.ID, st)
	}
	c.mu.Lock()
	c.stream = nil
	c.mu.Unlock()
	c.state.CompareAndSwap(int32(stateStreaming), int32(stateBound))
	_ = c.send(c.ctx, reply{Type: typeStreamStopped})
}

func (c *conn) sendStarted(sess *session.Session) {
	_ = c.send(c.ctx, reply{
		Type:   typeStreamStarted,
		Width:  sess.Viewport.Width,
		Height: sess.Viewport.Height,
	})
}

// release stops the stream this connection started on sessionID and
// detaches the connection from it. The session itself stays.
func (c *conn) release(sessionID string, h *stream.Handle) {
	if h != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := h.Stop(ctx); err != nil {
			c.logger.Debug("stop stream on detach", zap.String("session", sessionID), zap.Error(err))
		}
		cancel()
		c.srv.registry.DetachStream(sessionID, h)
	}
	c.srv.registry.DetachChannel(sessionID, c)
}

func (c *conn) close() {
	if connState(c.state.Swap(int32(stateClosed))) == stateClosed {
		return
	}
	c.mu.Lock()
	sessionID, h := c.sessionID, c.stream
	c.sessionID, c.stream = "", nil
	c.mu.Unlock()

	if sessionID != "" {
		c.release(sessionID, h)
	}
	c.cancel()
	c.srv.hub.remove(c)
	_ = c.ws.Close(websocket.StatusNormalClosure, "")
	c.logger.Debug("connection closed")
}

func (c *conn) send(ctx context.Context, r reply) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.write(ctx, websocket.MessageText, data)
}

// sendFrame is the pipeline's consumer. An error stops the capture.
func (c *conn) sendFrame(frame browser.Frame) error {
	if err := c.write(c.ctx, websocket.MessageBinary, frame.Data); err != nil {
		return err
	}
	metricFramesSent.Inc()
	metricFrameBytes.Add(float64(len(frame.Data)))
	return nil
}

func (c *conn) write(ctx context.Context, msgType websocket.MessageType, data []byte) error {
	if !c.Open() {
		return errConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(writeCtx, msgType, data)
}
