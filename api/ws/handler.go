package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/config"
	"github.com/kasuganosora/desktoppet/game/sim"
	mw "github.com/kasuganosora/desktoppet/middleware"
	"go.uber.org/zap"
)

// FrameSource yields the newest rendered frame.
type FrameSource interface {
	Latest() (sim.Frame, bool)
}

// Handler is the Gin handler for GET /ws.
type Handler struct {
	pubsub   cache.PubSub
	frames   FrameSource
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
	active   atomic.Int64
}

// NewHandler creates a WebSocket handler. sec.AllowedOrigins controls which
// browser origins may connect.
func NewHandler(pubsub cache.PubSub, frames FrameSource, sec config.SecurityConfig, router *Router, logger *zap.Logger) *Handler {
	h := &Handler{
		pubsub: pubsub,
		frames: frames,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return mw.OriginAllowed(allowed, r.Header.Get("Origin"))
		},
	}
	return h
}

// Active is the number of connected sessions.
func (h *Handler) Active() int { return int(h.active.Load()) }

// ServeWS upgrades the request and serves the session until it closes.
// Authentication is the route middleware's job.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessage)

	s := NewSession(mw.GetClient(c), conn, h.logger)
	h.active.Add(1)
	defer h.active.Add(-1)
	h.logger.Info("overlay connected",
		zap.String("session", s.ID),
		zap.String("client", s.Client),
		zap.String("trace_id", mw.TraceIDFrom(c.Request.Context())))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, unsub, err := h.pubsub.Subscribe(ctx, cache.FramesChannel)
	if err != nil {
		h.logger.Error("ws frame subscribe failed", zap.Error(err))
		s.Close()
		return
	}
	defer unsub()

	if f, ok := h.frames.Latest(); ok {
		if payload, err := json.Marshal(f); err == nil {
			s.Send(&Packet{Type: "frame", Payload: payload})
		}
	}
	go forward(s, msgs)

	h.readPump(s)
	h.logger.Info("overlay disconnected", zap.String("session", s.ID))
}

// forward relays broadcast frames to s until either side closes.
func forward(s *Session, msgs <-chan *cache.Message) {
	for {
		select {
		case <-s.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				s.Close()
				return
			}
			s.Send(&Packet{Type: "frame", Payload: json.RawMessage(m.Payload)})
		}
	}
}

func (h *Handler) readPump(s *Session) {
	defer s.Close()

	s.extendDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.extendDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("session", s.ID), zap.Error(err))
			}
			return
		}
		s.extendDeadline()
		h.router.Dispatch(s, raw)
	}
}
