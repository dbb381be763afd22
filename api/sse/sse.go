// Package sse streams rendered frames to read-only consumers such as a
// browser debug view.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/game/sim"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// FrameSource yields the newest rendered frame.
type FrameSource interface {
	Latest() (sim.Frame, bool)
}

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	frames    FrameSource
	keepalive time.Duration
	logger    *zap.Logger
}

func NewHandler(pubsub cache.PubSub, frames FrameSource, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, frames: frames, keepalive: keepaliveInterval, logger: logger}
}

// ServeFrames handles GET /sse/frames. It sends the latest frame at once and
// then every broadcast frame as a "frame" event. Authentication and origin
// checks are the route middleware's job.
func (h *Handler) ServeFrames(c *gin.Context) {
	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, cache.FramesChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	if f, ok := h.frames.Latest(); ok {
		if data, err := json.Marshal(f); err == nil {
			fmt.Fprintf(c.Writer, "event: frame\ndata: %s\n\n", data)
		}
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: frame\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
