package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/input"
	"github.com/kasuganosora/desktoppet/game/sensor"
	"github.com/kasuganosora/desktoppet/game/sim"
	mw "github.com/kasuganosora/desktoppet/middleware"
	"github.com/kasuganosora/desktoppet/model"
	"go.uber.org/zap"
)

const (
	defaultJournalLimit = 20
	maxJournalLimit     = 100
)

// FrameSource yields the newest rendered frame.
type FrameSource interface {
	Latest() (sim.Frame, bool)
}

// JournalReader lists recent behavior transitions, newest first.
type JournalReader interface {
	Recent(ctx context.Context, n int) ([]model.BehaviorTransition, error)
}

// PetHandler serves the overlay bridge: environment readings and user
// events in, frames and history out.
type PetHandler struct {
	env     *sensor.Published
	inbox   *input.Inbox
	frames  FrameSource
	journal JournalReader
	exit    func()
	logger  *zap.Logger
}

// NewPetHandler creates a PetHandler. journal and exit may be nil.
func NewPetHandler(env *sensor.Published, inbox *input.Inbox, frames FrameSource, journal JournalReader, exit func(), logger *zap.Logger) *PetHandler {
	return &PetHandler{env: env, inbox: inbox, frames: frames, journal: journal, exit: exit, logger: logger}
}

// Register mounts the handler's routes on g.
func (h *PetHandler) Register(g gin.IRoutes) {
	g.POST("/env", h.PublishEnv)
	g.POST("/events/feed", h.Feed)
	g.POST("/events/pet", h.Pet)
	g.POST("/events/drag/start", h.DragStart)
	g.POST("/events/drag/move", h.DragMove)
	g.POST("/events/drag/end", h.DragEnd)
	g.GET("/state", h.State)
	g.GET("/journal", h.Journal)
	g.POST("/exit", h.Exit)
}

// PublishEnv stores the overlay's windowing reading.
// POST /api/env
func (h *PetHandler) PublishEnv(c *gin.Context) {
	var r sensor.Reading
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reading"})
		return
	}
	// Staleness is judged against the daemon's clock.
	r.At = time.Time{}
	h.env.Publish(r)
	c.Status(http.StatusNoContent)
}

type magnitudeRequest struct {
	Magnitude *float64 `json:"magnitude"`
}

type pointRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// bindMagnitude accepts an empty body as magnitude 1.
func bindMagnitude(c *gin.Context) (float64, bool) {
	if c.Request.ContentLength == 0 {
		return 1, true
	}
	var req magnitudeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return 0, false
	}
	if req.Magnitude == nil {
		return 1, true
	}
	return *req.Magnitude, true
}

func bindPoint(c *gin.Context) (geom.Point, bool) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.X == nil || req.Y == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x and y are required"})
		return geom.Point{}, false
	}
	return geom.Point{X: *req.X, Y: *req.Y}, true
}

func (h *PetHandler) accepted(c *gin.Context, kind string, kept bool) {
	if !kept {
		h.logger.Warn("inbox full, event dropped",
			zap.String("kind", kind),
			zap.String("trace_id", mw.GetTraceID(c)))
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": kind, "dropped": !kept})
}

// POST /api/events/feed
func (h *PetHandler) Feed(c *gin.Context) {
	if m, ok := bindMagnitude(c); ok {
		h.accepted(c, "feed", h.inbox.Feed(m))
	}
}

// POST /api/events/pet
func (h *PetHandler) Pet(c *gin.Context) {
	if m, ok := bindMagnitude(c); ok {
		h.accepted(c, "pet", h.inbox.Pet(m))
	}
}

// POST /api/events/drag/start
func (h *PetHandler) DragStart(c *gin.Context) {
	if p, ok := bindPoint(c); ok {
		h.accepted(c, "drag_start", h.inbox.DragStart(p))
	}
}

// POST /api/events/drag/move
func (h *PetHandler) DragMove(c *gin.Context) {
	if p, ok := bindPoint(c); ok {
		h.accepted(c, "drag_move", h.inbox.DragMove(p))
	}
}

// POST /api/events/drag/end
func (h *PetHandler) DragEnd(c *gin.Context) {
	h.accepted(c, "drag_end", h.inbox.DragEnd())
}

// State returns the latest frame, which carries the needs snapshot.
// GET /api/state
func (h *PetHandler) State(c *gin.Context) {
	f, ok := h.frames.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame rendered yet"})
		return
	}
	c.JSON(http.StatusOK, f)
}

// Journal lists recent transitions.
// GET /api/journal?limit=N
func (h *PetHandler) Journal(c *gin.Context) {
	limit := defaultJournalLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxJournalLimit)
	}
	if h.journal == nil {
		c.JSON(http.StatusOK, gin.H{"transitions": []model.BehaviorTransition{}})
		return
	}
	rows, err := h.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("journal read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	if rows == nil {
		rows = []model.BehaviorTransition{}
	}
	c.JSON(http.StatusOK, gin.H{"transitions": rows})
}

// Exit asks the daemon to shut down gracefully.
// POST /api/exit
func (h *PetHandler) Exit(c *gin.Context) {
	if h.exit == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "exit not supported"})
		return
	}
	h.logger.Info("exit requested", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
	h.exit()
}
