package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoopStats exposes the tick loop counters.
type LoopStats interface {
	Ticks() uint64
	Overruns() uint64
	Panics() uint64
}

// TaskLister lists background task names.
type TaskLister interface {
	ListTickers() []string
}

// Saver persists the current pet state on demand.
type Saver interface {
	Save(ctx context.Context) (bool, error)
}

// AdminDeps groups what the admin endpoints report on. Nil fields are
// reported as absent.
type AdminDeps struct {
	Loop           LoopStats
	Tasks          TaskLister
	Saver          Saver
	InboxDropped   func() uint64
	JournalDropped func() uint64
	Sessions       func() int
	RunID          string
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	deps   AdminDeps
	logger *zap.Logger
}

func NewAdminHandler(deps AdminDeps, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: logger}
}

// Register mounts the admin routes on g.
func (h *AdminHandler) Register(g gin.IRoutes) {
	g.GET("/metrics", h.Metrics)
	g.GET("/scheduler", h.ListSchedulerTasks)
	g.POST("/save", h.Save)
}

// Metrics returns daemon health counters.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	out := gin.H{"run_id": h.deps.RunID}
	if l := h.deps.Loop; l != nil {
		out["ticks"] = l.Ticks()
		out["overruns"] = l.Overruns()
		out["tick_panics"] = l.Panics()
	}
	if f := h.deps.InboxDropped; f != nil {
		out["inbox_dropped"] = f()
	}
	if f := h.deps.JournalDropped; f != nil {
		out["journal_dropped"] = f()
	}
	if f := h.deps.Sessions; f != nil {
		out["ws_sessions"] = f()
	}
	c.JSON(http.StatusOK, out)
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	var tasks []string
	if h.deps.Tasks != nil {
		tasks = h.deps.Tasks.ListTickers()
	}
	if tasks == nil {
		tasks = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Save writes the current pet state immediately.
// POST /api/admin/save
func (h *AdminHandler) Save(c *gin.Context) {
	if h.deps.Saver == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence disabled"})
		return
	}
	wrote, err := h.deps.Saver.Save(c.Request.Context())
	if err != nil {
		h.logger.Error("manual save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "written": wrote})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// An empty adminKey disables the admin endpoints (503) so they cannot be
// exposed by accident.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		if c.GetHeader("X-Admin-Key") != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
