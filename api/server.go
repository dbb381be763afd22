// Package api is the overlay bridge: a localhost gin server that feeds
// windowing readings and user events into the simulation and streams
// rendered frames back out.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/desktoppet/api/rest"
	"github.com/kasuganosora/desktoppet/api/sse"
	"github.com/kasuganosora/desktoppet/api/ws"
	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/config"
	"github.com/kasuganosora/desktoppet/game/input"
	"github.com/kasuganosora/desktoppet/game/sensor"
	"github.com/kasuganosora/desktoppet/game/sim"
	mw "github.com/kasuganosora/desktoppet/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FrameSource yields the newest rendered frame.
type FrameSource interface {
	Latest() (sim.Frame, bool)
}

// Deps is everything the bridge routes talk to.
type Deps struct {
	Server   config.ServerConfig
	Security config.SecurityConfig
	Env      *sensor.Published
	Inbox    *input.Inbox
	Frames   FrameSource
	PubSub   cache.PubSub
	Journal  rest.JournalReader // optional
	Admin    rest.AdminDeps
	Exit     func()
	Logger   *zap.Logger
}

// NewRouter builds the gin engine. ctx bounds background work owned by
// the middleware.
func NewRouter(ctx context.Context, d Deps) *gin.Engine {
	logger := d.Logger.Named("bridge")

	r := gin.New()
	// Client IPs come from the socket only; forwarded headers would let a
	// local process spoof its way past the allow-list.
	_ = r.SetTrustedProxies(nil)
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.IPWhitelist(d.Security.AllowedIPs))
	if d.Security.RateLimitRPS > 0 {
		r.Use(mw.RateLimit(ctx, rate.Limit(d.Security.RateLimitRPS), d.Security.RateLimitBurst))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := mw.Auth(d.Security.JWTSecret)
	origin := mw.Origin(d.Security.AllowedOrigins)

	router := ws.NewRouter(logger.Named("ws"))
	ws.NewPetHandlers(d.Env, d.Inbox, logger).RegisterHandlers(router)
	wsH := ws.NewHandler(d.PubSub, d.Frames, d.Security, router, logger.Named("ws"))
	r.GET("/ws", auth, wsH.ServeWS)

	sseH := sse.NewHandler(d.PubSub, d.Frames, logger.Named("sse"))
	r.GET("/sse/frames", origin, auth, sseH.ServeFrames)

	apiG := r.Group("/api", auth)
	rest.NewPetHandler(d.Env, d.Inbox, d.Frames, d.Journal, d.Exit, logger).Register(apiG)

	admin := d.Admin
	if admin.Sessions == nil {
		admin.Sessions = wsH.Active
	}
	adminG := apiG.Group("/admin", rest.AdminAuth(d.Server.AdminKey))
	rest.NewAdminHandler(admin, logger).Register(adminG)

	return r
}

// FrameSink publishes frames as JSON on the frames channel.
func FrameSink(ps cache.PubSub) func(context.Context, sim.Frame) error {
	return func(ctx context.Context, f sim.Frame) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		return ps.Publish(ctx, cache.FramesChannel, string(data))
	}
}

// Server runs the bridge until its context ends.
type Server struct {
	srv      *http.Server
	shutdown time.Duration
	logger   *zap.Logger
}

func NewServer(addr string, handler http.Handler, shutdown time.Duration, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		shutdown: shutdown,
		logger:   logger,
	}
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully. Streams are cut after the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("bridge listening", zap.String("addr", ln.Addr().String()))
	// Request contexts end with ctx so SSE streams return promptly.
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		// Long-lived streams do not end on their own.
		_ = s.srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
