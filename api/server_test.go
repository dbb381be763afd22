package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/config"
	"github.com/kasuganosora/desktoppet/game/input"
	"github.com/kasuganosora/desktoppet/game/sensor"
	"github.com/kasuganosora/desktoppet/game/sim"
	mw "github.com/kasuganosora/desktoppet/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedFrames struct{ f sim.Frame }

func (s fixedFrames) Latest() (sim.Frame, bool) { return s.f, true }

func newDeps(t *testing.T, sec config.SecurityConfig) Deps {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, ps, err := cache.New(config.CacheConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return Deps{
		Server:   config.ServerConfig{AdminKey: "adm"},
		Security: sec,
		Env:      sensor.NewPublished(time.Minute),
		Inbox:    input.NewInbox(8),
		Frames:   fixedFrames{f: sim.Frame{Tick: 1, BehaviorID: "idle"}},
		PubSub:   ps,
		Logger:   zap.NewNop(),
	}
}

func get(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	r := NewRouter(context.Background(), newDeps(t, config.SecurityConfig{}))
	w := get(r, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(mw.TraceIDHeader))
}

func TestRouter_AllowListIgnoresForwardedHeaders(t *testing.T) {
	r := NewRouter(context.Background(), newDeps(t, config.SecurityConfig{AllowedIPs: []string{"127.0.0.1"}}))
	// httptest requests come from 192.0.2.1.
	w := get(r, "/health", map[string]string{"X-Forwarded-For": "127.0.0.1", "X-Real-IP": "127.0.0.1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_JWTGuardsAPI(t *testing.T) {
	const secret = "bridge-secret"
	r := NewRouter(context.Background(), newDeps(t, config.SecurityConfig{JWTSecret: secret}))

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/state", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/health", nil).Code)

	tok, err := mw.GenerateToken("overlay", secret, time.Minute)
	require.NoError(t, err)
	w := get(r, "/api/state", map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Code)
	var f sim.Frame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, "idle", f.BehaviorID)
}

func TestRouter_AdminUsesWSSessionCount(t *testing.T) {
	r := NewRouter(context.Background(), newDeps(t, config.SecurityConfig{}))
	w := get(r, "/api/admin/metrics", map[string]string{"X-Admin-Key": "adm"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ws_sessions":0`)
}

func TestRouter_SSERejectsForeignOrigin(t *testing.T) {
	r := NewRouter(context.Background(), newDeps(t, config.SecurityConfig{AllowedOrigins: []string{"http://localhost:5173"}}))
	w := get(r, "/sse/frames", map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFrameSink_Publishes(t *testing.T) {
	d := newDeps(t, config.SecurityConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msgs, unsub, err := d.PubSub.Subscribe(ctx, cache.FramesChannel)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, FrameSink(d.PubSub)(ctx, sim.Frame{Tick: 9, BehaviorID: "wander"}))
	select {
	case m := <-msgs:
		assert.Contains(t, m.Payload, `"behavior":"wander"`)
		assert.Contains(t, m.Payload, `"tick":9`)
	case <-ctx.Done():
		t.Fatal("frame not delivered")
	}
}

func TestServer_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := NewRouter(context.Background(), newDeps(t, config.SecurityConfig{}))
	srv := NewServer(ln.Addr().String(), r, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// An open SSE stream must not hold up shutdown.
	stream, err := http.Get("http://" + ln.Addr().String() + "/sse/frames")
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.True(t, strings.HasPrefix(stream.Header.Get("Content-Type"), "text/event-stream"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
