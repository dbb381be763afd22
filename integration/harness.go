package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/desktoppet/api"
	"github.com/kasuganosora/desktoppet/api/rest"
	"github.com/kasuganosora/desktoppet/audit"
	"github.com/kasuganosora/desktoppet/config"
	"github.com/kasuganosora/desktoppet/game/behavior"
	"github.com/kasuganosora/desktoppet/game/fsm"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/input"
	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/sensor"
	"github.com/kasuganosora/desktoppet/game/sim"
	mw "github.com/kasuganosora/desktoppet/middleware"
	"github.com/kasuganosora/desktoppet/persistence"
	"github.com/kasuganosora/desktoppet/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	petKey    = "it"
	jwtSecret = "integration-test-secret"
	adminKey  = "integration-admin"
)

// Screen is the desktop every harness reports through the bridge.
var Screen = geom.Rect{W: 1920, H: 1080}

// TestServer is the bridge and simulation wired the way `petd run` wires
// them, except that ticks are driven by the test.
type TestServer struct {
	Sim       *sim.Simulation
	Inbox     *input.Inbox
	Env       *sensor.Published
	Publisher *sim.Publisher
	Journal   *audit.Journal
	Saver     *persistence.Autosaver
	Store     persistence.Store
	Server    *httptest.Server
	URL       string // http://127.0.0.1:<port>
	WSURL     string // ws://127.0.0.1:<port>/ws
	Token     string

	exits  atomic.Int32
	now    time.Time
	cancel context.CancelFunc
}

// NewTestServer builds a fully wired daemon on an in-memory database and
// cache.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	store, pubsub := testutil.SetupTestCache(t)

	// ---- Simulation ----
	catalog := behavior.NewCatalog(behavior.IDIdle)
	for _, def := range behavior.Builtins() {
		require.NoError(t, catalog.Register(def))
	}
	require.NoError(t, catalog.Seal())

	ts := &TestServer{
		Env:     sensor.NewPublished(time.Hour),
		Inbox:   input.NewInbox(64),
		Journal: audit.New(db, store, petKey, logger),
		Store:   persistence.NewDBStore(db),
		now:     time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		cancel:  cancel,
	}
	ts.Publisher = sim.NewPublisher(api.FrameSink(pubsub), logger)

	s, err := sim.New(sim.Options{
		Catalog:  catalog,
		Sensor:   sensor.New(ts.Env, Screen, logger),
		Needs:    needs.NewModel(needs.State{Hunger: 0.2, Energy: 0.9, Boredom: 0.1, Affection: 0.7}, needs.Rates{}),
		Inbox:    ts.Inbox,
		Margin:   0.1,
		Machine:  fsm.Config{WalkSpeed: 120, ApproachDistance: 48},
		Renderer: ts.Publisher,
		Journal:  ts.Journal,
		Logger:   logger,
	})
	require.NoError(t, err)
	ts.Sim = s
	ts.Saver = persistence.NewAutosaver(ts.Store, petKey, s.LatestState, logger)
	go ts.Publisher.Run(ctx)

	// ---- Bridge ----
	sec := config.SecurityConfig{
		JWTSecret:      jwtSecret,
		JWTTTLH:        time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	router := api.NewRouter(ctx, api.Deps{
		Server:   config.ServerConfig{AdminKey: adminKey},
		Security: sec,
		Env:      ts.Env,
		Inbox:    ts.Inbox,
		Frames:   ts.Publisher,
		PubSub:   pubsub,
		Journal:  ts.Journal,
		Admin: rest.AdminDeps{
			Saver:          ts.Saver,
			InboxDropped:   ts.Inbox.Dropped,
			JournalDropped: ts.Journal.Dropped,
			RunID:          ts.Journal.RunID(),
		},
		Exit:   func() { ts.exits.Add(1) },
		Logger: logger,
	})
	ts.Server = httptest.NewServer(router)
	ts.URL = ts.Server.URL
	ts.WSURL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	ts.Token, err = mw.GenerateToken("overlay", jwtSecret, time.Hour)
	require.NoError(t, err)

	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the server and background workers.
func (ts *TestServer) Close() {
	ts.cancel()
	ts.Server.Close()
	ts.Journal.Stop(context.Background())
}

// Exits reports how many times the overlay asked the daemon to quit.
func (ts *TestServer) Exits() int { return int(ts.exits.Load()) }

// Tick advances the simulation n ticks of dt each on a synthetic clock.
func (ts *TestServer) Tick(n int, dt time.Duration) sim.Frame {
	var f sim.Frame
	for i := 0; i < n; i++ {
		ts.now = ts.now.Add(dt)
		f = ts.Sim.Tick(ts.now, dt.Seconds())
	}
	return f
}

// PublishEnv reports a desktop with the cursor at p and no active window.
func (ts *TestServer) PublishEnv(t *testing.T, p geom.Point) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/env", sensor.Reading{
		Screen: Screen, ScreenOK: true,
		Cursor: p, CursorOK: true,
		WindowOK: true,
	}, ts.Token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- WebSocket helpers ---

// Packet mirrors the bridge's WebSocket envelope.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DialWS connects an overlay client authenticated by query token.
func (ts *TestServer) DialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+ts.Token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// SendWS writes one packet.
func SendWS(t *testing.T, conn *websocket.Conn, seq uint64, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Packet{Seq: seq, Type: typ, Payload: raw}))
}

// RecvWS reads packets until one of type typ arrives or the deadline hits.
func RecvWS(t *testing.T, conn *websocket.Conn, typ string, timeout time.Duration) Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		var pkt Packet
		require.NoError(t, conn.ReadJSON(&pkt), "waiting for %q", typ)
		if pkt.Type == typ {
			return pkt
		}
	}
}
