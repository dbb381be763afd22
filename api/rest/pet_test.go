package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/desktoppet/api/rest"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/input"
	"github.com/kasuganosora/desktoppet/game/needs"
	"github.com/kasuganosora/desktoppet/game/sensor"
	"github.com/kasuganosora/desktoppet/game/sim"
	"github.com/kasuganosora/desktoppet/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

type frames struct {
	f  sim.Frame
	ok bool
}

func (s frames) Latest() (sim.Frame, bool) { return s.f, s.ok }

type journal struct {
	rows []model.BehaviorTransition
	err  error
	n    int
}

func (j *journal) Recent(_ context.Context, n int) ([]model.BehaviorTransition, error) {
	j.n = n
	return j.rows, j.err
}

type petRig struct {
	r      *gin.Engine
	env    *sensor.Published
	inbox  *input.Inbox
	exited int
}

func newPetRig(t *testing.T, fs rest.FrameSource, j rest.JournalReader) *petRig {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rig := &petRig{env: sensor.NewPublished(time.Minute), inbox: input.NewInbox(2)}
	h := rest.NewPetHandler(rig.env, rig.inbox, fs, j, func() { rig.exited++ }, nopLogger())
	rig.r = gin.New()
	h.Register(rig.r.Group("/api"))
	return rig
}

func (rig *petRig) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	rig.r.ServeHTTP(w, req)
	return w
}

func TestPublishEnv(t *testing.T) {
	rig := newPetRig(t, frames{}, nil)

	w := rig.do(http.MethodPost, "/api/env", `{"screen":{"x":0,"y":0,"w":1280,"h":720},"screen_ok":true,"cursor":{"x":3,"y":4},"cursor_ok":true,"has_window":false,"window_ok":true,"at":"1999-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	screen, err := rig.env.ScreenBounds()
	require.NoError(t, err)
	assert.Equal(t, geom.Rect{W: 1280, H: 720}, screen)
	cursor, err := rig.env.Cursor()
	require.NoError(t, err)
	assert.Equal(t, geom.Point{X: 3, Y: 4}, cursor)
}

func TestPublishEnv_Malformed(t *testing.T) {
	rig := newPetRig(t, frames{}, nil)
	assert.Equal(t, http.StatusBadRequest, rig.do(http.MethodPost, "/api/env", `{"screen":`).Code)
	_, ok := rig.env.Latest()
	assert.False(t, ok)
}

func TestEvents_QueueInOrder(t *testing.T) {
	rig := newPetRig(t, frames{}, nil)

	assert.Equal(t, http.StatusAccepted, rig.do(http.MethodPost, "/api/events/feed", `{"magnitude":0.25}`).Code)
	assert.Equal(t, http.StatusAccepted, rig.do(http.MethodPost, "/api/events/pet", "").Code)

	events := rig.inbox.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, input.KindFeed, events[0].Kind)
	assert.InDelta(t, 0.25, events[0].Magnitude, 1e-9)
	assert.Equal(t, input.KindPet, events[1].Kind)
	assert.InDelta(t, 1.0, events[1].Magnitude, 1e-9)
}

func TestEvents_Drag(t *testing.T) {
	rig := newPetRig(t, frames{}, nil)

	assert.Equal(t, http.StatusAccepted, rig.do(http.MethodPost, "/api/events/drag/start", `{"x":1,"y":2}`).Code)
	assert.Equal(t, http.StatusBadRequest, rig.do(http.MethodPost, "/api/events/drag/move", `{"x":1}`).Code)
	assert.Equal(t, http.StatusAccepted, rig.do(http.MethodPost, "/api/events/drag/move", `{"x":0,"y":0}`).Code)

	events := rig.inbox.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, geom.Point{X: 1, Y: 2}, events[0].Point)
	assert.Equal(t, input.KindDragMove, events[1].Kind)
	assert.Equal(t, geom.Point{}, events[1].Point)
}

func TestEvents_FullInboxReportsDrop(t *testing.T) {
	rig := newPetRig(t, frames{}, nil) // capacity 2
	rig.do(http.MethodPost, "/api/events/feed", "")
	rig.do(http.MethodPost, "/api/events/pet", "")

	w := rig.do(http.MethodPost, "/api/events/drag/end", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"queued":"drag_end","dropped":true}`, w.Body.String())

	events := rig.inbox.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, input.KindPet, events[0].Kind)
	assert.Equal(t, input.KindDragEnd, events[1].Kind)
}

func TestEvents_FullOfDragEventsRefusesFeed(t *testing.T) {
	rig := newPetRig(t, frames{}, nil) // capacity 2
	rig.do(http.MethodPost, "/api/events/drag/start", `{"x":1,"y":2}`)
	rig.do(http.MethodPost, "/api/events/drag/end", "")

	w := rig.do(http.MethodPost, "/api/events/feed", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"queued":"feed","dropped":true}`, w.Body.String())
	assert.Equal(t, []input.Kind{input.KindDragStart, input.KindDragEnd}, eventKinds(rig.inbox.Drain()))
}

func eventKinds(events []input.Event) []input.Kind {
	out := make([]input.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestState(t *testing.T) {
	rig := newPetRig(t, frames{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rig.do(http.MethodGet, "/api/state", "").Code)

	f := sim.Frame{Tick: 12, BehaviorID: "beg", Needs: needs.State{Hunger: 0.9}}
	rig = newPetRig(t, frames{f: f, ok: true}, nil)
	w := rig.do(http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got sim.Frame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, uint64(12), got.Tick)
	assert.Equal(t, "beg", got.BehaviorID)
	assert.InDelta(t, 0.9, got.Needs.Hunger, 1e-9)
}

func TestJournal(t *testing.T) {
	j := &journal{rows: []model.BehaviorTransition{{ToBehavior: "sleep", Reason: "preempted"}}}
	rig := newPetRig(t, frames{}, j)

	w := rig.do(http.MethodGet, "/api/journal", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, j.n)
	assert.Contains(t, w.Body.String(), `"sleep"`)

	rig.do(http.MethodGet, "/api/journal?limit=500", "")
	assert.Equal(t, 100, j.n)

	assert.Equal(t, http.StatusBadRequest, rig.do(http.MethodGet, "/api/journal?limit=-1", "").Code)

	j.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, rig.do(http.MethodGet, "/api/journal", "").Code)
}

func TestJournal_Disabled(t *testing.T) {
	rig := newPetRig(t, frames{}, nil)
	w := rig.do(http.MethodGet, "/api/journal", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"transitions":[]}`, w.Body.String())
}

func TestExit(t *testing.T) {
	rig := newPetRig(t, frames{}, nil)
	assert.Equal(t, http.StatusAccepted, rig.do(http.MethodPost, "/api/exit", "").Code)
	assert.Equal(t, 1, rig.exited)
}
