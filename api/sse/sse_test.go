package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/config"
	"github.com/kasuganosora/desktoppet/game/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedFrames struct {
	frame sim.Frame
	ok    bool
}

func (f fixedFrames) Latest() (sim.Frame, bool) { return f.frame, f.ok }

// readEvent returns the next "event:"/"data:" pair, skipping comments.
func readEvent(t *testing.T, sc *bufio.Scanner) (event, data string) {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return "", ""
}

func TestServeFrames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, ps, err := cache.New(config.CacheConfig{LocalPubSubBuf: 8})
	require.NoError(t, err)
	defer store.Close()

	h := NewHandler(ps, fixedFrames{frame: sim.Frame{Tick: 3}, ok: true}, zap.NewNop())
	h.keepalive = 20 * time.Millisecond
	r := gin.New()
	r.GET("/sse/frames", h.ServeFrames)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/frames", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	ev, _ := readEvent(t, sc)
	assert.Equal(t, "connected", ev)
	ev, data := readEvent(t, sc)
	assert.Equal(t, "frame", ev)
	assert.Contains(t, data, `"tick":3`)

	require.NoError(t, ps.Publish(ctx, cache.FramesChannel, `{"tick":4}`))
	ev, data = readEvent(t, sc)
	assert.Equal(t, "frame", ev)
	assert.Equal(t, `{"tick":4}`, data)
}
