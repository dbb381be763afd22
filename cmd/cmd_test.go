package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kasuganosora/desktoppet/config"
	"github.com/kasuganosora/desktoppet/game/behavior"
	"github.com/kasuganosora/desktoppet/game/script"
	mw "github.com/kasuganosora/desktoppet/middleware"
	"github.com/kasuganosora/desktoppet/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestSchemaCmd(t *testing.T) {
	out, _, err := execute(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "Desktop Pet Behavior Catalog")
	assert.Contains(t, out, "\n  ")
}

func TestValidateCmd_Defaults(t *testing.T) {
	out, _, err := execute(t, "validate", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "catalog ok: 7 behaviors")
	assert.Contains(t, out, `fallback "idle"`)
}

func TestValidateCmd_BadCatalog(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "catalog.yaml", `
behaviors:
  - id: stretch
    precondition: "energy >"
    utility: "0.3"
    duration: 2s
`)
	cfg := writeFile(t, dir, "petd.yaml", "catalog:\n  path: "+catalog+"\n")

	_, errOut, err := execute(t, "validate", "-c", cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, behavior.ErrInvalidDefinition)
	assert.Contains(t, errOut, "stretch")
}

func TestValidateCmd_BadConfig(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "petd.yaml", "sim:\n  tick_rate: -1\n")
	_, _, err := execute(t, "validate", "-c", cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestTokenCmd(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "petd.yaml", "security:\n  jwt_secret: s3cret\n")
	out, _, err := execute(t, "token", "-c", cfg, "--client", "tray", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := mw.ParseToken(strings.TrimSpace(out), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "tray", claims.Client)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenCmd_NoSecret(t *testing.T) {
	_, _, err := execute(t, "token", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestBuildCatalog_BuiltinsDisabled(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "catalog.yaml", `
behaviors:
  - id: loaf
    utility: "0.05"
    duration: 5s
  - id: zoomies
    precondition: "energy > 0.8"
    utility: "boredom"
    duration: 3s
    movement: wander
    speed: 300
`)
	cfg, err := config.Load(writeFile(t, dir, "petd.yaml", "sim:\n  fallback_id: loaf\ncatalog:\n  builtins: false\n  path: "+catalog+"\n"))
	require.NoError(t, err)

	c, err := buildCatalog(cfg, script.NewEngine(0, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, c.Sealed())
	assert.Equal(t, []string{"loaf", "zoomies"}, c.IDs())
	assert.Equal(t, "loaf", c.FallbackID())
}

func TestBuildCatalog_MissingFallback(t *testing.T) {
	cfg, err := config.Load(writeFile(t, t.TempDir(), "petd.yaml", "catalog:\n  builtins: false\n"))
	require.NoError(t, err)
	_, err = buildCatalog(cfg, script.NewEngine(0, zap.NewNop()), zap.NewNop())
	assert.Error(t, err)
}

func TestApp_HeadlessRunSavesState(t *testing.T) {
	path := writeFile(t, t.TempDir(), "petd.yaml", `
server:
  bridge: false
sim:
  tick_rate: 50
  save_interval: 50ms
persistence:
  backend: cache
  journal: false
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, a.run(ctx))

	assert.Positive(t, a.loop.Ticks())
	_, ok := a.publisher.Latest()
	assert.True(t, ok)

	st, err := persistence.NewCacheStore(a.store).Load(context.Background(), cfg.Persistence.Key)
	require.NoError(t, err)
	assert.InDelta(t, 960.0, st.Position.X, 960.0)
}

func TestApp_RetuneOnConfigChange(t *testing.T) {
	path := writeFile(t, t.TempDir(), "petd.yaml", "server:\n  bridge: false\npersistence:\n  backend: none\n  journal: false\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg, path, zap.NewNop())
	require.NoError(t, err)
	defer a.close()

	a.watchConfig(context.Background())
	require.NoError(t, os.WriteFile(path, []byte("server:\n  bridge: false\nsim:\n  hysteresis_margin: 0.3\npersistence:\n  backend: none\n  journal: false\n"), 0o644))

	assert.Eventually(t, func() bool { return a.inbox.Len() > 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestApp_NoRetuneAfterRunEnds(t *testing.T) {
	path := writeFile(t, t.TempDir(), "petd.yaml", "server:\n  bridge: false\npersistence:\n  backend: none\n  journal: false\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg, path, zap.NewNop())
	require.NoError(t, err)
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	a.watchConfig(ctx)
	cancel()
	require.NoError(t, os.WriteFile(path, []byte("server:\n  bridge: false\nsim:\n  hysteresis_margin: 0.3\npersistence:\n  backend: none\n  journal: false\n"), 0o644))

	assert.Never(t, func() bool { return a.inbox.Len() > 0 }, time.Second, 20*time.Millisecond)
}

func TestApp_PendingRetuneDroppedWhenRunEnds(t *testing.T) {
	path := writeFile(t, t.TempDir(), "petd.yaml", "server:\n  bridge: false\npersistence:\n  backend: none\n  journal: false\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg, path, zap.NewNop())
	require.NoError(t, err)
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	a.watchConfig(ctx)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  bridge: false\nsim:\n  hysteresis_margin: 0.3\npersistence:\n  backend: none\n  journal: false\n"), 0o644))
	// cancel once the debounced retune is queued but before it fires
	require.Eventually(t, func() bool { return a.sched.Pending("retune") }, 3*time.Second, 5*time.Millisecond)
	cancel()

	assert.Never(t, func() bool { return a.inbox.Len() > 0 }, time.Second, 20*time.Millisecond)
}
