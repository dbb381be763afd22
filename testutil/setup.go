// Package testutil builds throwaway infrastructure for tests.
package testutil

import (
	"testing"
	"time"

	"github.com/kasuganosora/desktoppet/cache"
	"github.com/kasuganosora/desktoppet/config"
	dbadapter "github.com/kasuganosora/desktoppet/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory SQLite database and migrates it.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: ":memory:",
	}, zap.NewNop())
	require.NoError(t, err, "SetupTestDB: Open")
	t.Cleanup(func() { _ = dbadapter.Close(db) })
	return db
}

// SetupTestCache creates an in-process store and pubsub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Store, cache.PubSub) {
	t.Helper()
	store, ps, err := cache.New(config.CacheConfig{LocalGCInterval: time.Minute, LocalPubSubBuf: 64})
	require.NoError(t, err, "SetupTestCache: New")
	t.Cleanup(func() {
		_ = ps.Close()
		_ = store.Close()
	})
	return store, ps
}

// Logger returns a logger that writes to the test output.
func Logger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}
