// Package db opens the gorm connection for the configured database mode.
package db

import (
	"fmt"

	"github.com/kasuganosora/desktoppet/config"
	dbmysql "github.com/kasuganosora/desktoppet/db/mysql"
	dbsqlite "github.com/kasuganosora/desktoppet/db/sqlite"
	"github.com/kasuganosora/desktoppet/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a migrated *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: NewLogger(logger)}
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Mode {
	case ModeSQLite:
		db, err = dbsqlite.Open(cfg.SQLitePath, gcfg)
	case ModeMySQL:
		db, err = dbmysql.Open(cfg.MySQLDSN, dbmysql.Pool{
			MaxOpen: cfg.MySQLMaxOpen,
			MaxIdle: cfg.MySQLMaxIdle,
			MaxLife: cfg.MySQLMaxLife,
		}, gcfg)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.Mode, err)
	}
	if err := model.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("db: migrate: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
