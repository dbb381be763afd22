// Package mysql opens the shared pet store. Several pets may keep their
// snapshots and journals in one schema, each under its own persistence key.
package mysql

import (
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	dialTimeout = 5 * time.Second
	// utf8mb4 index prefixes top out at 191 characters on older servers.
	indexedStringSize = 191
)

// Pool sizes the connection pool. Zero fields take small defaults; one pet
// writes from the autosave task and reads only on the admin API.
type Pool struct {
	MaxOpen int
	MaxIdle int
	MaxLife time.Duration
}

func (p Pool) withDefaults() Pool {
	if p.MaxOpen <= 0 {
		p.MaxOpen = 4
	}
	if p.MaxIdle <= 0 || p.MaxIdle > p.MaxOpen {
		p.MaxIdle = min(2, p.MaxOpen)
	}
	if p.MaxLife <= 0 {
		p.MaxLife = 30 * time.Minute
	}
	return p
}

// Open creates a GORM *DB backed by MySQL.
func Open(dsn string, pool Pool, cfg *gorm.Config) (*gorm.DB, error) {
	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:               dsn,
		DefaultStringSize: indexedStringSize,
	}), cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	pool = pool.withDefaults()
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(pool.MaxLife)
	return db, nil
}

// normalizeDSN forces what the stored rows rely on: DATETIME columns scan
// into time.Time in UTC, and a dead server fails the dial instead of
// stalling startup.
func normalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", errors.New("mysql: empty dsn")
	}
	c, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	if c.DBName == "" {
		return "", errors.New("mysql: dsn names no database")
	}
	c.ParseTime = true
	c.Loc = time.UTC
	if c.Timeout == 0 {
		c.Timeout = dialTimeout
	}
	return c.FormatDSN(), nil
}
