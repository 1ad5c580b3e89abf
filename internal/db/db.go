package db

import (
	"database/sql"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ipotracker/internal/config"
)

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

func Open(cfg config.DBConfig) (*DB, error) {
	gcfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        NowUTC,
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), gcfg)
	if err != nil {
		return nil, err
	}

	out, err := Wrap(gdb)
	if err != nil {
		return nil, err
	}

	out.SQL.SetMaxOpenConns(cfg.MaxOpenConns)
	out.SQL.SetMaxIdleConns(cfg.MaxIdleConns)
	out.SQL.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	out.SQL.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return out, nil
}

// Wrap adopts an already opened gorm handle, e.g. an in-memory sqlite one.
func Wrap(gdb *gorm.DB) (*DB, error) {
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Ping()
}

func SetTimezone(db *DB, tz string) error {
	if tz == "" {
		return nil
	}
	_, err := db.SQL.Exec("SET TIME ZONE '" + tz + "'")
	return err
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
