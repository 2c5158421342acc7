// Copyright 2026 LatticeQ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const dataTablePrefix = "t_"

// Config defines the sqlite store configuration. The job store must survive
// process restart and tolerate concurrent readers, so the database runs in
// WAL mode with a busy timeout.
type Config struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busyTimeoutMs"`
	MaxOpenConns  int    `mapstructure:"maxOpenConns"`
	MaxIdleConns  int    `mapstructure:"maxIdleConns"`
	OutPut        bool   `mapstructure:"output"` // echo SQL to the gorm logger
}

// SetDefaults fills unset fields with defaults.
func (c *Config) SetDefaults() {
	if c.Path == "" {
		c.Path = "latticeq.db"
	}
	if c.BusyTimeoutMs <= 0 {
		c.BusyTimeoutMs = 5000
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
}

// Manager is the unified handle for the persistent store connection.
type Manager interface {
	// DB returns the gorm database handle.
	DB() *gorm.DB

	// Close closes the underlying connection pool.
	Close() error
}

type managerImpl struct {
	db *gorm.DB
}

func (m *managerImpl) DB() *gorm.DB {
	return m.db
}

func (m *managerImpl) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB handle: %w", err)
	}
	return sqlDB.Close()
}

// NewManager opens the sqlite database and configures the connection pool.
func NewManager(cfg Config) (Manager, error) {
	cfg.SetDefaults()

	logConfig := gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Silent,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	}
	var logLevel gormlogger.LogLevel = gormlogger.Silent
	if cfg.OutPut {
		logLevel = gormlogger.Info
	}
	logConfig.LogLevel = logLevel

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeoutMs)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dataTablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return &managerImpl{db: db}, nil
}
