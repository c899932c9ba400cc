/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/config"
	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/tvp"
)

var _ tvp.Target = (*DB)(nil)

// DB holds the database connection pool and dialect handler.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  config.DatabaseConfig
}

// DialectHandler opens pools for one database dialect.
type DialectHandler interface {
	CreateCloudSQLPool(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error)
	CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error)
	QuoteIdentifier(name string) string
}

// StructuredParameterHandler is implemented by dialect handlers whose driver
// accepts table-valued parameters.
type StructuredParameterHandler interface {
	EncodeTable(typeName string, table *tvp.Table) (any, error)
}

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex
)

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		zap.S().Warnw("dialect handler is being overwritten", "dialect", dialect)
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
	return handler, nil
}

// New opens a pool for cfg and pings it.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var pool *sql.DB
	if cfg.IsCloudSQL() {
		pool, err = handler.CreateCloudSQLPool(ctx, cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool for dialect %s: %w", cfg.Dialect, err)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database (ping failed) for dialect %s: %w", cfg.Dialect, err)
	}

	zap.S().Infow("connected to database", "dialect", cfg.Dialect, "target", identity(cfg))
	return &DB{
		Pool:    pool,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.PingContext(ctx)
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	zap.S().Warn("attempted to close a nil database connection pool")
	return nil
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if db.Pool == nil {
		return nil, fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.ExecContext(ctx, query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if db.Pool == nil {
		return nil, fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.QueryContext(ctx, query, args...)
}

// Identity names the server and database the pool talks to. Credentials are
// never part of it, so two pools for different users share created types.
func (db *DB) Identity() string {
	return identity(db.Config)
}

func identity(cfg config.DatabaseConfig) string {
	dialect := strings.TrimPrefix(cfg.Dialect, "cloudsql")
	if cfg.IsCloudSQL() && cfg.CloudSQLInstanceConnectionName != "" {
		return fmt.Sprintf("%s://%s/%s", dialect, cfg.CloudSQLInstanceConnectionName, cfg.DBName)
	}
	host := strings.ToLower(cfg.Host)
	return fmt.Sprintf("%s://%s/%s", dialect, net.JoinHostPort(host, strconv.Itoa(cfg.Port)), cfg.DBName)
}

func (db *DB) Dialect() string {
	return db.Config.Dialect
}

// StructuredParameters reports whether the dialect handler can encode tables.
func (db *DB) StructuredParameters() bool {
	_, ok := db.Handler.(StructuredParameterHandler)
	return ok
}

func (db *DB) EncodeTable(typeName string, table *tvp.Table) (any, error) {
	h, ok := db.Handler.(StructuredParameterHandler)
	if !ok {
		return nil, &tvp.UnsupportedTargetError{Dialect: db.Config.Dialect}
	}
	return h.EncodeTable(typeName, table)
}

func (db *DB) QuoteIdentifier(name string) string {
	if db.Handler == nil {
		return name
	}
	return db.Handler.QuoteIdentifier(name)
}

// ExecuteSQLStatements runs statements in order inside one transaction.
func (db *DB) ExecuteSQLStatements(ctx context.Context, sqlStatements []string) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	if len(sqlStatements) == 0 {
		zap.S().Info("no SQL statements to execute")
		return nil
	}

	tx, err := db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range sqlStatements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		if _, err = tx.ExecContext(ctx, trimmedStmt); err != nil {
			zap.S().Errorw("failed executing statement", "index", i+1, "statement", trimmedStmt, "error", err)
			return fmt.Errorf("failed executing statement #%d: %w", i+1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
