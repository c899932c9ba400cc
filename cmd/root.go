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
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/config"
	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/database"
	_ "github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/database/postgres"
	_ "github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/database/sqlserver"
	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/retry"
)

var (
	v          = viper.New()
	cfg        *config.Config
	configFile string
	dryRun     bool
)

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"dialect":                           "database.dialect",
	"host":                              "database.host",
	"port":                              "database.port",
	"username":                          "database.user",
	"password":                          "database.password",
	"database":                          "database.database",
	"cloudsql-instance-connection-name": "database.cloudsql_instance_connection_name",
	"cloudsql-use-private-ip":           "database.cloudsql_use_private_ip",
	"schema":                            "tvp.schema",
	"type-prefix":                       "tvp.type_prefix",
	"log-level":                         "log.level",
}

var rootCmd = &cobra.Command{
	Use:   "tvp_autocreator",
	Short: "A tool to generate and create SQL Server table types for structured parameters",
	Long: `tvp_autocreator derives SQL Server user-defined table types from record
definitions, writes the create-or-replace DDL for review and creates the types
on a database so that records can be passed as table-valued parameters.`,
	PersistentPreRunE: initFlagsAndConfig,
	SilenceUsage:      true,
}

// initFlagsAndConfig layers flags, env vars and the config file into cfg and
// installs the global logger.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func setupDatabase(ctx context.Context) (*database.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is not initialized")
	}
	db, err := retry.Do(ctx, retry.DefaultOptions, func(ctx context.Context) (*database.DB, error) {
		return database.New(ctx, cfg.Database)
	})
	if err != nil {
		zap.S().Errorw("failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaults := config.GetConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	flags.BoolVar(&dryRun, "dry-run", true, "Enable dry-run mode (no database modifications)")

	// Database connection flags
	flags.String("dialect", defaults.Database.Dialect, fmt.Sprintf("Database dialect (%s)", strings.Join(config.SupportedDialects(), ", ")))
	flags.String("host", defaults.Database.Host, "Database host")
	flags.Int("port", defaults.Database.Port, "Database port")
	flags.String("username", "", "Database username")
	flags.String("password", "", "Database password (can also be set via TVP_DATABASE_PASSWORD)")
	flags.String("database", "", "Database name")
	flags.String("cloudsql-instance-connection-name", "", "Cloud SQL instance connection name - MANDATORY for CloudSQL")
	flags.Bool("cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	// Table type flags
	flags.String("schema", defaults.TVP.Schema, "Schema that holds the generated table types")
	flags.String("type-prefix", defaults.TVP.TypePrefix, "Prefix of generated table type names")
	flags.String("log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(ddlCmd)
	rootCmd.AddCommand(ensureCmd)
}
