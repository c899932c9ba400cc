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
package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	TVP      TVPConfig      `mapstructure:"tvp"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string `mapstructure:"dialect"`
	Host                           string `mapstructure:"host"`
	Port                           int    `mapstructure:"port"`
	User                           string `mapstructure:"user"`
	Password                       string `mapstructure:"password"`
	DBName                         string `mapstructure:"database"`
	SSLMode                        string `mapstructure:"sslmode"`
	CloudSQLInstanceConnectionName string `mapstructure:"cloudsql_instance_connection_name"`
	UsePrivateIP                   bool   `mapstructure:"cloudsql_use_private_ip"`
}

// TVPConfig controls how generated table types are named and shaped.
type TVPConfig struct {
	// Schema is the reserved schema every generated type lives in, so that
	// ALTER/EXECUTE can be granted on it once.
	Schema string `mapstructure:"schema"`
	// TypePrefix is prepended to every generated type name.
	TypePrefix string `mapstructure:"type_prefix"`
	// TextLength bounds string values in UTF-16 code units. Zero or less disables the check.
	TextLength int `mapstructure:"text_length"`
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var (
	supportedDialects = []string{"sqlserver", "cloudsqlsqlserver", "postgres", "cloudsqlpostgres", "mysql", "cloudsqlmysql"}
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// SupportedDialects lists the dialect names accepted in DatabaseConfig.Dialect.
func SupportedDialects() []string {
	out := make([]string, len(supportedDialects))
	copy(out, supportedDialects)
	return out
}

// GetConfig returns a default configuration. Flags, env and the config file are layered on top by Load.
func GetConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect: "sqlserver",
			Host:    "localhost",
			Port:    1433,
			SSLMode: "disable",
		},
		TVP: TVPConfig{
			Schema:     "udtts",
			TypePrefix: "TVPAutoCreator_",
			TextLength: 4000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers the defaults from GetConfig on v so that env vars and
// config-file keys are recognised even when no flag is bound to them.
func SetDefaults(v *viper.Viper) {
	d := GetConfig()
	v.SetDefault("database.dialect", d.Database.Dialect)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.cloudsql_instance_connection_name", "")
	v.SetDefault("database.cloudsql_use_private_ip", false)
	v.SetDefault("tvp.schema", d.TVP.Schema)
	v.SetDefault("tvp.type_prefix", d.TVP.TypePrefix)
	v.SetDefault("tvp.text_length", d.TVP.TextLength)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Load builds a Config from v. Environment variables use the TVP_ prefix with
// dots replaced by underscores, e.g. TVP_DATABASE_HOST.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("TVP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.Database.Dialect = strings.ToLower(strings.TrimSpace(cfg.Database.Dialect))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that can be checked without a database.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	return c.TVP.Validate()
}

// Validate checks the dialect and addressing fields.
func (c DatabaseConfig) Validate() error {
	isValidDialect := false
	for _, d := range supportedDialects {
		if c.Dialect == d {
			isValidDialect = true
			break
		}
	}
	if !isValidDialect {
		return fmt.Errorf("unsupported dialect: %s (only %s are supported)", c.Dialect, strings.Join(supportedDialects, ", "))
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.IsCloudSQL() && c.CloudSQLInstanceConnectionName == "" && c.Host == "" {
		return fmt.Errorf("cloudsql dialect %s needs an instance connection name", c.Dialect)
	}
	return nil
}

// IsCloudSQL reports whether the dialect connects through the Cloud SQL connector.
func (c DatabaseConfig) IsCloudSQL() bool {
	return strings.HasPrefix(c.Dialect, "cloudsql")
}

// Validate checks that schema and prefix are plain identifiers, since both are
// spliced into DDL unquoted.
func (c TVPConfig) Validate() error {
	if !identifierPattern.MatchString(c.Schema) {
		return fmt.Errorf("invalid tvp schema %q: must be a plain identifier", c.Schema)
	}
	if c.TypePrefix != "" && !identifierPattern.MatchString(c.TypePrefix) {
		return fmt.Errorf("invalid tvp type prefix %q: must be a plain identifier", c.TypePrefix)
	}
	return nil
}
