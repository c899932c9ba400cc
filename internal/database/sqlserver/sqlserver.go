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
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/config"
	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/database"
	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/tvp"
)

// sqlServerHandler implements database.DialectHandler and
// database.StructuredParameterHandler for SQL Server.
type sqlServerHandler struct{}

var (
	_ database.DialectHandler             = (*sqlServerHandler)(nil)
	_ database.StructuredParameterHandler = (*sqlServerHandler)(nil)
)

type csqlDialer struct {
	dialer     *cloudsqlconn.Dialer
	connName   string
	usePrivate bool
}

// DialContext adheres to the mssql.Dialer interface.
func (c *csqlDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var opts []cloudsqlconn.DialOption
	if c.usePrivate {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}
	return c.dialer.Dial(ctx, c.connName, opts...)
}

func connectionURL(cfg config.DatabaseConfig, host string) *url.URL {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	query := url.Values{}
	if cfg.DBName != "" {
		query.Set("database", cfg.DBName)
	}
	return &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		RawQuery: query.Encode(),
	}
}

// CreateCloudSQLPool for SQL Server
func (h sqlServerHandler) CreateCloudSQLPool(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("missing Cloud SQL instance connection name")
	}

	// WithLazyRefresh() Option is used to perform refresh
	// when needed, rather than on a scheduled interval.
	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithLazyRefresh())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}
	// The host is ignored: every connection goes through the dialer.
	connector, err := mssql.NewConnector(connectionURL(cfg, "localhost").String())
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("mssql.NewConnector: %w", err)
	}
	connector.Dialer = &csqlDialer{
		dialer:     dialer,
		connName:   cfg.CloudSQLInstanceConnectionName,
		usePrivate: cfg.UsePrivateIP,
	}
	return sql.OpenDB(connector), nil
}

// CreateStandardPool creates a standard SQL Server connection pool
func (h sqlServerHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	dbPool, err := sql.Open("sqlserver", connectionURL(cfg, cfg.Host).String())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard sqlserver): %w", err)
	}
	return dbPool, nil
}

// QuoteIdentifier for SQL Server
func (h sqlServerHandler) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// EncodeTable converts table into an mssql.TVP. The driver reads TVP rows
// from a slice of structs, so one struct type is built per column layout:
// field i carries column i and is a pointer so that nil encodes NULL.
func (h sqlServerHandler) EncodeTable(typeName string, table *tvp.Table) (any, error) {
	if table == nil {
		return nil, fmt.Errorf("table for %s is nil", typeName)
	}
	rowType, err := rowTypeFor(table.Columns)
	if err != nil {
		return nil, err
	}

	rows := reflect.MakeSlice(reflect.SliceOf(rowType), len(table.Rows), len(table.Rows))
	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(table.Columns))
		}
		out := rows.Index(i)
		for j, cell := range row {
			if cell == nil {
				continue
			}
			v, err := wireValue(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, table.Columns[j].Name, err)
			}
			field := out.Field(j)
			p := reflect.New(field.Type().Elem())
			p.Elem().Set(reflect.ValueOf(v))
			field.Set(p)
		}
	}
	return mssql.TVP{TypeName: typeName, Value: rows.Interface()}, nil
}

var (
	stringPtr  = reflect.TypeOf((*string)(nil))
	int64Ptr   = reflect.TypeOf((*int64)(nil))
	float64Ptr = reflect.TypeOf((*float64)(nil))
	boolPtr    = reflect.TypeOf((*bool)(nil))
	timePtr    = reflect.TypeOf((*time.Time)(nil))
)

// wireTypes is what each column type travels as. The server converts to the
// declared column type on insert into the table variable.
var wireTypes = map[tvp.SQLType]reflect.Type{
	tvp.TypeNVarChar:         stringPtr,
	tvp.TypeBigInt:           int64Ptr,
	tvp.TypeInt:              int64Ptr,
	tvp.TypeSmallInt:         int64Ptr,
	tvp.TypeTinyInt:          int64Ptr,
	tvp.TypeDecimal:          stringPtr,
	tvp.TypeFloat:            float64Ptr,
	tvp.TypeReal:             float64Ptr,
	tvp.TypeBit:              boolPtr,
	tvp.TypeUniqueIdentifier: stringPtr,
	tvp.TypeDateTime:         timePtr,
}

var rowTypes sync.Map // layout key -> reflect.Type

func rowTypeFor(columns []tvp.Column) (reflect.Type, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}
	var key strings.Builder
	fields := make([]reflect.StructField, len(columns))
	for i, c := range columns {
		t, ok := wireTypes[c.Type]
		if !ok {
			return nil, fmt.Errorf("column %s has no wire type for %s", c.Name, c.SQL())
		}
		fields[i] = reflect.StructField{Name: "C" + strconv.Itoa(i), Type: t}
		key.WriteString(t.String())
		key.WriteByte(',')
	}
	if rt, ok := rowTypes.Load(key.String()); ok {
		return rt.(reflect.Type), nil
	}
	rt, _ := rowTypes.LoadOrStore(key.String(), reflect.StructOf(fields))
	return rt.(reflect.Type), nil
}

func wireValue(cell any) (any, error) {
	switch v := cell.(type) {
	case string:
		return v, nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case bool:
		return v, nil
	case uuid.UUID:
		return v.String(), nil
	case time.Time:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported cell value %T", cell)
}

func init() {
	database.RegisterDialectHandler("sqlserver", sqlServerHandler{})
	database.RegisterDialectHandler("cloudsqlsqlserver", sqlServerHandler{})
}
