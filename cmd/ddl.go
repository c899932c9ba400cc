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
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/database"
	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/tvp"
	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/utils"
)

// ddlCmd represents the ddl command
var ddlCmd = &cobra.Command{
	Use:     "ddl",
	Short:   "Generate create-or-replace DDL for table types",
	Long:    `Reads record definitions and writes the schema bootstrap and one create-or-replace batch per table type to a file for review. No database connection is made.`,
	Example: `./tvp_autocreator ddl --types ./types.yaml --out_file ./shop_table_types.sql --grant-to app_user`,
	RunE:    runDDL,
}

func runDDL(cmd *cobra.Command, args []string) error {
	records, err := loadTypeDefinitions(cmd.Flag("types").Value.String())
	if err != nil {
		return err
	}

	handler, err := structuredHandler()
	if err != nil {
		return err
	}

	binder := tvp.NewBinder(cfg.TVP, tvp.WithLogger(zap.L()))
	statements, _, err := generateStatements(binder, records, cmd.Flag("grant-to").Value.String(), handler.QuoteIdentifier)
	if err != nil {
		return err
	}

	outputFile := cmd.Flag("out_file").Value.String()
	if outputFile == "" {
		outputFile = utils.GetDefaultOutputFilePath(cfg.Database.DBName, "ddl")
	}
	if err := utils.WriteSQLFile(outputFile, statements); err != nil {
		return err
	}
	zap.S().Infow("table type DDL written", "file", outputFile, "types", len(records))
	return nil
}

// generateStatements returns the schema bootstrap followed by one
// create-or-replace batch per record, along with the derived schemas.
func generateStatements(binder *tvp.Binder, records []*tvp.RecordDescriptor, grantTo string, quote func(string) string) ([]string, []*tvp.RecordSchema, error) {
	statements := tvp.GenerateSchemaBootstrap(cfg.TVP.Schema, grantTo, quote)
	schemas := make([]*tvp.RecordSchema, 0, len(records))
	for _, desc := range records {
		rs, err := binder.Declared(desc)
		if err != nil {
			return nil, nil, fmt.Errorf("record %s: %w", desc.Name, err)
		}
		zap.S().Debugw("derived table type", "record", desc.Name, "type", binder.QualifiedTypeName(rs), "columns", len(rs.Columns))
		statements = append(statements, binder.DDL(rs))
		schemas = append(schemas, rs)
	}
	return statements, schemas, nil
}

// structuredHandler resolves the configured dialect and checks that it can
// carry table-valued parameters.
func structuredHandler() (database.DialectHandler, error) {
	handler, err := database.GetDialectHandler(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	if _, ok := handler.(database.StructuredParameterHandler); !ok {
		return nil, &tvp.UnsupportedTargetError{Dialect: cfg.Database.Dialect}
	}
	return handler, nil
}

func init() {
	ddlCmd.Flags().String("types", "", "YAML file with record definitions - MANDATORY")
	ddlCmd.Flags().StringP("out_file", "o", "", "File path to output generated SQL statements (defaults to <database>_table_types.sql)")
	ddlCmd.Flags().String("grant-to", "", "Database principal to grant ALTER and EXECUTE on the table type schema")
}
