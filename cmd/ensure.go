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

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/tvp"
	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/utils"
)

// ensureCmd represents the ensure command
var ensureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create or replace table types on a database",
	Long:  `Generates the table type DDL like the ddl command, writes it for review and, unless --dry-run is set, creates the reserved schema and every table type on the database.`,
	Example: `./tvp_autocreator ensure --dialect sqlserver --host db.local --username sa --password pass --database shop --types ./types.yaml --dry-run=false
./tvp_autocreator ensure --dialect cloudsqlsqlserver --username sqlserver --password pass --database shop --cloudsql-instance-connection-name my-project:my-region:my-instance --types ./types.yaml --dry-run=false`,
	RunE: runEnsure,
}

func runEnsure(cmd *cobra.Command, args []string) error {
	records, err := loadTypeDefinitions(cmd.Flag("types").Value.String())
	if err != nil {
		return err
	}

	handler, err := structuredHandler()
	if err != nil {
		return err
	}

	binder := tvp.NewBinder(cfg.TVP, tvp.WithLogger(zap.L()))
	grantTo := cmd.Flag("grant-to").Value.String()
	statements, schemas, err := generateStatements(binder, records, grantTo, handler.QuoteIdentifier)
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

	if dryRun {
		zap.S().Info("ensure completed in dry-run mode, no changes were made to the database")
		return nil
	}
	if !utils.ConfirmAction("table type DDL in " + outputFile) {
		zap.S().Info("table type creation aborted by user")
		return nil
	}

	ctx := cmd.Context()
	db, err := setupDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if !db.StructuredParameters() {
		return &tvp.UnsupportedTargetError{Dialect: db.Dialect()}
	}
	if err := db.ExecuteSQLStatements(ctx, tvp.GenerateSchemaBootstrap(cfg.TVP.Schema, grantTo, db.QuoteIdentifier)); err != nil {
		return fmt.Errorf("failed to prepare schema %s: %w", cfg.TVP.Schema, err)
	}
	for i, desc := range records {
		name, err := binder.EnsureDeclared(ctx, db, desc)
		if err != nil {
			return err
		}
		zap.S().Infow("table type ready", "record", desc.Name, "type", name, "columns", len(schemas[i].Columns))
	}
	zap.S().Infow("ensure completed", "target", db.Identity(), "types", len(records))
	return nil
}

func init() {
	ensureCmd.Flags().String("types", "", "YAML file with record definitions - MANDATORY")
	ensureCmd.Flags().StringP("out_file", "o", "", "File path to output generated SQL statements (defaults to <database>_table_types.sql)")
	ensureCmd.Flags().String("grant-to", "", "Database principal to grant ALTER and EXECUTE on the table type schema")
}
