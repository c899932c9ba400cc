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
package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

func GetDefaultOutputFilePath(dbName, commandName string) string {
	if dbName == "" {
		dbName = "tvp"
	}
	switch commandName {
	case "ddl":
		return fmt.Sprintf("%s_table_types.sql", dbName)
	default:
		return fmt.Sprintf("%s_%s.sql", dbName, commandName)
	}
}

// WriteSQLFile writes each statement on its own, followed by a GO batch
// separator so the file can be replayed with sqlcmd.
func WriteSQLFile(path string, statements []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, stmt := range statements {
		if _, err := fmt.Fprintf(w, "%s\nGO\n\n", strings.TrimRight(stmt, "\n")); err != nil {
			return fmt.Errorf("failed to write SQL statement to file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write SQL statement to file: %w", err)
	}
	return file.Close()
}

func ConfirmAction(actionDescription string) bool {
	return confirm(os.Stdin, os.Stdout, actionDescription)
}

func confirm(in io.Reader, out io.Writer, actionDescription string) bool {
	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "\n-------------------------------------------------------------\n")
	fmt.Fprintf(out, "Generated %s:\n", actionDescription)
	fmt.Fprint(out, "Do you want to apply these changes to the database? (yes/no): ")
	text, _ := reader.ReadString('\n')
	action := strings.TrimSpace(strings.ToLower(text))
	return action == "yes" || action == "y"
}
