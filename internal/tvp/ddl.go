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
package tvp

import (
	"fmt"
	"strings"
)

// GenerateCreateOrReplace returns a batch that drops schema.typeName when it
// exists and creates it again with columns in order. Re-running it against a
// server that already has the type succeeds.
func GenerateCreateOrReplace(schema, typeName string, columns []Column) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "if exists (select 1 from sys.types t (nolock) join sys.schemas s (nolock) on s.schema_id = t.schema_id where t.name = '%s' and s.name = '%s')\n",
		escapeLiteral(typeName), escapeLiteral(schema))
	sb.WriteString("begin\n")
	fmt.Fprintf(&sb, "drop type %s.%s;\n", schema, typeName)
	sb.WriteString("end\n")
	fmt.Fprintf(&sb, "create type %s.%s as table (\n", schema, typeName)

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = c.Name + " " + c.SQL()
	}
	sb.WriteString(strings.Join(defs, ", "))
	sb.WriteString("\n);\n")
	return sb.String()
}

// GenerateSchemaBootstrap returns the statements that create the reserved
// schema and let principal manage and use the types in it. quote renders the
// principal as an identifier; nil means SQL Server bracket quoting.
func GenerateSchemaBootstrap(schema, principal string, quote func(string) string) []string {
	stmts := []string{
		fmt.Sprintf("if schema_id('%s') is null exec('create schema %s');", escapeLiteral(schema), schema),
	}
	if principal == "" {
		return stmts
	}
	if quote == nil {
		quote = bracketQuote
	}
	quoted := quote(principal)
	return append(stmts,
		fmt.Sprintf("EXEC sp_addrolemember N'db_ddladmin', N'%s';", escapeLiteral(principal)),
		fmt.Sprintf("GRANT ALTER ON SCHEMA :: %s TO %s;", schema, quoted),
		fmt.Sprintf("GRANT EXECUTE ON SCHEMA :: %s TO %s;", schema, quoted),
	)
}

func bracketQuote(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
