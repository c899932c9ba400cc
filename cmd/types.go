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
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoogleCloudPlatform/db-tvp-autocreate/internal/tvp"
)

// typeDefinitions is the --types file layout:
//
//	types:
//	  - name: shop.OrderLine
//	    fields:
//	      - {name: OrderID, type: int64}
//	      - {name: Comment, type: "*string"}
//	      - {name: Internal, type: string, ignore: true}
type typeDefinitions struct {
	Types []typeDefinition `yaml:"types"`
}

type typeDefinition struct {
	Name   string            `yaml:"name"`
	Fields []fieldDefinition `yaml:"fields"`
}

type fieldDefinition struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	Ignore   bool   `yaml:"ignore"`
}

func loadTypeDefinitions(path string) ([]*tvp.RecordDescriptor, error) {
	if path == "" {
		return nil, fmt.Errorf("--types is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read type definitions: %w", err)
	}
	return parseTypeDefinitions(content)
}

func parseTypeDefinitions(content []byte) ([]*tvp.RecordDescriptor, error) {
	var defs typeDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse type definitions: %w", err)
	}
	if len(defs.Types) == 0 {
		return nil, fmt.Errorf("no types defined")
	}

	records := make([]*tvp.RecordDescriptor, 0, len(defs.Types))
	seen := make(map[string]bool, len(defs.Types))
	for _, def := range defs.Types {
		fields := make([]tvp.FieldDescriptor, len(def.Fields))
		for i, f := range def.Fields {
			kind, nullable := tvp.ParseHostKind(f.Type)
			fields[i] = tvp.FieldDescriptor{
				Name:     f.Name,
				Kind:     kind,
				TypeName: f.Type,
				Nullable: nullable || f.Nullable,
				Ignore:   f.Ignore,
			}
		}
		desc, err := tvp.Declare(def.Name, fields)
		if err != nil {
			return nil, err
		}
		if seen[desc.Name] {
			return nil, fmt.Errorf("type %s is defined more than once", desc.Name)
		}
		seen[desc.Name] = true
		records = append(records, desc)
	}
	return records, nil
}
