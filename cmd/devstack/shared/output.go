// Copyright 2025 Emiliano Spinella (eminwux)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package shared

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eminwux/devstack/cmd/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	OutputFormatYAML  OutputFormat = "yaml"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// AddOutputFlag registers --output/-o on cmd.
func AddOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Output format (table, json, yaml)")
	_ = cmd.RegisterFlagCompletionFunc("output", config.CompleteOutputFormats)
}

// ParseOutputFormat reads --output, falling back to the configured default.
func ParseOutputFormat(cmd *cobra.Command) (OutputFormat, error) {
	output := ""
	if f := cmd.Flags().Lookup("output"); f != nil && f.Changed {
		output = f.Value.String()
	} else {
		output = config.DEVSTACK_OUTPUT.ValueOrDefault()
	}
	if strings.TrimSpace(output) == "" {
		return OutputFormatTable, nil
	}

	format := OutputFormat(strings.ToLower(strings.TrimSpace(output)))
	switch format {
	case OutputFormatYAML, OutputFormatJSON, OutputFormatTable:
		return format, nil
	default:
		return OutputFormatTable, fmt.Errorf("invalid output format: %s (supported: yaml, json, table)", output)
	}
}

// PrintYAML writes doc to the command output as YAML.
func PrintYAML(cmd *cobra.Command, doc any) error {
	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(doc)
}

// PrintJSON writes doc to the command output as indented JSON.
func PrintJSON(cmd *cobra.Command, doc any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// Print renders doc as JSON or YAML, or calls table for the table format.
func Print(cmd *cobra.Command, format OutputFormat, doc any, table func()) error {
	switch format {
	case OutputFormatJSON:
		return PrintJSON(cmd, doc)
	case OutputFormatYAML:
		return PrintYAML(cmd, doc)
	default:
		table()
		return nil
	}
}

// PrintTable prints rows under headers with aligned columns.
func PrintTable(cmd *cobra.Command, headers []string, rows [][]string) {
	if len(rows) == 0 {
		cmd.Println("No resources found.")
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string) string {
		var sb strings.Builder
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			if i > 0 {
				sb.WriteString("  ")
			}
			if i == len(widths)-1 {
				sb.WriteString(cell)
				continue
			}
			fmt.Fprintf(&sb, "%-*s", widths[i], cell)
		}
		return sb.String()
	}

	cmd.Println(line(headers))
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	cmd.Println(line(seps))
	for _, row := range rows {
		cmd.Println(line(row))
	}
}

// Bytes formats a byte count in IEC units, e.g. "64 MiB".
func Bytes[T int64 | uint64](n T) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

func Percent(v float64) string { return fmt.Sprintf("%.1f%%", v) }

func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Ago formats t relative to now, or "-" for the zero time.
func Ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// Dash replaces an empty cell.
func Dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
