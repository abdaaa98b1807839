package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/sensorql/pkg/catalog"
)

// tableSchema is the detailed view of one table.
type tableSchema struct {
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	TemporalColumn string         `json:"temporal_column,omitempty"`
	Columns        []columnSchema `json:"columns"`
	JoinsTo        []string       `json:"joins_to,omitempty"`
}

type columnSchema struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Aliases []string `json:"aliases,omitempty"`
	Values  []any    `json:"values,omitempty"`
}

// RegisterSchemaTool adds describe_sensor_schema. Without arguments it lists
// every table and column; with table it returns that table's columns, known
// values and joins as JSON.
func RegisterSchemaTool(s *server.MCPServer, cat *catalog.Catalog) {
	tool := mcp.NewTool(
		"describe_sensor_schema",
		mcp.WithDescription("Lists the IoT tables, columns, known values and business synonyms that query_sensor_data understands."),
		mcp.WithString(
			"table",
			mcp.Description("Optional - one table to describe in detail, e.g. AlertLog"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	overview := cat.Describe()
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := strings.TrimSpace(req.GetString("table", ""))
		if name == "" {
			return mcp.NewToolResultText(overview), nil
		}

		t, ok := cat.Table(name)
		if !ok {
			return NewErrorResult("table_not_found",
				fmt.Sprintf("unknown table %q (tables: %s)", name, strings.Join(cat.Tables(), ", "))), nil
		}
		data, err := json.Marshal(describeTable(cat, t))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal table schema: %w", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func describeTable(cat *catalog.Catalog, t *catalog.Table) tableSchema {
	out := tableSchema{
		Name:           t.Name,
		Description:    t.Description,
		TemporalColumn: t.TemporalColumn,
		Columns:        make([]columnSchema, len(t.Columns)),
	}
	for i, c := range t.Columns {
		col := columnSchema{Name: c.Name, Type: string(c.Type), Aliases: c.Aliases}
		for _, v := range c.Values {
			col.Values = append(col.Values, v.Value)
		}
		out.Columns[i] = col
	}
	for _, other := range cat.Tables() {
		if other == t.Name {
			continue
		}
		if _, ok := cat.JoinBetween(t.Name, other); ok {
			out.JoinsTo = append(out.JoinsTo, other)
		}
	}
	return out
}
