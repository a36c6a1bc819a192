package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/porticolabs/portico/portico"
	"github.com/porticolabs/portico/portico/gate"
)

const maxCellWidth = 50

// renderRows formats a result set as a markdown table.
func renderRows(rows *gate.NamedRows) string {
	if rows == nil || len(rows.Headers) == 0 {
		return "_Empty result_"
	}
	if len(rows.Rows) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", rows.Headers)
	}

	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(rows.Headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(rows.Headers)

	for _, row := range rows.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatCell(v)
		}
		table.Append(cells)
	}
	table.Render()

	result := tableString.String()
	return strings.TrimSuffix(result, "\n") + fmt.Sprintf("\n\n_%d rows_", len(rows.Rows))
}

func formatCell(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "null"
	case string:
		s = val
	case []byte:
		s = fmt.Sprintf("bytes[%d]", len(val))
	case []any, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(b)
		}
	default:
		s = fmt.Sprintf("%v", val)
	}
	if len(s) > maxCellWidth {
		s = s[:maxCellWidth] + "..."
	}
	return s
}

// renderDiagnostic renders a diagnostic with its source carets, the
// heading colorized when stderr is a terminal.
func renderDiagnostic(d *portico.Diagnostic) string {
	return color.RedString("error") + " " + d.Render()
}
