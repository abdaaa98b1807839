package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ekaya-inc/sensorql/pkg/logging"
	"github.com/ekaya-inc/sensorql/pkg/models"
)

// maxCellWidth truncates long values such as JSON config columns.
const maxCellWidth = 40

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	sepStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// renderEnvelope formats an answer for a terminal: the rows as a table
// followed by the SQL that produced them.
func renderEnvelope(env *models.ResultEnvelope) string {
	var sb strings.Builder

	if !env.Success {
		sb.WriteString(errorStyle.Render(env.ErrorKind+": ") + env.Error + "\n")
		if env.Query != "" {
			sb.WriteString(mutedStyle.Render(env.Query) + "\n")
		}
		return sb.String()
	}

	rows := make([][]string, len(env.Rows))
	for i, row := range env.Rows {
		cells := make([]string, len(env.Columns))
		for j, col := range env.Columns {
			cells[j] = formatCell(row[col])
		}
		rows[i] = cells
	}
	sb.WriteString(renderTable(env.Columns, rows))

	summary := fmt.Sprintf("%d row(s) in %dms", env.RowCount, env.ElapsedMs)
	if env.Cached {
		summary += " (cached)"
	}
	sb.WriteString(mutedStyle.Render(summary) + "\n")
	for _, w := range env.Warnings {
		sb.WriteString(warningStyle.Render("warning: "+w) + "\n")
	}
	if env.Query != "" {
		sb.WriteString(mutedStyle.Render(env.Query) + "\n")
	}
	return sb.String()
}

func renderHistory(entries []*models.QueryHistoryEntry, total int) string {
	headers := []string{"asked", "question", "target", "rows", "ms", "result"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		result := "ok"
		if !e.Success {
			result = e.ErrorKind
		}
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			e.Question,
			e.Target,
			fmt.Sprint(e.RowCount),
			fmt.Sprint(e.ElapsedMs),
			result,
		})
	}
	return renderTable(headers, rows) + mutedStyle.Render(fmt.Sprintf("%d of %d entries", len(entries), total)) + "\n"
}

func renderHistoryStats(stats *models.QueryHistoryStats) string {
	var sb strings.Builder
	headers := []string{"target", "questions", "answered"}
	rows := make([][]string, 0, len(stats.ByTarget))
	for _, ts := range stats.ByTarget {
		target := ts.Target
		if target == "" {
			target = "(unresolved)"
		}
		rows = append(rows, []string{target, fmt.Sprint(ts.Total), fmt.Sprint(ts.Succeeded)})
	}
	sb.WriteString(renderTable(headers, rows))
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%d questions, %d answered (%.0f%%), avg %.0fms",
		stats.Total, stats.Succeeded, 100*stats.SuccessRate, stats.AvgElapsedMs)) + "\n")

	kinds := slices.Sorted(maps.Keys(stats.ByErrorKind))
	for _, k := range kinds {
		sb.WriteString(warningStyle.Render(fmt.Sprintf("%s: %d", k, stats.ByErrorKind[k])) + "\n")
	}
	return sb.String()
}

// renderTable lays out headers and rows in padded columns separated by bars.
func renderTable(headers []string, rows [][]string) string {
	var sb strings.Builder

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	// Width includes the padding.
	for i := range widths {
		widths[i] += 2
	}

	writeRow := func(cells []string, style lipgloss.Style) {
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			sb.WriteString(style.Width(widths[i]).Render(cell))
			if i < len(cells)-1 {
				sb.WriteString(sepStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}

	writeRow(headers, headerStyle)
	for i, w := range widths {
		sb.WriteString(sepStyle.Render(strings.Repeat("-", w)))
		if i < len(widths)-1 {
			sb.WriteString(sepStyle.Render("+"))
		}
	}
	sb.WriteString("\n")
	for _, row := range rows {
		writeRow(row, cellStyle)
	}
	return sb.String()
}

func formatCell(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "NULL"
	case float64:
		s = fmt.Sprintf("%.2f", val)
	case time.Time:
		s = val.UTC().Format(time.RFC3339)
	default:
		s = fmt.Sprint(val)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return logging.TruncateString(s, maxCellWidth)
}
