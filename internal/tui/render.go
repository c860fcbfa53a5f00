package tui

import (
	"fmt"
	"sort"
	"strings"

	"ni225-oracle/internal/domain"
	"ni225-oracle/internal/service"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	decisionBase = lipgloss.NewStyle().Bold(true).Padding(0, 2).Border(lipgloss.RoundedBorder())
)

// signalColor maps a signal to green for buys, red for sells.
func signalColor(s domain.Signal) lipgloss.Color {
	switch {
	case s > 0:
		return lipgloss.Color("10")
	case s < 0:
		return lipgloss.Color("9")
	default:
		return lipgloss.Color("7")
	}
}

// RenderReport draws the decision box, the recent rows table and the
// diagnostics. maxColumns caps the feature columns shown; 0 shows all.
func RenderReport(r *service.Report, maxColumns int) string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("%s  %s", domain.PrimarySymbol, r.SignalDate.Format(domain.DateLayout))))
	decision := decisionBase.BorderForeground(signalColor(r.Signal)).Foreground(signalColor(r.Signal)).
		Render(fmt.Sprintf("%s  %+.1f", r.Action, float64(r.Signal)))
	sections = append(sections, decision)

	meta := fmt.Sprintf("profile %s  run %s", r.Profile, r.RunID)
	if r.ManualOpen != nil {
		meta += fmt.Sprintf("  manual open %.2f", *r.ManualOpen)
	}
	sections = append(sections, mutedStyle.Render(meta))

	if len(r.Rows) > 0 {
		sections = append(sections, recentTable(r, maxColumns))
	}

	if len(r.Diagnostics) > 0 {
		lines := make([]string, len(r.Diagnostics))
		for i, d := range r.Diagnostics {
			lines[i] = warnStyle.Render("! " + d)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func recentTable(r *service.Report, maxColumns int) string {
	columns := reportColumns(r)
	if maxColumns > 0 && len(columns) > maxColumns {
		columns = columns[:maxColumns]
	}

	headers := append([]string{"Date", "Signal"}, columns...)
	rows := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		cells := []string{row.Date.Format(domain.DateLayout), "-"}
		if row.Prediction != nil {
			cells[1] = fmt.Sprintf("%+.1f", *row.Prediction)
		}
		for _, name := range columns {
			v, ok := row.Features[name]
			if !ok {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, fmt.Sprintf("%.3f", v))
		}
		rows = append(rows, cells)
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// reportColumns prefers the ModelInput order and falls back to the sorted
// feature names of a report loaded from storage.
func reportColumns(r *service.Report) []string {
	if len(r.Columns) > 0 {
		return r.Columns
	}
	seen := make(map[string]struct{})
	var names []string
	for _, row := range r.Rows {
		for name := range row.Features {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// RenderError formats a failed run.
func RenderError(err error) string {
	return errorStyle.Render("run failed: " + err.Error())
}
