package service

import (
	"fmt"
	"strings"

	"ni225-oracle/internal/domain"
)

// FormatText renders a report as plain text for chat and tool replies.
func FormatText(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s signal for %s: %s (%+.1f)\n",
		strings.TrimPrefix(domain.PrimarySymbol, "^"), r.SignalDate.Format(domain.DateLayout), r.Action, float64(r.Signal))
	fmt.Fprintf(&b, "profile %s, run %s\n", r.Profile, r.RunID)
	if r.ManualOpen != nil {
		fmt.Fprintf(&b, "manual open %.2f\n", *r.ManualOpen)
	}

	if len(r.Rows) > 0 {
		b.WriteString("\nrecent:\n")
		for _, row := range r.Rows {
			pred := "-"
			if row.Prediction != nil {
				pred = fmt.Sprintf("%+.1f", *row.Prediction)
			}
			fmt.Fprintf(&b, "  %s  %s\n", row.Date.Format(domain.DateLayout), pred)
		}
	}

	if len(r.Diagnostics) > 0 {
		b.WriteString("\ndiagnostics:\n")
		for _, d := range r.Diagnostics {
			b.WriteString("  " + d + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
