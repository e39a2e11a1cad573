// internal/platform/ui/history.go
package ui

import (
	"github.com/pterm/pterm"

	"datapress/internal/core/domain"
	"datapress/internal/core/ports"
)

// RenderHistory prints the run history as a table.
func RenderHistory(runs []ports.RunSummary) {
	if len(runs) == 0 {
		pterm.Info.Println("no runs recorded")
		return
	}

	rows := pterm.TableData{
		{"RUN", "TRIGGER", "STATE", "STARTED", "DURATION", "ERROR"},
	}
	for _, r := range runs {
		duration := ""
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).String()
		}
		state := string(r.State)
		switch r.State {
		case domain.StateSucceeded:
			state = pterm.Green(state)
		case domain.StateFailed:
			state = pterm.Red(state)
		}
		errText := r.Error
		if len(errText) > 60 {
			errText = errText[:57] + "..."
		}
		rows = append(rows, []string{
			r.ID,
			string(r.Trigger),
			state,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			duration,
			errText,
		})
	}

	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
