// internal/platform/ui/pterm_presenter.go
// Package ui renders pipeline run progress in the terminal.
package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"datapress/internal/core/domain"
	"datapress/internal/core/ports"
)

// PTermPresenter implements ports.Presenter using the pterm library for
// spinners, colors and symbols.
type PTermPresenter struct {
	mu sync.Mutex

	spinner   *pterm.SpinnerPrinter
	startTime time.Time
}

// NewPTermPresenter creates a terminal presenter.
func NewPTermPresenter() *PTermPresenter {
	return &PTermPresenter{}
}

// StartRun shows the run header.
func (p *PTermPresenter) StartRun(run *domain.Run, totalSteps int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()

	pterm.DefaultHeader.
		WithBackgroundStyle(pterm.NewStyle(pterm.BgCyan)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack)).
		Println("datapress - Build & Publish Pipeline")

	pterm.Println()
	pterm.Printf("  Pipeline: %s\n", pterm.Cyan(run.Pipeline))
	pterm.Printf("  Trigger:  %s\n", pterm.Yellow(string(run.Trigger)))
	pterm.Printf("  Steps:    %d\n", totalSteps)
	pterm.Println()
}

// StartStep opens a spinner for the step.
func (p *PTermPresenter) StartStep(name string, index, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	spinner, _ := pterm.DefaultSpinner.
		WithStyle(pterm.NewStyle(pterm.FgCyan)).
		Start(fmt.Sprintf("[%d/%d] %s...", index, total, pterm.Cyan(name)))
	p.spinner = spinner
}

// FinishStep resolves the step's spinner.
func (p *PTermPresenter) FinishStep(name string, status ports.StepStatus, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Skipped steps never opened a spinner: they arrive after a failed
	// step already resolved it.
	if status == ports.StepStatusSkipped {
		pterm.Warning.Printf("%s (skipped)\n", name)
		return
	}
	if p.spinner == nil {
		return
	}
	switch status {
	case ports.StepStatusSuccess:
		p.spinner.Success(fmt.Sprintf("%s (%s)", name, d.Round(time.Millisecond)))
	case ports.StepStatusFailed:
		p.spinner.Fail(fmt.Sprintf("%s (%s)", name, d.Round(time.Millisecond)))
	default:
		p.spinner.Warning(name)
	}
	p.spinner = nil
}

// FinishRun shows the run summary.
func (p *PTermPresenter) FinishRun(run *domain.Run, runErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}

	elapsed := time.Since(p.startTime).Round(time.Millisecond)
	pterm.Println()
	if runErr != nil {
		pterm.Error.Printf("Run %s failed after %s: %v\n", run.ID, elapsed, runErr)
		return
	}
	if run.Artifact != nil {
		pterm.Printf("  Artifact: %s (%d bytes)\n", run.Artifact.Path, run.Artifact.Size)
	}
	pterm.Success.Printf("Run %s succeeded in %s\n", run.ID, elapsed)
}
