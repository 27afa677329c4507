package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"crewgen/pkg/bundle"
	"crewgen/pkg/display"
	"crewgen/pkg/envelope"
)

// Box drawing characters (rounded)
const (
	boxTopLeft     = "╭"
	boxTopRight    = "╮"
	boxBottomLeft  = "╰"
	boxBottomRight = "╯"
	boxHorizontal  = "─"
	boxVertical    = "│"
)

// PhaseState represents the display state of a phase
type PhaseState int

const (
	PhasePending PhaseState = iota
	PhaseRunning
	PhaseSuccess
	PhaseFallback
	PhaseFailure
	PhaseSkipped
)

// stateFor maps an envelope status to a display state.
func stateFor(s envelope.Status) PhaseState {
	switch s {
	case envelope.StatusSuccess:
		return PhaseSuccess
	case envelope.StatusFallback:
		return PhaseFallback
	case envelope.StatusSkipped:
		return PhaseSkipped
	default:
		return PhaseFailure
	}
}

// phaseProgress tracks progress for a single phase
type phaseProgress struct {
	Name     string
	Skipped  bool
	State    PhaseState
	Duration time.Duration
}

// progressDisplay handles the visual output of a run
type progressDisplay struct {
	p       *display.Printer
	title   string
	jobID   string
	workDir string
	dryRun  bool
	phases  []phaseProgress
	active  int // phases that will execute
	ordinal int // executed so far
	width   int
}

func newProgressDisplay(p *display.Printer, b *bundle.Bundle, skipped func(bundle.Phase) bool, jobID, workDir string, dryRun bool) *progressDisplay {
	phases := make([]phaseProgress, len(b.Phases))
	active := 0
	for i, ph := range b.Phases {
		phases[i] = phaseProgress{Name: ph.Name, State: PhasePending}
		if skipped(ph) {
			phases[i].Skipped = true
			phases[i].State = PhaseSkipped
			continue
		}
		active++
	}
	return &progressDisplay{
		p:       p,
		title:   b.DisplayTitle(),
		jobID:   jobID,
		workDir: workDir,
		dryRun:  dryRun,
		phases:  phases,
		active:  active,
		width:   72,
	}
}

func (d *progressDisplay) icon(state PhaseState) string {
	switch state {
	case PhaseRunning:
		return d.p.Cyan(display.IconRunning)
	case PhaseSuccess:
		return d.p.Green(display.IconSuccess)
	case PhaseFallback:
		return d.p.Yellow(display.IconFallback)
	case PhaseFailure:
		return d.p.Red(display.IconFailure)
	case PhaseSkipped:
		return d.p.Dim(display.IconSkipped)
	default:
		return d.p.Dim(display.IconPending)
	}
}

func (d *progressDisplay) boxLine(text string, style func(string) string) {
	padding := d.width - 2 - len([]rune(text))
	if padding < 0 {
		padding = 0
	}
	d.p.Printf("%s%s%s%s\n",
		d.p.Cyan(boxVertical), style(text), strings.Repeat(" ", padding), d.p.Cyan(boxVertical))
}

// header prints the job box and the phase plan
func (d *progressDisplay) header() {
	d.p.Println(d.p.Cyan(boxTopLeft + strings.Repeat(boxHorizontal, d.width-2) + boxTopRight))
	d.boxLine("  "+d.title, d.p.Bold)
	d.boxLine("  Job: "+d.jobID, d.p.Dim)
	d.p.Println(d.p.Cyan(boxBottomLeft + strings.Repeat(boxHorizontal, d.width-2) + boxBottomRight))

	if d.workDir != "" {
		d.p.Printf("\n  %s %s\n", d.p.Dim("Output:"), d.workDir)
	}
	if d.dryRun {
		d.p.Printf("  %s\n", d.p.Yellow("Dry run: no commands are executed and no files are written"))
	}
	d.p.Println()
	for _, ph := range d.phases {
		suffix := ""
		if ph.Skipped {
			suffix = " " + d.p.Dim("(skipped)")
		}
		d.p.Printf("  %s  %s%s\n", d.icon(ph.State), ph.Name, suffix)
	}
	d.p.Println()
}

func (d *progressDisplay) cooldown(delay time.Duration) {
	if delay <= 0 {
		return
	}
	d.p.Printf("  %s\n", d.p.Dim(fmt.Sprintf("Cooling down %s before next phase...", display.FormatDuration(delay))))
}

// start prints "[i/n] Name..." for the next executed phase
func (d *progressDisplay) start(index int, description string) {
	d.ordinal++
	d.phases[index].State = PhaseRunning
	line := fmt.Sprintf("[%d/%d] %s...", d.ordinal, d.active, d.phases[index].Name)
	if description != "" {
		line += " " + d.p.Dim(description)
	}
	d.p.Println(d.p.Bold(line))
}

func (d *progressDisplay) complete(index int, e Entry) {
	ph := &d.phases[index]
	ph.State = stateFor(e.Status)
	ph.Duration = e.Duration

	detail := string(e.Status)
	if e.Model != "" {
		detail += " · " + e.Model
	}
	if e.OutputRef != "" {
		detail += " · " + e.OutputRef
	}
	d.p.Printf("  %s  %-16s %s  %s\n",
		d.icon(ph.State), ph.Name, detail, d.p.Dim(display.FormatDuration(e.Duration)))
	if e.Error != "" {
		d.p.Printf("     %s\n", d.p.Red(e.Error))
	}
	d.p.Println()
}

// summary prints the final report table
func (d *progressDisplay) summary(r *Report) {
	d.p.Printf("  %s\n\n", d.p.Cyan(strings.Repeat(boxHorizontal, d.width-4)))

	for _, e := range r.Entries {
		d.p.Printf("  %s  %-16s %-8s %s\n",
			d.icon(stateFor(e.Status)), e.Phase, string(e.Status), d.p.Dim(display.FormatDuration(e.Duration)))
	}
	for _, ph := range d.phases {
		if ph.Skipped {
			d.p.Printf("  %s  %-16s %s\n", d.icon(PhaseSkipped), ph.Name, d.p.Dim("skipped"))
		}
	}
	d.p.Println()

	status := d.p.Green(fmt.Sprintf("%d/%d complete", r.Succeeded(), len(r.Entries)))
	if failed := r.Failed(); failed > 0 {
		status += "  " + d.p.Dim("·") + "  " + d.p.Red(fmt.Sprintf("%d failed", failed))
	}
	d.p.Printf("  %s %s  %s  %s\n\n",
		d.p.Dim("Elapsed:"), display.FormatDuration(r.Duration), d.p.Dim("·"), status)
}
