// Package display renders user-facing terminal output: colored progress,
// banners, summaries and markdown responses. Colors are dropped when the
// destination is not a terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Status icons
const (
	IconPending  = "○"
	IconRunning  = "●"
	IconSuccess  = "✓"
	IconFailure  = "✗"
	IconSkipped  = "◌"
	IconFallback = "↻"
)

// Box drawing characters
const (
	boxDouble     = "═"
	boxHorizontal = "─"
)

const bannerWidth = 64

// Printer writes styled output to one destination.
type Printer struct {
	w        io.Writer
	out      *termenv.Output
	terminal bool
	renderer *glamour.TermRenderer
}

// New returns a Printer for w. Styling is enabled only when w is a terminal.
func New(w io.Writer) *Printer {
	return &Printer{
		w:        w,
		out:      termenv.NewOutput(w),
		terminal: isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Terminal reports whether output goes to an interactive terminal.
func (p *Printer) Terminal() bool {
	return p.terminal
}

func (p *Printer) style(s string, color termenv.Color) termenv.Style {
	st := p.out.String(s)
	if color != nil {
		st = st.Foreground(color)
	}
	return st
}

func (p *Printer) Bold(s string) string   { return p.out.String(s).Bold().String() }
func (p *Printer) Dim(s string) string    { return p.out.String(s).Faint().String() }
func (p *Printer) Red(s string) string    { return p.style(s, termenv.ANSIRed).String() }
func (p *Printer) Green(s string) string  { return p.style(s, termenv.ANSIGreen).String() }
func (p *Printer) Yellow(s string) string { return p.style(s, termenv.ANSIYellow).String() }
func (p *Printer) Cyan(s string) string   { return p.style(s, termenv.ANSICyan).String() }
func (p *Printer) White(s string) string  { return p.style(s, termenv.ANSIWhite).String() }

// Heading renders bold cyan text.
func (p *Printer) Heading(s string) string {
	return p.style(s, termenv.ANSICyan).Bold().String()
}

func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) Println(args ...any) {
	fmt.Fprintln(p.w, args...)
}

// Markdown prints a response. On a terminal it is rendered with glamour;
// elsewhere the raw text is written unchanged.
func (p *Printer) Markdown(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if p.terminal {
		if p.renderer == nil {
			p.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
		}
		if p.renderer != nil {
			if out, err := p.renderer.Render(text); err == nil {
				fmt.Fprint(p.w, out)
				return
			}
		}
	}
	fmt.Fprintln(p.w, strings.TrimRight(text, "\n"))
}

// Field is one labelled line of a banner or summary.
type Field struct {
	Label string
	Value string
}

// Banner prints a boxed title followed by labelled fields.
func (p *Printer) Banner(title string, fields []Field) {
	rule := strings.Repeat(boxDouble, bannerWidth)
	p.Println()
	p.Println(p.Heading("╔" + rule + "╗"))
	p.Println(p.Heading("║  " + title))
	p.Println(p.Heading("╚" + rule + "╝"))
	p.Println()
	p.fields(fields, 15)
	p.Println()
	p.Println(p.Dim(strings.Repeat(boxHorizontal, bannerWidth)))
	p.Println()
}

// Warning prints lines in yellow with a leading marker.
func (p *Printer) Warning(lines []string) {
	for i, line := range lines {
		prefix := "   "
		if i == 0 {
			prefix = "⚠  "
		}
		p.Println("  " + p.Yellow(prefix+line))
	}
	if len(lines) > 0 {
		p.Println()
	}
}

// Section prints a titled block of labelled fields between double rules.
func (p *Printer) Section(title string, fields []Field) {
	rule := strings.Repeat(boxDouble, 42)
	p.Println()
	p.Println(p.Heading(rule))
	p.Println(p.Heading("  " + title))
	p.Println(p.Heading(rule))
	p.fields(fields, 14)
	p.Println(p.Heading(rule))
}

func (p *Printer) fields(fields []Field, width int) {
	for _, f := range fields {
		label := f.Label + ":"
		pad := width - len(label)
		if pad < 1 {
			pad = 1
		}
		p.Printf("  %s%s%s\n", p.Dim(label), strings.Repeat(" ", pad), f.Value)
	}
}

// Truncate shortens s to at most n runes, ending in "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return strings.Repeat(".", max(n, 0))
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// FormatDuration formats a duration as "45s" or "3m 12s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
