// Package diagnostic renders the analyzer's own progress narration on the
// terminal, separate from the structured slog output the logging package
// produces. Every phase of the pipeline prints a short "we are now doing X"
// line as it runs; this package owns that line's formatting.
package diagnostic

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Severity selects the color used for a narration line.
type Severity int

const (
	// Info is routine phase narration ("searching for a crashing schedule").
	Info Severity = iota
	// Notice calls out a result worth the user's attention without being
	// an error (a baseline chosen by the fallback branch, a long search).
	Notice
	// Warn flags a condition that is not fatal but may surprise the user
	// (no criterion supplied, replaying a record from an older version).
	Warn
)

var (
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

func styleFor(s Severity) lipgloss.Style {
	switch s {
	case Notice:
		return noticeStyle
	case Warn:
		return warnStyle
	default:
		return infoStyle
	}
}

// Printer writes ":: "-prefixed narration lines to an output stream,
// color-coding by severity only when that stream is an interactive terminal.
type Printer struct {
	out      io.Writer
	colorize bool
	verbose  bool
}

// NewPrinter builds a Printer writing to w. Color is enabled only when w is
// backed by a terminal, the same gate the teacher's exec path uses before
// touching raw mode.
func NewPrinter(w io.Writer, verbose bool) *Printer {
	colorize := false
	if f, ok := w.(*os.File); ok {
		colorize = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: w, colorize: colorize, verbose: verbose}
}

// NewStderrPrinter is the constructor the cmd package wires up by default.
func NewStderrPrinter(verbose bool) *Printer {
	return NewPrinter(os.Stderr, verbose)
}

// Line prints a single narration line at the given severity.
func (p *Printer) Line(sev Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	prefix := "::"
	if p.colorize {
		prefix = styleFor(sev).Render(prefix)
	}
	fmt.Fprintf(p.out, "%s %s\n", prefix, msg)
}

// Infof narrates routine phase progress.
func (p *Printer) Infof(format string, args ...any) {
	p.Line(Info, format, args...)
}

// Noticef narrates a result worth calling out.
func (p *Printer) Noticef(format string, args ...any) {
	p.Line(Notice, format, args...)
}

// Warnf narrates a non-fatal but surprising condition.
func (p *Printer) Warnf(format string, args ...any) {
	p.Line(Warn, format, args...)
}

// Verbosef prints only when the printer was constructed with verbose
// narration enabled. The minimizer uses it to report each entry it drops.
func (p *Printer) Verbosef(format string, args ...any) {
	if !p.verbose {
		return
	}
	p.Line(Info, format, args...)
}

// Truncate shortens s to at most limit bytes, appending a marker noting how
// many bytes were dropped. Mirrors the original analyzer's habit of
// truncating minimized schedule dumps and subprocess output before printing
// them, so a pathological run never floods the terminal.
func Truncate(limit int, s string) string {
	if len(s) <= limit {
		return s
	}
	dropped := len(s) - limit
	var b strings.Builder
	b.WriteString(s[:limit])
	fmt.Fprintf(&b, "... (%d more bytes)", dropped)
	return b.String()
}
