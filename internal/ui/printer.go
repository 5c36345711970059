// Package ui renders console output for people: the run banner, the scan
// summary, the gate line and the maintenance tables.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Severity colors (matching OWASP/Nuclei conventions)
var (
	CriticalColor = lipgloss.Color("#FF0000")
	HighColor     = lipgloss.Color("#FF6B6B")
	MediumColor   = lipgloss.Color("#FFD93D")
	LowColor      = lipgloss.Color("#6BCB77")
	InfoColor     = lipgloss.Color("#4D96FF")

	SuccessColor = lipgloss.Color("#00D26A")
	WarningColor = lipgloss.Color("#FFB800")
	MutedColor   = lipgloss.Color("#6B7280")
)

// ColorEnabled reports whether w is a terminal that should get color.
// NO_COLOR, CLICOLOR=0 and TERM=dumb all turn color off.
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor || termenv.EnvNoColor() || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Printer writes styled lines to one stream. With color off every method
// emits plain text.
type Printer struct {
	out   io.Writer
	color bool

	bold     lipgloss.Style
	muted    lipgloss.Style
	success  lipgloss.Style
	warning  lipgloss.Style
	severity map[models.Severity]lipgloss.Style
}

func NewPrinter(out io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(out)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	sev := func(c lipgloss.Color) lipgloss.Style { return r.NewStyle().Foreground(c).Bold(true) }
	return &Printer{
		out:     out,
		color:   color,
		bold:    r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(MutedColor),
		success: r.NewStyle().Foreground(SuccessColor).Bold(true),
		warning: r.NewStyle().Foreground(WarningColor).Bold(true),
		severity: map[models.Severity]lipgloss.Style{
			models.SeverityCritical: sev(CriticalColor),
			models.SeverityHigh:     sev(HighColor),
			models.SeverityMedium:   sev(MediumColor),
			models.SeverityLow:      sev(LowColor),
			models.SeverityInfo:     sev(InfoColor),
			models.SeveritySafe:     sev(SuccessColor),
		},
	}
}

func (p *Printer) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Severity colors a severity label.
func (p *Printer) Severity(sev models.Severity) string {
	label := sev.Label()
	style, ok := p.severity[models.ParseSeverity(label)]
	if !ok {
		return label
	}
	return p.paint(style, label)
}

func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// Title prints a bold heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.out, p.paint(p.bold, text))
}

// Warn prints a highlighted warning line.
func (p *Printer) Warn(text string) {
	fmt.Fprintln(p.out, p.paint(p.warning, "WARNING:")+" "+text)
}

// Field prints an indented "label: value" line.
func (p *Printer) Field(label, value string) {
	fmt.Fprintf(p.out, "  %s %s\n", p.paint(p.muted, label+":"), value)
}

// Banner is the header printed before a scan starts.
type Banner struct {
	Mode          string
	Analyzer      string
	Target        string
	Output        string
	GateProfile   string
	DisabledRules []string
	Progress      bool
	Interval      int
	Allowlist     []string
}

// PrintBanner prints the run configuration.
func (p *Printer) PrintBanner(b Banner) {
	p.Title(fmt.Sprintf("Running security scan (%s)", b.Mode))
	p.Field("analyzer", b.Analyzer)
	p.Field("target", b.Target)
	p.Field("output", b.Output)
	p.Field("gate-profile", b.GateProfile)
	p.Field("disabled-rules (advisory)", "["+strings.Join(b.DisabledRules, ", ")+"]")
	progress := "off"
	if b.Progress {
		progress = "on"
	}
	p.Field("progress", fmt.Sprintf("%s (interval=%ds)", progress, b.Interval))
	if len(b.Allowlist) == 0 {
		p.Field("allowlist", "none")
		return
	}
	p.Field("allowlist", "")
	for _, m := range b.Allowlist {
		fmt.Fprintf(p.out, "    - %s\n", m)
	}
}

// PrintSummary prints the scan summary with colored severity counts.
func (p *Printer) PrintSummary(report *models.Report, allow models.AllowlistSummary) {
	s := report.Summary
	p.Title("Scan summary")
	p.Field("skills scanned", fmt.Sprintf("%d (safe: %d)", s.TotalSkillsScanned, s.SafeSkills))
	p.Field("total findings", fmt.Sprint(s.TotalFindings))
	counts := severityCounts(s.FindingsBySeverity)
	for _, sev := range summaryOrder {
		if counts[sev] == 0 {
			continue
		}
		fmt.Fprintf(p.out, "    %s %d\n", p.Severity(sev), counts[sev])
	}
	if len(allow.Sources) > 0 {
		p.Field("suppressed", fmt.Sprint(allow.SuppressedCount))
	}
	if allow.ExpiredRulesCount > 0 {
		p.Field("expired rules", p.paint(p.warning, fmt.Sprint(allow.ExpiredRulesCount)))
	}

	for _, res := range report.Results {
		if len(res.Findings) == 0 {
			continue
		}
		fmt.Fprintf(p.out, "\n%s  max=%s\n", p.paint(p.bold, res.SkillName), p.Severity(res.MaxSeverity()))
		for _, f := range sortedFindings(res.Findings) {
			fmt.Fprintf(p.out, "  %s %s  %s%s\n", p.Severity(f.Severity), f.RuleID, f.Title, p.paint(p.muted, location(f)))
		}
	}
}

// PrintGate prints the gate line.
func (p *Printer) PrintGate(reason string, blocked bool) {
	style := p.success
	if blocked {
		style = p.severity[models.SeverityCritical]
	}
	fmt.Fprintf(p.out, "Gate: %s\n", p.paint(style, reason))
}

// PrintArtifacts lists written files.
func (p *Printer) PrintArtifacts(paths []string) {
	fmt.Fprintln(p.out, "Artifacts:")
	for _, path := range paths {
		fmt.Fprintf(p.out, "  %s\n", path)
	}
}

// Level colors text by a diff level name: critical, moderate or info.
func (p *Printer) Level(level, text string) string {
	switch level {
	case "critical":
		return p.paint(p.severity[models.SeverityCritical], text)
	case "moderate":
		return p.paint(p.warning, text)
	case "info":
		return p.paint(p.success, text)
	default:
		return text
	}
}
