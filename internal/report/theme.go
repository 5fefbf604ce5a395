package report

import "github.com/charmbracelet/lipgloss"

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorAccent  = lipgloss.Color("#06b6d4")
)

type styles struct {
	box    lipgloss.Style
	header lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	accent lipgloss.Style
}

// newStyles binds the palette to r so color output follows the destination
// writer rather than stdout.
func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		box: r.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),
		header: r.NewStyle().Bold(true).Foreground(ColorBright),
		label:  r.NewStyle().Foreground(ColorDimmed).Width(labelWidth),
		value:  r.NewStyle().Foreground(ColorBright),
		good:   r.NewStyle().Foreground(ColorHealthy),
		warn:   r.NewStyle().Foreground(ColorWarning),
		accent: r.NewStyle().Foreground(ColorAccent),
	}
}
