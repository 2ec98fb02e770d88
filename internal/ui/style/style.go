// Package style holds the colors and glyphs shared by terminal output.
package style

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Accent  = lipgloss.Color("#0EA5E9")
	Muted   = lipgloss.Color("#64748B")
	Dim     = lipgloss.Color("#94A3B8")
	Success = lipgloss.Color("#16A34A")
	Failure = lipgloss.Color("#DC2626")
	Caution = lipgloss.Color("#D97706")
)

// Glyphs.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Bullet  = "·"
	Arrow   = "→"
)
