// Package theme provides the Lip Gloss color palette and reusable styles
// for the hexboard TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Session status colors.
var (
	ColorWorking = lipgloss.Color("#d97706")
	ColorWaiting = lipgloss.Color("#2563eb")
	ColorIdle    = lipgloss.Color("#4b5563")
	ColorOffline = lipgloss.Color("#374151")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Tool family colors, used for the tool indicator and bursts.
var (
	ColorToolFile   = lipgloss.Color("#06b6d4")
	ColorToolSearch = lipgloss.Color("#a855f7")
	ColorToolShell  = lipgloss.Color("#f59e0b")
	ColorToolWeb    = lipgloss.Color("#4285f4")
	ColorToolTask   = lipgloss.Color("#10b981")
)

// Git change colors.
var (
	ColorAdded   = lipgloss.Color("#22c55e")
	ColorRemoved = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the color for a session status string.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "working":
		return ColorWorking
	case "waiting":
		return ColorWaiting
	case "idle":
		return ColorIdle
	case "offline":
		return ColorOffline
	default:
		return ColorDefault
	}
}

// StatusGlyph returns the glyph drawn in the middle of a zone.
func StatusGlyph(status string) string {
	switch status {
	case "working":
		return "⚙"
	case "waiting":
		return "◌"
	case "idle":
		return "○"
	case "offline":
		return "✗"
	default:
		return "·"
	}
}

// FamilyColor returns the color for a tool family name.
func FamilyColor(family string) lipgloss.Color {
	switch family {
	case "file":
		return ColorToolFile
	case "search":
		return ColorToolSearch
	case "shell":
		return ColorToolShell
	case "web":
		return ColorToolWeb
	case "task":
		return ColorToolTask
	default:
		return ColorDefault
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)
