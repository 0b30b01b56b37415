// Package ui provides the visual styling for the sparkeye session
// interface, plus the terminal frame preview renderer.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette. Verdict and state colors keep the bench overlay
// semantics: green passes, yellow thinks, red fails.
var (
	// Light mode colors (default)
	LightBackground = lipgloss.Color("#f6f5f2")
	LightForeground = lipgloss.Color("#1f2430")
	LightPrimary    = lipgloss.Color("#1f2430")
	LightAccent     = lipgloss.Color("#f59f00") // spark amber
	LightMuted      = lipgloss.Color("#9aa0ab")
	LightBorder     = lipgloss.Color("#d8dbe0")
	LightCard       = lipgloss.Color("#ffffff")

	// Dark mode colors
	DarkBackground = lipgloss.Color("#15181e")
	DarkForeground = lipgloss.Color("#e8e6e3")
	DarkPrimary    = lipgloss.Color("#f59f00")
	DarkAccent     = lipgloss.Color("#f59f00")
	DarkMuted      = lipgloss.Color("#6b7280")
	DarkBorder     = lipgloss.Color("#2c313c")
	DarkCard       = lipgloss.Color("#1d232c")

	// Semantic colors (same in both modes)
	Correct   = lipgloss.Color("#40c057") // green
	Partial   = lipgloss.Color("#fab005") // yellow
	Incorrect = lipgloss.Color("#fa5252") // red
	Thinking  = lipgloss.Color("#fab005") // yellow
	Steady    = lipgloss.Color("#40c057") // green
)

// Theme holds the current color scheme.
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme.
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		Card:       LightCard,
		IsDark:     false,
	}
}

// DarkTheme returns the dark mode theme.
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Card:       DarkCard,
		IsDark:     true,
	}
}

// DetectTheme picks dark mode from COLORFGBG or SPARKEYE_DARK_MODE and
// defaults to dark; workbenches rarely run light terminals.
func DetectTheme() Theme {
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		// Format is "foreground;background"; ANSI backgrounds 7 and 15
		// are the light ones.
		parts := strings.Split(colorTerm, ";")
		if len(parts) == 2 {
			if bgIdx, err := strconv.Atoi(parts[1]); err == nil {
				if bgIdx == 7 || bgIdx == 15 {
					return LightTheme()
				}
				return DarkTheme()
			}
		}
	}
	if os.Getenv("SPARKEYE_DARK_MODE") == "0" {
		return LightTheme()
	}
	return DarkTheme()
}

// Styles holds the styled components of the session view.
type Styles struct {
	Theme Theme

	// Layout
	Header lipgloss.Style
	Footer lipgloss.Style
	Badge  lipgloss.Style

	// Text
	Title lipgloss.Style
	Body  lipgloss.Style
	Muted lipgloss.Style
	Bold  lipgloss.Style

	// Watch states
	StateMoving    lipgloss.Style
	StateSteady    lipgloss.Style
	StateAnalyzing lipgloss.Style
	StateDone      lipgloss.Style
	StateLocked    lipgloss.Style

	// Verdicts
	VerdictCorrect   lipgloss.Style
	VerdictPartial   lipgloss.Style
	VerdictIncorrect lipgloss.Style
	VerdictError     lipgloss.Style

	// Components
	PreviewBorder lipgloss.Style
	DetailsPane   lipgloss.Style
	Spinner       lipgloss.Style
	Divider       lipgloss.Style
}

// NewStyles creates a Styles instance for the theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#1a1a1a")).
			Padding(0, 1).
			Bold(true),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		StateMoving: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		StateSteady: lipgloss.NewStyle().
			Foreground(Steady).
			Bold(true),

		StateAnalyzing: lipgloss.NewStyle().
			Foreground(Thinking).
			Bold(true),

		StateDone: lipgloss.NewStyle().
			Foreground(Correct).
			Bold(true),

		StateLocked: lipgloss.NewStyle().
			Foreground(Incorrect).
			Bold(true),

		VerdictCorrect: lipgloss.NewStyle().
			Foreground(Correct).
			Bold(true),

		VerdictPartial: lipgloss.NewStyle().
			Foreground(Partial).
			Bold(true),

		VerdictIncorrect: lipgloss.NewStyle().
			Foreground(Incorrect).
			Bold(true),

		VerdictError: lipgloss.NewStyle().
			Foreground(Incorrect),

		PreviewBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border),

		DetailsPane: lipgloss.NewStyle().
			Padding(0, 1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Accent),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
	}
}

// DefaultStyles returns styles with the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider returns a horizontal divider.
func (s Styles) RenderDivider(width int) string {
	if width <= 0 {
		return ""
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
