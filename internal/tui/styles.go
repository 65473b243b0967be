package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7C3AED")
	UpColor      = lipgloss.Color("#10B981")
	DownColor    = lipgloss.Color("#EF4444")
	AccentColor  = lipgloss.Color("#F59E0B")

	BorderColor      = lipgloss.Color("#374151")
	FocusBorderColor = lipgloss.Color("#7C3AED")

	TextColor          = lipgloss.Color("#F9FAFB")
	TextSecondaryColor = lipgloss.Color("#9CA3AF")
	TextMutedColor     = lipgloss.Color("#6B7280")
)

// Panel styles
var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	FocusedPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(FocusBorderColor).
				Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextSecondaryColor)

	RowStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	SelectedRowStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Background(lipgloss.Color("#374151"))
)

// Text styles
var (
	PriceUpStyle   = lipgloss.NewStyle().Foreground(UpColor)
	PriceDownStyle = lipgloss.NewStyle().Foreground(DownColor)
	MutedStyle     = lipgloss.NewStyle().Foreground(TextMutedColor)
	SpikeStyle     = lipgloss.NewStyle().Bold(true).Foreground(AccentColor)
	ChartStyle     = lipgloss.NewStyle().Foreground(PrimaryColor)
)

// Status bar styles
var (
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1)

	StatusBarKeyStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(PrimaryColor).
				Background(lipgloss.Color("#1F2937"))

	StatusBarDescStyle = lipgloss.NewStyle().
				Foreground(TextMutedColor).
				Background(lipgloss.Color("#1F2937"))

	RunningStyle = lipgloss.NewStyle().Bold(true).Foreground(UpColor)
	StoppedStyle = lipgloss.NewStyle().Bold(true).Foreground(DownColor)
)

// RenderTitle renders a panel title.
func RenderTitle(title string, focused bool) string {
	if focused {
		return TitleStyle.Underline(true).Render(title)
	}
	return TitleStyle.Render(title)
}

// changeStyle picks the up/down style for a signed change.
func changeStyle(change float64) lipgloss.Style {
	switch {
	case change > 0:
		return PriceUpStyle
	case change < 0:
		return PriceDownStyle
	}
	return RowStyle
}
