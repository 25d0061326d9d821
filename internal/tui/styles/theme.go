package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/avrflash/internal/tui/colors"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	PhaseStyle = lipgloss.NewStyle().
			Foreground(colors.Text).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(colors.Overlay0)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(colors.Peach)

	ContentStyle = lipgloss.NewStyle().
			BorderTop(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(colors.Surface1).
			Padding(1, 2)

	HelpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 2)
)

// StatusType is the coarse state shown in the status bar.
type StatusType int

const (
	StatusRunning StatusType = iota
	StatusSuccess
	StatusFailed
	StatusCanceling
)

func (s StatusType) Label() string {
	switch s {
	case StatusSuccess:
		return "DONE"
	case StatusFailed:
		return "FAILED"
	case StatusCanceling:
		return "CANCEL"
	default:
		return "FLASH"
	}
}

// GetStatusStyle returns the badge style for status.
func GetStatusStyle(status StatusType) lipgloss.Style {
	badge := lipgloss.NewStyle().
		Foreground(colors.Base).
		Bold(true).
		Padding(0, 1)

	switch status {
	case StatusSuccess:
		return badge.Background(colors.Green)
	case StatusFailed:
		return badge.Background(colors.Red)
	case StatusCanceling:
		return badge.Background(colors.Yellow)
	default:
		return badge.Background(colors.Blue)
	}
}
