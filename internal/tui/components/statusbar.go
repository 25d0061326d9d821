package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/avrflash"
	"github.com/allbin/avrflash/internal/tui/colors"
	"github.com/allbin/avrflash/internal/tui/styles"
)

// LinkInfo describes the serial settings shown on the right of the bar.
type LinkInfo struct {
	ResetBaud  int
	UploadBaud int
}

type StatusBar struct {
	title  string
	port   string
	phase  avrflash.Phase
	status styles.StatusType
	err    error
	width  int
	link   *LinkInfo
}

func NewStatusBar(title string) *StatusBar {
	return &StatusBar{
		title: title,
		phase: avrflash.PhaseDecoding,
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetLinkInfo(info *LinkInfo) {
	sb.link = info
}

// SetProgress records the phase and, once known, the port being used.
func (sb *StatusBar) SetProgress(p avrflash.Progress) {
	sb.phase = p.Phase
	if p.Port != "" {
		sb.port = p.Port
	}
}

func (sb *StatusBar) SetCanceling() {
	sb.status = styles.StatusCanceling
}

func (sb *StatusBar) SetResult(res avrflash.Result) {
	if res.OK() {
		sb.status = styles.StatusSuccess
		sb.err = nil
	} else {
		sb.status = styles.StatusFailed
		sb.err = res.Err
	}
	if res.UploadPort != "" {
		sb.port = res.UploadPort
	}
}

func (sb *StatusBar) Status() styles.StatusType {
	return sb.status
}

// View renders the bar. elapsed is shown on the far right.
func (sb *StatusBar) View(elapsed time.Duration) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	badge := styles.GetStatusStyle(sb.status).Render(sb.status.Label())

	title := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.title)

	port := sb.port
	if port == "" {
		port = "no port"
	}
	portView := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(port)

	var indicator string
	switch {
	case sb.err != nil:
		indicator = lipgloss.NewStyle().Foreground(colors.Red).Render("✗")
	case sb.status == styles.StatusSuccess:
		indicator = lipgloss.NewStyle().Foreground(colors.Green).Render("●")
	default:
		indicator = lipgloss.NewStyle().Foreground(colors.Yellow).Render("○")
	}

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	linkText := "⚡ avr109"
	if sb.link != nil {
		linkText = fmt.Sprintf("⚡ %d/%d baud", sb.link.ResetBaud, sb.link.UploadBaud)
	}
	link := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(linkText)

	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(elapsed.Round(100 * time.Millisecond).String())

	left := lipgloss.JoinHorizontal(lipgloss.Left, badge, title, portView, indicator, divider)
	right := lipgloss.JoinHorizontal(lipgloss.Left, link, divider, clock)

	spacerWidth := width - lipgloss.Width(left) - lipgloss.Width(right)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, left, spacer, right))
}
