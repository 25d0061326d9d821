// Package models contains the bubbletea model of the flash progress view.
package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/avrflash"
	"github.com/allbin/avrflash/internal/tui/colors"
	"github.com/allbin/avrflash/internal/tui/components"
	"github.com/allbin/avrflash/internal/tui/keys"
	"github.com/allbin/avrflash/internal/tui/styles"
)

// ProgressMsg carries a progress report from the flasher.
type ProgressMsg avrflash.Progress

// DoneMsg is sent once the flash has finished, successfully or not.
type DoneMsg struct {
	Result avrflash.Result
}

type FlashModel struct {
	title  string
	image  string
	cancel context.CancelFunc
	now    func() time.Time
	start  time.Time

	current avrflash.Progress
	phases  []avrflash.Phase
	result  *avrflash.Result
	note    string

	bar       progress.Model
	spinner   spinner.Model
	help      help.Model
	keys      keys.FlashKeys
	statusBar *components.StatusBar
	width     int
}

// NewFlashModel returns a model for flashing image. cancel is called when
// the user quits before the device has been erased.
func NewFlashModel(title, image string, cancel context.CancelFunc) *FlashModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SpinnerStyle

	m := &FlashModel{
		title:     title,
		image:     image,
		cancel:    cancel,
		now:       time.Now,
		bar:       progress.New(progress.WithGradient(colors.GradientStart, colors.GradientEnd), progress.WithWidth(60)),
		spinner:   s,
		help:      help.New(),
		keys:      keys.NewFlashKeys(),
		statusBar: components.NewStatusBar(title),
	}
	m.start = m.now()
	return m
}

// SetLinkInfo shows the serial settings in the status bar.
func (m *FlashModel) SetLinkInfo(info *components.LinkInfo) {
	m.statusBar.SetLinkInfo(info)
}

// Result returns the final result, or nil while the flash is running.
func (m *FlashModel) Result() *avrflash.Result {
	return m.result
}

func (m *FlashModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *FlashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.statusBar.SetWidth(msg.Width)
		m.help.Width = msg.Width
		w := msg.Width - 8
		if w > 80 {
			w = 80
		}
		if w < 10 {
			w = 10
		}
		m.bar.Width = w

	case ProgressMsg:
		p := avrflash.Progress(msg)
		if len(m.phases) == 0 || m.phases[len(m.phases)-1] != p.Phase {
			m.phases = append(m.phases, p.Phase)
		}
		m.current = p
		m.statusBar.SetProgress(p)

	case DoneMsg:
		res := msg.Result
		m.result = &res
		m.statusBar.SetResult(res)
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.result != nil {
				return m, tea.Quit
			}
			if m.committed() {
				m.note = "cannot abort while programming, waiting for the device to finish"
				return m, nil
			}
			// The flasher reports a canceled result, which ends the program.
			m.statusBar.SetCanceling()
			if m.cancel != nil {
				m.cancel()
			}

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *FlashModel) View() string {
	var b strings.Builder

	b.WriteString(styles.TitleStyle.Render(m.title))
	if m.image != "" {
		b.WriteString(" ")
		b.WriteString(styles.MutedStyle.Render(m.image))
	}
	b.WriteString("\n\n")

	for i, ph := range m.phases {
		if i == len(m.phases)-1 && m.result == nil {
			fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), styles.PhaseStyle.Render(ph.String()))
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", styles.SuccessStyle.Render("✓"), styles.MutedStyle.Render(ph.String()))
	}
	b.WriteString("\n")

	b.WriteString(m.bar.ViewAs(m.fraction()))
	if m.current.Total > 0 {
		fmt.Fprintf(&b, "  %d/%d bytes", m.current.Done, m.current.Total)
	}
	b.WriteString("\n")

	if m.note != "" && m.result == nil {
		b.WriteString("\n")
		b.WriteString(styles.MutedStyle.Render(m.note))
		b.WriteString("\n")
	}

	if m.result != nil {
		b.WriteString("\n")
		if m.result.OK() {
			b.WriteString(styles.SuccessStyle.Render(m.result.Message()))
		} else {
			b.WriteString(styles.ErrorStyle.Render(m.result.Message()))
		}
		b.WriteString("\n")
	}

	content := styles.ContentStyle.Render(b.String())

	parts := []string{content}
	if m.help.ShowAll {
		parts = append(parts, styles.HelpStyle.Render(m.help.View(m.keys)))
	} else {
		parts = append(parts, " "+m.help.View(m.keys))
	}
	parts = append(parts, m.statusBar.View(m.now().Sub(m.start)))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// committed reports whether the device has been erased and not yet exited.
func (m *FlashModel) committed() bool {
	if len(m.phases) == 0 {
		return false
	}
	return m.current.Phase >= avrflash.PhaseErasing && m.current.Phase <= avrflash.PhaseExiting
}

func (m *FlashModel) fraction() float64 {
	if m.result != nil && m.result.OK() {
		return 1
	}
	return m.current.Fraction()
}
