package keys

import "github.com/charmbracelet/bubbles/key"

// FlashKeys are the bindings of the flash progress view.
type FlashKeys struct {
	Quit key.Binding
	Help key.Binding
}

func NewFlashKeys() FlashKeys {
	return FlashKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c", "esc"),
			key.WithHelp("q/ctrl+c", "cancel / quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}

func (k FlashKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

func (k FlashKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit},
		{k.Help},
	}
}
