package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/key"

	"github.com/amirbrooks/quicktask/internal/keyboard"
)

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	Archive    key.Binding
	Back       key.Binding
	FocusInput key.Binding
	Submit     key.Binding
	BreakDown  key.Binding
	Sort       key.Binding
	History    key.Binding
	All        key.Binding
	MoveUp     key.Binding
	MoveDown   key.Binding
	Subtask    key.Binding
	Quit       key.Binding
	ForceQuit  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
		Down:       key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
		Toggle:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "complete")),
		Archive:    key.NewBinding(key.WithKeys("backspace", "delete"), key.WithHelp("⌫", "archive")),
		Back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "input")),
		FocusInput: key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "input")),
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "add")),
		BreakDown:  key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "break down")),
		Sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "smart sort")),
		History:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "history")),
		All:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "all")),
		MoveUp:     key.NewBinding(key.WithKeys("shift+up"), key.WithHelp("⇧↑", "move up")),
		MoveDown:   key.NewBinding(key.WithKeys("shift+down"), key.WithHelp("⇧↓", "move down")),
		Subtask:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "subtask")),
		Quit:       key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		ForceQuit:  key.NewBinding(key.WithKeys("ctrl+c")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Archive, k.BreakDown, k.Sort, k.History, k.FocusInput, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.MoveUp, k.MoveDown, k.Back, k.FocusInput},
		{k.Toggle, k.Archive, k.Subtask, k.BreakDown, k.Sort},
		{k.History, k.All, k.Submit, k.Quit},
	}
}

// controllerKey maps the navigation keys the keyboard controller understands.
func (k keyMap) controllerKey(msg tea.KeyMsg) (keyboard.Key, bool) {
	switch {
	case key.Matches(msg, k.Up):
		return keyboard.KeyUp, true
	case key.Matches(msg, k.Down):
		return keyboard.KeyDown, true
	case key.Matches(msg, k.Toggle):
		return keyboard.KeySpace, true
	case msg.Type == tea.KeyBackspace:
		return keyboard.KeyBackspace, true
	case msg.Type == tea.KeyDelete:
		return keyboard.KeyDelete, true
	case key.Matches(msg, k.Back):
		return keyboard.KeyEscape, true
	case key.Matches(msg, k.FocusInput):
		return keyboard.KeyFocusInput, true
	}
	return 0, false
}
