package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit    key.Binding
	Tab     key.Binding
	Toggle  key.Binding
	Clear   key.Binding
	Refresh key.Binding
	Login   key.Binding
	Follow  key.Binding
	Console key.Binding
	Help    key.Binding
}

var keys = keyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Tab:     key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "next feed")),
	Toggle:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start/stop")),
	Clear:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear log")),
	Refresh: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
	Login:   key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "gateway login")),
	Follow:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto-scroll")),
	Console: key.NewBinding(key.WithKeys("`"), key.WithHelp("`", "console")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Toggle, k.Refresh, k.Console, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.Toggle, k.Clear, k.Refresh},
		{k.Login, k.Follow, k.Console, k.Help, k.Quit},
	}
}

// consoleKeyMap is active while the console has focus
type consoleKeyMap struct {
	Run      key.Binding
	Prev     key.Binding
	Next     key.Binding
	Commands key.Binding
	Clear    key.Binding
	Close    key.Binding
	Quit     key.Binding
}

var consoleKeys = consoleKeyMap{
	Run:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run")),
	Prev:     key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous")),
	Next:     key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next")),
	Commands: key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "commands")),
	Clear:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear history")),
	Close:    key.NewBinding(key.WithKeys("esc", "`"), key.WithHelp("esc", "close")),
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

func (k consoleKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Run, k.Prev, k.Commands, k.Close}
}

func (k consoleKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Run, k.Prev, k.Next},
		{k.Commands, k.Clear, k.Close, k.Quit},
	}
}
