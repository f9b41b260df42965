package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rusenback/berrymon/internal/feed"
	"github.com/rusenback/berrymon/internal/lifecycle"
	"github.com/rusenback/berrymon/internal/poll"
)

// Update handles messages and updates the model state
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshContent()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case updateMsg:
		u := feed.Update(msg)
		if s := m.session(u.Feed); s != nil && s.Apply(u) {
			if s == m.current() {
				m.refreshContent()
			}
		}
		// Keep waiting for the next result
		return m, waitForUpdate(m.updates)

	case overviewMsg:
		if m.overview != nil {
			m.overview.Apply(poll.Result(msg))
		}
		return m, waitForOverview(m.overviewCh)

	case consoleMsg:
		m.consoleBusy = false
		if msg.ran {
			m.input.Reset()
		}
		m.refreshContent()
		return m, nil

	case mountMsg:
		s := m.session(msg.feed)
		if s != nil && s != m.current() {
			// switched away before the mount finished
			s.Close()
			return m, nil
		}
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.feed, msg.err)
			m.logger.Printf("tui: mount %s: %v", msg.feed, msg.err)
		}
		m.refreshContent()
		return m, nil

	case actionMsg:
		if msg.action == "start" || msg.action == "stop" {
			m.pending = ""
		}
		switch {
		case msg.err == nil:
			m.message = msg.message
			m.err = nil
		case errors.Is(msg.err, lifecycle.ErrBusy):
			m.message = "Busy, try again in a moment"
		default:
			m.message = ""
			m.err = msg.err
			m.logger.Printf("tui: %s %s: %v", msg.feed, msg.action, msg.err)
		}
		m.refreshContent()
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.consoleOpen {
		return m.handleConsoleKey(msg)
	}
	s := m.current()

	switch {
	case key.Matches(msg, keys.Quit):
		for _, sess := range m.sessions {
			sess.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, keys.Tab):
		if len(m.sessions) < 2 {
			return m, nil
		}
		s.Close()
		if msg.String() == "shift+tab" {
			m.active = (m.active + len(m.sessions) - 1) % len(m.sessions)
		} else {
			m.active = (m.active + 1) % len(m.sessions)
		}
		m.message, m.err, m.pending = "", nil, ""
		m.follow = true
		m.refreshContent()
		return m, mountFeed(m.current())

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.resize()
		return m, nil

	case key.Matches(msg, keys.Console):
		if m.console == nil {
			m.message = "Console not available"
			return m, nil
		}
		m.consoleOpen = true
		m.input.Focus()
		m.resize()
		m.refreshContent()
		return m, textinput.Blink
	}

	if s == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Toggle):
		if m.pending != "" {
			return m, nil
		}
		action := "start"
		if s.Snapshot().State.Running() {
			action = "stop"
		}
		m.pending = action
		m.message = ""
		return m, toggleFeed(s, action)

	case key.Matches(msg, keys.Clear):
		return m, clearFeed(s)

	case key.Matches(msg, keys.Refresh):
		s.Refresh()
		m.message = "Refreshing..."
		return m, nil

	case key.Matches(msg, keys.Login):
		if s.Feed().LoginPath == "" {
			m.message = "This feed has no login"
			return m, nil
		}
		m.message = "Logging in..."
		return m, loginFeed(s)

	case key.Matches(msg, keys.Follow):
		m.follow = !m.follow
		if m.follow {
			m.viewport.GotoBottom()
		}
		return m, nil
	}

	// Everything else scrolls the log
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	if !m.viewport.AtBottom() {
		m.follow = false
	}
	return m, cmd
}

func (m Model) handleConsoleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, consoleKeys.Quit):
		for _, sess := range m.sessions {
			sess.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, consoleKeys.Close):
		m.consoleOpen = false
		m.input.Blur()
		m.resize()
		m.refreshContent()
		return m, nil

	case key.Matches(msg, consoleKeys.Run):
		if m.consoleBusy {
			return m, nil
		}
		m.consoleBusy = true
		return m, runConsole(m.console, m.input.Value())

	case key.Matches(msg, consoleKeys.Commands):
		if m.consoleBusy {
			return m, nil
		}
		m.consoleBusy = true
		return m, listCommands(m.console)

	case key.Matches(msg, consoleKeys.Clear):
		m.console.Clear()
		m.refreshContent()
		return m, nil

	case key.Matches(msg, consoleKeys.Prev):
		if cmd, ok := m.console.Prev(); ok {
			m.input.SetValue(cmd)
			m.input.CursorEnd()
		}
		return m, nil

	case key.Matches(msg, consoleKeys.Next):
		if cmd, ok := m.console.Next(); ok {
			m.input.SetValue(cmd)
			m.input.CursorEnd()
		}
		return m, nil

	case msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resize fits the viewport between the header and the footer
func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.help.Width = m.width
	m.viewport.Width = m.width - 4 // border + padding

	footer := 2
	if m.showHelp {
		footer = 4
	}
	header := 2 // tabs and status line
	if m.overview != nil {
		header++
	}
	if m.consoleOpen {
		footer++ // input line
		m.input.Width = m.width - 6
	}
	h := m.height - header - 2 - footer
	if h < 3 {
		h = 3
	}
	m.viewport.Height = h
}

// refreshContent re-renders the active feed's records into the viewport
func (m *Model) refreshContent() {
	if m.consoleOpen && m.console != nil {
		m.viewport.SetContent(renderConsole(m.console.History(), m.viewport.Width))
		m.viewport.GotoBottom()
		return
	}
	s := m.current()
	if s == nil {
		m.viewport.SetContent("No feeds configured")
		return
	}
	snap := s.Snapshot()
	m.viewport.SetContent(renderRecords(snap.Records, m.viewport.Width))
	if m.follow {
		m.viewport.GotoBottom()
	}
}
