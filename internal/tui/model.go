package tui

import (
	"log"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rusenback/berrymon/internal/console"
	"github.com/rusenback/berrymon/internal/feed"
	"github.com/rusenback/berrymon/internal/logging"
	"github.com/rusenback/berrymon/internal/overview"
	"github.com/rusenback/berrymon/internal/poll"
)

// Model represents the TUI application state
type Model struct {
	sessions []*feed.Session
	active   int
	updates  <-chan feed.Update
	logger   *log.Logger

	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	showHelp bool
	follow   bool // keep the viewport pinned to the newest record

	width  int
	height int

	message string
	err     error
	pending string // user action in flight, "" when idle

	overview   *overview.Overview
	overviewCh <-chan poll.Result

	console     *console.Console
	consoleOpen bool
	consoleBusy bool
	input       textinput.Model
}

// Message types for Bubbletea update loop
type tickMsg time.Time

type updateMsg feed.Update

type mountMsg struct {
	feed string
	err  error
}

type overviewMsg poll.Result

type consoleMsg struct {
	entry console.Entry
	ran   bool
}

type actionMsg struct {
	feed    string
	action  string
	message string
	err     error
}

// NewModel creates a new TUI model. Results of every session's schedulers
// must arrive on updates.
func NewModel(sessions []*feed.Session, updates <-chan feed.Update, logger *log.Logger) Model {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = pendingStyle

	input := textinput.New()
	input.Prompt = "❯ "
	input.Placeholder = "command (e.g. echo text=hello)"
	input.CharLimit = 512

	return Model{
		sessions: sessions,
		updates:  updates,
		logger:   logging.OrDiscard(logger),
		viewport: viewport.New(80, 20),
		spinner:  spin,
		help:     help.New(),
		follow:   true,
		input:    input,
	}
}

// WithOverview adds the health/status header. Its results must arrive on results.
func (m Model) WithOverview(o *overview.Overview, results <-chan poll.Result) Model {
	m.overview = o
	m.overviewCh = results
	return m
}

// WithConsole enables the command console
func (m Model) WithConsole(c *console.Console) Model {
	m.console = c
	return m
}

// Init mounts the first feed and starts listening for scheduler results
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForUpdate(m.updates), tickCmd(), m.spinner.Tick}
	if s := m.current(); s != nil {
		cmds = append(cmds, mountFeed(s))
	}
	if m.overview != nil {
		cmds = append(cmds, startOverview(m.overview), waitForOverview(m.overviewCh))
	}
	return tea.Batch(cmds...)
}

func (m Model) current() *feed.Session {
	if len(m.sessions) == 0 {
		return nil
	}
	return m.sessions[m.active]
}

func (m Model) session(name string) *feed.Session {
	for _, s := range m.sessions {
		if s.Name() == name {
			return s
		}
	}
	return nil
}
