package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rusenback/berrymon/internal/console"
	"github.com/rusenback/berrymon/internal/feed"
	"github.com/rusenback/berrymon/internal/overview"
	"github.com/rusenback/berrymon/internal/poll"
)

// tickCmd re-renders relative times once a second
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForUpdate creates a command that waits for the next scheduler result
func waitForUpdate(updates <-chan feed.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}

// mountFeed mounts a feed and resumes a process the user started earlier
func mountFeed(s *feed.Session) tea.Cmd {
	return func() tea.Msg {
		if err := s.Mount(); err != nil {
			return mountMsg{feed: s.Name(), err: err}
		}
		return mountMsg{feed: s.Name(), err: s.Resume()}
	}
}

// toggleFeed creates a command that starts or stops a feed's process
func toggleFeed(s *feed.Session, action string) tea.Cmd {
	return func() tea.Msg {
		var err error
		if action == "stop" {
			err = s.Stop()
		} else {
			err = s.Start()
		}
		return actionMsg{
			feed:    s.Name(),
			action:  action,
			message: fmt.Sprintf("%s: %s ok", s.Feed().Title, action),
			err:     err,
		}
	}
}

// clearFeed creates a command to empty a feed's log
func clearFeed(s *feed.Session) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{
			feed:    s.Name(),
			action:  "clear",
			message: fmt.Sprintf("Cleared: %s", s.Feed().Title),
			err:     s.Clear(),
		}
	}
}

// loginFeed creates a command that triggers the backend's gateway login
func loginFeed(s *feed.Session) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{
			feed:    s.Name(),
			action:  "login",
			message: "Gateway login ok",
			err:     s.Login(),
		}
	}
}

// startOverview begins polling health and feed status
func startOverview(o *overview.Overview) tea.Cmd {
	return func() tea.Msg {
		o.Start()
		return nil
	}
}

// waitForOverview waits for the next overview result
func waitForOverview(results <-chan poll.Result) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-results
		if !ok {
			return nil
		}
		return overviewMsg(r)
	}
}

// runConsole executes one console line on the backend. The client's request
// timeout bounds it.
func runConsole(c *console.Console, line string) tea.Cmd {
	return func() tea.Msg {
		e, ran := c.Run(context.Background(), line)
		return consoleMsg{entry: e, ran: ran}
	}
}

// listCommands fetches the backend's command registry into the console
func listCommands(c *console.Console) tea.Cmd {
	return func() tea.Msg {
		return consoleMsg{entry: c.ListCommands(context.Background()), ran: true}
	}
}
