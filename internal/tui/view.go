package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/rusenback/berrymon/internal/model"
)

// View renders the TUI interface
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderTabs() + "\n")
	if m.overview != nil {
		b.WriteString(truncateStyled(m.renderOverview(), m.width) + "\n")
	}
	b.WriteString(m.renderStatusLine() + "\n")
	b.WriteString(panelStyle.Width(m.width - 2).Render(m.viewport.View()) + "\n")
	if m.consoleOpen {
		b.WriteString(m.input.View() + "\n")
	}
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderTabs renders the title and one tab per feed
func (m Model) renderTabs() string {
	tabs := []string{titleStyle.Render("🍓 berrymon") + " "}
	for i, s := range m.sessions {
		if i == m.active {
			tabs = append(tabs, activeTabStyle.Render(s.Feed().Title))
		} else {
			tabs = append(tabs, tabStyle.Render(s.Feed().Title))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// renderOverview shows backend health and the reported state of every feed
func (m Model) renderOverview() string {
	rep := m.overview.Report()
	if rep.At.IsZero() {
		return dimStyle.Render("backend: checking...")
	}

	var parts []string
	switch {
	case rep.HealthErr != nil:
		parts = append(parts, errorStyle.Render("backend: unreachable"))
	case rep.Healthy():
		parts = append(parts, runningStyle.Render("backend: "+rep.Health))
	default:
		parts = append(parts, pendingStyle.Render("backend: "+rep.Health))
	}
	for _, f := range rep.Feeds {
		switch {
		case f.Err != nil:
			parts = append(parts, errorStyle.Render("? "+f.Title))
		case f.Running:
			parts = append(parts, runningStyle.Render("● "+f.Title))
		default:
			parts = append(parts, stoppedStyle.Render("○ "+f.Title))
		}
	}
	parts = append(parts, dimStyle.Render("checked "+humanize.Time(rep.At)))
	return strings.Join(parts, dimStyle.Render(" │ "))
}

// renderStatusLine shows the lifecycle phase and freshness of the active feed
func (m Model) renderStatusLine() string {
	s := m.current()
	if s == nil {
		return dimStyle.Render("no feeds")
	}
	snap := s.Snapshot()

	parts := []string{m.renderPhase(snap.State)}
	parts = append(parts, dimStyle.Render("backend: "+snap.State.Confirmed.String()))
	if snap.State.PersistedIntent {
		parts = append(parts, dimStyle.Render("auto-resume"))
	}
	parts = append(parts, fmt.Sprintf("%d records (%s)", len(snap.Records), humanize.Bytes(payloadBytes(snap.Records))))

	if snap.Updated.IsZero() {
		parts = append(parts, dimStyle.Render("no data yet"))
	} else {
		parts = append(parts, dimStyle.Render("updated "+humanize.Time(snap.Updated)))
	}
	if snap.LastErr != nil {
		parts = append(parts, errorStyle.Render("fetch: "+truncate(snap.LastErr.Error(), 60)))
	}
	return strings.Join(parts, dimStyle.Render(" │ "))
}

func (m Model) renderPhase(st model.LifecycleState) string {
	switch st.Phase {
	case model.PhaseStarting, model.PhaseStopping:
		return m.spinner.View() + " " + pendingStyle.Render(st.Phase.String())
	case model.PhaseRunning:
		return runningStyle.Render("● running")
	default:
		return stoppedStyle.Render("○ stopped")
	}
}

// renderFooter shows the last action result and the key help
func (m Model) renderFooter() string {
	var line string
	switch {
	case m.err != nil:
		line = errorStyle.Render("Error: " + truncate(m.err.Error(), m.width-8))
	case m.pending != "":
		line = m.spinner.View() + " " + m.pending + "..."
	case m.message != "":
		line = m.message
	}

	if m.consoleOpen {
		if m.consoleBusy {
			line = m.spinner.View() + " running..."
		}
		return line + "\n" + helpStyle.Render(m.help.View(consoleKeys))
	}

	scroll := ""
	if !m.follow {
		scroll = dimStyle.Render(fmt.Sprintf(" [%3.f%%, auto-scroll off]", m.viewport.ScrollPercent()*100))
	}
	return line + scroll + "\n" + helpStyle.Render(m.help.View(keys))
}

func payloadBytes(records []model.ExchangeRecord) uint64 {
	var n uint64
	for _, r := range records {
		n += uint64(len(r.Payload))
	}
	return n
}
