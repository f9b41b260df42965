package tui

import (
	"strings"

	"github.com/rusenback/berrymon/internal/console"
)

// renderConsole renders the command history oldest first
func renderConsole(history []console.Entry, width int) string {
	if len(history) == 0 {
		return dimStyle.Render("No commands yet. Type one below, ctrl+k lists what the backend offers.")
	}
	var b strings.Builder
	for _, e := range history {
		status := runningStyle.Render("OK")
		if !e.OK {
			status = errorStyle.Render("ERR")
		}
		header := timestampStyle.Render(e.TS) + " " + channelStyle.Render(e.Cmd) + " " + status
		b.WriteString(truncateStyled(header, width))
		b.WriteString("\n")

		body := e.Out
		style := payloadStyle
		if e.Err != "" {
			body, style = e.Err, errorStyle
		}
		if body == "" {
			continue
		}
		for _, line := range strings.Split(body, "\n") {
			b.WriteString("  " + style.Render(truncate(line, width-2)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
