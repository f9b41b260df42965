package tui

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"

	"github.com/rusenback/berrymon/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Pattern highlighting
	ipPattern  = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	urlPattern = regexp.MustCompile(`https?://[^\s"]+`)

	ipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")) // Yellow
	urlStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#89DCEB")) // Cyan

	// Direction indicators
	requestIndicator  = requestStyle.Render("→ REQ ")
	responseIndicator = responseStyle.Render("← RESP")
)

// renderRecords renders a snapshot oldest first
func renderRecords(records []model.ExchangeRecord, width int) string {
	if len(records) == 0 {
		return dimStyle.Render("No exchanges yet...")
	}
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderRecord(rec, width))
	}
	return b.String()
}

// renderRecord renders a header line and the indented payload
func renderRecord(rec model.ExchangeRecord, width int) string {
	indicator := requestIndicator
	if rec.Direction == model.Response {
		indicator = responseIndicator
	}

	header := []string{
		timestampStyle.Render(formatTimestamp(rec.Timestamp)),
		indicator,
		channelStyle.Render(highlight(rec.Channel)),
	}
	if rec.Status != "" {
		header = append(header, statusStyle(rec.Status).Render("["+rec.Status+"]"))
	}
	if rec.Note != "" {
		header = append(header, noteStyle.Render(rec.Note))
	}
	if rec.Local {
		header = append(header, localStyle.Render("(local)"))
	}

	var b strings.Builder
	b.WriteString(truncateStyled(strings.Join(header, " "), width))

	payload := formatPayload(rec.Payload)
	if payload == "" {
		return b.String()
	}
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("\n  ")
		b.WriteString(payloadStyle.Render(truncate(line, width-2)))
	}
	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	s := strings.ToUpper(strings.TrimSpace(status))
	if s == "OK" || strings.HasPrefix(s, "2") {
		return runningStyle
	}
	return errorStyle
}

// formatPayload pretty-prints JSON payloads. Anything that isn't a single valid
// JSON object or array is returned as raw text.
func formatPayload(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return trimmed
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return trimmed
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return trimmed
	}
	return strings.TrimRight(buf.String(), "\n")
}

// formatTimestamp shows unix-second timestamps as local wall time and leaves
// anything else untouched
func formatTimestamp(ts string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(ts), 64)
	if err != nil || f <= 0 {
		return ts
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).Local().Format("2006-01-02 15:04:05.000")
}

// highlight colors IPs and URLs
func highlight(s string) string {
	s = urlPattern.ReplaceAllStringFunc(s, func(match string) string {
		return urlStyle.Render(match)
	})
	return ipPattern.ReplaceAllStringFunc(s, func(match string) string {
		return ipStyle.Render(match)
	})
}
