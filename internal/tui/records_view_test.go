package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/rusenback/berrymon/internal/model"
)

func TestFormatPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "  ", ""},
		{"plain text", "01 03 00 00", "01 03 00 00"},
		{"malformed json", `{"a":`, `{"a":`},
		{"trailing garbage", `{"a":1} x`, `{"a":1} x`},
		{"object", `{"b":1,"a":"x"}`, "{\n  \"a\": \"x\",\n  \"b\": 1\n}"},
		{"big number kept", `{"n":12345678901234567890}`, "{\n  \"n\": 12345678901234567890\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatPayload(tt.raw); got != tt.want {
				t.Errorf("formatPayload(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := formatTimestamp("2024-05-01 10:00:00"); got != "2024-05-01 10:00:00" {
		t.Errorf("text timestamp changed: %q", got)
	}
	want := time.Unix(1700000000, 0).Local().Format("2006-01-02 15:04:05")
	if got := formatTimestamp("1700000000.25"); !strings.HasPrefix(got, want) {
		t.Errorf("formatTimestamp = %q, want prefix %q", got, want)
	}
}

func TestRenderRecordShowsFields(t *testing.T) {
	rec := model.ExchangeRecord{
		Timestamp: "t1",
		Direction: model.Response,
		Channel:   "poller-1",
		Payload:   `{"ok":true}`,
		Note:      "start error",
		Status:    "502",
		Local:     true,
	}
	out := renderRecord(rec, 200)
	for _, want := range []string{"RESP", "poller-1", "[502]", "start error", "(local)", `"ok": true`} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRecordsEmpty(t *testing.T) {
	if out := renderRecords(nil, 80); !strings.Contains(out, "No exchanges") {
		t.Errorf("empty render = %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("äöå", 6); got != "äöå" {
		t.Errorf("short string changed: %q", got)
	}
}
