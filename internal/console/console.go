// Package console runs commands from the backend's CLI registry and keeps a
// persisted command history.
package console

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rusenback/berrymon/internal/backend"
	"github.com/rusenback/berrymon/internal/logging"
	"github.com/rusenback/berrymon/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// HistoryKey is where the history is kept in the key-value store
	HistoryKey = "console.history"
	// MaxHistory bounds the persisted history
	MaxHistory = 200
)

var digits = regexp.MustCompile(`^[0-9]+$`)

// Store persists the history between runs
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Entry is one executed command and its outcome
type Entry struct {
	TS  string `json:"ts"`
	Cmd string `json:"cmd"`
	OK  bool   `json:"ok"`
	Out string `json:"out,omitempty"`
	Err string `json:"err,omitempty"`
}

// Console is the command console state
type Console struct {
	client backend.ConsoleClient
	store  Store
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	history []Entry
	cursor  int // history index while browsing, -1 when not browsing
}

// New creates a console and restores the persisted history
func New(client backend.ConsoleClient, store Store, logger *log.Logger) *Console {
	c := &Console{
		client: client,
		store:  store,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
		cursor: -1,
	}
	if store == nil {
		return c
	}
	raw, ok := store.Get(HistoryKey)
	if !ok || raw == "" {
		return c
	}
	if err := json.Unmarshal([]byte(raw), &c.history); err != nil {
		// a corrupt history is dropped, not fatal
		c.logger.Printf("console: history not restored: %v", err)
		c.history = nil
	}
	return c
}

// ParseLine splits a command line into the command name and its key=value args.
// A bare key becomes true and an all-digit value becomes an int.
func ParseLine(line string) (string, map[string]any) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	args := make(map[string]any, len(fields)-1)
	for _, f := range fields[1:] {
		k, v, found := strings.Cut(f, "=")
		switch {
		case !found:
			args[k] = true
		case digits.MatchString(v):
			n, err := strconv.Atoi(v)
			if err != nil {
				args[k] = v
				continue
			}
			args[k] = n
		default:
			args[k] = strings.Trim(v, `'"`)
		}
	}
	return fields[0], args
}

// Run executes line on the backend and records the outcome. It returns false for
// a blank line.
func (c *Console) Run(ctx context.Context, line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	name, args := ParseLine(line)
	if name == "" {
		return Entry{}, false
	}

	e := Entry{TS: c.now().Format(model.TimestampLayout), Cmd: line}
	res, err := c.client.Execute(ctx, name, args)
	switch {
	case err != nil:
		e.Err = errMessage(err)
	default:
		e.OK = res.OK
		e.Err = res.Error
		e.Out = res.Output
		if e.Out == "" && res.Data != nil {
			e.Out = indent(res.Data)
		}
	}
	c.push(e)
	return e, true
}

// ListCommands records the backend's command registry as a history entry
func (c *Console) ListCommands(ctx context.Context) Entry {
	e := Entry{TS: c.now().Format(model.TimestampLayout), Cmd: "commands"}
	cmds, err := c.client.Commands(ctx)
	if err != nil {
		e.Err = errMessage(err)
	} else {
		e.OK = true
		e.Out = indent(cmds)
	}
	c.push(e)
	return e
}

// History returns a copy of the history, oldest first
func (c *Console) History() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.history...)
}

// Clear drops the history, persisted copy included
func (c *Console) Clear() {
	c.mu.Lock()
	c.history = nil
	c.cursor = -1
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.Remove(HistoryKey); err != nil {
			c.logger.Printf("console: clear history: %v", err)
		}
	}
}

// Prev walks back through earlier commands and returns the one to edit
func (c *Console) Prev() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return "", false
	}
	switch {
	case c.cursor < 0:
		c.cursor = len(c.history) - 1
	case c.cursor > 0:
		c.cursor--
	}
	return c.history[c.cursor].Cmd, true
}

// Next walks forward; past the newest entry it stops browsing and returns ""
func (c *Console) Next() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor < 0 {
		return "", false
	}
	if c.cursor >= len(c.history)-1 {
		c.cursor = -1
		return "", true
	}
	c.cursor++
	return c.history[c.cursor].Cmd, true
}

func (c *Console) push(e Entry) {
	c.mu.Lock()
	c.history = append(c.history, e)
	if len(c.history) > MaxHistory {
		c.history = append([]Entry(nil), c.history[len(c.history)-MaxHistory:]...)
	}
	c.cursor = -1
	snapshot := append([]Entry(nil), c.history...)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	blob, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Printf("console: encode history: %v", err)
		return
	}
	if err := c.store.Set(HistoryKey, string(blob)); err != nil {
		c.logger.Printf("console: save history: %v", err)
	}
}

// errMessage prefers the backend's "detail" over the full request error
func errMessage(err error) string {
	var reqErr *backend.RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return err.Error()
}

func indent(v any) string {
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(blob)
}
