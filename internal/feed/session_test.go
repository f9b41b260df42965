package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rusenback/berrymon/internal/backend"
	"github.com/rusenback/berrymon/internal/lifecycle"
	"github.com/rusenback/berrymon/internal/model"
)

type fakeClient struct {
	mu       sync.Mutex
	running  bool
	batch    []model.ExchangeRecord
	started  bool
	startErr error
	loginErr error
	calls    []string
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeClient) FetchBatch(ctx context.Context, feed backend.Feed) ([]model.ExchangeRecord, error) {
	f.record("fetch")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ExchangeRecord(nil), f.batch...), nil
}

func (f *fakeClient) Clear(ctx context.Context, feed backend.Feed) error {
	f.record("clear")
	return nil
}

func (f *fakeClient) Status(ctx context.Context, feed backend.Feed) (bool, error) {
	f.record("status")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, nil
}

func (f *fakeClient) Start(ctx context.Context, feed backend.Feed) (bool, error) {
	f.record("start")
	return f.started, f.startErr
}

func (f *fakeClient) Stop(ctx context.Context, feed backend.Feed) error {
	f.record("stop")
	return nil
}

func (f *fakeClient) Send(ctx context.Context, feed backend.Feed) error {
	f.record("send")
	return nil
}

func (f *fakeClient) FeedLogin(ctx context.Context, feed backend.Feed) error {
	f.record("login")
	return f.loginErr
}

func (f *fakeClient) Close() error { return nil }

type memStore struct {
	mu        sync.Mutex
	kv        map[string]string
	snapshots map[string][]model.ExchangeRecord
}

func newMemStore() *memStore {
	return &memStore{kv: map[string]string{}, snapshots: map[string][]model.ExchangeRecord{}}
}

func (m *memStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	return v, ok
}

func (m *memStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *memStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *memStore) LoadSnapshot(feed string) ([]model.ExchangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[feed], nil
}

func (m *memStore) SaveSnapshot(feed string, records []model.ExchangeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[feed] = records
}

func newTestSession(t *testing.T, feed backend.Feed, client *fakeClient, store *memStore) (*Session, chan Update) {
	t.Helper()
	updates := make(chan Update, 32)
	s := New(Options{
		Feed:           feed,
		Client:         client,
		Store:          store,
		StatusInterval: time.Hour,
		DataInterval:   time.Hour,
		Deliver:        func(u Update) { updates <- u },
	})
	t.Cleanup(s.Close)
	return s, updates
}

func next(t *testing.T, updates <-chan Update) Update {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

// drain applies updates until both the status and the data loop reported once
func drain(t *testing.T, s *Session, updates <-chan Update) {
	t.Helper()
	seen := map[string]bool{}
	for len(seen) < 2 {
		u := next(t, updates)
		s.Apply(u)
		seen[u.Result.Loop] = true
	}
}

func TestMountRestoresAndMerges(t *testing.T) {
	client := &fakeClient{batch: []model.ExchangeRecord{
		{Timestamp: "2", Direction: model.Request, Channel: "p1", Payload: "0103"},
		{Timestamp: "3", Direction: model.Response, Channel: "p1", Payload: `{"started": true}`},
	}}
	store := newMemStore()
	store.snapshots["packets"] = []model.ExchangeRecord{
		{Timestamp: "1", Direction: model.Request, Channel: "p1", Payload: "old", RenderKey: "uid-1-1"},
	}

	s, updates := newTestSession(t, backend.PollerFeed(), client, store)
	if err := s.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := s.Snapshot().Records; len(got) != 1 {
		t.Fatalf("restored %d records, want 1", len(got))
	}

	drain(t, s, updates)

	snap := s.Snapshot()
	if len(snap.Records) != 2 {
		t.Fatalf("records = %+v", snap.Records)
	}
	if snap.Records[0].RenderKey != "uid-1-1" || snap.Records[1].Payload != "0103" {
		t.Errorf("unexpected merge result: %+v", snap.Records)
	}
	if snap.Updated.IsZero() {
		t.Error("Updated not set")
	}
	if len(store.snapshots["packets"]) != 2 {
		t.Errorf("snapshot not saved: %+v", store.snapshots["packets"])
	}
}

func TestStatusFollowsExternalStart(t *testing.T) {
	client := &fakeClient{running: true}
	s, updates := newTestSession(t, backend.PollerFeed(), client, newMemStore())
	if err := s.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	drain(t, s, updates)

	st := s.Snapshot().State
	if st.Confirmed != model.RunRunning || st.Desired != model.RunRunning {
		t.Fatalf("state = %+v", st)
	}
	if !s.data.Active() {
		t.Fatal("data loop should follow the running backend")
	}
	if st.UserInitiated || st.PersistedIntent {
		t.Fatalf("external start must not set user intent: %+v", st)
	}
}

func TestLateResultsDroppedAfterClose(t *testing.T) {
	client := &fakeClient{batch: []model.ExchangeRecord{{Timestamp: "1", Direction: model.Request}}}
	s, updates := newTestSession(t, backend.PollerFeed(), client, newMemStore())
	if err := s.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	s.Close()

	for i := 0; i < 2; i++ {
		if s.Apply(next(t, updates)) {
			t.Fatal("result applied after Close")
		}
	}
	if len(s.Snapshot().Records) != 0 {
		t.Fatal("records changed after Close")
	}
}

func TestStartFailureAddsLocalRecord(t *testing.T) {
	client := &fakeClient{started: false}
	store := newMemStore()
	s, _ := newTestSession(t, backend.GatewayFeed(), client, store)

	err := s.Start()
	if !errors.Is(err, lifecycle.ErrNotStarted) {
		t.Fatalf("Start = %v, want ErrNotStarted", err)
	}
	if !client.called("send") {
		t.Error("gateway start must send current values first")
	}
	if _, ok := store.Get(lifecycle.IntentKey("easyberry")); ok {
		t.Error("intent left persisted after refused start")
	}

	recs := s.Snapshot().Records
	if len(recs) != 1 || recs[0].Note != "start error" || !recs[0].Local {
		t.Fatalf("records = %+v", recs)
	}
	if s.Snapshot().State.Desired != model.RunStopped {
		t.Fatal("desired not rolled back")
	}
}

func TestToggle(t *testing.T) {
	client := &fakeClient{started: true}
	store := newMemStore()
	s, _ := newTestSession(t, backend.PollerFeed(), client, store)

	if err := s.Toggle(); err != nil {
		t.Fatalf("Toggle start: %v", err)
	}
	if !s.Snapshot().State.Running() || !s.data.Active() {
		t.Fatal("expected running with active data loop")
	}
	if client.called("send") {
		t.Error("poller feed has no pre-start send")
	}
	if err := s.Toggle(); err != nil {
		t.Fatalf("Toggle stop: %v", err)
	}
	if s.Snapshot().State.Running() || s.data.Active() {
		t.Fatal("expected stopped")
	}
}

func TestRemountAfterUserStartKeepsPolling(t *testing.T) {
	client := &fakeClient{started: true, running: true}
	s, updates := newTestSession(t, backend.PollerFeed(), client, newMemStore())
	if err := s.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.data.Active() {
		t.Fatal("data loop not started")
	}

	s.Close()
	if s.data.Active() {
		t.Fatal("data loop left running after Close")
	}
	if err := s.Mount(); err != nil {
		t.Fatalf("remount: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !s.data.Active() {
		t.Fatal("data loop not restarted for a user-started feed")
	}

	// late status reports keep it that way
	for i := 0; i < 4; i++ {
		s.Apply(next(t, updates))
	}
	if !s.data.Active() || !s.Snapshot().State.Running() {
		t.Fatalf("state = %+v, data active = %v", s.Snapshot().State, s.data.Active())
	}
}

func TestLoginFiltersStartNoise(t *testing.T) {
	client := &fakeClient{
		loginErr: &backend.RequestError{Method: "POST", Path: "/easyberry/login", StatusCode: 502},
		batch: []model.ExchangeRecord{
			{Timestamp: "1", Direction: model.Response, Payload: "{}", Note: "start response"},
			{Timestamp: "2", Direction: model.Response, Payload: "token=abc", Note: "auth"},
		},
	}
	s, _ := newTestSession(t, backend.GatewayFeed(), client, newMemStore())

	if err := s.Login(); err == nil {
		t.Fatal("expected login error")
	}

	var notes []string
	for _, r := range s.Snapshot().Records {
		notes = append(notes, r.Note)
	}
	joined := strings.Join(notes, ",")
	if strings.Contains(joined, "start response") {
		t.Errorf("start noise not filtered: %v", notes)
	}
	for _, want := range []string{"login request", "login error 502 (backend)", "auth"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in %v", want, notes)
		}
	}
}

func TestLoginWithoutEndpoint(t *testing.T) {
	s, _ := newTestSession(t, backend.PollerFeed(), &fakeClient{}, newMemStore())
	if err := s.Login(); err == nil {
		t.Fatal("expected error for feed without login")
	}
}

func TestClear(t *testing.T) {
	client := &fakeClient{}
	store := newMemStore()
	s, _ := newTestSession(t, backend.PollerFeed(), client, store)
	s.appendLocal(model.Request, "-", "x", "note")

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(s.Snapshot().Records) != 0 || !client.called("clear") {
		t.Fatal("clear did not reset records")
	}
}

func TestLocalTimestampOrdersWithBackend(t *testing.T) {
	ts := LocalTimestamp(time.Date(2025, 1, 1, 8, 30, 5, 0, time.Local))
	if ts != "2025-01-01 08:30:05" {
		t.Fatalf("LocalTimestamp = %q", ts)
	}

	s, _ := newTestSession(t, backend.GatewayFeed(), &fakeClient{}, newMemStore())
	s.mergeBatch([]model.ExchangeRecord{
		{Timestamp: "2024-01-01 10:00:00", Direction: model.Request, Channel: "/api", Payload: "x"},
		{Timestamp: "2026-01-01 10:00:00", Direction: model.Response, Channel: "/api", Payload: "y"},
	})
	s.mu.Lock()
	s.records = s.merger.Append(s.records, model.ExchangeRecord{
		Timestamp: ts,
		Direction: model.Response,
		Note:      "start error",
	})
	recs := s.records
	s.mu.Unlock()

	if len(recs) != 3 {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].Payload != "x" || recs[1].Note != "start error" || recs[2].Payload != "y" {
		t.Fatalf("local record not ordered between backend records: %+v", recs)
	}
}
