// Package feed wires the reconciler, lifecycle controller and poll schedulers of
// one monitored feed to the backend and to storage.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rusenback/berrymon/internal/backend"
	"github.com/rusenback/berrymon/internal/lifecycle"
	"github.com/rusenback/berrymon/internal/logging"
	"github.com/rusenback/berrymon/internal/model"
	"github.com/rusenback/berrymon/internal/poll"
	"github.com/rusenback/berrymon/internal/reconcile"
)

// LoginNoiseNotes are notes of start-related exchanges hidden after a gateway login
var LoginNoiseNotes = []string{"start response", "start error", "started", "start"}

// Store is the persistence a session needs
type Store interface {
	lifecycle.Store
	LoadSnapshot(feed string) ([]model.ExchangeRecord, error)
	SaveSnapshot(feed string, records []model.ExchangeRecord)
}

// Update carries one scheduler result to the event loop
type Update struct {
	Feed   string
	Result poll.Result
}

// Options configure a Session
type Options struct {
	Feed           backend.Feed
	Client         backend.BackendClient
	Store          Store
	StatusInterval time.Duration
	DataInterval   time.Duration
	Cap            int
	Logger         *log.Logger
	Context        context.Context
	// Deliver is called from scheduler goroutines
	Deliver func(Update)
}

// Session is the dashboard state of one feed between Mount and Close
type Session struct {
	feed   backend.Feed
	client backend.BackendClient
	store  Store
	logger *log.Logger
	ctx    context.Context

	merger *reconcile.Merger
	ctrl   *lifecycle.Controller
	status *poll.Scheduler
	data   *poll.Scheduler

	mu       sync.Mutex
	mounted  bool
	records  []model.ExchangeRecord
	updated  time.Time
	lastErr  error
	reported int // records in the last applied batch
}

// New builds a session. Nothing runs until Mount.
func New(opts Options) *Session {
	f := opts.Feed.WithDefaults()
	logger := logging.OrDiscard(opts.Logger)
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	deliver := opts.Deliver
	if deliver == nil {
		deliver = func(Update) {}
	}

	s := &Session{
		feed:   f,
		client: opts.Client,
		store:  opts.Store,
		logger: logger,
		ctx:    ctx,
		merger: reconcile.NewMerger(),
	}
	if opts.Cap > 0 {
		s.merger.Cap = opts.Cap
	}

	forward := func(r poll.Result) { deliver(Update{Feed: f.Name, Result: r}) }

	s.status = poll.New(poll.Options{
		Name:     f.Name + "/status",
		Interval: opts.StatusInterval,
		Fetch: func(ctx context.Context) (any, error) {
			return s.client.Status(ctx, s.feed)
		},
		Deliver: forward,
		Logger:  logger,
		Context: ctx,
	})
	s.data = poll.New(poll.Options{
		Name:     f.Name + "/data",
		Interval: opts.DataInterval,
		Fetch: func(ctx context.Context) (any, error) {
			return s.client.FetchBatch(ctx, s.feed)
		},
		Deliver: forward,
		Logger:  logger,
		Context: ctx,
	})

	var preStart func(context.Context) error
	if f.SendPath != "" {
		preStart = func(ctx context.Context) error {
			return s.client.Send(ctx, s.feed)
		}
	}

	// Without a store the controller still works, just forgets intent on exit
	var ls lifecycle.Store
	if opts.Store != nil {
		ls = opts.Store
	}
	s.ctrl = lifecycle.New(lifecycle.Config{
		Name:     f.Name,
		Backend:  backend.FeedBackend{Client: opts.Client, Feed: f},
		Store:    ls,
		Loop:     s.data,
		Logger:   logger,
		PreStart: preStart,
	})

	return s
}

// Feed returns the feed definition
func (s *Session) Feed() backend.Feed { return s.feed }

// Name returns the feed name
func (s *Session) Name() string { return s.feed.Name }

// Mount restores the session snapshot, starts the status loop and requests an
// initial batch. Resume must be called separately since it talks to the backend.
func (s *Session) Mount() (err error) {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.status.Stop()
			s.data.Stop()
			s.mu.Lock()
			s.mounted = false
			s.mu.Unlock()
			err = fmt.Errorf("mount %s: %v", s.feed.Name, r)
		}
	}()

	var restored []model.ExchangeRecord
	if s.store != nil {
		restored, err = s.store.LoadSnapshot(s.feed.Name)
		if err != nil {
			// a broken snapshot is not worth refusing to start over
			s.logger.Printf("%s: snapshot not restored: %v", s.feed.Name, err)
			restored, err = nil, nil
		}
	}

	s.mu.Lock()
	s.mounted = true
	s.records = restored
	s.mu.Unlock()

	s.status.Start()
	s.data.Tick()
	s.logger.Printf("%s: mounted (%d records restored)", s.feed.Name, len(restored))
	return nil
}

// Resume restarts a process the user had started in an earlier run
func (s *Session) Resume() error {
	return s.ctrl.Resume(s.ctx)
}

// Close stops both loops, drops late results and saves the snapshot
func (s *Session) Close() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	records := s.records
	s.mu.Unlock()

	s.status.Stop()
	s.data.Stop()
	if s.store != nil {
		s.store.SaveSnapshot(s.feed.Name, records)
	}
	s.logger.Printf("%s: unmounted", s.feed.Name)
}

// Mounted reports whether results are being applied
func (s *Session) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// Apply folds a scheduler result into the session. It returns false when the
// result was stale or the session is closed.
func (s *Session) Apply(u Update) bool {
	if u.Feed != s.feed.Name {
		return false
	}

	s.mu.Lock()
	mounted := s.mounted
	s.mu.Unlock()
	if !mounted {
		return false
	}

	switch u.Result.Loop {
	case s.status.Name():
		if !s.status.Accept(u.Result.Seq) {
			return false
		}
		if u.Result.Err != nil {
			s.setErr(u.Result.Err)
			return true
		}
		running, _ := u.Result.Value.(bool)
		s.ctrl.Reconcile(running)
		return true

	case s.data.Name():
		if !s.data.Accept(u.Result.Seq) {
			return false
		}
		if u.Result.Err != nil {
			s.setErr(u.Result.Err)
			return true
		}
		batch, _ := u.Result.Value.([]model.ExchangeRecord)
		s.mergeBatch(batch)
		return true
	}
	return false
}

func (s *Session) mergeBatch(batch []model.ExchangeRecord) {
	opts := reconcile.Options{FilterStarted: true}

	s.mu.Lock()
	s.records = s.merger.Merge(s.records, batch, opts)
	s.updated = time.Now()
	s.lastErr = nil
	s.reported = len(batch)
	records := s.records
	s.mu.Unlock()

	if s.store != nil {
		s.store.SaveSnapshot(s.feed.Name, records)
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Start runs the user start sequence. On failure a local "start error" record
// is added to the log.
func (s *Session) Start() error {
	err := s.ctrl.Start(s.ctx)
	if err != nil && !errors.Is(err, lifecycle.ErrBusy) && !errors.Is(err, lifecycle.ErrAlreadyRunning) {
		s.appendLocal(model.Response, s.feed.StartPath, err.Error(), "start error")
	}
	return err
}

// Stop runs the user stop sequence. A remote failure is logged locally; the
// session is stopped either way.
func (s *Session) Stop() error {
	err := s.ctrl.Stop(s.ctx)
	if err != nil && !errors.Is(err, lifecycle.ErrBusy) && !errors.Is(err, lifecycle.ErrNotRunning) {
		s.appendLocal(model.Response, s.feed.StopPath, err.Error(), "stop error")
	}
	return err
}

// Toggle starts a stopped feed and stops a running one
func (s *Session) Toggle() error {
	if s.ctrl.State().Running() {
		return s.Stop()
	}
	return s.Start()
}

// Refresh requests one batch now, outside the regular interval
func (s *Session) Refresh() {
	if s.Mounted() {
		s.data.Tick()
	}
}

// Clear empties the backend log and the local snapshot
func (s *Session) Clear() error {
	if err := s.client.Clear(s.ctx, s.feed); err != nil {
		return fmt.Errorf("clear %s: %w", s.feed.Name, err)
	}
	s.mu.Lock()
	s.records = nil
	s.reported = 0
	s.mu.Unlock()
	if s.store != nil {
		s.store.SaveSnapshot(s.feed.Name, nil)
	}
	return nil
}

// Login triggers the backend's gateway login, logs the outcome and pulls the
// resulting exchanges without the start noise
func (s *Session) Login() error {
	if s.feed.LoginPath == "" {
		return fmt.Errorf("%s: feed has no login endpoint", s.feed.Name)
	}
	s.appendLocal(model.Request, s.feed.LoginPath, "", "login request")

	loginErr := s.client.FeedLogin(s.ctx, s.feed)
	if loginErr != nil {
		note := "login exception"
		var reqErr *backend.RequestError
		if errors.As(loginErr, &reqErr) {
			note = fmt.Sprintf("login error %d (backend)", reqErr.StatusCode)
		}
		s.appendLocal(model.Response, s.feed.LoginPath, loginErr.Error(), note)
	} else {
		s.appendLocal(model.Response, s.feed.LoginPath, "", "login response (backend)")
	}

	batch, err := s.client.FetchBatch(s.ctx, s.feed)
	if err != nil {
		s.logger.Printf("%s: fetch after login: %v", s.feed.Name, err)
	} else {
		s.mu.Lock()
		s.records = s.merger.Merge(s.records, batch, reconcile.Options{
			FilterStarted: true,
			ExcludeNotes:  LoginNoiseNotes,
		})
		s.updated = time.Now()
		s.mu.Unlock()
	}
	return loginErr
}

func (s *Session) appendLocal(dir model.Direction, channel, payload, note string) {
	rec := model.ExchangeRecord{
		Timestamp: LocalTimestamp(time.Now()),
		Direction: dir,
		Channel:   channel,
		Payload:   payload,
		Note:      note,
	}
	s.mu.Lock()
	s.records = s.merger.Append(s.records, rec)
	s.mu.Unlock()
}

// LocalTimestamp formats t in local time the way the backend stamps exchanges,
// so dashboard records interleave with backend ones
func LocalTimestamp(t time.Time) string {
	return t.Local().Format(model.TimestampLayout)
}

// Snapshot is a read-only view of a session for rendering
type Snapshot struct {
	Records  []model.ExchangeRecord
	State    model.LifecycleState
	Updated  time.Time
	LastErr  error
	Reported int
	Mounted  bool
}

// Snapshot returns the current records and lifecycle state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Records:  s.records,
		State:    s.ctrl.State(),
		Updated:  s.updated,
		LastErr:  s.lastErr,
		Reported: s.reported,
		Mounted:  s.mounted,
	}
}
