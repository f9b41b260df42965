// Package poll runs periodic fetches and orders their results with sequence numbers.
package poll

import (
	"context"
	"io"
	"log"
	"sync"
	"time"
)

const defaultInterval = 2 * time.Second

// FetchFunc performs one fetch
type FetchFunc func(ctx context.Context) (any, error)

// Result is the outcome of one dispatched fetch
type Result struct {
	Loop  string
	Seq   uint64
	Value any
	Err   error
}

// Options configure a Scheduler
type Options struct {
	Name     string
	Interval time.Duration
	Fetch    FetchFunc
	// Deliver receives every result, stale or not; callers filter with Accept
	Deliver func(Result)
	Logger  *log.Logger
	// Context is handed to fetches. Stop does not cancel it.
	Context context.Context
}

// Scheduler fires Fetch on a single ticker. Every dispatch takes the next sequence
// number; a result is accepted only if nothing newer was applied and it was
// dispatched after the last Stop.
type Scheduler struct {
	name     string
	interval time.Duration
	fetch    FetchFunc
	deliver  func(Result)
	logger   *log.Logger
	ctx      context.Context

	mu      sync.Mutex
	active  bool
	seq     uint64 // highest dispatched
	applied uint64
	floor   uint64 // highest sequence dispatched before the last Stop
	stop    chan struct{}
	done    chan struct{}
}

// New creates a stopped scheduler
func New(opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	deliver := opts.Deliver
	if deliver == nil {
		deliver = func(Result) {}
	}

	return &Scheduler{
		name:     opts.Name,
		interval: interval,
		fetch:    opts.Fetch,
		deliver:  deliver,
		logger:   logger,
		ctx:      ctx,
	}
}

// Name returns the loop name carried in results
func (s *Scheduler) Name() string {
	return s.name
}

// Start begins ticking with an immediate first fetch. It returns false if the loop
// was already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return false
	}
	s.active = true
	stop := make(chan struct{})
	s.stop = stop
	s.done = make(chan struct{})
	go s.run(stop, s.done)
	s.mu.Unlock()

	s.logger.Printf("%s: loop started (every %s)", s.name, s.interval)
	s.loopTick(stop)
	return true
}

// Stop cancels the ticker and waits for it to exit. Results of fetches still in
// flight will not be accepted. It returns false if the loop wasn't running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	s.active = false
	s.floor = s.seq // invalidate in-flight fetches
	stop, done := s.stop, s.done
	close(stop)
	s.mu.Unlock()

	<-done
	s.logger.Printf("%s: loop stopped", s.name)
	return true
}

// Active reports whether the ticker is running
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Tick dispatches one fetch now and returns its sequence number. It also works on a
// stopped scheduler, as a one-off refresh.
func (s *Scheduler) Tick() uint64 {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	go s.dispatch(seq)
	return seq
}

// Accept reports whether the result with this sequence number may be applied. A
// result older than one already applied is stale, as is anything dispatched
// before the last Stop. Slow fetches overlapping newer dispatches still land.
func (s *Scheduler) Accept(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.floor || seq <= s.applied {
		return false
	}
	s.applied = seq
	return true
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.loopTick(stop)
		case <-stop:
			return
		}
	}
}

// loopTick dispatches only while the loop that owns stop is still the running one
func (s *Scheduler) loopTick(stop <-chan struct{}) {
	s.mu.Lock()
	if !s.active || s.stop != stop {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	go s.dispatch(seq)
}

func (s *Scheduler) dispatch(seq uint64) {
	var (
		value any
		err   error
	)
	if s.fetch != nil {
		value, err = s.fetch(s.ctx)
	}
	if err != nil {
		// One failed tick never halts the loop
		s.logger.Printf("%s: fetch #%d failed: %v", s.name, seq, err)
	}
	s.deliver(Result{Loop: s.name, Seq: seq, Value: value, Err: err})
}
