// Package overview polls backend health and the process status of every feed,
// independent of which feed is mounted.
package overview

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rusenback/berrymon/internal/backend"
	"github.com/rusenback/berrymon/internal/logging"
	"github.com/rusenback/berrymon/internal/poll"
)

// LoopName names the overview scheduler in results
const LoopName = "overview"

// FeedStatus is the reported state of one feed's process
type FeedStatus struct {
	Name    string
	Title   string
	Running bool
	Err     error
}

// Report is the outcome of one overview fetch
type Report struct {
	Health    string
	HealthErr error
	Feeds     []FeedStatus
	At        time.Time
}

// Healthy reports whether the backend answered with status "ok"
func (r Report) Healthy() bool {
	return r.HealthErr == nil && r.Health == "ok"
}

// Options configure an Overview
type Options struct {
	Feeds    []backend.Feed
	Client   backend.OverviewClient
	Interval time.Duration
	Logger   *log.Logger
	Context  context.Context
	Deliver  func(poll.Result)
}

// Overview keeps the latest Report
type Overview struct {
	feeds  []backend.Feed
	client backend.OverviewClient
	sched  *poll.Scheduler

	mu     sync.Mutex
	report Report
}

// New builds a stopped overview
func New(opts Options) *Overview {
	o := &Overview{
		feeds:  opts.Feeds,
		client: opts.Client,
	}
	o.sched = poll.New(poll.Options{
		Name:     LoopName,
		Interval: opts.Interval,
		Fetch:    o.fetch,
		Deliver:  opts.Deliver,
		Logger:   logging.OrDiscard(opts.Logger),
		Context:  opts.Context,
	})
	return o
}

// Start begins polling
func (o *Overview) Start() { o.sched.Start() }

// Stop halts polling; late results are dropped
func (o *Overview) Stop() { o.sched.Stop() }

// Apply stores an accepted report. It returns false for stale or foreign results.
func (o *Overview) Apply(r poll.Result) bool {
	if r.Loop != LoopName || !o.sched.Accept(r.Seq) {
		return false
	}
	rep, ok := r.Value.(Report)
	if !ok {
		return false
	}
	o.mu.Lock()
	o.report = rep
	o.mu.Unlock()
	return true
}

// Report returns the latest report; At is zero before the first one arrives
func (o *Overview) Report() Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report
}

// fetch never fails as a whole; per-call errors are kept in the report
func (o *Overview) fetch(ctx context.Context) (any, error) {
	rep := Report{At: time.Now()}
	rep.Health, rep.HealthErr = o.client.Health(ctx)

	rep.Feeds = make([]FeedStatus, 0, len(o.feeds))
	for _, f := range o.feeds {
		st := FeedStatus{Name: f.Name, Title: f.Title}
		st.Running, st.Err = o.client.Status(ctx, f)
		rep.Feeds = append(rep.Feeds, st)
	}
	return rep, nil
}
