// internal/reconcile/merge.go
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rusenback/berrymon/internal/model"
)

// DefaultCap is the maximum number of records kept in a snapshot
const DefaultCap = 200

// Options control which incoming records take part in a merge
type Options struct {
	// FilterStarted drops records whose payload acknowledges a start command
	FilterStarted bool
	// ExcludeNotes drops records whose note contains any of these substrings
	ExcludeNotes []string
}

// Merger folds fetched batches into a bounded, ordered, deduplicated log
type Merger struct {
	Cap int

	counter atomic.Uint64
	now     func() time.Time
}

// NewMerger creates a merger with the default cap
func NewMerger() *Merger {
	return &Merger{Cap: DefaultCap, now: time.Now}
}

// Merge returns a new snapshot containing existing plus incoming. Incoming records
// overwrite existing ones with the same identity key. Neither input is modified.
func (m *Merger) Merge(existing, incoming []model.ExchangeRecord, opts Options) []model.ExchangeRecord {
	merged := make([]model.ExchangeRecord, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	put := func(rec model.ExchangeRecord) {
		key := model.IdentityKey(rec)
		if i, ok := index[key]; ok {
			// Same logical event: keep its place and its render key
			if rec.RenderKey == "" {
				rec.RenderKey = merged[i].RenderKey
			}
			merged[i] = rec
			return
		}
		index[key] = len(merged)
		merged = append(merged, rec)
	}

	for _, rec := range existing {
		put(rec)
	}
	for _, rec := range incoming {
		if skip(rec, opts) {
			continue
		}
		put(rec)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return model.CompareTimestamps(merged[i].Timestamp, merged[j].Timestamp) < 0
	})

	limit := m.Cap
	if limit <= 0 {
		limit = DefaultCap
	}
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}

	for i := range merged {
		if merged[i].ID == "" && merged[i].RenderKey == "" {
			merged[i].RenderKey = m.nextRenderKey()
		}
	}

	return merged
}

// Append adds a single locally produced record to the snapshot
func (m *Merger) Append(existing []model.ExchangeRecord, rec model.ExchangeRecord) []model.ExchangeRecord {
	rec.Local = true
	return m.Merge(existing, []model.ExchangeRecord{rec}, Options{})
}

// nextRenderKey never returns a key in the identity namespaces ("id:", "tx:")
func (m *Merger) nextRenderKey() string {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	n := m.counter.Add(1)
	return fmt.Sprintf("uid-%d-%d", now().UnixNano(), n)
}

func skip(rec model.ExchangeRecord, opts Options) bool {
	if opts.FilterStarted && IsStartedPayload(rec.Payload) {
		return true
	}
	for _, ex := range opts.ExcludeNotes {
		if ex != "" && strings.Contains(rec.Note, ex) {
			return true
		}
	}
	return false
}
