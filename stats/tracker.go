// Package stats tracks per-category and per-subscription event counters plus
// anomaly and discard metrics for the status line and the dashboard header.
package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker counts logged events. Clearing the log does not reset it; the
// counters describe the whole session.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so per-event increments don't fight over a mutex
	categoryCounts     sync.Map // string -> *atomic.Uint64
	subscriptionCounts sync.Map // string -> *atomic.Uint64
	reasonCounts       sync.Map // string -> *atomic.Uint64
	start              atomic.Int64
	droppedBroadcasts  atomic.Uint64
	clears             atomic.Uint64
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementEvent records one logged event of the given category and subscription.
func (t *Tracker) IncrementEvent(category string, subscriptionID int) {
	incrementCounter(&t.categoryCounts, category)
	incrementCounter(&t.subscriptionCounts, strconv.Itoa(subscriptionID))
}

// IncrementAnomaly records one classifier reason appended to the pending message.
func (t *Tracker) IncrementAnomaly(reason string) {
	incrementCounter(&t.reasonCounts, reason)
}

// IncrementDroppedBroadcast records a broadcast discarded as malformed.
func (t *Tracker) IncrementDroppedBroadcast() {
	t.droppedBroadcasts.Add(1)
}

// IncrementClears records a user-initiated log clear.
func (t *Tracker) IncrementClears() {
	t.clears.Add(1)
}

// GetCategoryCounts returns a copy of the per-category counts.
func (t *Tracker) GetCategoryCounts() map[string]uint64 {
	return copyCounts(&t.categoryCounts)
}

// GetSubscriptionCounts returns a copy of the per-subscription counts keyed by
// the decimal subscription id.
func (t *Tracker) GetSubscriptionCounts() map[string]uint64 {
	return copyCounts(&t.subscriptionCounts)
}

// GetAnomalyCounts returns a copy of the per-reason anomaly counts.
func (t *Tracker) GetAnomalyCounts() map[string]uint64 {
	return copyCounts(&t.reasonCounts)
}

// GetTotal returns the number of logged events (sum of category counts)
func (t *Tracker) GetTotal() uint64 {
	var total uint64
	t.categoryCounts.Range(func(_, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	return total
}

// GetAnomalyTotal returns the number of anomaly reasons raised.
func (t *Tracker) GetAnomalyTotal() uint64 {
	var total uint64
	t.reasonCounts.Range(func(_, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	return total
}

// DroppedBroadcasts returns how many malformed broadcasts were discarded.
func (t *Tracker) DroppedBroadcasts() uint64 {
	return t.droppedBroadcasts.Load()
}

// Clears returns how many times the log was cleared.
func (t *Tracker) Clears() uint64 {
	return t.clears.Load()
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Reset resets all counters
func (t *Tracker) Reset() {
	for _, m := range []*sync.Map{&t.categoryCounts, &t.subscriptionCounts, &t.reasonCounts} {
		m.Range(func(key, _ any) bool {
			m.Delete(key)
			return true
		})
	}
	t.droppedBroadcasts.Store(0)
	t.clears.Store(0)
	t.start.Store(time.Now().UnixNano())
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	return []string{
		formatMapCounts("Events by category", &t.categoryCounts),
		formatMapCounts("Events by subscription", &t.subscriptionCounts),
		formatMapCounts("Anomalies", &t.reasonCounts),
	}
}

// formatMapCounts renders counts sorted by key so successive lines are comparable.
func formatMapCounts(label string, counts *sync.Map) string {
	snapshot := copyCounts(counts)
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	if len(keys) == 0 {
		builder.WriteString("(none)")
		return builder.String()
	}
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%d", k, snapshot[k])
	}
	return builder.String()
}

func copyCounts(m *sync.Map) map[string]uint64 {
	counts := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
