// Package aggregate merges every subscription's producers and the system
// broadcast listener into one append-ordered diagnostic log, keeps the
// filtered view current, and accumulates anomaly notifications.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"radiolog/anomaly"
	"radiolog/filter"
	"radiolog/internal/watch"
	"radiolog/provider"
	"radiolog/radio"
	"radiolog/source"
	"radiolog/stats"
)

var (
	// ErrNoSubscriptions is returned when there is nothing to monitor.
	ErrNoSubscriptions = errors.New("aggregate: no subscriptions to monitor")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("aggregate: already started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("aggregate: stopped")
)

const defaultInsertBuffer = 256

// Config assembles the aggregator's collaborators' settings.
type Config struct {
	Source  source.Config
	Anomaly anomaly.Config
	// AnomalyNotifications is the initial notification toggle.
	AnomalyNotifications bool
	// Filters is the initial enabled set; nil enables every type.
	Filters      []filter.Type
	InsertBuffer int
}

// DefaultConfig enables notifications and every filter.
func DefaultConfig() Config {
	return Config{AnomalyNotifications: true}
}

// Aggregator owns one multiplexer per subscription and the single insertion
// point for the log.
//
// Concurrency contract:
//   - Only the insertion goroutine appends; it holds mu for the append, the
//     classification and the publish, so observers never see a half update
//   - An event accepted by a producer is appended exactly once, even when
//     Stop races with it: Stop drains before it returns
//   - Mutations (filters, clear, notification toggle) take the same mu
//   - Snapshot and Visible are lock-free reads of the last published views
//   - Observe* streams are conflated: the newest value always wins
type Aggregator struct {
	prov       provider.Provider
	cfg        Config
	classifier *anomaly.Classifier
	filters    *filter.Registry
	stats      *stats.Tracker

	in       chan radio.Event
	inMu     sync.RWMutex // guards inClosed against broadcast senders
	inClosed bool

	mu      sync.Mutex
	log     []radio.Event
	visible []radio.Event
	pending string
	notify  bool
	closed  bool

	logSnap     atomic.Pointer[[]radio.Event]
	visibleSnap atomic.Pointer[[]radio.Event]

	visibleVal *watch.Value[[]radio.Event]
	filterVal  *watch.Value[[]filter.Type]
	anomalyVal *watch.Value[string]
	notifyVal  *watch.Value[bool]

	lifecycle    sync.Mutex
	started      bool
	stopped      bool
	cancel       context.CancelFunc
	muxes        []*source.Multiplexer
	broadcastReg provider.Registration
	forwarders   sync.WaitGroup
	runDone      chan struct{}
}

// New creates an aggregator over prov. Nothing runs until Start.
func New(prov provider.Provider, cfg Config) *Aggregator {
	if cfg.InsertBuffer <= 0 {
		cfg.InsertBuffer = defaultInsertBuffer
	}
	filters := filter.NewRegistry()
	if cfg.Filters != nil {
		filters.Set(cfg.Filters)
	}

	a := &Aggregator{
		prov:       prov,
		cfg:        cfg,
		classifier: anomaly.New(cfg.Anomaly),
		filters:    filters,
		stats:      stats.NewTracker(),
		in:         make(chan radio.Event, cfg.InsertBuffer),
		notify:     cfg.AnomalyNotifications,
		visibleVal: watch.New([]radio.Event{}),
		filterVal:  watch.New(filters.Enabled()),
		anomalyVal: watch.New(""),
		notifyVal:  watch.New(cfg.AnomalyNotifications),
	}
	a.publishLocked()
	return a
}

// StartActive monitors every subscription the provider reports as active.
func (a *Aggregator) StartActive(ctx context.Context) error {
	ids, err := a.prov.ListActiveSubscriptionIDs(ctx)
	if err != nil {
		return fmt.Errorf("aggregate: list subscriptions: %w", err)
	}
	return a.Start(ctx, ids)
}

// Start launches one multiplexer per subscription id, the broadcast listener,
// and the insertion goroutine. If any subscription fails to start, everything
// already started is stopped and the per-subscription failures are returned
// joined together.
func (a *Aggregator) Start(ctx context.Context, ids []int) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ErrNoSubscriptions
	}

	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.stopped {
		return ErrStopped
	}
	if a.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	muxes := make([]*source.Multiplexer, 0, len(ids))
	var errs []error
	for _, id := range ids {
		m := source.New(id, a.prov, a.cfg.Source)
		if err := m.Start(runCtx); err != nil {
			errs = append(errs, err)
			continue
		}
		muxes = append(muxes, m)
	}
	abort := func() {
		cancel()
		for _, m := range muxes {
			m.Stop()
		}
	}
	if len(errs) > 0 {
		abort()
		return fmt.Errorf("aggregate: start monitoring: %w", errors.Join(errs...))
	}

	reg, err := a.prov.RegisterBroadcastListener(radio.BroadcastActions, a.onBroadcast(runCtx))
	if err != nil {
		abort()
		return fmt.Errorf("aggregate: broadcast listener: %w: %w", source.ErrSetup, err)
	}

	a.started = true
	a.cancel = cancel
	a.muxes = muxes
	a.broadcastReg = reg

	a.runDone = make(chan struct{})
	go a.run()
	for _, m := range muxes {
		a.forwarders.Add(1)
		go a.forward(m)
	}
	logrus.Infof("Aggregator: monitoring %d subscription(s) %v", len(muxes), ids)
	return nil
}

// Stop cancels every producer and releases provider registrations, then lets
// the insertion goroutine drain whatever the producers already handed off.
// Nothing is appended to the log after Stop returns, nothing accepted before
// it is lost, and every observer stream is closed. Stop is idempotent.
func (a *Aggregator) Stop() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true

	if a.cancel != nil {
		a.cancel()
	}
	for _, m := range a.muxes {
		m.Stop()
	}
	if a.broadcastReg != nil {
		if err := a.broadcastReg.Unregister(); err != nil {
			logrus.Warnf("Aggregator: unregister broadcast listener: %v", err)
		}
	}

	// Multiplexers close their streams once their producers are gone; the
	// forwarders relay what is still buffered and exit.
	a.forwarders.Wait()
	a.inMu.Lock()
	a.inClosed = true
	close(a.in)
	a.inMu.Unlock()
	if a.runDone != nil {
		<-a.runDone
	}

	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.visibleVal.Close()
	a.filterVal.Close()
	a.anomalyVal.Close()
	a.notifyVal.Close()
	if a.started {
		logrus.Info("Aggregator: stopped")
	}
}

// forward relays one multiplexer's output into the insertion channel without
// dropping. It exits only when the multiplexer closes its stream, which
// happens after Stop has cancelled the producers.
func (a *Aggregator) forward(m *source.Multiplexer) {
	defer a.forwarders.Done()
	for ev := range m.Events() {
		a.in <- ev
	}
}

// run is the single insertion goroutine. It runs until Stop closes a.in.
func (a *Aggregator) run() {
	defer close(a.runDone)
	for ev := range a.in {
		a.insert(ev)
	}
}

// insert appends ev, classifies its cells when notifications are on, and
// publishes the new views, all in one critical section.
func (a *Aggregator) insert(ev radio.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	a.log = append(a.log, ev)
	if a.filters.Matches(ev) {
		a.visible = append(a.visible, ev)
	}
	a.stats.IncrementEvent(ev.Kind().String(), ev.SubscriptionID)

	if a.notify {
		if cells, ok := radio.ObservedCells(ev.Payload); ok {
			if reasons := a.classifier.Classify(cells); len(reasons) > 0 {
				a.pending = anomaly.Append(a.pending, reasons)
				for _, r := range reasons {
					a.stats.IncrementAnomaly(r)
				}
				logrus.WithField("subscription", ev.SubscriptionID).Warnf("Aggregator: anomaly %v", reasons)
				a.anomalyVal.Set(a.pending)
			}
		}
	}
	a.publishLocked()
}

// publishLocked stores capacity-clipped views so readers can never append
// into the aggregator's backing arrays.
func (a *Aggregator) publishLocked() {
	full := a.log[:len(a.log):len(a.log)]
	vis := a.visible[:len(a.visible):len(a.visible)]
	if vis == nil {
		vis = []radio.Event{}
	}
	a.logSnap.Store(&full)
	a.visibleSnap.Store(&vis)
	a.visibleVal.Set(vis)
}

// reprojectLocked rebuilds the visible view after a filter change.
func (a *Aggregator) reprojectLocked() {
	a.visible = a.filters.Project(a.log)
	a.filterVal.Set(a.filters.Enabled())
	a.publishLocked()
}

// AddFilter enables t. Adding an enabled type changes nothing.
func (a *Aggregator) AddFilter(t filter.Type) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.filters.Add(t) {
		a.reprojectLocked()
	}
}

// RemoveFilter disables t. Removing a disabled type changes nothing.
func (a *Aggregator) RemoveFilter(t filter.Type) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.filters.Remove(t) {
		a.reprojectLocked()
	}
}

// SetFilters replaces the enabled set.
func (a *Aggregator) SetFilters(types []filter.Type) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filters.Set(types)
	a.reprojectLocked()
}

// Clear empties the log. The pending anomaly message is left alone.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = nil
	a.visible = nil
	a.stats.IncrementClears()
	a.publishLocked()
}

// SetAnomalyNotificationEnabled toggles classification of incoming cells.
// Disabling also discards the pending message.
func (a *Aggregator) SetAnomalyNotificationEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notify = enabled
	if !enabled && a.pending != "" {
		a.pending = ""
		a.anomalyVal.Set("")
	}
	a.notifyVal.Set(enabled)
}

// DismissAnomaly clears the pending message. Later anomalies start a new one.
func (a *Aggregator) DismissAnomaly() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == "" {
		return
	}
	a.pending = ""
	a.anomalyVal.Set("")
}

// ObserveLog yields the filtered log on every append, clear or filter change.
func (a *Aggregator) ObserveLog(ctx context.Context) <-chan []radio.Event {
	return a.visibleVal.Subscribe(ctx)
}

// ObserveFilters yields the enabled types in canonical order.
func (a *Aggregator) ObserveFilters(ctx context.Context) <-chan []filter.Type {
	return a.filterVal.Subscribe(ctx)
}

// ObserveAnomaly yields the pending anomaly message; "" means nothing to show.
func (a *Aggregator) ObserveAnomaly(ctx context.Context) <-chan string {
	return a.anomalyVal.Subscribe(ctx)
}

// ObserveNotificationEnabled yields the notification toggle.
func (a *Aggregator) ObserveNotificationEnabled(ctx context.Context) <-chan bool {
	return a.notifyVal.Subscribe(ctx)
}

// Snapshot returns the full log. The slice must not be modified.
func (a *Aggregator) Snapshot() []radio.Event {
	return *a.logSnap.Load()
}

// Visible returns the filtered log. The slice must not be modified.
func (a *Aggregator) Visible() []radio.Event {
	return *a.visibleSnap.Load()
}

// Filters returns the enabled types in canonical order.
func (a *Aggregator) Filters() []filter.Type {
	return a.filterVal.Get()
}

// PendingAnomaly returns the pending anomaly message.
func (a *Aggregator) PendingAnomaly() string {
	return a.anomalyVal.Get()
}

// NotificationEnabled reports the notification toggle.
func (a *Aggregator) NotificationEnabled() bool {
	return a.notifyVal.Get()
}

// Stats returns the session counters.
func (a *Aggregator) Stats() *stats.Tracker {
	return a.stats
}

func uniqueIDs(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
