// Package source runs the per-subscription producers (event listener,
// cell-info poller, network-scan poller) and merges their output into one
// first-come-first-served event stream.
//
// Producers:
//   - listener: push callbacks from the provider, mapped 1:1 to events
//   - cell-info poller: one CellInfoObserved per cycle, empty on failure
//   - network-scan poller: one scan per window, stopped before the next cycle
//
// Failure handling: a failed cycle becomes data (an empty list or an error
// status); the loops end only when the multiplexer is stopped.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"radiolog/internal/ratelimit"
	"radiolog/provider"
	"radiolog/radio"
)

var (
	// ErrSetup wraps failures that prevent a subscription from being monitored.
	ErrSetup = errors.New("source: setup failed")
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("source: multiplexer already started")
)

// Config tunes the producer schedules. Zero values take the defaults.
type Config struct {
	CellInfoInterval  time.Duration // wait between cell-info cycles
	CellInfoTimeout   time.Duration // bound on a single cell-info response
	ScanWindow        time.Duration // scan window for a real subscription
	DefaultScanWindow time.Duration // scan window for radio.DefaultSubscription
	OutputBuffer      int
}

const (
	defaultCellInfoInterval  = 5 * time.Second
	defaultCellInfoTimeout   = 30 * time.Second
	defaultScanWindow        = 30 * time.Second
	defaultDefaultScanWindow = 300 * time.Second
	defaultOutputBuffer      = 100

	// warnInterval bounds how often a repeating producer failure is logged.
	warnInterval = time.Minute
)

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.CellInfoInterval <= 0 {
		c.CellInfoInterval = defaultCellInfoInterval
	}
	if c.CellInfoTimeout <= 0 {
		c.CellInfoTimeout = defaultCellInfoTimeout
	}
	if c.ScanWindow <= 0 {
		c.ScanWindow = defaultScanWindow
	}
	if c.DefaultScanWindow <= 0 {
		c.DefaultScanWindow = defaultDefaultScanWindow
	}
	if c.OutputBuffer <= 0 {
		c.OutputBuffer = defaultOutputBuffer
	}
	return c
}

// Multiplexer owns the producers for one subscription.
//
// Thread Safety:
//   - Start and Stop may be called from any goroutine; Stop is idempotent
//   - Provider callbacks may arrive concurrently; each emit is a blocking send
//     that gives up once the multiplexer is cancelled
//   - Events() is closed after every producer has exited
type Multiplexer struct {
	subID int
	prov  provider.Provider
	cfg   Config
	log   *logrus.Entry

	out    chan radio.Event
	mu     sync.RWMutex // guards closed against concurrent emits
	closed bool

	cellInfoWarn *ratelimit.Counter
	scanWarn     *ratelimit.Counter

	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	group    *errgroup.Group
	done     chan struct{}
}

// New creates a multiplexer for subID. Call Start to begin producing.
func New(subID int, prov provider.Provider, cfg Config) *Multiplexer {
	cfg = cfg.WithDefaults()
	return &Multiplexer{
		subID: subID,
		prov:  prov,
		cfg:   cfg,
		log:   logrus.WithField("subscription", subID),
		out:   make(chan radio.Event, cfg.OutputBuffer),
		done:  make(chan struct{}),

		cellInfoWarn: ratelimit.NewCounter(warnInterval),
		scanWarn:     ratelimit.NewCounter(warnInterval),
	}
}

// SubscriptionID returns the subscription this multiplexer serves.
func (m *Multiplexer) SubscriptionID() int {
	return m.subID
}

// Events returns the merged output of all producers.
func (m *Multiplexer) Events() <-chan radio.Event {
	return m.out
}

// Start performs the synchronous setup (capability query and listener
// registration) and launches the producers. Setup failures are returned
// wrapped in ErrSetup and leave nothing running.
func (m *Multiplexer) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	firstScan, err := m.scanRequest()
	if err != nil {
		m.closeOutput()
		close(m.done)
		return fmt.Errorf("%w: subscription %d: capability query: %w", ErrSetup, m.subID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	listener := &eventListener{ctx: runCtx, m: m}
	reg, err := m.prov.Listen(m.subID, provider.EventAll, listener)
	if err != nil {
		cancel()
		m.closeOutput()
		close(m.done)
		return fmt.Errorf("%w: subscription %d: listen: %w", ErrSetup, m.subID, err)
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	m.cancel = cancel
	m.group = group

	group.Go(func() error { return m.holdRegistration(groupCtx, reg) })
	group.Go(func() error { return m.pollCellInfo(groupCtx) })
	group.Go(func() error { return m.pollNetworkScan(groupCtx, firstScan) })

	go func() {
		if err := group.Wait(); err != nil {
			m.log.Warnf("Multiplexer: producer exited with error: %v", err)
		}
		m.closeOutput()
		close(m.done)
	}()

	m.log.Info("Multiplexer: started listener, cell-info poller, and network-scan poller")
	return nil
}

// Stop cancels every producer and waits until they have released their
// provider resources (listener registration, in-flight scan). No event is
// emitted after Stop returns.
func (m *Multiplexer) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		if m.started.Load() {
			<-m.done
		}
		m.log.Info("Multiplexer: stopped")
	})
}

// Done is closed once every producer has exited.
func (m *Multiplexer) Done() <-chan struct{} {
	return m.done
}

// emit publishes one event. It reports false when the multiplexer is shutting
// down and the event was discarded.
func (m *Multiplexer) emit(ctx context.Context, payload radio.Payload) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || ctx.Err() != nil {
		return false
	}
	ev := radio.NewEvent(m.subID, payload)
	select {
	case m.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Multiplexer) closeOutput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.out)
}

// holdRegistration keeps the listener registered until cancellation, then
// releases it with the provider.
func (m *Multiplexer) holdRegistration(ctx context.Context, reg provider.Registration) error {
	<-ctx.Done()
	if err := reg.Unregister(); err != nil {
		m.log.Warnf("Multiplexer: unregister listener failed: %v", err)
	}
	return nil
}
