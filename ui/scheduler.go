package ui

import (
	"sync"
	"time"

	"github.com/rivo/tview"
)

// frameScheduler coalesces pane updates by key and applies at most one batch
// per frame. Without an application the batch runs inline.
type frameScheduler struct {
	app          *tview.Application
	frameTime    time.Duration
	drainTimeout time.Duration

	mu      sync.Mutex
	pending map[string]func()
	order   []string

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newFrameScheduler(app *tview.Application, refresh, drainTimeout time.Duration) *frameScheduler {
	if refresh <= 0 {
		refresh = time.Second / 30
	}
	if drainTimeout <= 0 {
		drainTimeout = 100 * time.Millisecond
	}
	return &frameScheduler{
		app:          app,
		frameTime:    refresh,
		drainTimeout: drainTimeout,
		pending:      make(map[string]func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (f *frameScheduler) Start() {
	go f.run()
}

// Stop flushes what is pending, bounded by the drain timeout. Safe to call
// more than once, and before Start.
func (f *frameScheduler) Stop() {
	f.stopOnce.Do(func() { close(f.quit) })
	select {
	case <-f.done:
	case <-time.After(f.drainTimeout):
	}
}

// Schedule replaces any pending update for key. Keys keep their first
// scheduling position.
func (f *frameScheduler) Schedule(key string, fn func()) {
	if f == nil {
		return
	}
	f.mu.Lock()
	if _, ok := f.pending[key]; !ok {
		f.order = append(f.order, key)
	}
	f.pending[key] = fn
	f.mu.Unlock()
}

func (f *frameScheduler) run() {
	defer close(f.done)
	ticker := time.NewTicker(f.frameTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.quit:
			f.flush()
			return
		}
	}
}

func (f *frameScheduler) flush() {
	f.mu.Lock()
	if len(f.order) == 0 {
		f.mu.Unlock()
		return
	}
	batch := make([]func(), 0, len(f.order))
	for _, key := range f.order {
		batch = append(batch, f.pending[key])
	}
	f.pending = make(map[string]func())
	f.order = f.order[:0]
	f.mu.Unlock()

	apply := func() {
		for _, fn := range batch {
			fn()
		}
	}
	if f.app == nil {
		apply()
		return
	}
	f.app.QueueUpdateDraw(apply)
}
