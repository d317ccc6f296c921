// Package providertest supplies an in-memory provider.Provider for tests.
// Tests drive it directly: push listener events, answer cell-info requests,
// deliver scan callbacks, and inspect what was registered and stopped.
package providertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"radiolog/provider"
	"radiolog/radio"
)

// ErrInjected is a convenience error for failure injection.
var ErrInjected = errors.New("providertest: injected failure")

// CellInfoFunc answers the n-th (1-based) cell-info request for a subscription.
type CellInfoFunc func(subID, n int) ([]radio.CellObservation, error)

// Fake is a scriptable provider. Zero value fields mean "succeed with nothing".
type Fake struct {
	SubscriptionIDs []int
	ListErr         error
	Mask            radio.NetworkTypeBitmask
	MaskErr         error
	NRStandalone    bool
	ListenErr       error
	ScanErr         error
	BroadcastErr    error
	CellInfo        CellInfoFunc
	// HoldCellInfo suppresses cell-info responses so a request stalls.
	HoldCellInfo bool

	mu            sync.Mutex
	listeners     map[int]*registration
	cellInfoCalls map[int]int
	scans         []*Scan
	broadcast     *registration
	broadcastCB   provider.BroadcastCallback

	// ScanStarted receives each scan as it starts when non-nil. Sends never
	// block; size the buffer for the scans a test expects.
	ScanStarted chan *Scan
	// CellInfoRequested receives the subscription id of each cell-info request.
	CellInfoRequested chan int
}

var _ provider.Provider = (*Fake)(nil)

type registration struct {
	listener     provider.EventListener
	mask         provider.EventMask
	unregistered atomic.Bool
}

func (r *registration) Unregister() error {
	r.unregistered.Store(true)
	return nil
}

// ListActiveSubscriptionIDs implements provider.Provider.
func (f *Fake) ListActiveSubscriptionIDs(ctx context.Context) ([]int, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]int(nil), f.SubscriptionIDs...), nil
}

// Listen implements provider.Provider.
func (f *Fake) Listen(subID int, mask provider.EventMask, listener provider.EventListener) (provider.Registration, error) {
	if f.ListenErr != nil {
		return nil, f.ListenErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]*registration)
	}
	reg := &registration{listener: listener, mask: mask}
	f.listeners[subID] = reg
	return reg, nil
}

// RequestCellInfoUpdate implements provider.Provider. The response is
// delivered asynchronously, like the platform does.
func (f *Fake) RequestCellInfoUpdate(subID int, cb provider.CellInfoCallback) error {
	f.mu.Lock()
	if f.cellInfoCalls == nil {
		f.cellInfoCalls = make(map[int]int)
	}
	f.cellInfoCalls[subID]++
	n := f.cellInfoCalls[subID]
	fn := f.CellInfo
	hold := f.HoldCellInfo
	notify := f.CellInfoRequested
	f.mu.Unlock()

	if notify != nil {
		select {
		case notify <- subID:
		default:
		}
	}
	if hold {
		return nil
	}
	go func() {
		if fn == nil {
			cb(nil, nil)
			return
		}
		cb(fn(subID, n))
	}()
	return nil
}

// RequestNetworkScan implements provider.Provider.
func (f *Fake) RequestNetworkScan(subID int, req provider.ScanRequest, cb provider.ScanCallback) (provider.ScanHandle, error) {
	if f.ScanErr != nil {
		return nil, f.ScanErr
	}
	s := &Scan{SubID: subID, Request: req, cb: cb, stoppedCh: make(chan struct{})}
	f.mu.Lock()
	f.scans = append(f.scans, s)
	notify := f.ScanStarted
	f.mu.Unlock()
	if notify != nil {
		select {
		case notify <- s:
		default:
		}
	}
	return s, nil
}

// AllowedNetworkTypesBitmask implements provider.Provider.
func (f *Fake) AllowedNetworkTypesBitmask(subID int) (radio.NetworkTypeBitmask, error) {
	return f.Mask, f.MaskErr
}

// NRStandaloneCapable implements provider.Provider.
func (f *Fake) NRStandaloneCapable() (bool, error) {
	return f.NRStandalone, nil
}

// RegisterBroadcastListener implements provider.Provider.
func (f *Fake) RegisterBroadcastListener(actions []radio.BroadcastAction, cb provider.BroadcastCallback) (provider.Registration, error) {
	if f.BroadcastErr != nil {
		return nil, f.BroadcastErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = &registration{}
	f.broadcastCB = cb
	return f.broadcast, nil
}

// Listener returns the listener registered for subID, or nil.
func (f *Fake) Listener(subID int) provider.EventListener {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg, ok := f.listeners[subID]; ok {
		return reg.listener
	}
	return nil
}

// ListenMask returns the mask subID registered with.
func (f *Fake) ListenMask(subID int) provider.EventMask {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg, ok := f.listeners[subID]; ok {
		return reg.mask
	}
	return 0
}

// Unregistered reports whether subID's listener was released.
func (f *Fake) Unregistered(subID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.listeners[subID]
	return ok && reg.unregistered.Load()
}

// SendBroadcast pushes a raw broadcast to the registered broadcast listener.
// It reports false when no listener is registered or it was released.
func (f *Fake) SendBroadcast(b provider.Broadcast) bool {
	f.mu.Lock()
	reg, cb := f.broadcast, f.broadcastCB
	f.mu.Unlock()
	if reg == nil || reg.unregistered.Load() {
		return false
	}
	cb(b)
	return true
}

// BroadcastUnregistered reports whether the broadcast listener was released.
func (f *Fake) BroadcastUnregistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.broadcast != nil && f.broadcast.unregistered.Load()
}

// CellInfoCalls returns how many cell-info requests subID has made.
func (f *Fake) CellInfoCalls(subID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cellInfoCalls[subID]
}

// Scans returns every scan started so far.
func (f *Fake) Scans() []*Scan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Scan(nil), f.scans...)
}

// Scan is an in-flight fake network scan.
type Scan struct {
	SubID   int
	Request provider.ScanRequest

	cb        provider.ScanCallback
	stopOnce  sync.Once
	stopped   atomic.Bool
	stoppedCh chan struct{}
}

// Deliver invokes the scan callback as the platform would.
func (s *Scan) Deliver(status radio.ScanStatus, cells []radio.CellObservation) {
	s.cb(status, cells)
}

// Stop implements provider.ScanHandle.
func (s *Scan) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stoppedCh)
	})
	return nil
}

// Stopped reports whether Stop has been called.
func (s *Scan) Stopped() bool {
	return s.stopped.Load()
}

// StoppedCh is closed when Stop is called.
func (s *Scan) StoppedCh() <-chan struct{} {
	return s.stoppedCh
}
