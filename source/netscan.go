package source

import (
	"context"
	"sync/atomic"
	"time"

	"radiolog/provider"
	"radiolog/radio"
)

// scanWindow is how long one scan may run before it is stopped and restarted.
func (m *Multiplexer) scanWindow() time.Duration {
	if m.subID == radio.DefaultSubscription {
		return m.cfg.DefaultScanWindow
	}
	return m.cfg.ScanWindow
}

// pollNetworkScan repeats scan cycles until cancelled. The first cycle uses
// the request validated during Start; later cycles re-derive it and fall back
// to scanning every generation if the capability query fails.
func (m *Multiplexer) pollNetworkScan(ctx context.Context, first provider.ScanRequest) error {
	req := first
	for {
		if ctx.Err() != nil {
			return nil
		}
		m.runScanCycle(ctx, req)
		if ctx.Err() != nil {
			return nil
		}

		next, err := m.scanRequest()
		if err != nil {
			m.scanWarn.Warnf(m.log, "Multiplexer: capability query failed, scanning all generations: %v", err)
			next = newScanRequest(AllowedAccessNetworks(0, nil))
		}
		req = next
	}
}

// runScanCycle starts one scan, waits out the window (or cancellation), and
// always stops the scan handle before returning. Callbacks that arrive after
// the stop are dropped.
func (m *Multiplexer) runScanCycle(ctx context.Context, req provider.ScanRequest) {
	var stopped atomic.Bool
	handle, err := m.prov.RequestNetworkScan(m.subID, req, func(status radio.ScanStatus, cells []radio.CellObservation) {
		if stopped.Load() {
			return
		}
		m.emit(ctx, radio.NetworkScanUpdate{Status: status, Cells: cells})
	})
	if err != nil {
		m.scanWarn.Warnf(m.log, "Multiplexer: network scan request failed: %v", err)
		m.emit(ctx, radio.NetworkScanUpdate{Status: radio.ScanError})
	}
	defer func() {
		stopped.Store(true)
		if handle == nil {
			return
		}
		if err := handle.Stop(); err != nil {
			m.log.Debugf("Multiplexer: stop scan: %v", err)
		}
	}()

	timer := time.NewTimer(m.scanWindow())
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
