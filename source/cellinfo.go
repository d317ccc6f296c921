package source

import (
	"context"
	"sync"
	"time"

	"radiolog/radio"
)

// pollCellInfo waits one interval, requests cell info, and emits exactly one
// CellInfoObserved per cycle. The next interval starts only after the event
// has been handed off.
func (m *Multiplexer) pollCellInfo(ctx context.Context) error {
	timer := time.NewTimer(m.cfg.CellInfoInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		cells, ok := m.requestCellInfo(ctx)
		if !ok {
			return nil
		}
		if !m.emit(ctx, radio.CellInfoObserved{Cells: cells}) {
			return nil
		}
		timer.Reset(m.cfg.CellInfoInterval)
	}
}

// requestCellInfo issues one request and waits for its single response. Errors
// and stalls yield an empty list. ok is false only when ctx was cancelled, in
// which case nothing must be emitted.
func (m *Multiplexer) requestCellInfo(ctx context.Context) (cells []radio.CellObservation, ok bool) {
	// Buffered so a response arriving after we gave up never blocks the provider.
	resp := make(chan []radio.CellObservation, 1)
	var once sync.Once
	deliver := func(c []radio.CellObservation) {
		once.Do(func() { resp <- c })
	}

	err := m.prov.RequestCellInfoUpdate(m.subID, func(c []radio.CellObservation, err error) {
		if err != nil {
			m.log.Debugf("Multiplexer: cell-info callback error: %v", err)
			deliver(nil)
			return
		}
		deliver(c)
	})
	if err != nil {
		m.cellInfoWarn.Warnf(m.log, "Multiplexer: cell-info request failed: %v", err)
		return []radio.CellObservation{}, true
	}

	timer := time.NewTimer(m.cfg.CellInfoTimeout)
	defer timer.Stop()

	select {
	case c := <-resp:
		if c == nil {
			c = []radio.CellObservation{}
		}
		return c, true
	case <-timer.C:
		m.cellInfoWarn.Warnf(m.log, "Multiplexer: cell-info response stalled after %s", m.cfg.CellInfoTimeout)
		return []radio.CellObservation{}, true
	case <-ctx.Done():
		return nil, false
	}
}
