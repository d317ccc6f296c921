// Package radio defines the diagnostic event model shared by the producers,
// the aggregator, and every consumer of the log: the Event record, its closed
// set of payload variants, and the cell/signal types they carry.
package radio

import (
	"time"
)

// DefaultSubscription marks events that are not tied to a specific SIM.
const DefaultSubscription = -1

// Event is a single immutable log entry.
type Event struct {
	Time           time.Time
	SubscriptionID int
	Payload        Payload
}

// NewEvent stamps a payload with the current wall-clock time.
func NewEvent(subscriptionID int, payload Payload) Event {
	return Event{
		Time:           time.Now(),
		SubscriptionID: subscriptionID,
		Payload:        payload,
	}
}

// Kind returns the category derived from the payload variant.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return Kind(-1)
	}
	return e.Payload.Kind()
}

// Payload is the sealed tagged union carried by an Event. Only the variants in
// this package implement it.
type Payload interface {
	Kind() Kind
	isPayload()
}

// CellInfoObserved carries the cells reported by a cell-info callback or poll.
type CellInfoObserved struct {
	Cells []CellObservation
}

// ServiceStateChanged carries a service-state snapshot.
type ServiceStateChanged struct {
	State ServiceState
}

// SignalStrengthChanged carries per-technology signal measurements.
type SignalStrengthChanged struct {
	Strengths []SignalMeasurement
}

// NetworkScanUpdate is one network-scan callback message. Cells is nil when
// the message carries no result list (errors, completion).
type NetworkScanUpdate struct {
	Status ScanStatus
	Cells  []CellObservation
}

// RegistrationFailed reports a rejected network registration attempt.
type RegistrationFailed struct {
	Cell                CellIdentity
	ChosenPLMN          string
	Domain              int
	CauseCode           int
	AdditionalCauseCode int
}

// BroadcastReceived is a recognised system broadcast and its extras.
type BroadcastReceived struct {
	Action BroadcastAction
	Extras map[string]string
}

// PhysicalChannelConfigChanged carries the current physical channel configs.
type PhysicalChannelConfigChanged struct {
	Configs []ChannelConfig
}

func (CellInfoObserved) Kind() Kind { return KindCellInfo }
func (ServiceStateChanged) Kind() Kind { return KindServiceState }
func (SignalStrengthChanged) Kind() Kind { return KindSignalStrength }
func (NetworkScanUpdate) Kind() Kind { return KindNetworkScan }
func (RegistrationFailed) Kind() Kind { return KindRegistrationFailed }
func (BroadcastReceived) Kind() Kind { return KindBroadcast }
func (PhysicalChannelConfigChanged) Kind() Kind { return KindPhysicalChannelConfig }

func (CellInfoObserved) isPayload() {}
func (ServiceStateChanged) isPayload() {}
func (SignalStrengthChanged) isPayload() {}
func (NetworkScanUpdate) isPayload() {}
func (RegistrationFailed) isPayload() {}
func (BroadcastReceived) isPayload() {}
func (PhysicalChannelConfigChanged) isPayload() {}

// ObservedCells returns the cell list carried by the payload and whether the
// payload carries one at all. Only CellInfoObserved and NetworkScanUpdate with
// a non-nil list qualify.
func ObservedCells(p Payload) ([]CellObservation, bool) {
	switch v := p.(type) {
	case CellInfoObserved:
		return v.Cells, true
	case NetworkScanUpdate:
		if v.Cells == nil {
			return nil, false
		}
		return v.Cells, true
	default:
		return nil, false
	}
}
