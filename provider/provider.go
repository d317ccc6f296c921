// Package provider declares the radio telemetry contract the logger consumes.
// The host platform (or a bridge to it) implements Provider; the source and
// aggregate packages depend only on these interfaces.
package provider

import (
	"context"
	"errors"

	"radiolog/radio"
)

// ErrUnavailable is returned when the privileged bridge to the radio service
// cannot be reached.
var ErrUnavailable = errors.New("provider: radio service unavailable")

// EventMask selects which hardware event classes a listener receives.
type EventMask uint32

const (
	EventPhysicalChannelConfigChanged EventMask = 1 << iota
	EventCellInfoChanged
	EventServiceStateChanged
	EventRegistrationFailure
	EventSignalStrengthsChanged
	EventSignalStrengthChanged

	// EventAll is the mask the multiplexer registers with. Both signal
	// strength variants are requested; they reach the listener through the
	// same callback.
	EventAll = EventPhysicalChannelConfigChanged | EventCellInfoChanged |
		EventServiceStateChanged | EventRegistrationFailure |
		EventSignalStrengthsChanged | EventSignalStrengthChanged
)

// EventListener receives push events for one subscription. Callbacks may run
// on provider-owned goroutines and must not block for long.
type EventListener interface {
	OnPhysicalChannelConfigChanged(configs []radio.ChannelConfig)
	OnCellInfoChanged(cells []radio.CellObservation)
	OnServiceStateChanged(state radio.ServiceState)
	OnRegistrationFailed(failure radio.RegistrationFailed)
	OnSignalStrengthsChanged(strengths []radio.SignalMeasurement)
}

// Registration is an active listener registration. Unregister releases the
// platform-side registration; it is safe to call more than once.
type Registration interface {
	Unregister() error
}

// CellInfoCallback receives exactly one response per cell-info request.
type CellInfoCallback func(cells []radio.CellObservation, err error)

// ScanRequest describes a one-shot radio network scan.
type ScanRequest struct {
	Networks             []radio.AccessNetwork
	MaxSearchTimeSec     int
	IncrementalResults   bool
	IncrementalPeriodSec int
}

// ScanCallback receives scan progress messages. cells is nil for error and
// completion messages.
type ScanCallback func(status radio.ScanStatus, cells []radio.CellObservation)

// ScanHandle controls an in-flight scan.
type ScanHandle interface {
	Stop() error
}

// Broadcast is a raw system broadcast as delivered by the platform.
type Broadcast struct {
	Action string
	Extras map[string]string
}

// BroadcastCallback receives raw broadcasts matching the registered actions.
type BroadcastCallback func(b Broadcast)

// Provider is the radio telemetry surface supplied by the host platform.
type Provider interface {
	ListActiveSubscriptionIDs(ctx context.Context) ([]int, error)
	Listen(subID int, mask EventMask, listener EventListener) (Registration, error)
	RequestCellInfoUpdate(subID int, cb CellInfoCallback) error
	RequestNetworkScan(subID int, req ScanRequest, cb ScanCallback) (ScanHandle, error)
	AllowedNetworkTypesBitmask(subID int) (radio.NetworkTypeBitmask, error)
	NRStandaloneCapable() (bool, error)
	RegisterBroadcastListener(actions []radio.BroadcastAction, cb BroadcastCallback) (Registration, error)
}
