package source

import (
	"context"

	"radiolog/radio"
)

// eventListener adapts provider callbacks into events. Every callback maps to
// exactly one event; both signal-strength variants arrive through
// OnSignalStrengthsChanged.
type eventListener struct {
	ctx context.Context
	m   *Multiplexer
}

func (l *eventListener) OnPhysicalChannelConfigChanged(configs []radio.ChannelConfig) {
	l.m.emit(l.ctx, radio.PhysicalChannelConfigChanged{Configs: configs})
}

func (l *eventListener) OnCellInfoChanged(cells []radio.CellObservation) {
	l.m.emit(l.ctx, radio.CellInfoObserved{Cells: cells})
}

func (l *eventListener) OnServiceStateChanged(state radio.ServiceState) {
	l.m.emit(l.ctx, radio.ServiceStateChanged{State: state})
}

func (l *eventListener) OnRegistrationFailed(failure radio.RegistrationFailed) {
	l.m.emit(l.ctx, failure)
}

func (l *eventListener) OnSignalStrengthsChanged(strengths []radio.SignalMeasurement) {
	l.m.emit(l.ctx, radio.SignalStrengthChanged{Strengths: strengths})
}
