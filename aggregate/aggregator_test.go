package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"radiolog/anomaly"
	"radiolog/filter"
	"radiolog/provider"
	"radiolog/provider/providertest"
	"radiolog/radio"
	"radiolog/source"
)

func cell(gen radio.Generation, mcc string) radio.CellObservation {
	return radio.CellObservation{
		Identity:   radio.CellIdentity{Generation: gen, MCC: mcc, MNC: "20"},
		Registered: true,
	}
}

func cellEvent(sub int, cells ...radio.CellObservation) radio.Event {
	return radio.NewEvent(sub, radio.CellInfoObserved{Cells: cells})
}

// oneOfEach returns an event of every category in canonical order.
func oneOfEach() []radio.Event {
	return []radio.Event{
		cellEvent(1, cell(radio.GenerationLTE, "440")),
		radio.NewEvent(1, radio.SignalStrengthChanged{Strengths: []radio.SignalMeasurement{{Generation: radio.GenerationLTE, DBM: -100}}}),
		radio.NewEvent(2, radio.ServiceStateChanged{State: radio.ServiceState{State: radio.ServiceInService}}),
		radio.NewEvent(2, radio.NetworkScanUpdate{Status: radio.ScanComplete}),
		radio.NewEvent(1, radio.RegistrationFailed{ChosenPLMN: "44020", CauseCode: 13}),
		radio.NewEvent(radio.DefaultSubscription, radio.BroadcastReceived{Action: radio.ActionCarrierSignalReset}),
		radio.NewEvent(2, radio.PhysicalChannelConfigChanged{Configs: []radio.ChannelConfig{{Band: 3}}}),
	}
}

func newTestAggregator() *Aggregator {
	return New(&providertest.Fake{}, DefaultConfig())
}

func latest[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "stream closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream value")
	}
	var zero T
	return zero
}

func TestInsertPreservesArrivalOrder(t *testing.T) {
	a := newTestAggregator()
	events := oneOfEach()
	for _, ev := range events {
		a.insert(ev)
	}
	require.Equal(t, events, a.Snapshot())
	require.Equal(t, events, a.Visible())
	require.Equal(t, uint64(len(events)), a.Stats().GetTotal())
}

func TestFilterProjection(t *testing.T) {
	a := newTestAggregator()
	events := oneOfEach()
	for _, ev := range events {
		a.insert(ev)
	}

	subsets := [][]filter.Type{
		{},
		{filter.CellInfoLog},
		{filter.BroadcastLog, filter.NetworkScanLog},
		{filter.PhysicalChannelConfigLog, filter.ServiceStateLog, filter.SignalStrengthLog},
		filter.AllTypes(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, subset := range subsets {
		a.SetFilters(subset)
		want := filter.ProjectSet(events, subset)
		require.Equal(t, want, a.Visible())
		require.Equal(t, want, latest(t, a.ObserveLog(ctx)))
	}
	require.Equal(t, events, a.Snapshot(), "full log is unaffected by filters")
}

func TestAddRemoveFilterIdempotent(t *testing.T) {
	a := newTestAggregator()
	for _, ev := range oneOfEach() {
		a.insert(ev)
	}
	before := a.Filters()

	a.AddFilter(filter.CellInfoLog)
	require.Equal(t, before, a.Filters())

	a.RemoveFilter(filter.CellInfoLog)
	a.RemoveFilter(filter.CellInfoLog)
	require.NotContains(t, a.Filters(), filter.CellInfoLog)
	require.Len(t, a.Visible(), 6)

	a.AddFilter(filter.CellInfoLog)
	require.Equal(t, before, a.Filters())
	require.Len(t, a.Visible(), 7)
}

func TestInsertRespectsActiveFilter(t *testing.T) {
	a := newTestAggregator()
	a.SetFilters([]filter.Type{filter.BroadcastLog})
	a.insert(cellEvent(1, cell(radio.GenerationLTE, "440")))
	require.Len(t, a.Snapshot(), 1)
	require.Empty(t, a.Visible())
}

func TestAnomalyAccumulates(t *testing.T) {
	a := newTestAggregator()

	a.insert(cellEvent(1, cell(radio.GenerationLTE, "310")))
	require.Equal(t, anomaly.ReasonForeignMCC, a.PendingAnomaly())

	a.insert(cellEvent(1, cell(radio.GenerationLTE, "440"), cell(radio.GenerationNR, "441")))
	require.Equal(t, anomaly.ReasonForeignMCC, a.PendingAnomaly(), "home cells add nothing")

	a.insert(cellEvent(2, cell(radio.GenerationLTE, "310")))
	require.Equal(t, anomaly.ReasonForeignMCC+"\n"+anomaly.ReasonForeignMCC, a.PendingAnomaly())
	require.Equal(t, uint64(2), a.Stats().GetAnomalyCounts()[anomaly.ReasonForeignMCC])
}

func TestGSMHomeCellRaisesGenerationOnly(t *testing.T) {
	a := New(&providertest.Fake{}, Config{
		AnomalyNotifications: true,
		Anomaly: anomaly.Config{
			HomeMCCs:           []string{"440", "441"},
			AllowedGenerations: []radio.Generation{radio.GenerationLTE, radio.GenerationNR},
		},
	})
	a.insert(cellEvent(1, cell(radio.GenerationGSM, "440")))
	require.Equal(t, anomaly.ReasonUnexpectedGeneration, a.PendingAnomaly())
}

func TestScanUpdatesClassifiedOnlyWithCells(t *testing.T) {
	a := newTestAggregator()
	a.insert(radio.NewEvent(1, radio.NetworkScanUpdate{Status: radio.ScanError}))
	require.Empty(t, a.PendingAnomaly())

	a.insert(radio.NewEvent(1, radio.NetworkScanUpdate{
		Status: radio.ScanResults,
		Cells:  []radio.CellObservation{cell(radio.GenerationGSM, "310")},
	}))
	require.Equal(t, anomaly.ReasonForeignMCC+"\n"+anomaly.ReasonUnexpectedGeneration, a.PendingAnomaly())
}

func TestDisablingNotificationsClearsAndSuppresses(t *testing.T) {
	a := newTestAggregator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notify := a.ObserveNotificationEnabled(ctx)
	require.True(t, latest(t, notify))

	a.insert(cellEvent(1, cell(radio.GenerationLTE, "310")))
	require.NotEmpty(t, a.PendingAnomaly())

	a.SetAnomalyNotificationEnabled(false)
	require.False(t, latest(t, notify))
	require.Empty(t, a.PendingAnomaly())

	a.insert(cellEvent(1, cell(radio.GenerationLTE, "310")))
	require.Empty(t, a.PendingAnomaly())
	require.Len(t, a.Snapshot(), 2, "events are still logged")

	a.SetAnomalyNotificationEnabled(true)
	a.insert(cellEvent(1, cell(radio.GenerationLTE, "310")))
	require.Equal(t, anomaly.ReasonForeignMCC, a.PendingAnomaly())
}

func TestDismissStartsFreshMessage(t *testing.T) {
	a := newTestAggregator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pending := a.ObserveAnomaly(ctx)
	require.Equal(t, "", latest(t, pending))

	a.insert(cellEvent(1, cell(radio.GenerationLTE, "310")))
	require.Equal(t, anomaly.ReasonForeignMCC, latest(t, pending))

	a.DismissAnomaly()
	require.Equal(t, "", latest(t, pending))

	a.insert(cellEvent(1, cell(radio.GenerationCDMA, "440")))
	require.Equal(t, anomaly.ReasonUnexpectedGeneration, latest(t, pending))
}

func TestClearEmptiesLog(t *testing.T) {
	a := newTestAggregator()
	for _, ev := range oneOfEach() {
		a.insert(ev)
	}
	a.insert(cellEvent(1, cell(radio.GenerationLTE, "310")))

	a.Clear()
	require.Empty(t, a.Snapshot())
	require.Empty(t, a.Visible())
	require.Equal(t, anomaly.ReasonForeignMCC, a.PendingAnomaly())
	require.Equal(t, uint64(1), a.Stats().Clears())

	ev := cellEvent(2, cell(radio.GenerationLTE, "440"))
	a.insert(ev)
	require.Equal(t, []radio.Event{ev}, a.Snapshot())
}

func TestSnapshotIsolatedFromLaterAppends(t *testing.T) {
	a := newTestAggregator()
	a.insert(cellEvent(1))
	snap := a.Snapshot()
	snap = append(snap, cellEvent(9))
	a.insert(cellEvent(2))

	require.Len(t, a.Snapshot(), 2)
	require.Equal(t, 2, a.Snapshot()[1].SubscriptionID)
	require.Equal(t, 9, snap[1].SubscriptionID)
}

func quietSource() source.Config {
	return source.Config{
		CellInfoInterval:  time.Hour,
		CellInfoTimeout:   time.Hour,
		ScanWindow:        time.Hour,
		DefaultScanWindow: time.Hour,
	}
}

func TestStartMergesProducersAndBroadcasts(t *testing.T) {
	fake := &providertest.Fake{SubscriptionIDs: []int{1, 2}, Mask: radio.NetworkTypeLTE}
	cfg := DefaultConfig()
	cfg.Source = quietSource()
	a := New(fake, cfg)
	require.NoError(t, a.StartActive(context.Background()))

	fake.Listener(1).OnCellInfoChanged([]radio.CellObservation{cell(radio.GenerationLTE, "440")})
	require.Eventually(t, func() bool { return len(a.Snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	fake.Listener(2).OnServiceStateChanged(radio.ServiceState{State: radio.ServiceOutOfService})
	require.Eventually(t, func() bool { return len(a.Snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.True(t, fake.SendBroadcast(provider.Broadcast{
		Action: string(radio.ActionNetworkCountryChanged),
		Extras: map[string]string{radio.ExtraSubscriptionIndex: "2"},
	}))
	require.True(t, fake.SendBroadcast(provider.Broadcast{Action: "ACTION_UNKNOWN"}))
	require.Eventually(t, func() bool { return len(a.Snapshot()) == 3 }, 2*time.Second, 5*time.Millisecond)

	log := a.Snapshot()
	require.Equal(t, radio.KindCellInfo, log[0].Kind())
	require.Equal(t, 1, log[0].SubscriptionID)
	require.Equal(t, radio.KindServiceState, log[1].Kind())
	require.Equal(t, radio.KindBroadcast, log[2].Kind())
	require.Equal(t, 2, log[2].SubscriptionID)
	require.Equal(t, uint64(1), a.Stats().DroppedBroadcasts())

	ctx := context.Background()
	logStream := a.ObserveLog(ctx)

	a.Stop()
	require.True(t, fake.Unregistered(1))
	require.True(t, fake.Unregistered(2))
	require.True(t, fake.BroadcastUnregistered())
	for _, s := range fake.Scans() {
		require.True(t, s.Stopped())
	}

	// Late callbacks after Stop must not reach the log.
	fake.Listener(1).OnCellInfoChanged(nil)
	require.False(t, fake.SendBroadcast(provider.Broadcast{Action: string(radio.ActionCarrierSignalReset)}))
	require.Len(t, a.Snapshot(), 3)

	for range logStream {
	}
	a.Stop()
}

func signalAt(dbm int) []radio.SignalMeasurement {
	return []radio.SignalMeasurement{{Generation: radio.GenerationLTE, DBM: dbm}}
}

func TestFanInKeepsDeliveryOrder(t *testing.T) {
	fake := &providertest.Fake{SubscriptionIDs: []int{1, 2}, Mask: radio.NetworkTypeLTE}
	cfg := DefaultConfig()
	cfg.Source = quietSource()
	a := New(fake, cfg)
	require.NoError(t, a.StartActive(context.Background()))
	defer a.Stop()

	type step struct {
		deliver func()
		sub     int
		kind    radio.Kind
	}
	country := func(sub string) func() {
		return func() {
			fake.SendBroadcast(provider.Broadcast{
				Action: string(radio.ActionNetworkCountryChanged),
				Extras: map[string]string{radio.ExtraSubscriptionIndex: sub},
			})
		}
	}
	steps := []step{
		{func() { fake.Listener(2).OnSignalStrengthsChanged(signalAt(-90)) }, 2, radio.KindSignalStrength},
		{func() { fake.Listener(1).OnCellInfoChanged(nil) }, 1, radio.KindCellInfo},
		{country("1"), 1, radio.KindBroadcast},
		{func() { fake.Listener(1).OnServiceStateChanged(radio.ServiceState{}) }, 1, radio.KindServiceState},
		{country("2"), 2, radio.KindBroadcast},
		{func() { fake.Listener(2).OnRegistrationFailed(radio.RegistrationFailed{CauseCode: 13}) }, 2, radio.KindRegistrationFailed},
	}
	// Each delivery waits for its append so the cross-producer order is the
	// order the test chose.
	for i, s := range steps {
		s.deliver()
		require.Eventually(t, func() bool { return len(a.Snapshot()) == i+1 }, 2*time.Second, time.Millisecond)
	}
	log := a.Snapshot()
	for i, s := range steps {
		require.Equal(t, s.sub, log[i].SubscriptionID, "entry %d", i)
		require.Equal(t, s.kind, log[i].Kind(), "entry %d", i)
	}

	// Within one producer the order is strict even without waiting.
	for i := 0; i < 50; i++ {
		fake.Listener(1).OnSignalStrengthsChanged(signalAt(-i))
	}
	require.Eventually(t, func() bool { return len(a.Snapshot()) == len(steps)+50 }, 2*time.Second, time.Millisecond)
	for i, ev := range a.Snapshot()[len(steps):] {
		require.Equal(t, -i, ev.Payload.(radio.SignalStrengthChanged).Strengths[0].DBM)
	}
}

func TestStopKeepsEveryAcceptedEvent(t *testing.T) {
	const perSub = 300
	fake := &providertest.Fake{SubscriptionIDs: []int{1, 2}, Mask: radio.NetworkTypeLTE}
	cfg := DefaultConfig()
	cfg.Source = quietSource()
	cfg.InsertBuffer = 4
	a := New(fake, cfg)
	require.NoError(t, a.StartActive(context.Background()))

	// Every call returns only after the multiplexer accepted the event, so
	// all of them must be in the log once Stop returns.
	for i := 0; i < perSub; i++ {
		fake.Listener(1).OnSignalStrengthsChanged(signalAt(-i))
		fake.Listener(2).OnCellInfoChanged(nil)
	}
	const broadcasts = 20
	for i := 0; i < broadcasts; i++ {
		require.True(t, fake.SendBroadcast(provider.Broadcast{Action: string(radio.ActionCarrierSignalReset)}))
	}
	a.Stop()

	log := a.Snapshot()
	require.Len(t, log, 2*perSub+broadcasts)
	require.Equal(t, uint64(2*perSub+broadcasts), a.Stats().GetTotal())

	var dbms []int
	for _, ev := range log {
		if s, ok := ev.Payload.(radio.SignalStrengthChanged); ok {
			dbms = append(dbms, s.Strengths[0].DBM)
		}
	}
	require.Len(t, dbms, perSub)
	for i, dbm := range dbms {
		require.Equal(t, -i, dbm)
	}

	fake.Listener(1).OnCellInfoChanged(nil)
	require.Len(t, a.Snapshot(), 2*perSub+broadcasts)
}

func TestStartErrors(t *testing.T) {
	t.Run("no subscriptions", func(t *testing.T) {
		a := New(&providertest.Fake{}, DefaultConfig())
		require.ErrorIs(t, a.Start(context.Background(), nil), ErrNoSubscriptions)
		require.ErrorIs(t, a.StartActive(context.Background()), ErrNoSubscriptions)
	})

	t.Run("list failure", func(t *testing.T) {
		a := New(&providertest.Fake{ListErr: provider.ErrUnavailable}, DefaultConfig())
		require.ErrorIs(t, a.StartActive(context.Background()), provider.ErrUnavailable)
	})

	t.Run("setup failure", func(t *testing.T) {
		fake := &providertest.Fake{ListenErr: provider.ErrUnavailable}
		a := New(fake, DefaultConfig())
		err := a.Start(context.Background(), []int{1, 2})
		require.Error(t, err)
		require.True(t, errors.Is(err, source.ErrSetup))
		require.True(t, errors.Is(err, provider.ErrUnavailable))
		require.Contains(t, err.Error(), "subscription 1")
		require.Contains(t, err.Error(), "subscription 2")
	})

	t.Run("broadcast registration failure", func(t *testing.T) {
		fake := &providertest.Fake{BroadcastErr: provider.ErrUnavailable}
		cfg := DefaultConfig()
		cfg.Source = quietSource()
		a := New(fake, cfg)
		err := a.Start(context.Background(), []int{3})
		require.ErrorIs(t, err, source.ErrSetup)
		require.True(t, fake.Unregistered(3), "started subscriptions are rolled back")
	})

	t.Run("lifecycle", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Source = quietSource()
		a := New(&providertest.Fake{}, cfg)
		require.NoError(t, a.Start(context.Background(), []int{1, 1}))
		require.ErrorIs(t, a.Start(context.Background(), []int{2}), ErrAlreadyStarted)
		a.Stop()
		require.ErrorIs(t, a.Start(context.Background(), []int{2}), ErrStopped)
	})
}

func TestStopClosesStreams(t *testing.T) {
	a := newTestAggregator()
	ctx := context.Background()
	filters := a.ObserveFilters(ctx)
	require.Equal(t, filter.AllTypes(), latest(t, filters))

	a.Stop()
	_, open := <-filters
	require.False(t, open)

	a.insert(cellEvent(1))
	require.Empty(t, a.Snapshot())
}

func TestParseBroadcast(t *testing.T) {
	tests := []struct {
		name   string
		in     provider.Broadcast
		ok     bool
		subID  int
		action radio.BroadcastAction
	}{
		{
			name:   "no index defaults",
			in:     provider.Broadcast{Action: string(radio.ActionMultiSIMConfigChanged)},
			ok:     true,
			subID:  radio.DefaultSubscription,
			action: radio.ActionMultiSIMConfigChanged,
		},
		{
			name: "index parsed",
			in: provider.Broadcast{
				Action: string(radio.ActionCarrierSignalPCOValue),
				Extras: map[string]string{radio.ExtraSubscriptionIndex: " 4 "},
			},
			ok:     true,
			subID:  4,
			action: radio.ActionCarrierSignalPCOValue,
		},
		{
			name: "bad index",
			in: provider.Broadcast{
				Action: string(radio.ActionCarrierSignalPCOValue),
				Extras: map[string]string{radio.ExtraSubscriptionIndex: "sim-two"},
			},
		},
		{name: "unknown action", in: provider.Broadcast{Action: "ACTION_BOOT_COMPLETED"}},
		{name: "empty action", in: provider.Broadcast{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parseBroadcast(tt.in)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			require.Equal(t, tt.subID, ev.SubscriptionID)
			payload, isBroadcast := ev.Payload.(radio.BroadcastReceived)
			require.True(t, isBroadcast)
			require.Equal(t, tt.action, payload.Action)
		})
	}
}
