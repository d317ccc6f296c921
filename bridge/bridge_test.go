package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"radiolog/aggregate"
	"radiolog/provider"
	"radiolog/provider/providertest"
	"radiolog/radio"
	"radiolog/source"
)

func intPtr(v int) *int { return &v }

// link wires a Bridge to an Agent serving fake over an in-process hub.
func link(t *testing.T, fake *providertest.Fake) *Bridge {
	t.Helper()
	hub := NewHub()
	agent, err := NewAgent(fake, hub.Connect(), "test", time.Second)
	require.NoError(t, err)
	b, err := New(hub.Connect(), Topics{Prefix: "test", ClientID: "logger"}, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Close()
		agent.Close()
	})
	return b
}

type recorder struct {
	configs chan []radio.ChannelConfig
	cells   chan []radio.CellObservation
	states  chan radio.ServiceState
	fails   chan radio.RegistrationFailed
	signals chan []radio.SignalMeasurement
}

func newRecorder() *recorder {
	return &recorder{
		configs: make(chan []radio.ChannelConfig, 4),
		cells:   make(chan []radio.CellObservation, 4),
		states:  make(chan radio.ServiceState, 4),
		fails:   make(chan radio.RegistrationFailed, 4),
		signals: make(chan []radio.SignalMeasurement, 4),
	}
}

func (r *recorder) OnPhysicalChannelConfigChanged(c []radio.ChannelConfig) { r.configs <- c }
func (r *recorder) OnCellInfoChanged(c []radio.CellObservation)           { r.cells <- c }
func (r *recorder) OnServiceStateChanged(s radio.ServiceState)             { r.states <- s }
func (r *recorder) OnRegistrationFailed(f radio.RegistrationFailed)        { r.fails <- f }
func (r *recorder) OnSignalStrengthsChanged(s []radio.SignalMeasurement)   { r.signals <- s }

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/rpc", "a/rpc", true},
		{"a/events/+", "a/events/-1", true},
		{"a/events/+", "a/events/1/x", false},
		{"a/#", "a/events/1", true},
		{"a/reply/x", "a/reply/y", false},
		{"a/events/+", "a/events", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, TopicMatches(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestTopicsLayout(t *testing.T) {
	topics := Topics{Prefix: "/radiolog/", ClientID: "c1"}
	require.Equal(t, "radiolog/rpc", topics.RPC())
	require.Equal(t, "radiolog/reply/c1", topics.Reply())
	require.Equal(t, "radiolog/events/-1", topics.Events(radio.DefaultSubscription))
	require.Equal(t, "radiolog/broadcast", topics.Broadcast())
}

func TestQueriesRoundTrip(t *testing.T) {
	fake := &providertest.Fake{
		SubscriptionIDs: []int{1, 2},
		Mask:            radio.NetworkTypeLTE | radio.NetworkTypeNR,
		NRStandalone:    true,
	}
	b := link(t, fake)

	ids, err := b.ListActiveSubscriptionIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, ids)

	mask, err := b.AllowedNetworkTypesBitmask(1)
	require.NoError(t, err)
	require.Equal(t, radio.NetworkTypeLTE|radio.NetworkTypeNR, mask)

	sa, err := b.NRStandaloneCapable()
	require.NoError(t, err)
	require.True(t, sa)
}

func TestRemoteErrorsPropagate(t *testing.T) {
	fake := &providertest.Fake{ListErr: providertest.ErrInjected, MaskErr: providertest.ErrInjected}
	b := link(t, fake)

	_, err := b.ListActiveSubscriptionIDs(context.Background())
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, MethodListSubscriptions, remote.Method)
	require.Contains(t, remote.Message, providertest.ErrInjected.Error())

	_, err = b.AllowedNetworkTypesBitmask(1)
	require.Error(t, err)
}

func TestRequestTimesOutWithoutAgent(t *testing.T) {
	b, err := New(NewHub().Connect(), Topics{Prefix: "test", ClientID: "lonely"}, 20*time.Millisecond)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.NRStandaloneCapable()
	require.ErrorIs(t, err, ErrTimeout)
}

func TestCallAfterClose(t *testing.T) {
	b := link(t, &providertest.Fake{})
	b.Close()
	_, err := b.ListActiveSubscriptionIDs(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestListenerEventsRoundTrip(t *testing.T) {
	fake := &providertest.Fake{}
	b := link(t, fake)
	rec := newRecorder()

	reg, err := b.Listen(3, provider.EventAll, rec)
	require.NoError(t, err)
	require.Equal(t, provider.EventAll, fake.ListenMask(3))

	l := fake.Listener(3)
	require.NotNil(t, l)

	cell := radio.CellObservation{
		Identity: radio.CellIdentity{
			Generation:   radio.GenerationLTE,
			MCC:          "440",
			MNC:          "10",
			Channel:      intPtr(1850),
			PCI:          intPtr(77),
			OperatorName: "Carrier",
		},
		Registered: true,
		Signal:     &radio.SignalMeasurement{Generation: radio.GenerationLTE, DBM: -98, Level: 3},
	}
	l.OnCellInfoChanged([]radio.CellObservation{cell})
	require.Equal(t, []radio.CellObservation{cell}, recv(t, rec.cells))

	configs := []radio.ChannelConfig{{Generation: radio.GenerationNR, Band: 78, PCI: 5, DownlinkChannel: 636666, BandwidthKHz: 100000}}
	l.OnPhysicalChannelConfigChanged(configs)
	require.Equal(t, configs, recv(t, rec.configs))

	state := radio.ServiceState{OperatorName: "Carrier", State: radio.ServiceInService, CellBandwidthsKHz: []int{20000}, RejectCauses: []int{}}
	l.OnServiceStateChanged(state)
	got := recv(t, rec.states)
	require.Equal(t, state.OperatorName, got.OperatorName)
	require.Equal(t, state.CellBandwidthsKHz, got.CellBandwidthsKHz)

	failure := radio.RegistrationFailed{
		Cell:       radio.CellIdentity{Generation: radio.GenerationLTE, MCC: "440", MNC: "20"},
		ChosenPLMN: "44020",
		Domain:     1,
		CauseCode:  15,
	}
	l.OnRegistrationFailed(failure)
	require.Equal(t, failure, recv(t, rec.fails))

	signals := []radio.SignalMeasurement{{Generation: radio.GenerationGSM, DBM: -80, Level: 4}}
	l.OnSignalStrengthsChanged(signals)
	require.Equal(t, signals, recv(t, rec.signals))

	require.NoError(t, reg.Unregister())
	require.True(t, fake.Unregistered(3))

	// Events pushed after unregistering have nowhere to go.
	l.OnCellInfoChanged(nil)
	select {
	case <-rec.cells:
		t.Fatal("event delivered after unregister")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCellInfoResponses(t *testing.T) {
	fake := &providertest.Fake{
		CellInfo: func(subID, n int) ([]radio.CellObservation, error) {
			switch n {
			case 1:
				return []radio.CellObservation{{Identity: radio.CellIdentity{Generation: radio.GenerationGSM, MCC: "310", MNC: "260"}}}, nil
			case 2:
				return nil, nil
			default:
				return nil, providertest.ErrInjected
			}
		},
	}
	b := link(t, fake)

	type response struct {
		cells []radio.CellObservation
		err   error
	}
	out := make(chan response, 1)
	cb := func(cells []radio.CellObservation, err error) { out <- response{cells, err} }

	require.NoError(t, b.RequestCellInfoUpdate(1, cb))
	r := recv(t, out)
	require.NoError(t, r.err)
	require.Len(t, r.cells, 1)
	require.Equal(t, "310260", r.cells[0].Identity.PLMN())

	require.NoError(t, b.RequestCellInfoUpdate(1, cb))
	r = recv(t, out)
	require.NoError(t, r.err)
	require.NotNil(t, r.cells)
	require.Empty(t, r.cells)

	require.NoError(t, b.RequestCellInfoUpdate(1, cb))
	r = recv(t, out)
	require.Error(t, r.err)
	require.Nil(t, r.cells)
	require.Zero(t, waitingCellInfo(b), "answered requests leave nothing behind")
}

func waitingCellInfo(b *Bridge) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cellInfo)
}

func TestUnansweredCellInfoExpires(t *testing.T) {
	fake := &providertest.Fake{HoldCellInfo: true}
	b := link(t, fake)
	b.cellInfoTTL = 20 * time.Millisecond

	errs := make(chan error, 4)
	cb := func(_ []radio.CellObservation, err error) { errs <- err }
	for i := 0; i < 3; i++ {
		require.NoError(t, b.RequestCellInfoUpdate(1, cb))
	}
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, recv(t, errs), ErrTimeout)
	}
	require.Zero(t, waitingCellInfo(b))
	require.Equal(t, 3, fake.CellInfoCalls(1))
}

func TestCloseFailsWaitingCellInfo(t *testing.T) {
	b := link(t, &providertest.Fake{HoldCellInfo: true})
	errs := make(chan error, 1)
	require.NoError(t, b.RequestCellInfoUpdate(1, func(_ []radio.CellObservation, err error) { errs <- err }))
	require.Equal(t, 1, waitingCellInfo(b))

	b.Close()
	require.ErrorIs(t, recv(t, errs), ErrClosed)
	require.Zero(t, waitingCellInfo(b))
}

func TestScanRoundTrip(t *testing.T) {
	fake := &providertest.Fake{ScanStarted: make(chan *providertest.Scan, 1)}
	b := link(t, fake)

	type update struct {
		status radio.ScanStatus
		cells  []radio.CellObservation
	}
	out := make(chan update, 4)
	req := provider.ScanRequest{
		Networks:             []radio.AccessNetwork{radio.AccessNetworkEUTRAN, radio.AccessNetworkNGRAN},
		MaxSearchTimeSec:     300,
		IncrementalResults:   true,
		IncrementalPeriodSec: 3,
	}
	handle, err := b.RequestNetworkScan(2, req, func(s radio.ScanStatus, cells []radio.CellObservation) {
		out <- update{s, cells}
	})
	require.NoError(t, err)

	scan := recv(t, fake.ScanStarted)
	require.Equal(t, 2, scan.SubID)
	require.Equal(t, req, scan.Request)

	scan.Deliver(radio.ScanResults, []radio.CellObservation{{Identity: radio.CellIdentity{Generation: radio.GenerationLTE, MCC: "440", MNC: "10"}}})
	u := recv(t, out)
	require.Equal(t, radio.ScanResults, u.status)
	require.Len(t, u.cells, 1)

	scan.Deliver(radio.ScanComplete, nil)
	u = recv(t, out)
	require.Equal(t, radio.ScanComplete, u.status)
	require.Nil(t, u.cells)

	require.NoError(t, handle.Stop())
	require.True(t, scan.Stopped())

	scan.Deliver(radio.ScanResults, nil)
	select {
	case <-out:
		t.Fatal("scan message delivered after stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroadcastRoundTrip(t *testing.T) {
	fake := &providertest.Fake{}
	b := link(t, fake)

	out := make(chan provider.Broadcast, 1)
	reg, err := b.RegisterBroadcastListener(radio.BroadcastActions, func(bc provider.Broadcast) { out <- bc })
	require.NoError(t, err)

	sent := provider.Broadcast{
		Action: string(radio.ActionCarrierSignalReset),
		Extras: map[string]string{radio.ExtraSubscriptionIndex: "1"},
	}
	require.True(t, fake.SendBroadcast(sent))
	require.Equal(t, sent, recv(t, out))

	require.NoError(t, reg.Unregister())
	require.True(t, fake.BroadcastUnregistered())
}

func TestMultiplexerOverBridge(t *testing.T) {
	fake := &providertest.Fake{Mask: radio.NetworkTypeLTE, ScanStarted: make(chan *providertest.Scan, 4)}
	b := link(t, fake)

	m := source.New(1, b, source.Config{
		CellInfoInterval:  time.Hour,
		CellInfoTimeout:   time.Hour,
		ScanWindow:        time.Hour,
		DefaultScanWindow: time.Hour,
	})
	require.NoError(t, m.Start(context.Background()))

	scan := recv(t, fake.ScanStarted)
	require.Equal(t, []radio.AccessNetwork{radio.AccessNetworkEUTRAN}, scan.Request.Networks)

	fake.Listener(1).OnServiceStateChanged(radio.ServiceState{OperatorName: "Carrier"})
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.Kind() != radio.KindServiceState {
				continue
			}
			require.Equal(t, 1, ev.SubscriptionID)
		case <-deadline:
			t.Fatal("service state never arrived")
		}
		break
	}

	m.Stop()
	require.True(t, scan.Stopped())
	require.True(t, fake.Unregistered(1))
}

func TestAggregatorOverBridge(t *testing.T) {
	fake := &providertest.Fake{SubscriptionIDs: []int{1}, Mask: radio.NetworkTypeLTE}
	b := link(t, fake)

	cfg := aggregate.DefaultConfig()
	cfg.Source = source.Config{
		CellInfoInterval:  time.Hour,
		CellInfoTimeout:   time.Hour,
		ScanWindow:        time.Hour,
		DefaultScanWindow: time.Hour,
	}
	agg := aggregate.New(b, cfg)
	require.NoError(t, agg.StartActive(context.Background()))
	defer agg.Stop()

	require.True(t, fake.SendBroadcast(provider.Broadcast{Action: string(radio.ActionCarrierSignalReset)}))
	require.Eventually(t, func() bool {
		for _, ev := range agg.Snapshot() {
			if ev.Kind() == radio.KindBroadcast {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}
