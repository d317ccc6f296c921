package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"radiolog/provider"
	"radiolog/radio"
)

type recorder struct {
	mu     sync.Mutex
	kinds  map[radio.Kind]int
	signal []radio.SignalMeasurement
}

func (r *recorder) add(k radio.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kinds == nil {
		r.kinds = make(map[radio.Kind]int)
	}
	r.kinds[k]++
}

func (r *recorder) count(k radio.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kinds[k]
}

func (r *recorder) OnPhysicalChannelConfigChanged([]radio.ChannelConfig) {
	r.add(radio.KindPhysicalChannelConfig)
}
func (r *recorder) OnCellInfoChanged([]radio.CellObservation) { r.add(radio.KindCellInfo) }
func (r *recorder) OnServiceStateChanged(radio.ServiceState)  { r.add(radio.KindServiceState) }
func (r *recorder) OnRegistrationFailed(radio.RegistrationFailed) {
	r.add(radio.KindRegistrationFailed)
}
func (r *recorder) OnSignalStrengthsChanged(s []radio.SignalMeasurement) {
	r.mu.Lock()
	r.signal = s
	r.mu.Unlock()
	r.add(radio.KindSignalStrength)
}

func TestListenRotatesEventClasses(t *testing.T) {
	p := New(Config{Interval: 5 * time.Millisecond, Seed: 1})
	rec := &recorder{}
	reg, err := p.Listen(1, provider.EventAll, rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.count(radio.KindSignalStrength) > 0 &&
			rec.count(radio.KindCellInfo) > 0 &&
			rec.count(radio.KindPhysicalChannelConfig) > 0 &&
			rec.count(radio.KindServiceState) > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, reg.Unregister())
	require.NoError(t, reg.Unregister())
	p.Close()

	after := rec.count(radio.KindCellInfo)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, rec.count(radio.KindCellInfo))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, s := range rec.signal {
		require.True(t, s.DBM <= -70 && s.DBM > -120, "dbm %d out of range", s.DBM)
		require.True(t, s.Level >= 1 && s.Level <= 4)
	}
}

func TestListenRespectsMask(t *testing.T) {
	p := New(Config{Interval: 2 * time.Millisecond})
	rec := &recorder{}
	reg, err := p.Listen(1, provider.EventServiceStateChanged, rec)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count(radio.KindServiceState) >= 2 }, 2*time.Second, 2*time.Millisecond)
	_ = reg.Unregister()
	p.Close()
	require.Zero(t, rec.count(radio.KindCellInfo))
	require.Zero(t, rec.count(radio.KindSignalStrength))
}

func cellInfo(t *testing.T, p *Provider, subID int) []radio.CellObservation {
	t.Helper()
	got := make(chan []radio.CellObservation, 1)
	require.NoError(t, p.RequestCellInfoUpdate(subID, func(cells []radio.CellObservation, err error) {
		require.NoError(t, err)
		got <- cells
	}))
	select {
	case cells := <-got:
		return cells
	case <-time.After(time.Second):
		t.Fatalf("no cell-info response")
		return nil
	}
}

func TestRogueCellInjection(t *testing.T) {
	p := New(Config{RogueEvery: 2})
	defer p.Close()

	hasForeign := func(cells []radio.CellObservation) bool {
		for _, c := range cells {
			if c.Identity.MCC != homeMCC {
				return true
			}
		}
		return false
	}
	require.False(t, hasForeign(cellInfo(t, p, 1)))
	second := cellInfo(t, p, 1)
	require.True(t, hasForeign(second))
	require.Equal(t, radio.GenerationGSM, second[len(second)-1].Identity.Generation)
	// Counts are per subscription.
	require.False(t, hasForeign(cellInfo(t, p, 2)))
}

func TestScanCompletesUnlessStopped(t *testing.T) {
	p := New(Config{ScanDelay: 5 * time.Millisecond})
	defer p.Close()

	statuses := make(chan radio.ScanStatus, 4)
	_, err := p.RequestNetworkScan(1, provider.ScanRequest{}, func(s radio.ScanStatus, cells []radio.CellObservation) {
		if s == radio.ScanComplete {
			require.Nil(t, cells)
		} else {
			require.NotEmpty(t, cells)
		}
		statuses <- s
	})
	require.NoError(t, err)
	require.Equal(t, radio.ScanResults, <-statuses)
	require.Equal(t, radio.ScanComplete, <-statuses)

	p2 := New(Config{ScanDelay: time.Hour})
	called := false
	h, err := p2.RequestNetworkScan(1, provider.ScanRequest{}, func(radio.ScanStatus, []radio.CellObservation) { called = true })
	require.NoError(t, err)
	require.NoError(t, h.Stop())
	p2.Close()
	require.False(t, called)
}

func TestStaticQueries(t *testing.T) {
	p := New(Config{SubscriptionIDs: []int{3, 4}})
	defer p.Close()

	ids, err := p.ListActiveSubscriptionIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{3, 4}, ids)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ListActiveSubscriptionIDs(ctx)
	require.ErrorIs(t, err, context.Canceled)

	mask, err := p.AllowedNetworkTypesBitmask(3)
	require.NoError(t, err)
	require.NotZero(t, mask&radio.NetworkTypeGSM)

	sa, err := p.NRStandaloneCapable()
	require.NoError(t, err)
	require.True(t, sa)
}

func TestBroadcastsUntilClose(t *testing.T) {
	p := New(Config{SubscriptionIDs: []int{7}, Interval: time.Millisecond})
	got := make(chan provider.Broadcast, 16)
	_, err := p.RegisterBroadcastListener(radio.BroadcastActions, func(b provider.Broadcast) {
		select {
		case got <- b:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case b := <-got:
		require.Equal(t, string(radio.ActionNetworkCountryChanged), b.Action)
		require.Equal(t, "7", b.Extras[radio.ExtraSubscriptionIndex])
	case <-time.After(2 * time.Second):
		t.Fatalf("no broadcast")
	}
	p.Close()
}
