package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"radiolog/radio"
)

// sampleLog returns two entries of every category, interleaved.
func sampleLog() []radio.Event {
	payloads := []radio.Payload{
		radio.CellInfoObserved{},
		radio.SignalStrengthChanged{},
		radio.ServiceStateChanged{},
		radio.NetworkScanUpdate{Status: radio.ScanComplete},
		radio.RegistrationFailed{CauseCode: 15},
		radio.BroadcastReceived{Action: radio.ActionCarrierSignalReset},
		radio.PhysicalChannelConfigChanged{},
	}
	base := time.Unix(1700000000, 0)
	var log []radio.Event
	for round := 0; round < 2; round++ {
		for i, p := range payloads {
			log = append(log, radio.Event{
				Time:           base.Add(time.Duration(round*len(payloads)+i) * time.Second),
				SubscriptionID: round,
				Payload:        p,
			})
		}
	}
	return log
}

func TestNewRegistryEnablesEverything(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, AllTypes(), r.Enabled())
	log := sampleLog()
	require.Equal(t, log, r.Project(log))
}

func TestAddRemoveIdempotent(t *testing.T) {
	r := NewRegistry()

	require.False(t, r.Add(CellInfoLog), "already present")
	require.Equal(t, AllTypes(), r.Enabled())

	require.True(t, r.Remove(BroadcastLog))
	require.False(t, r.Remove(BroadcastLog), "absent type")
	before := r.Enabled()
	require.NotContains(t, before, BroadcastLog)

	require.True(t, r.Add(BroadcastLog))
	require.False(t, r.Add(BroadcastLog))
	require.Equal(t, AllTypes(), r.Enabled())
}

func TestAddThenRemoveRestoresPriorSet(t *testing.T) {
	for _, typ := range AllTypes() {
		r := NewRegistry()
		r.Set([]Type{SignalStrengthLog, NetworkScanLog})
		prior := r.Enabled()
		if r.Contains(typ) {
			continue
		}
		r.Add(typ)
		r.Remove(typ)
		require.Equal(t, prior, r.Enabled(), "type %s", typ)
	}
}

func TestAddRejectsUnknownType(t *testing.T) {
	r := NewRegistry()
	r.Set(nil)
	require.False(t, r.Add(Type(42)))
	require.Empty(t, r.Enabled())
}

func TestProjectKeepsOrderForEverySubset(t *testing.T) {
	log := sampleLog()
	all := AllTypes()
	for mask := 0; mask < 1<<len(all); mask++ {
		var subset []Type
		for i, typ := range all {
			if mask&(1<<i) != 0 {
				subset = append(subset, typ)
			}
		}
		r := NewRegistry()
		r.Set(subset)

		var want []radio.Event
		for _, ev := range log {
			for _, typ := range subset {
				if TypeOf(ev) == typ {
					want = append(want, ev)
				}
			}
		}
		got := r.Project(log)
		require.Len(t, got, len(want), "mask %b", mask)
		for i := range want {
			require.Equal(t, want[i].Time, got[i].Time, "mask %b index %d", mask, i)
		}
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("cellinfolog")
	require.NoError(t, err)
	require.Equal(t, CellInfoLog, typ)

	typ, err = ParseType("Broadcast")
	require.NoError(t, err)
	require.Equal(t, BroadcastLog, typ)

	_, err = ParseType("SignalStrenghLog")
	require.ErrorContains(t, err, "did you mean SignalStrengthLog")

	_, err = ParseType("")
	require.Error(t, err)

	types, err := ParseTypes([]string{"ServiceState", "NetworkScanLog"})
	require.NoError(t, err)
	require.Equal(t, []Type{ServiceStateLog, NetworkScanLog}, types)
}
