package radio

import "strings"

// Kind is the log category an event belongs to. Each payload variant maps to
// exactly one Kind; the set is closed.
type Kind int

const (
	KindCellInfo Kind = iota
	KindSignalStrength
	KindServiceState
	KindNetworkScan
	KindRegistrationFailed
	KindBroadcast
	KindPhysicalChannelConfig

	kindCount
)

var kindNames = [kindCount]string{
	KindCellInfo:              "CellInfoLog",
	KindSignalStrength:        "SignalStrengthLog",
	KindServiceState:          "ServiceStateLog",
	KindNetworkScan:           "NetworkScanLog",
	KindRegistrationFailed:    "RegistrationFailedLog",
	KindBroadcast:             "BroadcastLog",
	KindPhysicalChannelConfig: "PhysicalChannelConfigLog",
}

// AllKinds returns every category in canonical order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is one of the known categories.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

func (k Kind) String() string {
	if !k.Valid() {
		return "UnknownLog"
	}
	return kindNames[k]
}

// KindByName resolves a category by its exact (case-insensitive) name.
func KindByName(name string) (Kind, bool) {
	name = strings.TrimSpace(name)
	for k := Kind(0); k < kindCount; k++ {
		if strings.EqualFold(kindNames[k], name) {
			return k, true
		}
	}
	return 0, false
}
