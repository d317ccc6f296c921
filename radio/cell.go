package radio

import "strings"

// Generation is the radio access technology family of a cell.
type Generation int

const (
	GenerationUnknown Generation = iota
	GenerationGSM
	GenerationCDMA
	GenerationLTE
	GenerationNR
)

func (g Generation) String() string {
	switch g {
	case GenerationGSM:
		return "GSM"
	case GenerationCDMA:
		return "CDMA"
	case GenerationLTE:
		return "LTE"
	case GenerationNR:
		return "NR"
	default:
		return "UNKNOWN"
	}
}

// ParseGeneration maps a technology label onto a Generation. WCDMA and
// TD-SCDMA fold into the CDMA family.
func ParseGeneration(label string) Generation {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "GSM", "2G":
		return GenerationGSM
	case "CDMA", "WCDMA", "TDSCDMA", "TD-SCDMA", "UMTS", "3G":
		return GenerationCDMA
	case "LTE", "4G":
		return GenerationLTE
	case "NR", "5G":
		return GenerationNR
	default:
		return GenerationUnknown
	}
}

// CellIdentity identifies a cell. Channel and PCI are optional; nil means the
// platform did not report them.
type CellIdentity struct {
	Generation   Generation
	MCC          string
	MNC          string
	Channel      *int // EARFCN for LTE, NR-ARFCN for NR
	PCI          *int
	OperatorName string
}

// PLMN returns the mobile country code followed by the network code.
func (c CellIdentity) PLMN() string {
	return c.MCC + c.MNC
}

// Band resolves the operating band from the channel number.
func (c CellIdentity) Band() string {
	if c.Channel == nil {
		return BandUnknown
	}
	switch c.Generation {
	case GenerationLTE:
		return LTEBandForEARFCN(*c.Channel)
	case GenerationNR:
		return NRBandForARFCN(*c.Channel)
	default:
		return BandUnknown
	}
}

// CellObservation is one cell as seen by the modem.
type CellObservation struct {
	Identity   CellIdentity
	Registered bool
	Signal     *SignalMeasurement
}

// SignalMeasurement is a per-technology signal reading.
type SignalMeasurement struct {
	Generation Generation
	DBM        int
	Level      int // 0 (none) .. 4 (great)
}

// Service states as reported by the modem.
const (
	ServiceInService     = 0
	ServiceOutOfService  = 1
	ServiceEmergencyOnly = 2
	ServicePowerOff      = 3
)

// ServiceState is a summary of the registration state.
type ServiceState struct {
	OperatorName      string
	State             int
	CellBandwidthsKHz []int
	RejectCauses      []int
}

// StateName returns the label for the numeric service state.
func (s ServiceState) StateName() string {
	switch s.State {
	case ServiceInService:
		return "IN_SERVICE"
	case ServiceOutOfService:
		return "OUT_OF_SERVICE"
	case ServiceEmergencyOnly:
		return "EMERGENCY_ONLY"
	case ServicePowerOff:
		return "POWER_OFF"
	default:
		return "UNKNOWN"
	}
}

// ChannelConfig describes one physical channel in use.
type ChannelConfig struct {
	Generation      Generation
	Band            int
	PCI             int
	DownlinkChannel int
	BandwidthKHz    int
}

// BandLabel formats the numeric band with the technology prefix.
func (c ChannelConfig) BandLabel() string {
	if c.Band <= 0 {
		return BandUnknown
	}
	switch c.Generation {
	case GenerationLTE:
		return bandLabel("b", c.Band)
	case GenerationNR:
		return bandLabel("n", c.Band)
	default:
		return BandUnknown
	}
}
