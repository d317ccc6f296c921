package radio

// NetworkTypeBitmask is the allowed-network-types mask reported by the modem.
// Bit positions follow the platform's NETWORK_TYPE_BITMASK_* values.
type NetworkTypeBitmask int64

const (
	NetworkTypeGPRS    NetworkTypeBitmask = 1 << 0
	NetworkTypeEDGE    NetworkTypeBitmask = 1 << 1
	NetworkTypeUMTS    NetworkTypeBitmask = 1 << 2
	NetworkTypeCDMA    NetworkTypeBitmask = 1 << 3
	NetworkTypeEVDO0   NetworkTypeBitmask = 1 << 4
	NetworkTypeEVDOA   NetworkTypeBitmask = 1 << 5
	NetworkType1xRTT   NetworkTypeBitmask = 1 << 6
	NetworkTypeHSDPA   NetworkTypeBitmask = 1 << 7
	NetworkTypeHSUPA   NetworkTypeBitmask = 1 << 8
	NetworkTypeHSPA    NetworkTypeBitmask = 1 << 9
	NetworkTypeEVDOB   NetworkTypeBitmask = 1 << 11
	NetworkTypeLTE     NetworkTypeBitmask = 1 << 12
	NetworkTypeEHRPD   NetworkTypeBitmask = 1 << 13
	NetworkTypeHSPAP   NetworkTypeBitmask = 1 << 14
	NetworkTypeGSM     NetworkTypeBitmask = 1 << 15
	NetworkTypeTDSCDMA NetworkTypeBitmask = 1 << 16
	NetworkTypeIWLAN   NetworkTypeBitmask = 1 << 17
	NetworkTypeLTECA   NetworkTypeBitmask = 1 << 18
	NetworkTypeNR      NetworkTypeBitmask = 1 << 19
)

// Network class masks group the individual technologies by generation.
const (
	NetworkClass2G = NetworkTypeGSM | NetworkTypeGPRS | NetworkTypeEDGE |
		NetworkTypeCDMA | NetworkType1xRTT
	NetworkClass3G = NetworkTypeEVDO0 | NetworkTypeEVDOA | NetworkTypeEVDOB |
		NetworkTypeEHRPD | NetworkTypeHSUPA | NetworkTypeHSDPA | NetworkTypeHSPA |
		NetworkTypeHSPAP | NetworkTypeUMTS | NetworkTypeTDSCDMA
	NetworkClass4G = NetworkTypeLTE | NetworkTypeLTECA | NetworkTypeIWLAN
	NetworkClass5G = NetworkTypeNR

	// StandardsFamily3GPP keeps only technologies a 3GPP network scan can find.
	StandardsFamily3GPP = NetworkTypeGSM | NetworkTypeGPRS | NetworkTypeEDGE |
		NetworkTypeHSUPA | NetworkTypeHSDPA | NetworkTypeHSPA | NetworkTypeHSPAP |
		NetworkTypeUMTS | NetworkTypeTDSCDMA | NetworkTypeLTE | NetworkTypeLTECA |
		NetworkTypeNR
)

// AccessNetwork is a radio access network type a scan can be constrained to.
type AccessNetwork int

const (
	AccessNetworkGERAN  AccessNetwork = 1 // 2G
	AccessNetworkUTRAN  AccessNetwork = 2 // 3G
	AccessNetworkEUTRAN AccessNetwork = 3 // 4G
	AccessNetworkNGRAN  AccessNetwork = 6 // 5G
)

func (a AccessNetwork) String() string {
	switch a {
	case AccessNetworkGERAN:
		return "GERAN"
	case AccessNetworkUTRAN:
		return "UTRAN"
	case AccessNetworkEUTRAN:
		return "EUTRAN"
	case AccessNetworkNGRAN:
		return "NGRAN"
	default:
		return "UNKNOWN"
	}
}
