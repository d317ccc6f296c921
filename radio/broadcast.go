package radio

// ScanStatus is the network-scan callback message type.
type ScanStatus int

const (
	ScanRestrictedResults ScanStatus = iota
	ScanResults
	ScanError
	ScanComplete
)

func (s ScanStatus) String() string {
	switch s {
	case ScanRestrictedResults:
		return "CALLBACK_RESTRICTED_SCAN_RESULTS"
	case ScanResults:
		return "CALLBACK_SCAN_RESULTS"
	case ScanError:
		return "CALLBACK_SCAN_ERROR"
	case ScanComplete:
		return "CALLBACK_SCAN_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// BroadcastAction is one of the carrier/subscription system broadcasts the
// logger listens for.
type BroadcastAction string

const (
	ActionCarrierSignalDefaultNetworkAvailable       BroadcastAction = "ACTION_CARRIER_SIGNAL_DEFAULT_NETWORK_AVAILABLE"
	ActionCarrierSignalPCOValue                      BroadcastAction = "ACTION_CARRIER_SIGNAL_PCO_VALUE"
	ActionCarrierSignalRedirected                    BroadcastAction = "ACTION_CARRIER_SIGNAL_REDIRECTED"
	ActionCarrierSignalRequestNetworkFailed          BroadcastAction = "ACTION_CARRIER_SIGNAL_REQUEST_NETWORK_FAILED"
	ActionCarrierSignalReset                         BroadcastAction = "ACTION_CARRIER_SIGNAL_RESET"
	ActionMultiSIMConfigChanged                      BroadcastAction = "ACTION_MULTI_SIM_CONFIG_CHANGED"
	ActionNetworkCountryChanged                      BroadcastAction = "ACTION_NETWORK_COUNTRY_CHANGED"
	ActionSubscriptionCarrierIdentityChanged         BroadcastAction = "ACTION_SUBSCRIPTION_CARRIER_IDENTITY_CHANGED"
	ActionSubscriptionSpecificCarrierIdentityChanged BroadcastAction = "ACTION_SUBSCRIPTION_SPECIFIC_CARRIER_IDENTITY_CHANGED"
)

// BroadcastActions lists every action registered with the broadcast listener.
var BroadcastActions = []BroadcastAction{
	ActionCarrierSignalDefaultNetworkAvailable,
	ActionCarrierSignalPCOValue,
	ActionCarrierSignalRedirected,
	ActionCarrierSignalRequestNetworkFailed,
	ActionCarrierSignalReset,
	ActionMultiSIMConfigChanged,
	ActionNetworkCountryChanged,
	ActionSubscriptionCarrierIdentityChanged,
	ActionSubscriptionSpecificCarrierIdentityChanged,
}

// ParseBroadcastAction matches a raw action string against the known set.
func ParseBroadcastAction(action string) (BroadcastAction, bool) {
	for _, a := range BroadcastActions {
		if string(a) == action {
			return a, true
		}
	}
	return "", false
}

// ExtraSubscriptionIndex is the broadcast extra naming the subscription.
const ExtraSubscriptionIndex = "android.telephony.extra.SUBSCRIPTION_INDEX"
