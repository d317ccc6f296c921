package source

import (
	"radiolog/provider"
	"radiolog/radio"
)

// Scan request parameters: one shot, incremental results every few seconds,
// bounded by the platform's manual-selection search time.
const (
	scanMaxSearchTimeSec     = 300
	scanIncrementalPeriodSec = 3
)

// AllowedAccessNetworks derives the scan's generation filter from the allowed
// network types. The mask is first reduced to the 3GPP family. A generation is
// scanned when the mask is unknown (zero) or its class bit is set; 5G also
// requires NR standalone support, since a non-standalone-only device cannot
// camp on a 5G network found by a manual scan. nrStandalone is only consulted
// when the 5G class bit is set.
func AllowedAccessNetworks(mask radio.NetworkTypeBitmask, nrStandalone func() bool) []radio.AccessNetwork {
	mask &= radio.StandardsFamily3GPP
	unknown := mask == 0

	networks := make([]radio.AccessNetwork, 0, 4)
	if unknown || mask&radio.NetworkClass2G != 0 {
		networks = append(networks, radio.AccessNetworkGERAN)
	}
	if unknown || mask&radio.NetworkClass3G != 0 {
		networks = append(networks, radio.AccessNetworkUTRAN)
	}
	if unknown || mask&radio.NetworkClass4G != 0 {
		networks = append(networks, radio.AccessNetworkEUTRAN)
	}
	if unknown || (mask&radio.NetworkClass5G != 0 && nrStandalone != nil && nrStandalone()) {
		networks = append(networks, radio.AccessNetworkNGRAN)
	}
	return networks
}

// scanRequest queries the subscription's capabilities and builds the request
// for the next scan cycle.
func (m *Multiplexer) scanRequest() (provider.ScanRequest, error) {
	mask, err := m.prov.AllowedNetworkTypesBitmask(m.subID)
	if err != nil {
		return provider.ScanRequest{}, err
	}
	var saErr error
	networks := AllowedAccessNetworks(mask, func() bool {
		capable, err := m.prov.NRStandaloneCapable()
		if err != nil {
			saErr = err
			return false
		}
		return capable
	})
	if saErr != nil {
		return provider.ScanRequest{}, saErr
	}
	return newScanRequest(networks), nil
}

func newScanRequest(networks []radio.AccessNetwork) provider.ScanRequest {
	return provider.ScanRequest{
		Networks:             networks,
		MaxSearchTimeSec:     scanMaxSearchTimeSec,
		IncrementalResults:   true,
		IncrementalPeriodSec: scanIncrementalPeriodSec,
	}
}
