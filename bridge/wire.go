package bridge

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"radiolog/radio"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request is an RPC sent to the radio agent.
type Request struct {
	ID           string              `json:"id"`
	ReplyTo      string              `json:"reply_to"`
	Method       string              `json:"method"`
	Subscription int                 `json:"sub"`
	Params       jsoniter.RawMessage `json:"params,omitempty"`
}

// Reply answers one Request.
type Reply struct {
	ID     string              `json:"id"`
	Error  string              `json:"error,omitempty"`
	Result jsoniter.RawMessage `json:"result,omitempty"`
}

// Envelope is a pushed message from the agent: listener callbacks, deferred
// cell-info responses (Ref is the request id), scan progress (Ref is the scan
// id), and broadcasts.
type Envelope struct {
	Type         string              `json:"type"`
	Subscription int                 `json:"sub"`
	Ref          string              `json:"ref,omitempty"`
	Error        string              `json:"error,omitempty"`
	Data         jsoniter.RawMessage `json:"data,omitempty"`
}

// RPC methods understood by the agent.
const (
	MethodListSubscriptions    = "list_subscriptions"
	MethodListen               = "listen"
	MethodUnlisten             = "unlisten"
	MethodRequestCellInfo      = "request_cell_info"
	MethodStartScan            = "start_scan"
	MethodStopScan             = "stop_scan"
	MethodAllowedNetworks      = "allowed_network_types"
	MethodNRStandalone         = "nr_standalone_capable"
	MethodRegisterBroadcasts   = "register_broadcasts"
	MethodUnregisterBroadcasts = "unregister_broadcasts"
)

// Envelope types.
const (
	TypePhysicalChannelConfig = "physical_channel_config"
	TypeCellInfo              = "cell_info"
	TypeServiceState          = "service_state"
	TypeRegistrationFailed    = "registration_failed"
	TypeSignalStrengths       = "signal_strengths"
	TypeCellInfoResponse      = "cell_info_response"
	TypeScan                  = "scan"
	TypeBroadcast             = "broadcast"
)

// WireCell is one cell observation on the wire.
type WireCell struct {
	Generation string `json:"generation"`
	MCC        string `json:"mcc,omitempty"`
	MNC        string `json:"mnc,omitempty"`
	Channel    *int   `json:"channel,omitempty"`
	PCI        *int   `json:"pci,omitempty"`
	Operator   string `json:"operator,omitempty"`
	Registered bool   `json:"registered,omitempty"`
	DBM        *int   `json:"dbm,omitempty"`
	Level      int    `json:"level,omitempty"`
}

// WireSignal is one signal measurement.
type WireSignal struct {
	Generation string `json:"generation"`
	DBM        int    `json:"dbm"`
	Level      int    `json:"level"`
}

// WireServiceState is a service-state snapshot.
type WireServiceState struct {
	Operator      string `json:"operator"`
	State         int    `json:"state"`
	BandwidthsKHz []int  `json:"bandwidths_khz,omitempty"`
	RejectCauses  []int  `json:"reject_causes,omitempty"`
}

// WireChannelConfig is one physical channel.
type WireChannelConfig struct {
	Generation      string `json:"generation"`
	Band            int    `json:"band"`
	PCI             int    `json:"pci"`
	DownlinkChannel int    `json:"downlink_channel"`
	BandwidthKHz    int    `json:"bandwidth_khz"`
}

// WireRegistrationFailure is a rejected registration.
type WireRegistrationFailure struct {
	Cell                WireCell `json:"cell"`
	ChosenPLMN          string   `json:"chosen_plmn"`
	Domain              int      `json:"domain"`
	CauseCode           int      `json:"cause_code"`
	AdditionalCauseCode int      `json:"additional_cause_code"`
}

// WireScan is one scan progress message. Cells is absent for errors and completion.
type WireScan struct {
	Status string      `json:"status"`
	Cells  *[]WireCell `json:"cells,omitempty"`
}

// WireBroadcast is a raw system broadcast.
type WireBroadcast struct {
	Action string            `json:"action"`
	Extras map[string]string `json:"extras,omitempty"`
}

// WireScanRequest carries scan parameters.
type WireScanRequest struct {
	Networks             []int `json:"networks"`
	MaxSearchTimeSec     int   `json:"max_search_time_sec"`
	IncrementalResults   bool  `json:"incremental_results"`
	IncrementalPeriodSec int   `json:"incremental_period_sec"`
}

var scanStatusNames = map[string]radio.ScanStatus{
	"restricted_results": radio.ScanRestrictedResults,
	"results":            radio.ScanResults,
	"error":              radio.ScanError,
	"complete":           radio.ScanComplete,
}

// ScanStatusName is the wire name of s.
func ScanStatusName(s radio.ScanStatus) string {
	for name, v := range scanStatusNames {
		if v == s {
			return name
		}
	}
	return "error"
}

func parseScanStatus(name string) radio.ScanStatus {
	if s, ok := scanStatusNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s
	}
	return radio.ScanError
}

// EncodeCell converts a cell for the wire.
func EncodeCell(c radio.CellObservation) WireCell {
	w := WireCell{
		Generation: c.Identity.Generation.String(),
		MCC:        c.Identity.MCC,
		MNC:        c.Identity.MNC,
		Channel:    c.Identity.Channel,
		PCI:        c.Identity.PCI,
		Operator:   c.Identity.OperatorName,
		Registered: c.Registered,
	}
	if c.Signal != nil {
		dbm := c.Signal.DBM
		w.DBM = &dbm
		w.Level = c.Signal.Level
	}
	return w
}

// EncodeCells converts a cell list, preserving nil.
func EncodeCells(cells []radio.CellObservation) []WireCell {
	if cells == nil {
		return nil
	}
	out := make([]WireCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, EncodeCell(c))
	}
	return out
}

func decodeCell(w WireCell) radio.CellObservation {
	gen := radio.ParseGeneration(w.Generation)
	c := radio.CellObservation{
		Identity: radio.CellIdentity{
			Generation:   gen,
			MCC:          strings.TrimSpace(w.MCC),
			MNC:          strings.TrimSpace(w.MNC),
			Channel:      w.Channel,
			PCI:          w.PCI,
			OperatorName: w.Operator,
		},
		Registered: w.Registered,
	}
	if w.DBM != nil {
		c.Signal = &radio.SignalMeasurement{Generation: gen, DBM: *w.DBM, Level: w.Level}
	}
	return c
}

func decodeCells(ws []WireCell) []radio.CellObservation {
	out := make([]radio.CellObservation, 0, len(ws))
	for _, w := range ws {
		out = append(out, decodeCell(w))
	}
	return out
}

func decodeSignals(ws []WireSignal) []radio.SignalMeasurement {
	out := make([]radio.SignalMeasurement, 0, len(ws))
	for _, w := range ws {
		out = append(out, radio.SignalMeasurement{
			Generation: radio.ParseGeneration(w.Generation),
			DBM:        w.DBM,
			Level:      w.Level,
		})
	}
	return out
}

func decodeChannelConfigs(ws []WireChannelConfig) []radio.ChannelConfig {
	out := make([]radio.ChannelConfig, 0, len(ws))
	for _, w := range ws {
		out = append(out, radio.ChannelConfig{
			Generation:      radio.ParseGeneration(w.Generation),
			Band:            w.Band,
			PCI:             w.PCI,
			DownlinkChannel: w.DownlinkChannel,
			BandwidthKHz:    w.BandwidthKHz,
		})
	}
	return out
}

func decodeServiceState(w WireServiceState) radio.ServiceState {
	return radio.ServiceState{
		OperatorName:      w.Operator,
		State:             w.State,
		CellBandwidthsKHz: w.BandwidthsKHz,
		RejectCauses:      w.RejectCauses,
	}
}

func decodeRegistrationFailure(w WireRegistrationFailure) radio.RegistrationFailed {
	return radio.RegistrationFailed{
		Cell:                decodeCell(w.Cell).Identity,
		ChosenPLMN:          w.ChosenPLMN,
		Domain:              w.Domain,
		CauseCode:           w.CauseCode,
		AdditionalCauseCode: w.AdditionalCauseCode,
	}
}
