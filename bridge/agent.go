package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"radiolog/internal/ratelimit"
	"radiolog/provider"
	"radiolog/radio"
)

// Agent serves a provider.Provider on the device side of the link. It answers
// requests on the RPC topic and republishes callbacks as envelopes.
type Agent struct {
	p       provider.Provider
	t       Transport
	topics  Topics
	timeout time.Duration
	log     *logrus.Entry
	pubWarn *ratelimit.Counter

	mu         sync.Mutex
	listens    map[int]provider.Registration
	scans      map[string]provider.ScanHandle
	broadcasts map[string]provider.Registration
}

// NewAgent subscribes to the request topic under prefix.
func NewAgent(p provider.Provider, t Transport, prefix string, timeout time.Duration) (*Agent, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := &Agent{
		p:          p,
		t:          t,
		topics:     Topics{Prefix: prefix},
		timeout:    timeout,
		log:        logrus.WithField("component", "agent"),
		pubWarn:    ratelimit.NewCounter(time.Minute),
		listens:    make(map[int]provider.Registration),
		scans:      make(map[string]provider.ScanHandle),
		broadcasts: make(map[string]provider.Registration),
	}
	if err := t.Subscribe(a.topics.RPC(), a.handleRequest); err != nil {
		return nil, fmt.Errorf("agent: subscribe %s: %w", a.topics.RPC(), err)
	}
	return a, nil
}

// Close releases every platform registration and the transport.
func (a *Agent) Close() {
	a.mu.Lock()
	listens, scans, broadcasts := a.listens, a.scans, a.broadcasts
	a.listens = make(map[int]provider.Registration)
	a.scans = make(map[string]provider.ScanHandle)
	a.broadcasts = make(map[string]provider.Registration)
	a.mu.Unlock()

	for _, r := range listens {
		_ = r.Unregister()
	}
	for _, s := range scans {
		_ = s.Stop()
	}
	for _, r := range broadcasts {
		_ = r.Unregister()
	}
	a.t.Close()
}

func (a *Agent) handleRequest(_ string, payload []byte) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		a.pubWarn.Warnf(a.log, "Agent: malformed request: %v", err)
		return
	}
	reply := Reply{ID: req.ID}
	result, err := a.serve(req)
	if err != nil {
		reply.Error = err.Error()
	} else if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Result = raw
		}
	}
	out, err := json.Marshal(reply)
	if err != nil {
		a.log.Warnf("Agent: encode reply: %v", err)
		return
	}
	if req.ReplyTo == "" {
		return
	}
	if err := a.t.Publish(req.ReplyTo, out); err != nil {
		a.pubWarn.Warnf(a.log, "Agent: publish reply: %v", err)
	}
}

func (a *Agent) serve(req Request) (any, error) {
	sub := req.Subscription
	switch req.Method {
	case MethodListSubscriptions:
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		ids, err := a.p.ListActiveSubscriptionIDs(ctx)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []int{}
		}
		return ids, nil

	case MethodListen:
		var params listenParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		reg, err := a.p.Listen(sub, params.Mask, &pushListener{a: a, sub: sub})
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		old := a.listens[sub]
		a.listens[sub] = reg
		a.mu.Unlock()
		if old != nil {
			_ = old.Unregister()
		}
		return nil, nil

	case MethodUnlisten:
		a.mu.Lock()
		reg := a.listens[sub]
		delete(a.listens, sub)
		a.mu.Unlock()
		if reg == nil {
			return nil, nil
		}
		return nil, reg.Unregister()

	case MethodRequestCellInfo:
		ref := req.ID
		return nil, a.p.RequestCellInfoUpdate(sub, func(cells []radio.CellObservation, err error) {
			env := Envelope{Type: TypeCellInfoResponse, Subscription: sub, Ref: ref}
			if err != nil {
				env.Error = err.Error()
				a.push(a.topics.Events(sub), env, nil)
				return
			}
			a.push(a.topics.Events(sub), env, EncodeCells(cells))
		})

	case MethodStartScan:
		var params WireScanRequest
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		sr := provider.ScanRequest{
			MaxSearchTimeSec:     params.MaxSearchTimeSec,
			IncrementalResults:   params.IncrementalResults,
			IncrementalPeriodSec: params.IncrementalPeriodSec,
		}
		for _, n := range params.Networks {
			sr.Networks = append(sr.Networks, radio.AccessNetwork(n))
		}
		ref := req.ID
		handle, err := a.p.RequestNetworkScan(sub, sr, func(status radio.ScanStatus, cells []radio.CellObservation) {
			ws := WireScan{Status: ScanStatusName(status)}
			if cells != nil {
				wc := EncodeCells(cells)
				ws.Cells = &wc
			}
			a.push(a.topics.Events(sub), Envelope{Type: TypeScan, Subscription: sub, Ref: ref}, ws)
		})
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.scans[ref] = handle
		a.mu.Unlock()
		return nil, nil

	case MethodStopScan:
		var params refParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		a.mu.Lock()
		handle := a.scans[params.Ref]
		delete(a.scans, params.Ref)
		a.mu.Unlock()
		if handle == nil {
			return nil, nil
		}
		return nil, handle.Stop()

	case MethodAllowedNetworks:
		mask, err := a.p.AllowedNetworkTypesBitmask(sub)
		if err != nil {
			return nil, err
		}
		return int64(mask), nil

	case MethodNRStandalone:
		return a.p.NRStandaloneCapable()

	case MethodRegisterBroadcasts:
		var params broadcastParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		actions := make([]radio.BroadcastAction, 0, len(params.Actions))
		for _, name := range params.Actions {
			actions = append(actions, radio.BroadcastAction(name))
		}
		ref := req.ID
		reg, err := a.p.RegisterBroadcastListener(actions, func(b provider.Broadcast) {
			env := Envelope{Type: TypeBroadcast, Subscription: radio.DefaultSubscription, Ref: ref}
			a.push(a.topics.Broadcast(), env, WireBroadcast{Action: b.Action, Extras: b.Extras})
		})
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.broadcasts[ref] = reg
		a.mu.Unlock()
		return nil, nil

	case MethodUnregisterBroadcasts:
		var params refParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		a.mu.Lock()
		reg := a.broadcasts[params.Ref]
		delete(a.broadcasts, params.Ref)
		a.mu.Unlock()
		if reg == nil {
			return nil, nil
		}
		return nil, reg.Unregister()
	}
	return nil, fmt.Errorf("unknown method %q", req.Method)
}

func decodeParams(req Request, out any) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("%s: missing params", req.Method)
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return fmt.Errorf("%s: decode params: %w", req.Method, err)
	}
	return nil
}

func (a *Agent) push(topic string, env Envelope, data any) {
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			a.log.Warnf("Agent: encode %s: %v", env.Type, err)
			return
		}
		env.Data = raw
	}
	payload, err := json.Marshal(env)
	if err != nil {
		a.log.Warnf("Agent: encode envelope: %v", err)
		return
	}
	if err := a.t.Publish(topic, payload); err != nil {
		a.pubWarn.Warnf(a.log, "Agent: publish %s: %v", env.Type, err)
	}
}

// pushListener republishes one subscription's listener callbacks.
type pushListener struct {
	a   *Agent
	sub int
}

func (l *pushListener) send(kind string, data any) {
	l.a.push(l.a.topics.Events(l.sub), Envelope{Type: kind, Subscription: l.sub}, data)
}

func (l *pushListener) OnPhysicalChannelConfigChanged(configs []radio.ChannelConfig) {
	ws := make([]WireChannelConfig, 0, len(configs))
	for _, c := range configs {
		ws = append(ws, WireChannelConfig{
			Generation:      c.Generation.String(),
			Band:            c.Band,
			PCI:             c.PCI,
			DownlinkChannel: c.DownlinkChannel,
			BandwidthKHz:    c.BandwidthKHz,
		})
	}
	l.send(TypePhysicalChannelConfig, ws)
}

func (l *pushListener) OnCellInfoChanged(cells []radio.CellObservation) {
	l.send(TypeCellInfo, EncodeCells(cells))
}

func (l *pushListener) OnServiceStateChanged(s radio.ServiceState) {
	l.send(TypeServiceState, WireServiceState{
		Operator:      s.OperatorName,
		State:         s.State,
		BandwidthsKHz: s.CellBandwidthsKHz,
		RejectCauses:  s.RejectCauses,
	})
}

func (l *pushListener) OnRegistrationFailed(f radio.RegistrationFailed) {
	l.send(TypeRegistrationFailed, WireRegistrationFailure{
		Cell:                EncodeCell(radio.CellObservation{Identity: f.Cell}),
		ChosenPLMN:          f.ChosenPLMN,
		Domain:              f.Domain,
		CauseCode:           f.CauseCode,
		AdditionalCauseCode: f.AdditionalCauseCode,
	})
}

func (l *pushListener) OnSignalStrengthsChanged(strengths []radio.SignalMeasurement) {
	ws := make([]WireSignal, 0, len(strengths))
	for _, s := range strengths {
		ws = append(ws, WireSignal{Generation: s.Generation.String(), DBM: s.DBM, Level: s.Level})
	}
	l.send(TypeSignalStrengths, ws)
}
