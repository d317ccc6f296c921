// Package bridge implements provider.Provider over MQTT. A radio agent on the
// device side answers JSON requests and pushes listener callbacks, deferred
// cell-info responses, scan progress, and broadcasts.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"radiolog/internal/ratelimit"
	"radiolog/provider"
	"radiolog/radio"
)

// ErrTimeout is returned when the agent does not answer within the request timeout.
var ErrTimeout = errors.New("bridge: request timed out")

// ErrClosed is returned for requests issued after Close.
var ErrClosed = errors.New("bridge: closed")

// RemoteError is an error reported by the agent.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: %s: %s", e.Method, e.Message)
}

var _ provider.Provider = (*Bridge)(nil)

// cellInfoExpiryFactor scales the request timeout into the lifetime of a
// deferred cell-info callback the agent never answers.
const cellInfoExpiryFactor = 6

// pendingCellInfo is a cell-info callback waiting for its deferred response.
type pendingCellInfo struct {
	cb     provider.CellInfoCallback
	expiry *time.Timer
}

// Bridge is the logger side of the MQTT link.
type Bridge struct {
	t       Transport
	topics  Topics
	timeout time.Duration
	seq     atomic.Uint64
	log     *logrus.Entry

	// cellInfoTTL bounds how long an unanswered cell-info callback is kept.
	cellInfoTTL time.Duration

	decodeWarn *ratelimit.Counter
	orphanWarn *ratelimit.Counter

	mu         sync.Mutex
	closed     bool
	pending    map[string]chan Reply
	listeners  map[int]provider.EventListener
	cellInfo   map[string]*pendingCellInfo
	scans      map[string]provider.ScanCallback
	broadcasts map[string]provider.BroadcastCallback
}

// New subscribes to the reply, event, and broadcast topics on t.
func New(t Transport, topics Topics, timeout time.Duration) (*Bridge, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b := &Bridge{
		t:           t,
		topics:      topics,
		timeout:     timeout,
		cellInfoTTL: cellInfoExpiryFactor * timeout,
		log:         logrus.WithField("component", "bridge"),
		decodeWarn:  ratelimit.NewCounter(time.Minute),
		orphanWarn:  ratelimit.NewCounter(time.Minute),
		pending:     make(map[string]chan Reply),
		listeners:   make(map[int]provider.EventListener),
		cellInfo:    make(map[string]*pendingCellInfo),
		scans:       make(map[string]provider.ScanCallback),
		broadcasts:  make(map[string]provider.BroadcastCallback),
	}
	subs := []struct {
		filter string
		h      Handler
	}{
		{topics.Reply(), b.handleReply},
		{topics.AllEvents(), b.handleEvent},
		{topics.Broadcast(), b.handleEvent},
	}
	for _, s := range subs {
		if err := t.Subscribe(s.filter, s.h); err != nil {
			return nil, fmt.Errorf("bridge: subscribe %s: %w", s.filter, err)
		}
	}
	return b, nil
}

// Close fails every outstanding request, including deferred cell-info
// callbacks, and closes the transport.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.pending {
		ch <- Reply{ID: id, Error: ErrClosed.Error()}
		delete(b.pending, id)
	}
	waiting := make([]*pendingCellInfo, 0, len(b.cellInfo))
	for id, p := range b.cellInfo {
		p.expiry.Stop()
		waiting = append(waiting, p)
		delete(b.cellInfo, id)
	}
	b.mu.Unlock()
	for _, p := range waiting {
		p.cb(nil, ErrClosed)
	}
	b.t.Close()
}

func (b *Bridge) nextID() string {
	return b.topics.ClientID + "-" + strconv.FormatUint(b.seq.Add(1), 10)
}

// call sends one request and decodes the reply into out (which may be nil).
func (b *Bridge) call(ctx context.Context, id, method string, subID int, params, out any) error {
	req := Request{ID: id, ReplyTo: b.topics.Reply(), Method: method, Subscription: subID}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("bridge: encode %s params: %w", method, err)
		}
		req.Params = raw
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("bridge: encode %s: %w", method, err)
	}

	ch := make(chan Reply, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.t.Publish(b.topics.RPC(), payload); err != nil {
		return fmt.Errorf("bridge: publish %s: %w", method, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	var reply Reply
	select {
	case reply = <-ch:
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrTimeout, method)
	case <-ctx.Done():
		return ctx.Err()
	}
	if reply.Error != "" {
		if reply.Error == ErrClosed.Error() {
			return ErrClosed
		}
		return &RemoteError{Method: method, Message: reply.Error}
	}
	if out != nil {
		if len(reply.Result) == 0 {
			return fmt.Errorf("bridge: %s: empty result", method)
		}
		if err := json.Unmarshal(reply.Result, out); err != nil {
			return fmt.Errorf("bridge: decode %s result: %w", method, err)
		}
	}
	return nil
}

func (b *Bridge) handleReply(_ string, payload []byte) {
	var reply Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		b.decodeWarn.Warnf(b.log, "Bridge: malformed reply: %v", err)
		return
	}
	b.mu.Lock()
	ch, ok := b.pending[reply.ID]
	if ok {
		delete(b.pending, reply.ID)
	}
	b.mu.Unlock()
	if !ok {
		b.orphanWarn.Warnf(b.log, "Bridge: reply for unknown request %s", reply.ID)
		return
	}
	ch <- reply
}

// ListActiveSubscriptionIDs asks the agent for the active subscriptions.
func (b *Bridge) ListActiveSubscriptionIDs(ctx context.Context) ([]int, error) {
	var ids []int
	if err := b.call(ctx, b.nextID(), MethodListSubscriptions, radio.DefaultSubscription, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

type listenParams struct {
	Mask provider.EventMask `json:"mask"`
}

type refParams struct {
	Ref string `json:"ref"`
}

type broadcastParams struct {
	Actions []string `json:"actions"`
}

// Listen registers listener before asking the agent to start pushing, so the
// first events are not lost.
func (b *Bridge) Listen(subID int, mask provider.EventMask, listener provider.EventListener) (provider.Registration, error) {
	b.mu.Lock()
	b.listeners[subID] = listener
	b.mu.Unlock()
	if err := b.call(context.Background(), b.nextID(), MethodListen, subID, listenParams{Mask: mask}, nil); err != nil {
		b.dropListener(subID, listener)
		return nil, err
	}
	return &registration{release: func() error {
		b.dropListener(subID, listener)
		return b.call(context.Background(), b.nextID(), MethodUnlisten, subID, nil, nil)
	}}, nil
}

func (b *Bridge) dropListener(subID int, listener provider.EventListener) {
	b.mu.Lock()
	if b.listeners[subID] == listener {
		delete(b.listeners, subID)
	}
	b.mu.Unlock()
}

// RequestCellInfoUpdate sends the request; the response arrives later as a
// cell_info_response envelope referencing the request id. If none arrives
// within cellInfoTTL the callback is dropped and invoked with ErrTimeout.
func (b *Bridge) RequestCellInfoUpdate(subID int, cb provider.CellInfoCallback) error {
	id := b.nextID()
	p := &pendingCellInfo{cb: cb}
	b.mu.Lock()
	b.cellInfo[id] = p
	p.expiry = time.AfterFunc(b.cellInfoTTL, func() { b.expireCellInfo(id) })
	b.mu.Unlock()
	if err := b.call(context.Background(), id, MethodRequestCellInfo, subID, nil, nil); err != nil {
		b.takeCellInfo(id)
		return err
	}
	return nil
}

// takeCellInfo removes the pending callback for id and stops its expiry.
func (b *Bridge) takeCellInfo(id string) *pendingCellInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.cellInfo[id]
	if !ok {
		return nil
	}
	delete(b.cellInfo, id)
	p.expiry.Stop()
	return p
}

func (b *Bridge) expireCellInfo(id string) {
	p := b.takeCellInfo(id)
	if p == nil {
		return
	}
	b.orphanWarn.Warnf(b.log, "Bridge: cell-info request %s unanswered after %s", id, b.cellInfoTTL)
	p.cb(nil, fmt.Errorf("%w: %s", ErrTimeout, MethodRequestCellInfo))
}


// RequestNetworkScan starts a scan whose id is the request id.
func (b *Bridge) RequestNetworkScan(subID int, req provider.ScanRequest, cb provider.ScanCallback) (provider.ScanHandle, error) {
	id := b.nextID()
	networks := make([]int, 0, len(req.Networks))
	for _, n := range req.Networks {
		networks = append(networks, int(n))
	}
	params := WireScanRequest{
		Networks:             networks,
		MaxSearchTimeSec:     req.MaxSearchTimeSec,
		IncrementalResults:   req.IncrementalResults,
		IncrementalPeriodSec: req.IncrementalPeriodSec,
	}
	b.mu.Lock()
	b.scans[id] = cb
	b.mu.Unlock()
	if err := b.call(context.Background(), id, MethodStartScan, subID, params, nil); err != nil {
		b.dropScan(id)
		return nil, err
	}
	return &registration{release: func() error {
		b.dropScan(id)
		return b.call(context.Background(), b.nextID(), MethodStopScan, subID, refParams{Ref: id}, nil)
	}}, nil
}

func (b *Bridge) dropScan(id string) {
	b.mu.Lock()
	delete(b.scans, id)
	b.mu.Unlock()
}

// AllowedNetworkTypesBitmask queries the allowed network types.
func (b *Bridge) AllowedNetworkTypesBitmask(subID int) (radio.NetworkTypeBitmask, error) {
	var mask int64
	if err := b.call(context.Background(), b.nextID(), MethodAllowedNetworks, subID, nil, &mask); err != nil {
		return 0, err
	}
	return radio.NetworkTypeBitmask(mask), nil
}

// NRStandaloneCapable queries the modem capability.
func (b *Bridge) NRStandaloneCapable() (bool, error) {
	var capable bool
	if err := b.call(context.Background(), b.nextID(), MethodNRStandalone, radio.DefaultSubscription, nil, &capable); err != nil {
		return false, err
	}
	return capable, nil
}

// RegisterBroadcastListener asks the agent to forward the given actions.
func (b *Bridge) RegisterBroadcastListener(actions []radio.BroadcastAction, cb provider.BroadcastCallback) (provider.Registration, error) {
	id := b.nextID()
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}
	b.mu.Lock()
	b.broadcasts[id] = cb
	b.mu.Unlock()
	drop := func() {
		b.mu.Lock()
		delete(b.broadcasts, id)
		b.mu.Unlock()
	}
	if err := b.call(context.Background(), id, MethodRegisterBroadcasts, radio.DefaultSubscription, broadcastParams{Actions: names}, nil); err != nil {
		drop()
		return nil, err
	}
	return &registration{release: func() error {
		drop()
		return b.call(context.Background(), b.nextID(), MethodUnregisterBroadcasts, radio.DefaultSubscription, refParams{Ref: id}, nil)
	}}, nil
}

// registration runs release at most once.
type registration struct {
	once    sync.Once
	release func() error
	err     error
}

func (r *registration) Unregister() error {
	r.once.Do(func() { r.err = r.release() })
	return r.err
}

func (r *registration) Stop() error { return r.Unregister() }

func (b *Bridge) handleEvent(_ string, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.decodeWarn.Warnf(b.log, "Bridge: malformed envelope: %v", err)
		return
	}
	if err := b.dispatch(env); err != nil {
		b.decodeWarn.Warnf(b.log.WithField("subscription", env.Subscription), "Bridge: %s: %v", env.Type, err)
	}
}

func (b *Bridge) dispatch(env Envelope) error {
	switch env.Type {
	case TypeCellInfoResponse:
		p := b.takeCellInfo(env.Ref)
		if p == nil {
			return fmt.Errorf("no pending request %s", env.Ref)
		}
		cb := p.cb
		if env.Error != "" {
			cb(nil, &RemoteError{Method: MethodRequestCellInfo, Message: env.Error})
			return nil
		}
		var cells []WireCell
		if err := decodeData(env, &cells); err != nil {
			cb(nil, err)
			return err
		}
		cb(decodeCells(cells), nil)
		return nil

	case TypeScan:
		b.mu.Lock()
		cb, ok := b.scans[env.Ref]
		b.mu.Unlock()
		if !ok {
			// Late messages for a stopped scan are expected.
			return nil
		}
		var scan WireScan
		if err := decodeData(env, &scan); err != nil {
			return err
		}
		var cells []radio.CellObservation
		if scan.Cells != nil {
			cells = decodeCells(*scan.Cells)
		}
		cb(parseScanStatus(scan.Status), cells)
		return nil

	case TypeBroadcast:
		b.mu.Lock()
		cb, ok := b.broadcasts[env.Ref]
		b.mu.Unlock()
		if !ok {
			return nil
		}
		var wb WireBroadcast
		if err := decodeData(env, &wb); err != nil {
			return err
		}
		cb(provider.Broadcast{Action: wb.Action, Extras: wb.Extras})
		return nil
	}

	b.mu.Lock()
	l, ok := b.listeners[env.Subscription]
	b.mu.Unlock()
	if !ok {
		b.orphanWarn.Warnf(b.log, "Bridge: %s for unmonitored subscription %d", env.Type, env.Subscription)
		return nil
	}
	switch env.Type {
	case TypePhysicalChannelConfig:
		var ws []WireChannelConfig
		if err := decodeData(env, &ws); err != nil {
			return err
		}
		l.OnPhysicalChannelConfigChanged(decodeChannelConfigs(ws))
	case TypeCellInfo:
		var ws []WireCell
		if err := decodeData(env, &ws); err != nil {
			return err
		}
		l.OnCellInfoChanged(decodeCells(ws))
	case TypeServiceState:
		var w WireServiceState
		if err := decodeData(env, &w); err != nil {
			return err
		}
		l.OnServiceStateChanged(decodeServiceState(w))
	case TypeRegistrationFailed:
		var w WireRegistrationFailure
		if err := decodeData(env, &w); err != nil {
			return err
		}
		l.OnRegistrationFailed(decodeRegistrationFailure(w))
	case TypeSignalStrengths:
		var ws []WireSignal
		if err := decodeData(env, &ws); err != nil {
			return err
		}
		l.OnSignalStrengthsChanged(decodeSignals(ws))
	default:
		return fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return nil
}

func decodeData(env Envelope, out any) error {
	if len(env.Data) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
