// Package sim is a synthetic provider.Provider for demos and for running the
// logger without a handset. It emits a plausible home network around a small
// set of LTE and NR cells and, when configured, injects a rogue 2G cell from
// a foreign network so the anomaly path can be exercised end to end.
package sim

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"radiolog/provider"
	"radiolog/radio"
)

const (
	defaultInterval  = 2 * time.Second
	defaultScanDelay = 500 * time.Millisecond
	homeMCC          = "440"
	homeMNC          = "10"
	homeOperator     = "SIM MOBILE"
	domainPS         = 2
)

// Config tunes the simulator. Zero values fall back to defaults.
type Config struct {
	SubscriptionIDs []int
	// Interval is the period between pushed listener events.
	Interval time.Duration
	// ScanDelay is how long a scan takes to report results.
	ScanDelay time.Duration
	// RogueEvery makes every n-th cell-info response include a foreign GSM
	// cell. Zero disables it.
	RogueEvery int
	Seed       uint64
}

// Provider generates radio telemetry from a seeded PRNG.
type Provider struct {
	cfg Config

	mu         sync.Mutex
	rng        *rand.Rand
	cellInfoN  map[int]int
	broadcasts []*ticker

	wg sync.WaitGroup
}

var _ provider.Provider = (*Provider)(nil)

// New builds a simulator.
func New(cfg Config) *Provider {
	if len(cfg.SubscriptionIDs) == 0 {
		cfg.SubscriptionIDs = []int{1}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.ScanDelay <= 0 {
		cfg.ScanDelay = defaultScanDelay
	}
	return &Provider{
		cfg:       cfg,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		cellInfoN: make(map[int]int),
	}
}

// ticker runs fn every interval until released.
type ticker struct {
	once sync.Once
	done chan struct{}
}

func (t *ticker) Unregister() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *ticker) Stop() error { return t.Unregister() }

func (p *Provider) every(interval time.Duration, fn func(n int)) *ticker {
	t := &ticker{done: make(chan struct{})}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for n := 0; ; n++ {
			select {
			case <-t.done:
				return
			case <-tk.C:
				fn(n)
			}
		}
	}()
	return t
}

// Close releases broadcast registrations and waits for every generator
// goroutine. Listener and scan handles must be released by their owners
// first.
func (p *Provider) Close() {
	p.mu.Lock()
	regs := p.broadcasts
	p.broadcasts = nil
	p.mu.Unlock()
	for _, r := range regs {
		_ = r.Unregister()
	}
	p.wg.Wait()
}

func (p *Provider) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(n)
}

// ListActiveSubscriptionIDs implements provider.Provider.
func (p *Provider) ListActiveSubscriptionIDs(ctx context.Context) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]int(nil), p.cfg.SubscriptionIDs...), nil
}

// Listen implements provider.Provider. Events rotate through the classes in
// mask, one per interval.
func (p *Provider) Listen(subID int, mask provider.EventMask, listener provider.EventListener) (provider.Registration, error) {
	log.WithField("subscription", subID).Debug("Simulator: listener registered")
	return p.every(p.cfg.Interval, func(n int) {
		p.push(n, mask, listener)
	}), nil
}

func (p *Provider) push(n int, mask provider.EventMask, l provider.EventListener) {
	switch n % 5 {
	case 0:
		if mask&(provider.EventSignalStrengthsChanged|provider.EventSignalStrengthChanged) != 0 {
			l.OnSignalStrengthsChanged([]radio.SignalMeasurement{p.signal(radio.GenerationLTE), p.signal(radio.GenerationNR)})
		}
	case 1:
		if mask&provider.EventCellInfoChanged != 0 {
			l.OnCellInfoChanged(p.homeCells())
		}
	case 2:
		if mask&provider.EventPhysicalChannelConfigChanged != 0 {
			l.OnPhysicalChannelConfigChanged([]radio.ChannelConfig{
				{Generation: radio.GenerationLTE, Band: 3, PCI: 101, DownlinkChannel: 1850, BandwidthKHz: 20000},
				{Generation: radio.GenerationNR, Band: 78, PCI: 402, DownlinkChannel: 643334, BandwidthKHz: 100000},
			})
		}
	case 3:
		if mask&provider.EventServiceStateChanged != 0 {
			l.OnServiceStateChanged(radio.ServiceState{
				OperatorName:      homeOperator,
				State:             radio.ServiceInService,
				CellBandwidthsKHz: []int{20000, 100000},
			})
		}
	case 4:
		// Registration failures are rare on a healthy network.
		if mask&provider.EventRegistrationFailure != 0 && p.intn(4) == 0 {
			l.OnRegistrationFailed(radio.RegistrationFailed{
				Cell:       p.lteCell(false).Identity,
				ChosenPLMN: homeMCC + homeMNC,
				Domain:     domainPS,
				CauseCode:  15,
			})
		}
	}
}

func (p *Provider) signal(g radio.Generation) radio.SignalMeasurement {
	dbm := -70 - p.intn(50)
	level := 4
	switch {
	case dbm < -110:
		level = 1
	case dbm < -100:
		level = 2
	case dbm < -85:
		level = 3
	}
	return radio.SignalMeasurement{Generation: g, DBM: dbm, Level: level}
}

func ptr(v int) *int { return &v }

func (p *Provider) lteCell(registered bool) radio.CellObservation {
	sig := p.signal(radio.GenerationLTE)
	return radio.CellObservation{
		Identity: radio.CellIdentity{
			Generation:   radio.GenerationLTE,
			MCC:          homeMCC,
			MNC:          homeMNC,
			Channel:      ptr(1850),
			PCI:          ptr(101),
			OperatorName: homeOperator,
		},
		Registered: registered,
		Signal:     &sig,
	}
}

func (p *Provider) homeCells() []radio.CellObservation {
	nrSig := p.signal(radio.GenerationNR)
	neighbour := p.lteCell(false)
	neighbour.Identity.PCI = ptr(102 + p.intn(8))
	return []radio.CellObservation{
		p.lteCell(true),
		neighbour,
		{
			Identity: radio.CellIdentity{
				Generation:   radio.GenerationNR,
				MCC:          homeMCC,
				MNC:          homeMNC,
				Channel:      ptr(643334),
				PCI:          ptr(402),
				OperatorName: homeOperator,
			},
			Signal: &nrSig,
		},
	}
}

func rogueCell() radio.CellObservation {
	return radio.CellObservation{
		Identity: radio.CellIdentity{
			Generation:   radio.GenerationGSM,
			MCC:          "460",
			MNC:          "00",
			OperatorName: "UNKNOWN",
		},
		Signal: &radio.SignalMeasurement{Generation: radio.GenerationGSM, DBM: -60, Level: 4},
	}
}

// RequestCellInfoUpdate implements provider.Provider.
func (p *Provider) RequestCellInfoUpdate(subID int, cb provider.CellInfoCallback) error {
	p.mu.Lock()
	p.cellInfoN[subID]++
	n := p.cellInfoN[subID]
	p.mu.Unlock()

	cells := p.homeCells()
	if p.cfg.RogueEvery > 0 && n%p.cfg.RogueEvery == 0 {
		cells = append(cells, rogueCell())
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		cb(cells, nil)
	}()
	return nil
}

// RequestNetworkScan implements provider.Provider. Results arrive after
// ScanDelay followed by completion unless the handle is stopped first.
func (p *Provider) RequestNetworkScan(subID int, req provider.ScanRequest, cb provider.ScanCallback) (provider.ScanHandle, error) {
	t := &ticker{done: make(chan struct{})}
	cells := p.homeCells()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case <-t.done:
			return
		case <-time.After(p.cfg.ScanDelay):
		}
		cb(radio.ScanResults, cells)
		cb(radio.ScanComplete, nil)
	}()
	return t, nil
}

// AllowedNetworkTypesBitmask implements provider.Provider.
func (p *Provider) AllowedNetworkTypesBitmask(subID int) (radio.NetworkTypeBitmask, error) {
	return radio.NetworkClass2G | radio.NetworkClass3G | radio.NetworkClass4G | radio.NetworkClass5G, nil
}

// NRStandaloneCapable implements provider.Provider.
func (p *Provider) NRStandaloneCapable() (bool, error) {
	return true, nil
}

// RegisterBroadcastListener implements provider.Provider. A network-country
// broadcast is sent for the first subscription at ten times the listener
// interval.
func (p *Provider) RegisterBroadcastListener(actions []radio.BroadcastAction, cb provider.BroadcastCallback) (provider.Registration, error) {
	want := false
	for _, a := range actions {
		if a == radio.ActionNetworkCountryChanged {
			want = true
		}
	}
	sub := strconv.Itoa(p.cfg.SubscriptionIDs[0])
	t := p.every(10*p.cfg.Interval, func(int) {
		if !want {
			return
		}
		cb(provider.Broadcast{
			Action: string(radio.ActionNetworkCountryChanged),
			Extras: map[string]string{
				radio.ExtraSubscriptionIndex:              sub,
				"android.telephony.extra.NETWORK_COUNTRY": "jp",
			},
		})
	})
	p.mu.Lock()
	p.broadcasts = append(p.broadcasts, t)
	p.mu.Unlock()
	return t, nil
}
