package bridge

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"radiolog/config"
)

// ErrNotConnected is returned when publishing on a closed transport.
var ErrNotConnected = errors.New("bridge: transport not connected")

// Handler receives one inbound message.
type Handler func(topic string, payload []byte)

// Transport is the pub/sub link between the logger and the radio agent.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(filter string, h Handler) error
	Close()
}

// MQTT is a Transport backed by a paho client. Subscriptions are replayed on
// every (re)connect.
type MQTT struct {
	cfg    config.BridgeConfig
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]Handler
}

// DialMQTT connects to the configured broker and waits for the first session.
func DialMQTT(cfg config.BridgeConfig) (*MQTT, error) {
	t := &MQTT{cfg: cfg, subs: make(map[string]Handler)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(fmt.Sprintf("%s-%d", cfg.ClientID, time.Now().Unix()))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)

	t.client = mqtt.NewClient(opts)
	logrus.Infof("Bridge: connecting to MQTT broker at %s...", cfg.BrokerURL())
	token := t.client.Connect()
	if !token.WaitTimeout(cfg.RequestTimeout()) {
		t.client.Disconnect(0)
		return nil, fmt.Errorf("bridge: connect to %s: timed out", cfg.BrokerURL())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("bridge: connect to %s: %w", cfg.BrokerURL(), err)
	}
	return t, nil
}

func (t *MQTT) onConnect(client mqtt.Client) {
	logrus.Info("Bridge: connected")
	t.mu.Lock()
	subs := make(map[string]Handler, len(t.subs))
	for f, h := range t.subs {
		subs[f] = h
	}
	t.mu.Unlock()
	for f, h := range subs {
		if err := t.subscribe(f, h); err != nil {
			logrus.Warnf("Bridge: resubscribe %s: %v", f, err)
		}
	}
}

func (t *MQTT) onConnectionLost(_ mqtt.Client, err error) {
	logrus.Warnf("Bridge: connection lost: %v", err)
	logrus.Info("Bridge: will attempt to reconnect...")
}

func (t *MQTT) subscribe(filter string, h Handler) error {
	token := t.client.Subscribe(filter, byte(t.cfg.QoS), func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(t.cfg.RequestTimeout()) {
		return fmt.Errorf("bridge: subscribe %s: timed out", filter)
	}
	return token.Error()
}

// Subscribe registers h for filter and subscribes immediately.
func (t *MQTT) Subscribe(filter string, h Handler) error {
	t.mu.Lock()
	t.subs[filter] = h
	t.mu.Unlock()
	return t.subscribe(filter, h)
}

// Publish sends payload on topic at the configured QoS.
func (t *MQTT) Publish(topic string, payload []byte) error {
	if !t.client.IsConnected() {
		return ErrNotConnected
	}
	token := t.client.Publish(topic, byte(t.cfg.QoS), false, payload)
	if !token.WaitTimeout(t.cfg.RequestTimeout()) {
		return fmt.Errorf("bridge: publish %s: timed out", topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (t *MQTT) Close() {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
	logrus.Info("Bridge: disconnected")
}

// Loopback is an in-process Transport. Every Loopback created from the same
// Hub sees the others' publishes; delivery is synchronous and in order.
type Loopback struct {
	hub    *Hub
	mu     sync.Mutex
	subs   map[string]Handler
	closed bool
}

// Hub connects Loopback transports.
type Hub struct {
	mu    sync.Mutex
	peers []*Loopback
}

// NewHub returns an empty hub.
func NewHub() *Hub { return &Hub{} }

// Connect returns a new transport attached to the hub.
func (h *Hub) Connect() *Loopback {
	l := &Loopback{hub: h, subs: make(map[string]Handler)}
	h.mu.Lock()
	h.peers = append(h.peers, l)
	h.mu.Unlock()
	return l
}

// Publish delivers payload to every matching subscription on the hub.
func (l *Loopback) Publish(topic string, payload []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrNotConnected
	}
	l.hub.mu.Lock()
	peers := append([]*Loopback(nil), l.hub.peers...)
	l.hub.mu.Unlock()
	for _, p := range peers {
		for _, h := range p.matching(topic) {
			h(topic, append([]byte(nil), payload...))
		}
	}
	return nil
}

func (l *Loopback) matching(topic string) []Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	var out []Handler
	for f, h := range l.subs {
		if TopicMatches(f, topic) {
			out = append(out, h)
		}
	}
	return out
}

// Subscribe registers h for filter.
func (l *Loopback) Subscribe(filter string, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrNotConnected
	}
	l.subs[filter] = h
	return nil
}

// Close detaches the transport.
func (l *Loopback) Close() {
	l.mu.Lock()
	l.closed = true
	l.subs = map[string]Handler{}
	l.mu.Unlock()
}

// TopicMatches applies MQTT wildcard rules: "+" matches one level and a
// trailing "#" matches the rest.
func TopicMatches(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return i == len(fs)-1
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
