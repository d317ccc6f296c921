// Package config loads the radiolog YAML configuration. A path may name a
// single file or a directory; directory files are merged in name order so
// later files override earlier ones key by key.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"radiolog/filter"
	"radiolog/radio"
)

// EnvPath names the environment variable consulted when no --config flag is given.
const EnvPath = "RADIOLOG_CONFIG"

// DefaultPath is used when neither the flag nor the environment names a config.
const DefaultPath = "radiolog.yaml"

// UI modes.
const (
	UIModeAuto     = "auto"
	UIModeTview    = "tview"
	UIModeConsole  = "console"
	UIModeHeadless = "headless"
)

// Config represents the complete logger configuration
type Config struct {
	Bridge        BridgeConfig  `yaml:"bridge"`
	Subscriptions []int         `yaml:"subscriptions"`
	Polling       PollingConfig `yaml:"polling"`
	Anomaly       AnomalyConfig `yaml:"anomaly"`
	Filters       FilterConfig  `yaml:"filters"`
	UI            UIConfig      `yaml:"ui"`
	Logging       LoggingConfig `yaml:"logging"`
	Export        ExportConfig  `yaml:"export"`
	MCC           MCCConfig     `yaml:"mcc"`

	// LoadedFrom is the path the configuration was read from.
	LoadedFrom string `yaml:"-"`
}

// BridgeConfig contains the MQTT bridge to the radio service
type BridgeConfig struct {
	Broker                string `yaml:"broker"`
	Port                  int    `yaml:"port"`
	TLS                   bool   `yaml:"tls"`
	ClientID              string `yaml:"client_id"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	TopicPrefix           string `yaml:"topic_prefix"`
	QoS                   int    `yaml:"qos"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// PollingConfig tunes the per-subscription producers
type PollingConfig struct {
	CellInfoIntervalSeconds  int `yaml:"cell_info_interval_seconds"`
	CellInfoTimeoutSeconds   int `yaml:"cell_info_timeout_seconds"`
	ScanWindowSeconds        int `yaml:"scan_window_seconds"`
	DefaultScanWindowSeconds int `yaml:"default_scan_window_seconds"`
}

// AnomalyConfig contains the fake-base-station heuristics
type AnomalyConfig struct {
	Enabled            *bool    `yaml:"enabled"`
	HomeMCCs           []string `yaml:"home_mccs"`
	AllowedGenerations []string `yaml:"allowed_generations"`
}

// FilterConfig holds the categories visible at startup. Empty means all.
type FilterConfig struct {
	Enabled []string `yaml:"enabled"`
}

// UIConfig selects and tunes the presentation layer
type UIConfig struct {
	Mode                  string `yaml:"mode"`
	RefreshMS             int    `yaml:"refresh_ms"`
	MaxLines              int    `yaml:"max_lines"`
	StatusIntervalSeconds int    `yaml:"status_interval_seconds"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// ExportConfig names the SQLite file written on exit. Empty disables export.
type ExportConfig struct {
	Path string `yaml:"path"`
}

// MCCConfig points at the mobile-country-code plist database.
type MCCConfig struct {
	File string `yaml:"file"`
}

// ResolvePath picks the config location: the flag wins, then the environment.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads a YAML file or a directory of YAML files, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	files, err := configFiles(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
		}
	}
	cfg.LoadedFrom = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func configFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list config dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML files in config dir %s", path)
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) applyDefaults() {
	if c.Bridge.Port <= 0 {
		c.Bridge.Port = 1883
	}
	if strings.TrimSpace(c.Bridge.ClientID) == "" {
		c.Bridge.ClientID = "radiolog"
	}
	if strings.TrimSpace(c.Bridge.TopicPrefix) == "" {
		c.Bridge.TopicPrefix = "radiolog"
	}
	c.Bridge.TopicPrefix = strings.Trim(c.Bridge.TopicPrefix, "/")
	if c.Bridge.RequestTimeoutSeconds <= 0 {
		c.Bridge.RequestTimeoutSeconds = 10
	}

	if c.Polling.CellInfoIntervalSeconds <= 0 {
		c.Polling.CellInfoIntervalSeconds = 5
	}
	if c.Polling.CellInfoTimeoutSeconds <= 0 {
		c.Polling.CellInfoTimeoutSeconds = 30
	}
	if c.Polling.ScanWindowSeconds <= 0 {
		c.Polling.ScanWindowSeconds = 30
	}
	if c.Polling.DefaultScanWindowSeconds <= 0 {
		c.Polling.DefaultScanWindowSeconds = 300
	}

	if c.Anomaly.Enabled == nil {
		enabled := true
		c.Anomaly.Enabled = &enabled
	}
	if len(c.Anomaly.HomeMCCs) == 0 {
		c.Anomaly.HomeMCCs = []string{"440", "441"}
	}
	if len(c.Anomaly.AllowedGenerations) == 0 {
		c.Anomaly.AllowedGenerations = []string{"LTE", "NR"}
	}

	c.UI.Mode = strings.ToLower(strings.TrimSpace(c.UI.Mode))
	if c.UI.Mode == "" {
		c.UI.Mode = UIModeAuto
	}
	if c.UI.RefreshMS <= 0 {
		c.UI.RefreshMS = 250
	}
	if c.UI.MaxLines <= 0 {
		c.UI.MaxLines = 2000
	}
	if c.UI.StatusIntervalSeconds <= 0 {
		c.UI.StatusIntervalSeconds = 30
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Bridge.Port > 65535 {
		errs = append(errs, fmt.Errorf("bridge.port %d out of range", c.Bridge.Port))
	}
	if c.Bridge.QoS < 0 || c.Bridge.QoS > 2 {
		errs = append(errs, fmt.Errorf("bridge.qos must be 0, 1, or 2 (got %d)", c.Bridge.QoS))
	}
	for _, id := range c.Subscriptions {
		if id < radio.DefaultSubscription {
			errs = append(errs, fmt.Errorf("subscriptions: invalid id %d", id))
		}
	}
	for _, mcc := range c.Anomaly.HomeMCCs {
		if !validMCC(mcc) {
			errs = append(errs, fmt.Errorf("anomaly.home_mccs: %q is not a 3-digit MCC", mcc))
		}
	}
	if _, err := c.Generations(); err != nil {
		errs = append(errs, err)
	}
	if _, err := filter.ParseTypes(c.Filters.Enabled); err != nil {
		errs = append(errs, fmt.Errorf("filters.enabled: %w", err))
	}
	switch c.UI.Mode {
	case UIModeAuto, UIModeTview, UIModeConsole, UIModeHeadless:
	default:
		errs = append(errs, fmt.Errorf("ui.mode %q must be one of auto, tview, console, headless", c.UI.Mode))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// Generations resolves the allowed-generation labels.
func (c *Config) Generations() ([]radio.Generation, error) {
	out := make([]radio.Generation, 0, len(c.Anomaly.AllowedGenerations))
	for _, label := range c.Anomaly.AllowedGenerations {
		g := radio.ParseGeneration(label)
		if g == radio.GenerationUnknown {
			return nil, fmt.Errorf("anomaly.allowed_generations: unknown generation %q", label)
		}
		out = append(out, g)
	}
	return out, nil
}

// FilterTypes resolves the initial filter set; nil means every type.
func (c *Config) FilterTypes() []filter.Type {
	if len(c.Filters.Enabled) == 0 {
		return nil
	}
	types, err := filter.ParseTypes(c.Filters.Enabled)
	if err != nil {
		return nil
	}
	return types
}

// AnomalyEnabled reports the initial notification toggle.
func (c *Config) AnomalyEnabled() bool {
	return c.Anomaly.Enabled == nil || *c.Anomaly.Enabled
}

// RequestTimeout is the bridge request/response bound.
func (b BridgeConfig) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutSeconds) * time.Second
}

// BrokerURL formats the broker address for the MQTT client.
func (b BridgeConfig) BrokerURL() string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Broker, b.Port)
}

// CellInfoInterval is the wait between cell-info polls.
func (p PollingConfig) CellInfoInterval() time.Duration {
	return time.Duration(p.CellInfoIntervalSeconds) * time.Second
}

// CellInfoTimeout bounds one cell-info response.
func (p PollingConfig) CellInfoTimeout() time.Duration {
	return time.Duration(p.CellInfoTimeoutSeconds) * time.Second
}

// ScanWindow is the scan window for a real subscription.
func (p PollingConfig) ScanWindow() time.Duration {
	return time.Duration(p.ScanWindowSeconds) * time.Second
}

// DefaultScanWindow is the scan window for the default subscription.
func (p PollingConfig) DefaultScanWindow() time.Duration {
	return time.Duration(p.DefaultScanWindowSeconds) * time.Second
}

func validMCC(mcc string) bool {
	if len(mcc) != 3 {
		return false
	}
	for _, r := range mcc {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Config: %s\n", c.LoadedFrom)
	if c.Bridge.Broker != "" {
		fmt.Printf("Bridge: %s (topic prefix: %s, client %s)\n", c.Bridge.BrokerURL(), c.Bridge.TopicPrefix, c.Bridge.ClientID)
	} else {
		fmt.Println("Bridge: not configured")
	}
	subs := "all active"
	if len(c.Subscriptions) > 0 {
		subs = fmt.Sprint(c.Subscriptions)
	}
	fmt.Printf("Subscriptions: %s\n", subs)
	fmt.Printf("Polling: cell-info every %ds (timeout %ds), scan window %ds (default sub %ds)\n",
		c.Polling.CellInfoIntervalSeconds, c.Polling.CellInfoTimeoutSeconds,
		c.Polling.ScanWindowSeconds, c.Polling.DefaultScanWindowSeconds)
	if c.AnomalyEnabled() {
		fmt.Printf("Anomaly: home MCCs %s, generations %s\n",
			strings.Join(c.Anomaly.HomeMCCs, ", "), strings.Join(c.Anomaly.AllowedGenerations, ", "))
	} else {
		fmt.Println("Anomaly: notifications disabled")
	}
	if len(c.Filters.Enabled) > 0 {
		fmt.Printf("Filters: %s\n", strings.Join(c.Filters.Enabled, ", "))
	}
	if c.Export.Path != "" {
		fmt.Printf("Export: %s\n", c.Export.Path)
	}
}
