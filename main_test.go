package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"radiolog/aggregate"
	"radiolog/config"
	"radiolog/export"
	"radiolog/filter"
	"radiolog/radio"
	"radiolog/render"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-c", "conf.d", "--ui", "Console", "--export", "out.db", "--simulate", "--simulate-rogue-every", "3"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.configPath != "conf.d" || opts.uiMode != config.UIModeConsole || opts.exportPath != "out.db" || !opts.simulate || opts.rogueEvery != 3 {
		t.Fatalf("unexpected options: %+v", opts)
	}

	if _, err := parseFlags([]string{"--ui", "fancy"}, io.Discard); err == nil {
		t.Fatalf("expected invalid ui mode to fail")
	}
	if _, err := parseFlags([]string{"stray"}, io.Discard); err == nil {
		t.Fatalf("expected positional argument to fail")
	}
	if _, err := parseFlags([]string{"--help"}, io.Discard); err != pflag.ErrHelp {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}

func TestLoadConfigFallsBackOnlyForImplicitPath(t *testing.T) {
	t.Setenv(config.EnvPath, "")
	t.Chdir(t.TempDir())

	cfg, defaulted, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !defaulted || cfg.UI.Mode != config.UIModeAuto {
		t.Fatalf("expected built-in defaults, got defaulted=%v mode=%q", defaulted, cfg.UI.Mode)
	}

	if _, _, err := loadConfig("missing.yaml"); err == nil {
		t.Fatalf("expected explicit missing config to fail")
	}

	t.Setenv(config.EnvPath, "also-missing.yaml")
	if _, _, err := loadConfig(""); err == nil {
		t.Fatalf("expected env-named missing config to fail")
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	t.Setenv(config.EnvPath, "")
	path := filepath.Join(t.TempDir(), "radiolog.yaml")
	data := "subscriptions: [1, 2]\nui:\n  mode: headless\nfilters:\n  enabled: [CellInfo]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, defaulted, err := loadConfig(path)
	if err != nil || defaulted {
		t.Fatalf("loadConfig: err=%v defaulted=%v", err, defaulted)
	}
	applyOverrides(cfg, options{uiMode: config.UIModeConsole, exportPath: " out.db "})
	if cfg.UI.Mode != config.UIModeConsole || cfg.Export.Path != "out.db" {
		t.Fatalf("overrides not applied: mode=%q export=%q", cfg.UI.Mode, cfg.Export.Path)
	}

	aggCfg, err := aggregateConfig(cfg)
	if err != nil {
		t.Fatalf("aggregateConfig: %v", err)
	}
	if len(aggCfg.Filters) != 1 || aggCfg.Filters[0] != filter.CellInfoLog {
		t.Fatalf("unexpected filters: %v", aggCfg.Filters)
	}
	if aggCfg.Source.CellInfoInterval != 5*time.Second || aggCfg.Source.DefaultScanWindow != 300*time.Second {
		t.Fatalf("unexpected polling: %+v", aggCfg.Source)
	}
	if len(aggCfg.Anomaly.AllowedGenerations) != 2 || !aggCfg.AnomalyNotifications {
		t.Fatalf("unexpected anomaly config: %+v notify=%v", aggCfg.Anomaly, aggCfg.AnomalyNotifications)
	}
}

func TestResolveUIMode(t *testing.T) {
	cases := []struct {
		mode string
		tty  bool
		want string
	}{
		{config.UIModeAuto, true, config.UIModeTview},
		{config.UIModeAuto, false, config.UIModeConsole},
		{config.UIModeTview, false, config.UIModeConsole},
		{config.UIModeTview, true, config.UIModeTview},
		{config.UIModeConsole, true, config.UIModeConsole},
		{config.UIModeHeadless, true, config.UIModeHeadless},
	}
	for _, tc := range cases {
		if got := resolveUIMode(tc.mode, tc.tty); got != tc.want {
			t.Fatalf("resolveUIMode(%q, %v) = %q, want %q", tc.mode, tc.tty, got, tc.want)
		}
	}
}

func TestOpenProviderRequiresBroker(t *testing.T) {
	cfg := config.Default()
	if _, _, err := openProvider(cfg, options{}); err == nil || !strings.Contains(err.Error(), "bridge.broker") {
		t.Fatalf("expected missing broker error, got %v", err)
	}
}

// The simulator runs behind the in-process bridge, so this covers the whole
// path from provider callbacks through the wire protocol to the log and the
// SQLite export.
func TestSimulatedRunLogsAndExports(t *testing.T) {
	cfg := config.Default()
	cfg.Subscriptions = []int{1}
	cfg.Polling.CellInfoIntervalSeconds = 1
	prov, closeProvider, err := openProvider(cfg, options{simulate: true, rogueEvery: 1})
	if err != nil {
		t.Fatalf("openProvider: %v", err)
	}
	defer closeProvider()

	aggCfg, err := aggregateConfig(cfg)
	if err != nil {
		t.Fatalf("aggregateConfig: %v", err)
	}
	agg := aggregate.New(prov, aggCfg)
	if err := agg.Start(context.Background(), cfg.Subscriptions); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer agg.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for {
		if agg.PendingAnomaly() != "" && hasKind(agg.Snapshot(), radio.KindCellInfo) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no cell info or anomaly; log has %d entries", len(agg.Snapshot()))
		}
		time.Sleep(20 * time.Millisecond)
	}

	lines := statusLines(agg.Stats(), agg, time.Now())
	if len(lines) != 4 || !strings.Contains(lines[0], "alerts on") {
		t.Fatalf("unexpected status lines: %q", lines)
	}

	agg.Stop()
	path := filepath.Join(t.TempDir(), "export.db")
	r := render.New(nil)
	exportLog(context.Background(), path, r, agg)
	w, err := export.Open(context.Background(), path, r)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer w.Close()
	n, err := w.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n == 0 || n > len(agg.Snapshot()) {
		t.Fatalf("export has %d rows for %d events", n, len(agg.Snapshot()))
	}
}

func hasKind(events []radio.Event, k radio.Kind) bool {
	for _, ev := range events {
		if ev.Kind() == k {
			return true
		}
	}
	return false
}
