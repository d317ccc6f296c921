// Program radiolog collects cellular radio diagnostics from the radio service
// bridge (or the built-in simulator), flags cells that look like a fake base
// station, and presents the log in a terminal dashboard, a line console, or
// headless with file logging only.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"radiolog/aggregate"
	"radiolog/anomaly"
	"radiolog/bridge"
	"radiolog/config"
	"radiolog/export"
	"radiolog/mcc"
	"radiolog/provider"
	"radiolog/provider/sim"
	"radiolog/render"
	"radiolog/source"
	"radiolog/stats"
	"radiolog/ui"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const dashboardStatusInterval = time.Second

type options struct {
	configPath string
	uiMode     string
	exportPath string
	simulate   bool
	rogueEvery int
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("radiolog", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file or directory (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	flags.StringVar(&opts.uiMode, "ui", "", "override ui.mode: auto, tview, console, headless")
	flags.StringVar(&opts.exportPath, "export", "", "override export.path (SQLite file written on export and exit)")
	flags.BoolVar(&opts.simulate, "simulate", false, "use the built-in radio simulator instead of the MQTT bridge")
	flags.IntVar(&opts.rogueEvery, "simulate-rogue-every", 0, "with --simulate, inject a foreign 2G cell every N cell-info polls (0 disables)")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if flags.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(flags.Args(), " "))
	}
	opts.uiMode = strings.ToLower(strings.TrimSpace(opts.uiMode))
	switch opts.uiMode {
	case "", config.UIModeAuto, config.UIModeTview, config.UIModeConsole, config.UIModeHeadless:
	default:
		return options{}, fmt.Errorf("--ui %q must be one of auto, tview, console, headless", opts.uiMode)
	}
	return opts, nil
}

// loadConfig falls back to defaults only when the implicit default path is
// missing; a config named by flag or environment must exist.
func loadConfig(flagPath string) (*config.Config, bool, error) {
	path := config.ResolvePath(flagPath)
	explicit := strings.TrimSpace(flagPath) != "" || strings.TrimSpace(os.Getenv(config.EnvPath)) != ""
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfg.LoadedFrom = "(built-in defaults)"
		return cfg, true, nil
	}
	return nil, false, err
}

func applyOverrides(cfg *config.Config, opts options) {
	if opts.uiMode != "" {
		cfg.UI.Mode = opts.uiMode
	}
	if p := strings.TrimSpace(opts.exportPath); p != "" {
		cfg.Export.Path = p
	}
}

func aggregateConfig(cfg *config.Config) (aggregate.Config, error) {
	gens, err := cfg.Generations()
	if err != nil {
		return aggregate.Config{}, err
	}
	return aggregate.Config{
		Source: source.Config{
			CellInfoInterval:  cfg.Polling.CellInfoInterval(),
			CellInfoTimeout:   cfg.Polling.CellInfoTimeout(),
			ScanWindow:        cfg.Polling.ScanWindow(),
			DefaultScanWindow: cfg.Polling.DefaultScanWindow(),
		},
		Anomaly: anomaly.Config{
			HomeMCCs:           cfg.Anomaly.HomeMCCs,
			AllowedGenerations: gens,
		},
		AnomalyNotifications: cfg.AnomalyEnabled(),
		Filters:              cfg.FilterTypes(),
	}, nil
}

// resolveUIMode picks the front end. The dashboard needs a terminal; without
// one auto and tview degrade to the line console.
func resolveUIMode(mode string, tty bool) string {
	switch mode {
	case config.UIModeHeadless, config.UIModeConsole:
		return mode
	case config.UIModeTview:
		if !tty {
			log.Warn("UI: tview requires an interactive terminal; using console")
			return config.UIModeConsole
		}
		return mode
	default:
		if tty {
			return config.UIModeTview
		}
		return config.UIModeConsole
	}
}

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// openProvider connects to the radio service. With simulate the simulator is
// served through an in-process agent so the full bridge protocol is used.
func openProvider(cfg *config.Config, opts options) (provider.Provider, func(), error) {
	topics := bridge.Topics{Prefix: cfg.Bridge.TopicPrefix, ClientID: cfg.Bridge.ClientID}
	timeout := cfg.Bridge.RequestTimeout()

	if opts.simulate {
		ids := cfg.Subscriptions
		if len(ids) == 0 {
			ids = []int{1}
		}
		simulator := sim.New(sim.Config{
			SubscriptionIDs: ids,
			RogueEvery:      opts.rogueEvery,
			Seed:            uint64(time.Now().UnixNano()),
		})
		hub := bridge.NewHub()
		agent, err := bridge.NewAgent(simulator, hub.Connect(), topics.Prefix, timeout)
		if err != nil {
			simulator.Close()
			return nil, nil, err
		}
		b, err := bridge.New(hub.Connect(), topics, timeout)
		if err != nil {
			agent.Close()
			simulator.Close()
			return nil, nil, err
		}
		log.WithField("subscriptions", ids).Info("Simulator: radio service simulated in process")
		return b, func() {
			b.Close()
			agent.Close()
			simulator.Close()
		}, nil
	}

	if strings.TrimSpace(cfg.Bridge.Broker) == "" {
		return nil, nil, errors.New("bridge.broker is not configured (use --simulate to run without a handset)")
	}
	transport, err := bridge.DialMQTT(cfg.Bridge)
	if err != nil {
		return nil, nil, err
	}
	b, err := bridge.New(transport, topics, timeout)
	if err != nil {
		transport.Close()
		return nil, nil, err
	}
	return b, b.Close, nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// statusLines formats the header: a summary line followed by the per-category
// counters.
func statusLines(tr *stats.Tracker, agg *aggregate.Aggregator, started time.Time) []string {
	summary := fmt.Sprintf("radiolog %s | started %s | %s events (%s shown) | %s anomalies | alerts %s",
		Version,
		humanize.Time(started),
		humanize.Comma(int64(tr.GetTotal())),
		humanize.Comma(int64(len(agg.Visible()))),
		humanize.Comma(int64(tr.GetAnomalyTotal())),
		onOff(agg.NotificationEnabled()),
	)
	return append([]string{summary}, tr.SnapshotLines()...)
}

// runStatus refreshes the surface every tick and records the status in the
// log file every fileInterval. Headless runs log it instead.
func runStatus(ctx context.Context, tick, fileInterval time.Duration, agg *aggregate.Aggregator, surface ui.Surface, sinks *logSinks) {
	started := time.Now()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	lastFile := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			lines := statusLines(agg.Stats(), agg, started)
			if surface == nil {
				for _, line := range lines {
					log.Info(line)
				}
				continue
			}
			surface.SetStatus(lines)
			if now.Sub(lastFile) >= fileInterval {
				lastFile = now
				for _, line := range lines {
					sinks.WriteFileOnly(line, now)
				}
			}
		}
	}
}

func exportLog(ctx context.Context, path string, r *render.Renderer, agg *aggregate.Aggregator) {
	if strings.TrimSpace(path) == "" {
		return
	}
	events := agg.Snapshot()
	res, err := export.Snapshot(ctx, path, r, events)
	if err != nil {
		log.WithError(err).Error("Export: failed")
		return
	}
	log.Infof("Export: %s new rows, %s already present (%s)",
		humanize.Comma(int64(res.Inserted)), humanize.Comma(int64(res.Skipped)), path)
}

func run(args []string) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg, defaulted, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyOverrides(cfg, opts)

	sinks, err := setupLogging(cfg.Logging, os.Stdout)
	if err != nil {
		log.WithError(err).Warn("Logging: file output disabled")
	}
	defer sinks.Close()
	if defaulted {
		log.Warnf("Config: %s not found; using built-in defaults", config.DefaultPath)
	}

	tty := isStdoutTTY()
	mode := resolveUIMode(cfg.UI.Mode, tty)
	if mode != config.UIModeTview {
		cfg.Print()
	}

	var countries *mcc.Database
	if path := strings.TrimSpace(cfg.MCC.File); path != "" {
		db, err := mcc.Load(path)
		if err != nil {
			log.WithError(err).Warnf("MCC: unable to load %s; country names disabled", path)
		} else {
			countries = db
			log.Infof("MCC: loaded %s", path)
		}
	}
	renderer := render.New(countries)

	prov, closeProvider, err := openProvider(cfg, opts)
	if err != nil {
		return fmt.Errorf("radio service: %w", err)
	}
	defer closeProvider()

	aggCfg, err := aggregateConfig(cfg)
	if err != nil {
		return err
	}
	agg := aggregate.New(prov, aggCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Subscriptions) > 0 {
		err = agg.Start(ctx, cfg.Subscriptions)
	} else {
		err = agg.StartActive(ctx)
	}
	if err != nil {
		return fmt.Errorf("starting collectors: %w", err)
	}
	defer agg.Stop()

	uiOpts := ui.Options{
		MaxLines:  cfg.UI.MaxLines,
		RefreshMS: cfg.UI.RefreshMS,
		OnQuit:    stop,
	}
	if cfg.Export.Path != "" {
		uiOpts.OnExport = func() { exportLog(ctx, cfg.Export.Path, renderer, agg) }
	}

	var surface ui.Surface
	statusInterval := time.Duration(cfg.UI.StatusIntervalSeconds) * time.Second
	statusTick := statusInterval
	switch mode {
	case config.UIModeTview:
		surface = ui.NewDashboard(agg, renderer, uiOpts)
		statusTick = dashboardStatusInterval
	case config.UIModeConsole:
		surface = ui.NewConsole(agg, renderer, os.Stdout, os.Stdin, tty, uiOpts)
	default:
		log.Info("UI: headless")
	}
	if surface != nil {
		surface.WaitReady()
		sinks.SetConsole(surface.SystemWriter())
		surface.SetStatus([]string{"Initializing..."})
	}

	log.Infof("radiolog %s running; press Ctrl+C to stop", Version)
	go runStatus(ctx, statusTick, statusInterval, agg, surface, sinks)

	<-ctx.Done()
	if surface != nil {
		surface.Stop()
		sinks.SetConsole(os.Stdout)
	}
	log.Info("Shutting down...")
	agg.Stop()
	// The signal context is done; give the final export its own deadline.
	exportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	exportLog(exportCtx, cfg.Export.Path, renderer, agg)
	log.Info("radiolog stopped")
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "radiolog: %v\n", err)
		os.Exit(1)
	}
}
