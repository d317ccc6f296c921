package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"radiolog/filter"
	"radiolog/radio"
	"radiolog/render"
)

// ANSI escapes used by the console renderer.
const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
)

var ansiKindColors = map[radio.Kind]string{
	radio.KindCellInfo:              "\x1b[32m",
	radio.KindSignalStrength:        "\x1b[36m",
	radio.KindServiceState:          "\x1b[33m",
	radio.KindNetworkScan:           "\x1b[35m",
	radio.KindRegistrationFailed:    "\x1b[31m",
	radio.KindBroadcast:             "\x1b[37m",
	radio.KindPhysicalChannelConfig: "\x1b[34m",
}

// resetTail is how many entries are reprinted after the view changes under us.
const resetTail = 20

// errQuit is returned by the quit command.
var errQuit = errors.New("quit")

// Console is the line-oriented front end for plain terminals and pipes. New
// entries are printed as they arrive; commands are read from in.
type Console struct {
	ctrl  Controller
	rend  *render.Renderer
	opts  Options
	out   io.Writer
	in    io.Reader
	color bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex

	mu       sync.Mutex
	printed  int
	last     radio.Event
	enabled  []filter.Type
	notify   bool
	stopOnce sync.Once
}

// NewConsole starts printing ctrl's log to out. in may be nil to disable
// commands.
func NewConsole(ctrl Controller, r *render.Renderer, out io.Writer, in io.Reader, color bool, opts Options) *Console {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Console{
		ctrl:   ctrl,
		rend:   r,
		opts:   opts,
		out:    out,
		in:     in,
		color:  color,
		ctx:    ctx,
		cancel: cancel,
		notify: true,
	}
	c.wg.Add(1)
	go c.observe()
	if in != nil {
		// Not tracked by wg: a blocked read on in cannot be interrupted.
		go c.readCommands()
	}
	return c
}

func (c *Console) paint(code, s string) string {
	if !c.color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func (c *Console) println(lines ...string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, line := range lines {
		_, _ = io.WriteString(c.out, line+"\n")
	}
}

func (c *Console) observe() {
	defer c.wg.Done()
	logs := c.ctrl.ObserveLog(c.ctx)
	filters := c.ctrl.ObserveFilters(c.ctx)
	alerts := c.ctrl.ObserveAnomaly(c.ctx)
	notify := c.ctrl.ObserveNotificationEnabled(c.ctx)
	for {
		select {
		case <-c.ctx.Done():
			return
		case events, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			c.onLog(events)
		case enabled, ok := <-filters:
			if !ok {
				filters = nil
				continue
			}
			c.mu.Lock()
			c.enabled = enabled
			c.mu.Unlock()
		case msg, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			if msg != "" {
				c.println(c.paint(ansiRed+ansiBold, "!! Possible fake base station"))
				for _, line := range strings.Split(msg, "\n") {
					c.println(c.paint(ansiRed, "!! "+line))
				}
				c.println(c.paint(ansiDim, "   (type 'dismiss' or 'alerts off')"))
			}
		case on, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			c.mu.Lock()
			c.notify = on
			c.mu.Unlock()
		}
	}
}

func sameEvent(a, b radio.Event) bool {
	return a.SubscriptionID == b.SubscriptionID && a.Time.Equal(b.Time) &&
		a.Kind() == b.Kind() && a.Fingerprint() == b.Fingerprint()
}

// onLog prints the entries appended since the last snapshot. When the view no
// longer extends what was printed (clear, filter change) the tail is
// reprinted after a marker.
func (c *Console) onLog(events []radio.Event) {
	c.mu.Lock()
	start := c.printed
	reset := start > len(events) || (start > 0 && !sameEvent(events[start-1], c.last))
	if reset {
		start = max(len(events)-resetTail, 0)
	}
	c.printed = len(events)
	if len(events) > 0 {
		c.last = events[len(events)-1]
	}
	c.mu.Unlock()

	var lines []string
	if reset {
		lines = append(lines, c.paint(ansiDim, fmt.Sprintf("--- view changed, %d entries ---", len(events))))
	}
	for _, ev := range events[start:] {
		lines = append(lines, c.paint(ansiKindColors[ev.Kind()], c.rend.Line(ev)))
	}
	if len(lines) > 0 {
		c.println(lines...)
	}
}

func (c *Console) readCommands() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if c.ctx.Err() != nil {
			return
		}
		reply, err := c.RunCommand(scanner.Text())
		if errors.Is(err, errQuit) {
			if c.opts.OnQuit != nil {
				c.opts.OnQuit()
			}
			return
		}
		if err != nil {
			c.println(c.paint(ansiRed, err.Error()))
			continue
		}
		if reply != "" {
			c.println(c.paint(ansiDim, reply))
		}
	}
}

// RunCommand executes one console command and returns its reply.
func (c *Console) RunCommand(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	switch strings.ToLower(fields[0]) {
	case "help", "?":
		return "commands: filters | show <type> | hide <type> | clear | dismiss | alerts on|off | export | quit", nil
	case "filters":
		c.mu.Lock()
		enabled := append([]filter.Type(nil), c.enabled...)
		c.mu.Unlock()
		names := make([]string, 0, len(enabled))
		for _, t := range enabled {
			names = append(names, t.String())
		}
		if len(names) == 0 {
			return "enabled: (none)", nil
		}
		return "enabled: " + strings.Join(names, ", "), nil
	case "show", "hide":
		if len(fields) < 2 {
			return "", fmt.Errorf("usage: %s <type>", fields[0])
		}
		t, err := filter.ParseType(fields[1])
		if err != nil {
			return "", err
		}
		if strings.EqualFold(fields[0], "show") {
			c.ctrl.AddFilter(t)
			return "showing " + t.String(), nil
		}
		c.ctrl.RemoveFilter(t)
		return "hiding " + t.String(), nil
	case "clear":
		c.ctrl.Clear()
		return "log cleared", nil
	case "dismiss":
		c.ctrl.DismissAnomaly()
		return "", nil
	case "alerts":
		if len(fields) < 2 {
			c.mu.Lock()
			on := c.notify
			c.mu.Unlock()
			return fmt.Sprintf("alerts %s", onOff(on)), nil
		}
		switch strings.ToLower(fields[1]) {
		case "on":
			c.ctrl.SetAnomalyNotificationEnabled(true)
		case "off":
			c.ctrl.SetAnomalyNotificationEnabled(false)
		default:
			return "", fmt.Errorf("usage: alerts on|off")
		}
		return "alerts " + strings.ToLower(fields[1]), nil
	case "export":
		if c.opts.OnExport == nil {
			return "", fmt.Errorf("export is not configured")
		}
		c.opts.OnExport()
		return "", nil
	case "quit", "exit":
		return "", errQuit
	}
	return "", fmt.Errorf("unknown command %q (try help)", fields[0])
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// WaitReady returns immediately; the console has no startup phase.
func (c *Console) WaitReady() {}

// Stop ends the observers.
func (c *Console) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

// SetStatus prints the status lines.
func (c *Console) SetStatus(lines []string) {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, c.paint(ansiYellow, l))
	}
	c.println(out...)
}

// SystemWriter receives log output; lines are printed dimmed.
func (c *Console) SystemWriter() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		text := strings.TrimRight(string(p), "\n")
		if text != "" {
			c.println(c.paint(ansiDim, text))
		}
		return len(p), nil
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

var _ Surface = (*Console)(nil)
