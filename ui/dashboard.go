package ui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"radiolog/filter"
	"radiolog/radio"
	"radiolog/render"
)

const (
	anomalyPage       = "anomaly"
	mainPage          = "main"
	systemPaneLines   = 200
	systemPaneBytes   = 64 * 1024
	anomalyDismiss    = "Dismiss"
	anomalyDisableAll = "Disable alerts"
	// paneWriterMaxBytes bounds an unterminated line held by paneWriter.
	paneWriterMaxBytes = 8 * 1024
)

// Dashboard is the full-screen tview front end: a status header, the filter
// bar, the log pane, a system log pane, and a modal for anomaly alerts.
type Dashboard struct {
	app     *tview.Application
	pages   *tview.Pages
	status  *tview.TextView
	filters *tview.TextView
	footer  *tview.TextView
	search  *tview.InputField
	modal   *tview.Modal
	logPane *pane
	sysPane *pane
	focus   focusGroup

	ctrl   Controller
	rend   *render.Renderer
	opts   Options
	sched  *frameScheduler
	query  *SearchFilter
	system *LineBuffer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	events  []radio.Event
	enabled []filter.Type
	notify  bool

	ready    chan struct{}
	stopOnce sync.Once
}

// NewDashboard builds the layout and starts the application and the
// observers. Stop releases both.
func NewDashboard(ctrl Controller, r *render.Renderer, opts Options) *Dashboard {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		app:     tview.NewApplication(),
		status:  tview.NewTextView().SetDynamicColors(true).SetWrap(false),
		filters: tview.NewTextView().SetDynamicColors(true).SetWrap(false),
		footer:  tview.NewTextView().SetDynamicColors(true).SetWrap(false),
		search:  tview.NewInputField().SetLabel("/ "),
		modal:   tview.NewModal(),
		logPane: newPane("Radio log"),
		sysPane: newPane("System"),
		ctrl:    ctrl,
		rend:    r,
		opts:    opts,
		system:  NewLineBuffer(systemPaneLines, systemPaneBytes),
		ctx:     ctx,
		cancel:  cancel,
		notify:  true,
		ready:   make(chan struct{}),
	}
	d.query = NewSearchFilter(ctx)
	d.status.SetTextColor(tcell.ColorYellow)
	d.footer.SetTextColor(tcell.ColorGray)
	d.footer.SetText(footerText(true, opts.OnExport != nil))

	d.search.SetChangedFunc(func(text string) {
		d.query.SetQuery(text, d.scheduleLog)
	})
	d.search.SetDoneFunc(func(tcell.Key) {
		d.focus.set(d.app, 0)
	})

	d.modal.AddButtons([]string{anomalyDismiss, anomalyDisableAll}).
		SetDoneFunc(func(_ int, label string) {
			switch label {
			case anomalyDisableAll:
				d.ctrl.SetAnomalyNotificationEnabled(false)
			default:
				d.ctrl.DismissAnomaly()
			}
		})

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.status, 4, 0, false).
		AddItem(d.filters, 1, 0, false).
		AddItem(d.logPane.tv, 0, 3, true).
		AddItem(d.sysPane.tv, 8, 0, false).
		AddItem(d.search, 1, 0, false).
		AddItem(d.footer, 1, 0, false)

	d.pages = tview.NewPages().
		AddPage(mainPage, layout, true, true).
		AddPage(anomalyPage, d.modal, true, false)
	d.focus = newFocusGroup(d.logPane, d.sysPane)

	var once sync.Once
	d.app.SetRoot(d.pages, true).EnableMouse(false)
	d.app.SetBeforeDrawFunc(func(tcell.Screen) bool {
		once.Do(func() { close(d.ready) })
		return false
	})
	d.app.SetInputCapture(d.handleKey)
	d.focus.set(nil, 0)

	d.sched = newFrameScheduler(d.app, time.Duration(opts.RefreshMS)*time.Millisecond, 100*time.Millisecond)
	d.sched.Start()

	go d.observe()
	go func() {
		if err := d.app.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		}
	}()
	return d
}

func (d *Dashboard) observe() {
	logs := d.ctrl.ObserveLog(d.ctx)
	filters := d.ctrl.ObserveFilters(d.ctx)
	alerts := d.ctrl.ObserveAnomaly(d.ctx)
	notify := d.ctrl.ObserveNotificationEnabled(d.ctx)
	for {
		select {
		case <-d.ctx.Done():
			return
		case events, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			d.mu.Lock()
			d.events = events
			d.mu.Unlock()
			d.scheduleLog()
		case enabled, ok := <-filters:
			if !ok {
				filters = nil
				continue
			}
			d.mu.Lock()
			d.enabled = enabled
			d.mu.Unlock()
			text := filterBar(enabled)
			d.sched.Schedule("filters", func() { d.filters.SetText(text) })
		case msg, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			d.sched.Schedule("anomaly", func() { d.showAnomaly(msg) })
		case on, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			d.mu.Lock()
			d.notify = on
			d.mu.Unlock()
			text := footerText(on, d.opts.OnExport != nil)
			d.sched.Schedule("footer", func() { d.footer.SetText(text) })
		}
	}
}

func (d *Dashboard) scheduleLog() {
	d.mu.Lock()
	events := d.events
	d.mu.Unlock()
	text := logText(d.rend, events, d.opts.MaxLines, d.query.Matches)
	title := fmt.Sprintf("Radio log (%d)", len(events))
	if q := d.query.ActiveQuery(); q != "" {
		title += fmt.Sprintf(" /%s", tview.Escape(q))
	}
	d.sched.Schedule("log", func() {
		d.logPane.baseTitle = title
		d.logPane.SetFocused(d.focus.current() == d.logPane)
		d.logPane.SetText(text)
	})
}

func (d *Dashboard) showAnomaly(msg string) {
	if msg == "" {
		d.pages.HidePage(anomalyPage)
		d.focus.set(d.app, d.focus.index)
		return
	}
	d.modal.SetText("Possible fake base station\n\n" + msg)
	d.pages.ShowPage(anomalyPage)
	d.app.SetFocus(d.modal)
}

func (d *Dashboard) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if front, _ := d.pages.GetFrontPage(); front == anomalyPage {
		return event
	}
	if d.app.GetFocus() == d.search {
		return event
	}
	switch event.Key() {
	case tcell.KeyCtrlC:
		d.quit()
		return nil
	case tcell.KeyTab:
		d.focus.cycle(d.app, 1)
		return nil
	case tcell.KeyBacktab:
		d.focus.cycle(d.app, -1)
		return nil
	case tcell.KeyRune:
		return d.handleRune(event)
	}
	if p := d.focus.current(); p != nil && p.HandleScroll(event) {
		return nil
	}
	return event
}

func (d *Dashboard) handleRune(event *tcell.EventKey) *tcell.EventKey {
	r := event.Rune()
	if t, ok := toggleTarget(r); ok {
		d.mu.Lock()
		on := containsType(d.enabled, t)
		d.mu.Unlock()
		if on {
			d.ctrl.RemoveFilter(t)
		} else {
			d.ctrl.AddFilter(t)
		}
		return nil
	}
	switch r {
	case 'c':
		d.ctrl.Clear()
	case 'n':
		d.mu.Lock()
		on := d.notify
		d.mu.Unlock()
		d.ctrl.SetAnomalyNotificationEnabled(!on)
	case 'e':
		if d.opts.OnExport != nil {
			go d.opts.OnExport()
		}
	case '/':
		d.app.SetFocus(d.search)
	case 'q':
		d.quit()
	default:
		return event
	}
	return nil
}

func (d *Dashboard) quit() {
	if d.opts.OnQuit != nil {
		go d.opts.OnQuit()
		return
	}
	go d.Stop()
}

// WaitReady blocks until the first frame is drawn.
func (d *Dashboard) WaitReady() {
	<-d.ready
}

// Stop tears down the observers and the application.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		d.query.Stop()
		d.sched.Stop()
		d.app.Stop()
	})
}

// SetStatus replaces the header lines.
func (d *Dashboard) SetStatus(lines []string) {
	text := strings.Join(lines, "\n")
	d.sched.Schedule("status", func() { d.status.SetText(text) })
}

// SystemWriter receives log output for the system pane.
func (d *Dashboard) SystemWriter() io.Writer {
	return &paneWriter{d: d}
}

// AppendSystem adds one line to the system pane.
func (d *Dashboard) AppendSystem(line string) {
	d.system.Append(tview.Escape(line))
	text := d.system.Text()
	d.sched.Schedule("system", func() { d.sysPane.SetText(text) })
}

type paneWriter struct {
	d            *Dashboard
	mu           sync.Mutex
	buf          []byte
	droppedBytes int
}

func (w *paneWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	var lines []string
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(w.buf[:idx], "\r")))
		w.buf = w.buf[idx+1:]
	}
	if over := len(w.buf) - paneWriterMaxBytes; over > 0 {
		w.buf = w.buf[:paneWriterMaxBytes]
		w.droppedBytes += over
	}
	w.mu.Unlock()
	for _, line := range lines {
		w.d.AppendSystem(line)
	}
	return len(p), nil
}

var _ Surface = (*Dashboard)(nil)
