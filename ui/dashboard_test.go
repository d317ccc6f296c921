package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/stretchr/testify/require"

	"radiolog/filter"
	"radiolog/radio"
	"radiolog/render"
)

// newTestDashboard assembles the widgets without running the application;
// the scheduler has no app, so flush applies updates inline.
func newTestDashboard(t *testing.T, ctrl Controller) *Dashboard {
	t.Helper()
	d := &Dashboard{
		app:     tview.NewApplication(),
		pages:   tview.NewPages(),
		status:  tview.NewTextView(),
		filters: tview.NewTextView(),
		footer:  tview.NewTextView(),
		search:  tview.NewInputField(),
		modal:   tview.NewModal(),
		logPane: newPane("Radio log"),
		sysPane: newPane("System"),
		ctrl:    ctrl,
		rend:    render.New(nil),
		opts:    Options{}.withDefaults(),
		sched:   newFrameScheduler(nil, time.Hour, 0),
		system:  NewLineBuffer(systemPaneLines, systemPaneBytes),
		enabled: filter.AllTypes(),
		notify:  true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.ctx, d.cancel = ctx, cancel
	d.query = NewSearchFilter(ctx)
	d.pages.AddPage(mainPage, tview.NewBox(), true, true).
		AddPage(anomalyPage, d.modal, true, false)
	d.focus = newFocusGroup(d.logPane, d.sysPane)
	return d
}

func TestPaneWriterSplitsLinesAndBoundsPartial(t *testing.T) {
	d := newTestDashboard(t, newFakeController())
	w := &paneWriter{d: d}

	n, err := w.Write([]byte("alpha\r\nbravo\npart"))
	require.NoError(t, err)
	require.Equal(t, 17, n)
	d.sched.flush()
	text := d.sysPane.tv.GetText(true)
	require.Contains(t, text, "alpha")
	require.Contains(t, text, "bravo")
	require.NotContains(t, text, "part")

	big := bytes.Repeat([]byte("x"), paneWriterMaxBytes*2)
	n, err = w.Write(big)
	require.NoError(t, err)
	require.Equal(t, len(big), n)
	require.Len(t, w.buf, paneWriterMaxBytes)
	require.Positive(t, w.droppedBytes)
}

func TestDashboardRuneKeys(t *testing.T) {
	ctrl := newFakeController()
	d := newTestDashboard(t, ctrl)
	first := filter.AllTypes()[0]

	require.Nil(t, d.handleRune(tcell.NewEventKey(tcell.KeyRune, '1', tcell.ModNone)))
	d.mu.Lock()
	d.enabled = nil
	d.mu.Unlock()
	require.Nil(t, d.handleRune(tcell.NewEventKey(tcell.KeyRune, '1', tcell.ModNone)))
	require.Nil(t, d.handleRune(tcell.NewEventKey(tcell.KeyRune, 'c', tcell.ModNone)))
	require.Nil(t, d.handleRune(tcell.NewEventKey(tcell.KeyRune, 'n', tcell.ModNone)))
	require.NotNil(t, d.handleRune(tcell.NewEventKey(tcell.KeyRune, 'z', tcell.ModNone)))

	require.Equal(t, []string{
		"remove " + first.String(),
		"add " + first.String(),
		"clear",
		"alerts off",
	}, ctrl.Calls())
}

func TestDashboardAnomalyModal(t *testing.T) {
	ctrl := newFakeController()
	d := newTestDashboard(t, ctrl)

	d.showAnomaly("Unexpected MCC: 310")
	front, _ := d.pages.GetFrontPage()
	require.Equal(t, anomalyPage, front)

	// Keys go to the modal while it is up.
	ev := tcell.NewEventKey(tcell.KeyRune, 'c', tcell.ModNone)
	require.Equal(t, ev, d.handleKey(ev))
	require.Empty(t, ctrl.Calls())

	d.showAnomaly("")
	front, _ = d.pages.GetFrontPage()
	require.Equal(t, mainPage, front)
}

func TestDashboardLogTitleCountsEntries(t *testing.T) {
	d := newTestDashboard(t, newFakeController())
	d.mu.Lock()
	d.events = []radio.Event{stateEvent("Alpha", 1), stateEvent("Beta", 2)}
	d.mu.Unlock()

	d.scheduleLog()
	d.sched.flush()
	require.True(t, strings.Contains(d.logPane.tv.GetTitle(), "Radio log (2)"), d.logPane.tv.GetTitle())
	require.Contains(t, d.logPane.tv.GetText(true), "Beta")

	d.SetStatus([]string{"line one", "line two"})
	d.sched.flush()
	require.Equal(t, "line one\nline two", d.status.GetText(true))
}
