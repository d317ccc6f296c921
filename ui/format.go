package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"radiolog/filter"
	"radiolog/radio"
	"radiolog/render"
)

// kindColors are tview color names per category.
var kindColors = map[radio.Kind]string{
	radio.KindCellInfo:              "green",
	radio.KindSignalStrength:        "aqua",
	radio.KindServiceState:          "yellow",
	radio.KindNetworkScan:           "fuchsia",
	radio.KindRegistrationFailed:    "red",
	radio.KindBroadcast:             "silver",
	radio.KindPhysicalChannelConfig: "teal",
}

func kindColor(k radio.Kind) string {
	if c, ok := kindColors[k]; ok {
		return c
	}
	return "white"
}

// tail returns at most n trailing events.
func tail(events []radio.Event, n int) []radio.Event {
	if n > 0 && len(events) > n {
		return events[len(events)-n:]
	}
	return events
}

// logText renders the newest max entries as tview markup. match filters on
// the plain rendered text and may be nil.
func logText(r *render.Renderer, events []radio.Event, max int, match func(string) bool) string {
	var sb strings.Builder
	for _, ev := range tail(events, max) {
		header := r.Header(ev)
		body := r.Body(ev)
		if match != nil && !match(header+"\n"+strings.Join(body, "\n")) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%s::b]%s[-::-]", kindColor(ev.Kind()), tview.Escape(header))
		for _, line := range body {
			sb.WriteString("\n  ")
			sb.WriteString(tview.Escape(line))
		}
	}
	return sb.String()
}

// filterBar shows each category with its toggle key; enabled ones are lit.
func filterBar(enabled []filter.Type) string {
	on := make(map[filter.Type]bool, len(enabled))
	for _, t := range enabled {
		on[t] = true
	}
	parts := make([]string, 0, len(filter.AllTypes()))
	for i, t := range filter.AllTypes() {
		name := strings.TrimSuffix(t.String(), "Log")
		if on[t] {
			parts = append(parts, fmt.Sprintf("[%s::b]%d %s[-::-]", kindColor(t), i+1, name))
		} else {
			parts = append(parts, fmt.Sprintf("[gray]%d %s[-]", i+1, name))
		}
	}
	return strings.Join(parts, "  ")
}

// toggleTarget maps a digit key onto a category.
func toggleTarget(r rune) (filter.Type, bool) {
	all := filter.AllTypes()
	idx := int(r - '1')
	if idx < 0 || idx >= len(all) {
		return 0, false
	}
	return all[idx], true
}

func containsType(list []filter.Type, t filter.Type) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func footerText(notify bool, exportEnabled bool) string {
	state := "[green]on[-]"
	if !notify {
		state = "[red]off[-]"
	}
	keys := "1-7 toggle  c clear  n alerts(" + state + ")  / search  Tab focus"
	if exportEnabled {
		keys += "  e export"
	}
	return keys + "  q quit"
}
