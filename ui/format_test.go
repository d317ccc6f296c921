package ui

import (
	"strings"
	"testing"
	"time"

	"radiolog/filter"
	"radiolog/radio"
	"radiolog/render"
)

func sampleEvents() []radio.Event {
	at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	return []radio.Event{
		{SubscriptionID: 1, Time: at, Payload: radio.ServiceStateChanged{State: radio.ServiceState{OperatorName: "Alpha"}}},
		{SubscriptionID: 1, Time: at, Payload: radio.BroadcastReceived{Action: radio.ActionCarrierSignalReset}},
		{SubscriptionID: 2, Time: at, Payload: radio.ServiceStateChanged{State: radio.ServiceState{OperatorName: "Beta"}}},
	}
}

func TestLogTextTailAndMatch(t *testing.T) {
	r := render.New(nil)
	r.Location = time.UTC
	events := sampleEvents()

	all := logText(r, events, 0, nil)
	if strings.Count(all, "Time:") != 3 {
		t.Fatalf("expected three entries, got %q", all)
	}
	if !strings.Contains(all, "[[]1]") && !strings.Contains(all, "[1[]") {
		t.Fatalf("subscription tag must be escaped: %q", all)
	}

	last := logText(r, events, 1, nil)
	if strings.Contains(last, "Alpha") || !strings.Contains(last, "Beta") {
		t.Fatalf("expected only the newest entry, got %q", last)
	}

	matched := logText(r, events, 0, func(s string) bool { return strings.Contains(s, "Alpha") })
	if strings.Count(matched, "Time:") != 1 {
		t.Fatalf("expected one matching entry, got %q", matched)
	}
}

func TestFilterBarAndToggleKeys(t *testing.T) {
	bar := filterBar([]filter.Type{filter.CellInfoLog})
	if !strings.Contains(bar, "1 CellInfo") {
		t.Fatalf("missing first category: %q", bar)
	}
	if !strings.Contains(bar, "[gray]2 ") {
		t.Fatalf("disabled category should be gray: %q", bar)
	}

	got, ok := toggleTarget('1')
	if !ok || got != filter.AllTypes()[0] {
		t.Fatalf("unexpected toggle target %v %v", got, ok)
	}
	if _, ok := toggleTarget('8'); ok {
		t.Fatalf("8 is out of range")
	}
	if _, ok := toggleTarget('0'); ok {
		t.Fatalf("0 is out of range")
	}
}
