// Package render turns log events into the short text shown in the log view,
// the console, and the export rows.
package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"radiolog/mcc"
	"radiolog/radio"
)

// TimeLayout is the timestamp format used in headers.
const TimeLayout = "2006/01/02 15:04:05.000"

// Renderer formats events. The zero value renders without cause names or
// country annotation.
type Renderer struct {
	// Causes resolves registration reject causes; nil disables the names.
	Causes CauseLookup
	// Countries annotates PLMNs with the country; nil disables it.
	Countries *mcc.Database
	// Location controls header timestamps; nil means time.Local.
	Location *time.Location
}

// New returns a renderer with the built-in 3GPP cause tables.
func New(countries *mcc.Database) *Renderer {
	return &Renderer{Causes: Cause3GPP, Countries: countries}
}

// Header is the first line of an entry: subscription, category, and time.
func (r *Renderer) Header(ev radio.Event) string {
	ts := ev.Time
	if r.Location != nil {
		ts = ts.In(r.Location)
	}
	return fmt.Sprintf("[%d] %s Time: %s", ev.SubscriptionID, ev.Kind(), ts.Format(TimeLayout))
}

// Body returns the detail lines for the event's payload.
func (r *Renderer) Body(ev radio.Event) []string {
	switch p := ev.Payload.(type) {
	case radio.BroadcastReceived:
		return []string{fmt.Sprintf("action=%s, extras=%s", p.Action, formatExtras(p.Extras))}
	case radio.PhysicalChannelConfigChanged:
		lines := make([]string, 0, len(p.Configs))
		for _, c := range p.Configs {
			lines = append(lines, fmt.Sprintf("{generation=%s, band=%s, pci=%d, bandwidth=%dkHz}",
				c.Generation, c.BandLabel(), c.PCI, c.BandwidthKHz))
		}
		return orNone(lines)
	case radio.CellInfoObserved:
		lines := make([]string, 0, len(p.Cells))
		for _, c := range p.Cells {
			lines = append(lines, r.cellLine(c))
		}
		return orNone(lines)
	case radio.RegistrationFailed:
		return []string{
			p.Cell.Generation.String(),
			"PLMN=" + r.plmn(p.ChosenPLMN),
			fmt.Sprintf("causeCode=%d(%s)", p.CauseCode, r.cause(p.Cell.Generation, p.CauseCode)),
			fmt.Sprintf("additionalCauseCode=%d", p.AdditionalCauseCode),
		}
	case radio.ServiceStateChanged:
		s := p.State
		return []string{
			"name=" + s.OperatorName,
			fmt.Sprintf("state=%d(%s)", s.State, s.StateName()),
			"bandwidths=" + formatInts(s.CellBandwidthsKHz),
			"rejectCause=" + r.rejectCauses(s.RejectCauses),
		}
	case radio.SignalStrengthChanged:
		lines := make([]string, 0, len(p.Strengths))
		for _, s := range p.Strengths {
			lines = append(lines, fmt.Sprintf("{generation=%s, dbm=%d, level=%d}", s.Generation, s.DBM, s.Level))
		}
		return orNone(lines)
	case radio.NetworkScanUpdate:
		return append([]string{"status=" + p.Status.String()}, r.scanGroups(p.Cells)...)
	default:
		return []string{"(unknown payload)"}
	}
}

// Text is the header followed by the body, one line each.
func (r *Renderer) Text(ev radio.Event) string {
	return r.Header(ev) + "\n" + strings.Join(r.Body(ev), "\n")
}

// Line is the whole entry on one line, for consoles and log files.
func (r *Renderer) Line(ev radio.Event) string {
	return r.Header(ev) + " | " + strings.Join(r.Body(ev), " | ")
}

func (r *Renderer) cellLine(c radio.CellObservation) string {
	id := c.Identity
	pci := "null"
	if id.PCI != nil {
		pci = strconv.Itoa(*id.PCI)
	}
	band := "null"
	if id.Channel != nil {
		band = id.Band()
	}
	line := fmt.Sprintf("{generation=%s, plmn=%s, name=%s, band=%s, pci=%s",
		id.Generation, r.plmn(id.PLMN()), id.OperatorName, band, pci)
	if c.Registered {
		line += ", registered"
	}
	if c.Signal != nil {
		line += fmt.Sprintf(", dbm=%d", c.Signal.DBM)
	}
	return line + "}"
}

// scanGroups collapses scan results by network, listing the generations seen.
func (r *Renderer) scanGroups(cells []radio.CellObservation) []string {
	if cells == nil {
		return nil
	}
	type key struct{ name, plmn string }
	var order []key
	gens := make(map[key][]radio.Generation)
	for _, c := range cells {
		k := key{c.Identity.OperatorName, c.Identity.PLMN()}
		if _, ok := gens[k]; !ok {
			order = append(order, k)
		}
		if !containsGeneration(gens[k], c.Identity.Generation) {
			gens[k] = append(gens[k], c.Identity.Generation)
		}
	}
	lines := make([]string, 0, len(order))
	for _, k := range order {
		names := make([]string, 0, len(gens[k]))
		for _, g := range gens[k] {
			names = append(names, g.String())
		}
		lines = append(lines, fmt.Sprintf("{generation=[%s], plmn=%s, name=%s}",
			strings.Join(names, ", "), r.plmn(k.plmn), k.name))
	}
	return lines
}

func (r *Renderer) plmn(plmn string) string {
	if r.Countries == nil || len(plmn) < 3 {
		return plmn
	}
	if country := r.Countries.Country(plmn[:3]); country != "" {
		return plmn + "(" + country + ")"
	}
	return plmn
}

func (r *Renderer) cause(gen radio.Generation, code int) string {
	if r.Causes == nil {
		return "null"
	}
	if name := r.Causes(gen, code); name != "" {
		return name
	}
	return "null"
}

// rejectCauses resolves service-state reject causes, which use the 5GMM table.
func (r *Renderer) rejectCauses(codes []int) string {
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%d(%s)", code, r.cause(radio.GenerationNR, code)))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func containsGeneration(list []radio.Generation, g radio.Generation) bool {
	for _, v := range list {
		if v == g {
			return true
		}
	}
	return false
}

func formatExtras(extras map[string]string) string {
	keys := make([]string, 0, len(extras))
	for k := range extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+extras[k])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func orNone(lines []string) []string {
	if len(lines) == 0 {
		return []string{"(none)"}
	}
	return lines
}
