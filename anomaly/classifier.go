// Package anomaly flags radio environments that look like a rogue base
// station. The classifier is stateless; callers decide how reasons surface.
package anomaly

import (
	"strings"

	"radiolog/radio"
)

// Reason texts appended to the pending anomaly message.
const (
	ReasonForeignMCC           = "foreign MCC observed"
	ReasonUnexpectedGeneration = "unexpected generation observed"
)

// DefaultHomeMCCs covers Japan (440, 441).
var DefaultHomeMCCs = []string{"440", "441"}

// DefaultAllowedGenerations permits only LTE and NR cells.
var DefaultAllowedGenerations = []radio.Generation{radio.GenerationLTE, radio.GenerationNR}

// Config holds the allow-lists the rules compare against. Empty lists fall
// back to the defaults.
type Config struct {
	HomeMCCs           []string
	AllowedGenerations []radio.Generation
}

// Classifier evaluates the anomaly rules over a batch of cell observations.
type Classifier struct {
	homeMCCs    map[string]struct{}
	generations map[radio.Generation]struct{}
}

// New builds a classifier from cfg.
func New(cfg Config) *Classifier {
	mccs := cfg.HomeMCCs
	if len(mccs) == 0 {
		mccs = DefaultHomeMCCs
	}
	gens := cfg.AllowedGenerations
	if len(gens) == 0 {
		gens = DefaultAllowedGenerations
	}
	c := &Classifier{
		homeMCCs:    make(map[string]struct{}, len(mccs)),
		generations: make(map[radio.Generation]struct{}, len(gens)),
	}
	for _, m := range mccs {
		m = strings.TrimSpace(m)
		if m != "" {
			c.homeMCCs[m] = struct{}{}
		}
	}
	for _, g := range gens {
		c.generations[g] = struct{}{}
	}
	return c
}

// Classify returns the reasons triggered by the batch, at most one per rule.
// Both rules run independently and may both fire.
func (c *Classifier) Classify(cells []radio.CellObservation) []string {
	var reasons []string

	// Rule 1: any known MCC outside the home list.
	for _, cell := range cells {
		mcc := strings.TrimSpace(cell.Identity.MCC)
		if mcc == "" {
			continue
		}
		if _, ok := c.homeMCCs[mcc]; !ok {
			reasons = append(reasons, ReasonForeignMCC)
			break
		}
	}

	// Rule 2: any resolvable generation outside the allow-list.
	for _, cell := range cells {
		gen := cell.Identity.Generation
		if gen == radio.GenerationUnknown {
			continue
		}
		if _, ok := c.generations[gen]; !ok {
			reasons = append(reasons, ReasonUnexpectedGeneration)
			break
		}
	}

	return reasons
}

// Append adds reasons to an existing pending message without replacing what
// is already there. Repeated reasons are kept.
func Append(message string, reasons []string) string {
	if len(reasons) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString(message)
	for _, r := range reasons {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r)
	}
	return b.String()
}
