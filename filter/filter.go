// Package filter tracks which log categories the user wants to see and
// projects the full log down to the visible entries.
//
// Filter Logic:
//   - Every event maps to exactly one Type through its payload variant
//   - Default state: all seven types enabled (nothing hidden)
//   - Add/Remove are idempotent; the set never holds unknown types
//   - Projection keeps the log's insertion order
package filter

import (
	"sync"

	"radiolog/radio"
)

// Type is a log category. It is the same closed set as radio.Kind.
type Type = radio.Kind

// The seven filterable categories.
const (
	CellInfoLog              = radio.KindCellInfo
	SignalStrengthLog        = radio.KindSignalStrength
	ServiceStateLog          = radio.KindServiceState
	NetworkScanLog           = radio.KindNetworkScan
	RegistrationFailedLog    = radio.KindRegistrationFailed
	BroadcastLog             = radio.KindBroadcast
	PhysicalChannelConfigLog = radio.KindPhysicalChannelConfig
)

// AllTypes returns every category in canonical order.
func AllTypes() []Type {
	return radio.AllKinds()
}

// TypeOf derives the category of an event from its payload tag.
func TypeOf(ev radio.Event) Type {
	return ev.Kind()
}

// Registry is the mutable set of enabled categories. It is safe for concurrent
// use; readers get copies.
type Registry struct {
	mu      sync.RWMutex
	enabled map[Type]bool
}

// NewRegistry returns a registry with every type enabled.
func NewRegistry() *Registry {
	r := &Registry{enabled: make(map[Type]bool)}
	for _, t := range AllTypes() {
		r.enabled[t] = true
	}
	return r
}

// Add enables t. It reports whether the set changed; adding a present or
// unknown type is a no-op.
func (r *Registry) Add(t Type) bool {
	if !t.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled[t] {
		return false
	}
	r.enabled[t] = true
	return true
}

// Remove disables t. It reports whether the set changed.
func (r *Registry) Remove(t Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled[t] {
		return false
	}
	delete(r.enabled, t)
	return true
}

// Set replaces the enabled set. Unknown types are ignored.
func (r *Registry) Set(types []Type) {
	next := make(map[Type]bool, len(types))
	for _, t := range types {
		if t.Valid() {
			next[t] = true
		}
	}
	r.mu.Lock()
	r.enabled = next
	r.mu.Unlock()
}

// Contains reports whether t is enabled.
func (r *Registry) Contains(t Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[t]
}

// Enabled returns the enabled types in canonical order.
func (r *Registry) Enabled() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.enabled))
	for _, t := range AllTypes() {
		if r.enabled[t] {
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether the event's category is enabled.
func (r *Registry) Matches(ev radio.Event) bool {
	return r.Contains(TypeOf(ev))
}

// Project returns the entries of log whose category is enabled, preserving
// order. The input slice is never modified.
func (r *Registry) Project(log []radio.Event) []radio.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return project(log, r.enabled)
}

// ProjectSet filters log against an explicit set of types.
func ProjectSet(log []radio.Event, types []Type) []radio.Event {
	set := make(map[Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return project(log, set)
}

func project(log []radio.Event, enabled map[Type]bool) []radio.Event {
	out := make([]radio.Event, 0, len(log))
	for _, ev := range log {
		if enabled[ev.Kind()] {
			out = append(out, ev)
		}
	}
	return out
}
