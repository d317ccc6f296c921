// Package ui presents the aggregated radio log. The tview dashboard and the
// ANSI console both drive the same Controller.
package ui

import (
	"context"
	"io"

	"radiolog/filter"
	"radiolog/radio"
)

// Controller is the aggregator surface a front end reads and mutates.
type Controller interface {
	ObserveLog(ctx context.Context) <-chan []radio.Event
	ObserveFilters(ctx context.Context) <-chan []filter.Type
	ObserveAnomaly(ctx context.Context) <-chan string
	ObserveNotificationEnabled(ctx context.Context) <-chan bool

	AddFilter(t filter.Type)
	RemoveFilter(t filter.Type)
	Clear()
	SetAnomalyNotificationEnabled(enabled bool)
	DismissAnomaly()
}

// Surface is a running front end. Implementations must be safe for
// concurrent calls from the status loop and the logger.
type Surface interface {
	WaitReady()
	Stop()
	SetStatus(lines []string)
	SystemWriter() io.Writer
}

// Options are shared by every front end.
type Options struct {
	// MaxLines bounds how many log entries are drawn.
	MaxLines int
	// RefreshMS is the redraw cadence.
	RefreshMS int
	// OnExport is invoked by the export key; nil disables it.
	OnExport func()
	// OnQuit is invoked when the user asks to leave.
	OnQuit func()
}

func (o Options) withDefaults() Options {
	if o.MaxLines <= 0 {
		o.MaxLines = 2000
	}
	if o.RefreshMS <= 0 {
		o.RefreshMS = 250
	}
	return o
}
