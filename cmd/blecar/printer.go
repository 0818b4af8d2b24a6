package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/chaz8081/blecar/internal/eventlog"
)

// eventPrinter writes event log records to the terminal as they happen,
// colored by category.
type eventPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	colors map[eventlog.Category]*color.Color
}

func newEventPrinter(w io.Writer, enabled bool) *eventPrinter {
	colors := map[eventlog.Category]*color.Color{
		eventlog.Info:    color.New(color.FgHiCyan),
		eventlog.Success: color.New(color.FgHiGreen),
		eventlog.Error:   color.New(color.FgHiRed),
		eventlog.Command: color.New(color.FgHiMagenta),
	}
	for _, c := range colors {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &eventPrinter{w: w, colors: colors}
}

// Print is used as the controller's event observer.
func (p *eventPrinter) Print(r eventlog.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := r.Format()
	if c, ok := p.colors[r.Category]; ok {
		line = c.Sprint(line)
	}
	fmt.Fprintln(p.w, line)
}
