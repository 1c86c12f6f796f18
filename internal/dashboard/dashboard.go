// Package dashboard renders a live terminal view of the running FSM
// runtime: Router.Trace()'s alive/leak counters plus whatever queue-depth
// samples the caller supplies. No pack example wires gizak/termui/v3
// directly (see DESIGN.md); this follows the library's own documented
// widgets API rather than a retrieved reference.
package dashboard

import (
	"context"
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/webitel/fsmrun/internal/router"
)

// Tracer is the subset of router.Router the dashboard polls.
type Tracer interface {
	Trace() router.Trace
}

// QueueDepths reports the current depth of each priority channel, keyed by
// label ("normal", "low").
type QueueDepths func() map[string]int

// Dashboard owns the terminal UI state.
type Dashboard struct {
	tracer Tracer
	depths QueueDepths
	period time.Duration
}

// New builds a Dashboard that samples tracer and depths every period.
func New(tracer Tracer, depths QueueDepths, period time.Duration) *Dashboard {
	if period <= 0 {
		period = time.Second
	}
	return &Dashboard{tracer: tracer, depths: depths, period: period}
}

// Run initializes the terminal, redraws on every tick, and exits cleanly
// when ctx is cancelled or the user presses 'q' / Ctrl-C.
func (d *Dashboard) Run(ctx context.Context) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("dashboard: termui init failed: %w", err)
	}
	defer ui.Close()

	trace := widgets.NewParagraph()
	trace.Title = "router trace"
	trace.SetRect(0, 0, 50, 5)

	queues := widgets.NewList()
	queues.Title = "queue depth"
	queues.SetRect(0, 5, 50, 12)

	render := func() {
		t := d.tracer.Trace()
		trace.Text = fmt.Sprintf("alive: %d\nleak:  %d", t.Alive, t.Leak)

		rows := make([]string, 0, 4)
		if d.depths != nil {
			for label, depth := range d.depths() {
				rows = append(rows, fmt.Sprintf("%-8s %d", label, depth))
			}
		}
		queues.Rows = rows

		ui.Render(trace, queues)
	}

	render()

	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			render()
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		}
	}
}
