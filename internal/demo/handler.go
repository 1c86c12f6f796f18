package demo

import (
	"sync"

	"github.com/webitel/fsmrun/internal/batchsystem"
	"github.com/webitel/fsmrun/internal/fsm"
)

// HandleMetrics counts how many times a Handler's Begin/HandleControl/
// HandleNormal were called, matching the original's HandleMetrics struct.
type HandleMetrics struct {
	Begin   int64
	Control int64
	Normal  int64
}

func (m *HandleMetrics) add(o HandleMetrics) {
	m.Begin += o.Begin
	m.Control += o.Control
	m.Normal += o.Normal
}

// SharedMetrics is the Arc<Mutex<HandleMetrics>> every Handler built from
// the same HandlerBuilder flushes its per-round local counters into at End.
type SharedMetrics struct {
	mu  sync.Mutex
	val HandleMetrics
}

// Snapshot returns the accumulated metrics across every worker sharing this
// builder.
func (s *SharedMetrics) Snapshot() HandleMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}

func (s *SharedMetrics) flush(local HandleMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.val.add(local)
}

// Handler drains up to 16 messages per call, matching the original's fixed
// drain budget, running Loop's CPU-bound busywork inline and Callback's
// closure immediately.
type Handler struct {
	local    HandleMetrics
	metrics  *SharedMetrics
	priority fsm.Priority
}

func (h *Handler) Begin(int) { h.local.Begin++ }

func (h *Handler) HandleControl(c *CounterFsm) (int, bool) {
	h.local.Control++
	return h.handle(c)
}

func (h *Handler) HandleNormal(n *CounterFsm) (int, bool) {
	h.local.Normal++
	return h.handle(n)
}

func (h *Handler) handle(r *CounterFsm) (int, bool) {
	for i := 0; i < 16; i++ {
		msg, err := r.recv.TryRecv()
		if err != nil {
			break
		}
		if msg.Callback != nil {
			msg.Callback(h, r)
			continue
		}
		count := msg.Loop
		res := r.result
		for k := 0; k < count; k++ {
			res *= int64(count)
			res %= int64(count + 1)
		}
		r.result = res
	}
	return 0, true
}

func (h *Handler) End([]*CounterFsm) {
	h.metrics.flush(h.local)
	h.local = HandleMetrics{}
}

func (h *Handler) Pause()                    {}
func (h *Handler) GetPriority() fsm.Priority { return h.priority }

// HandlerBuilder produces one Handler per worker, every one sharing the
// same SharedMetrics accumulator.
type HandlerBuilder struct {
	metrics *SharedMetrics
}

func NewHandlerBuilder() *HandlerBuilder {
	return &HandlerBuilder{metrics: &SharedMetrics{}}
}

func (b *HandlerBuilder) Build(priority fsm.Priority) batchsystem.PollHandler[CounterFsm, CounterFsm] {
	return &Handler{priority: priority, metrics: b.metrics}
}

// Metrics reports the accumulated begin/control/normal call counts across
// every worker built from this builder.
func (b *HandlerBuilder) Metrics() HandleMetrics { return b.metrics.Snapshot() }
