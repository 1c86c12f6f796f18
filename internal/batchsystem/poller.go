package batchsystem

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mpsc"
	"github.com/webitel/fsmrun/internal/router"
	"github.com/webitel/fsmrun/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// WorkerProps carries the caller-supplied tag used to attribute a worker's
// log records to the component that spawned it. The Rust original
// propagates this through a thread-local set at spawn time and read by the
// child thread; Go has no thread-local storage, so the tag is threaded
// through explicitly into each Poller instead (SPEC_FULL.md §4).
type WorkerProps struct {
	Tag string
}

// decisionKind records what a poll round decided to do with a normal FSM,
// applied in reverse-index order once End has been called so an earlier
// swap-remove never invalidates a later index.
type decisionKind int

const (
	decisionNone decisionKind = iota
	decisionRelease
	decisionRemove
	decisionSchedule
)

type decision struct {
	kind decisionKind
	hint int
}

// Poller is one worker thread's loop: pull ready FSMs off its priority
// channel, accumulate a batch, drive the handler across it, then apply
// release/remove/reschedule decisions.
type Poller[N any, M any, C any, CM any] struct {
	index    int
	priority fsm.Priority
	props    WorkerProps
	logger   *slog.Logger

	router          *router.Router[N, M, C, CM]
	receiver        *mpsc.Receiver[*Envelope[N, C]]
	normalScheduler fsm.Scheduler[N]
	handler         PollHandler[N, C]
	maxBatchSize    int

	// rescheduleDuration is shared by every Poller in the pool so
	// BatchSystem.SetRescheduleDuration's effect is visible without a
	// restart (DESIGN.md Open Question 4).
	rescheduleDuration *atomic.Int64

	// telemetry is nil unless BatchSystem.WithTelemetry attached a
	// telemetry.Provider before Spawn; every call site below guards on that.
	telemetry *telemetry.Provider
}

// Run drives the poller until its channel is closed or floods with enough
// shutdown sentinels to observe an empty, disconnected channel. It is
// meant to be passed to an errgroup.Group.Go call by BatchSystem.Spawn.
func (p *Poller[N, M, C, CM]) Run() error {
	if p.logger != nil {
		p.logger.Debug("poller started", "tag", p.props.Tag, "index", p.index, "priority", p.priority)
	}
	batch := NewBatch[N, M, C, CM]()
	for {
		if !p.fetchFsm(batch) {
			break
		}
		p.pollRound(batch)
	}
	if p.logger != nil {
		p.logger.Debug("poller stopped", "tag", p.props.Tag, "index", p.index)
	}
	return nil
}

// fetchFsm implements spec.md §4.5's batch-assembly algorithm.
func (p *Poller[N, M, C, CM]) fetchFsm(batch *Batch[N, M, C, CM]) bool {
	if batch.HasControl() {
		return true
	}

	if env, err := p.receiver.TryRecv(); err == nil {
		return batch.Push(env)
	}

	if batch.IsEmpty() {
		p.handler.Pause()
		env, err := p.receiver.Recv()
		if err != nil {
			return false
		}
		return batch.Push(env)
	}

	return true
}

// pollRound runs one complete poll round over the current batch.
func (p *Poller[N, M, C, CM]) pollRound(batch *Batch[N, M, C, CM]) {
	ctx := context.Background()
	if p.telemetry != nil {
		var span trace.Span
		ctx, span = p.telemetry.StartPollSpan(ctx, p.props.Tag, priorityLabel(p.priority))
		defer span.End()
	}

	capacity := p.maxBatchSize
	if n := batch.Len(); n > capacity {
		capacity = n
	}
	p.handler.Begin(capacity)
	roundSize := batch.Len()

	if fsmPtr, ok := batch.Control(); ok {
		hint, hasHint := p.handler.HandleControl(fsmPtr)
		controlBox := p.router.ControlMailbox()
		switch {
		case fsm.IsStoppedOf(fsmPtr):
			batch.RemoveControl(controlBox)
		case hasHint:
			batch.ReleaseControl(controlBox, hint)
		}
	}

	decisions := make([]decision, batch.Len())
	hotCount := 0
	for i, fsmPtr := range batch.Normals() {
		hint, hasHint := p.handler.HandleNormal(fsmPtr)
		decisions[i] = p.decide(fsmPtr, i, hint, hasHint, batch, &hotCount)
	}

	for batch.Len() < p.maxBatchSize {
		env, err := p.receiver.TryRecv()
		if err != nil {
			break
		}
		if !batch.Push(env) {
			break
		}
		i := batch.Len() - 1
		fsmPtr := batch.Normals()[i]
		hint, hasHint := p.handler.HandleNormal(fsmPtr)
		decisions = append(decisions, p.decide(fsmPtr, i, hint, hasHint, batch, &hotCount))
	}

	p.handler.End(batch.Normals())

	released, removed, rescheduled := 0, 0, 0
	for i := len(decisions) - 1; i >= 0; i-- {
		switch decisions[i].kind {
		case decisionRelease:
			batch.Release(i, decisions[i].hint)
			released++
		case decisionRemove:
			batch.Remove(i, decisions[i].hint)
			removed++
		case decisionSchedule:
			batch.Reschedule(i, p.normalScheduler)
			rescheduled++
		}
	}

	if p.telemetry != nil {
		p.telemetry.RecordBatch(ctx, roundSize, "round")
		if released > 0 {
			p.telemetry.RecordBatch(ctx, released, "released")
		}
		if removed > 0 {
			p.telemetry.RecordBatch(ctx, removed, "removed")
		}
		if rescheduled > 0 {
			p.telemetry.RecordBatch(ctx, rescheduled, "rescheduled")
		}
	}
}

// decide implements the per-FSM reschedule-decision rules from spec.md
// §4.5: stopped FSMs are removed; FSMs whose priority no longer matches
// this worker are rescheduled onto the matching tier; FSMs whose timer has
// crossed rescheduleDuration are "hot" and every second hot FSM is
// rescheduled (the fairness rule — cycling a long-running actor back
// through the queue so it cannot monopolise its worker); everything else
// with a length hint is released.
func (p *Poller[N, M, C, CM]) decide(fsmPtr *N, i int, hint int, hasHint bool, batch *Batch[N, M, C, CM], hotCount *int) decision {
	switch {
	case fsm.IsStoppedOf(fsmPtr):
		return decision{kind: decisionRemove, hint: hint}
	case fsm.PriorityOf(fsmPtr) != p.priority:
		return decision{kind: decisionSchedule}
	case batch.timerElapsed(i) >= time.Duration(p.rescheduleDuration.Load()):
		*hotCount++
		if *hotCount%2 == 0 {
			return decision{kind: decisionSchedule}
		}
		if hasHint {
			return decision{kind: decisionRelease, hint: hint}
		}
		return decision{kind: decisionNone}
	case hasHint:
		return decision{kind: decisionRelease, hint: hint}
	default:
		return decision{kind: decisionNone}
	}
}
