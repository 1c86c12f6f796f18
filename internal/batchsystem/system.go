// Package batchsystem implements the worker pool described in spec.md
// §4.5: two scheduler types post ready FSMs onto a pair of priority
// channels, a fixed pool of Pollers drain them in batches, and
// BatchSystem owns the pool's lifecycle (spawn/shutdown).
package batchsystem

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mailbox"
	"github.com/webitel/fsmrun/internal/mpsc"
	"github.com/webitel/fsmrun/internal/router"
	"github.com/webitel/fsmrun/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// BatchSystem owns a pool of Pollers plus the schedulers and channels that
// feed them. It is built unstarted by CreateSystem; Spawn launches the
// workers, Shutdown tears them down.
type BatchSystem[N any, M any, C any, CM any] struct {
	router           *router.Router[N, M, C, CM]
	normalScheduler  *NormalScheduler[N, C]
	controlScheduler *ControlScheduler[N, C]
	normalRx         *mpsc.Receiver[*Envelope[N, C]]
	lowRx            *mpsc.Receiver[*Envelope[N, C]]
	cfg              Config

	logger             *slog.Logger
	telemetry          *telemetry.Provider
	rescheduleDuration *atomic.Int64 // nanoseconds, shared by every Poller
	group              *errgroup.Group
	pollers            []*Poller[N, M, C, CM]
}

// SetRescheduleDuration updates the reschedule duration every running
// Poller reads on its next decide() call, without needing to restart the
// pool — the one field DESIGN.md's Open Question 4 allows to be
// live-reloaded via internal/config's fsnotify watch.
func (bs *BatchSystem[N, M, C, CM]) SetRescheduleDuration(d time.Duration) {
	bs.rescheduleDuration.Store(int64(d))
}

// WithTelemetry attaches a telemetry.Provider that every Poller spawned
// afterwards wraps its poll rounds with (a "batch.poll" span plus batch-size
// and dispatch-outcome metrics). Safe to skip: pollers run identically
// without one.
func (bs *BatchSystem[N, M, C, CM]) WithTelemetry(provider *telemetry.Provider) *BatchSystem[N, M, C, CM] {
	bs.telemetry = provider
	return bs
}

// CreateSystem is the public entrypoint from spec.md §6: it constructs the
// two priority channels, wires both schedulers to them, builds the control
// mailbox around controlSender/controlFsm, and returns the Router alongside
// an unstarted BatchSystem.
func CreateSystem[N any, M any, C any, CM any](
	cfg Config,
	controlSender *mpsc.LooseBoundedSender[CM],
	controlFsm *C,
	stateCnt *atomic.Int64,
) (*router.Router[N, M, C, CM], *BatchSystem[N, M, C, CM]) {
	normalTx, normalRx := mpsc.Unbounded[*Envelope[N, C]]()
	lowTx, lowRx := mpsc.Unbounded[*Envelope[N, C]]()

	normalScheduler := &NormalScheduler[N, C]{normalTx: normalTx, lowTx: lowTx}
	controlScheduler := &ControlScheduler[N, C]{normalTx: normalTx, lowTx: lowTx}

	controlState := fsm.NewFsmState(controlFsm, stateCnt)
	controlBox := mailbox.New[C, CM](controlSender, controlState)

	r := router.New[N, M, C, CM](controlBox, normalScheduler, controlScheduler, stateCnt)

	rescheduleDuration := &atomic.Int64{}
	rescheduleDuration.Store(int64(cfg.RescheduleDuration))

	bs := &BatchSystem[N, M, C, CM]{
		router:             r,
		normalScheduler:    normalScheduler,
		controlScheduler:   controlScheduler,
		normalRx:           normalRx,
		lowRx:              lowRx,
		cfg:                cfg,
		rescheduleDuration: rescheduleDuration,
	}
	return r, bs
}

// Spawn launches PoolSize normal-priority workers and LowPriorityPoolSize
// low-priority workers, each with an independently built handler, joined
// through an errgroup so the first worker failure's error is captured
// without stopping the rest from being waited on (DESIGN.md: grounded on
// peer_enricher.go's errgroup.WithContext usage).
func (bs *BatchSystem[N, M, C, CM]) Spawn(namePrefix string, builder HandlerBuilder[N, C], props WorkerProps, logger *slog.Logger) {
	bs.logger = logger
	group, _ := errgroup.WithContext(context.Background())
	bs.group = group

	for i := 0; i < bs.cfg.PoolSize; i++ {
		p := bs.newPoller(namePrefix, i, fsm.PriorityNormal, bs.normalRx, builder, props)
		bs.pollers = append(bs.pollers, p)
		bs.group.Go(p.Run)
	}
	for i := 0; i < bs.cfg.LowPriorityPoolSize; i++ {
		p := bs.newPoller(namePrefix, i, fsm.PriorityLow, bs.lowRx, builder, props)
		bs.pollers = append(bs.pollers, p)
		bs.group.Go(p.Run)
	}
}

func (bs *BatchSystem[N, M, C, CM]) newPoller(
	namePrefix string,
	index int,
	priority fsm.Priority,
	rx *mpsc.Receiver[*Envelope[N, C]],
	builder HandlerBuilder[N, C],
	props WorkerProps,
) *Poller[N, M, C, CM] {
	handler := builder.Build(priority)
	var logger *slog.Logger
	if bs.logger != nil {
		logger = bs.logger.With("worker", fmt.Sprintf("%s-%s-%d", namePrefix, priorityLabel(priority), index))
	}
	return &Poller[N, M, C, CM]{
		index:              index,
		priority:           priority,
		props:              props,
		logger:             logger,
		router:             bs.router.Clone(),
		receiver:           rx,
		normalScheduler:    bs.normalScheduler,
		handler:            handler,
		maxBatchSize:       bs.cfg.MaxBatchSizeOrDefault(),
		rescheduleDuration: bs.rescheduleDuration,
		telemetry:          bs.telemetry,
	}
}

func priorityLabel(p fsm.Priority) string {
	if p == fsm.PriorityLow {
		return "low"
	}
	return "normal"
}

// Shutdown broadcasts shutdown through the router (closing every mailbox
// and flooding both scheduler channels with sentinels) and joins every
// worker. The first worker error, if any, is returned so it can be
// re-raised as fatal, per spec.md §7 item 5.
func (bs *BatchSystem[N, M, C, CM]) Shutdown() error {
	bs.router.BroadcastShutdown(bs.cfg.shutdownSentinels())
	if bs.group == nil {
		return nil
	}
	if err := bs.group.Wait(); err != nil {
		if bs.logger != nil {
			bs.logger.Error("batch system shutdown observed a worker error", "error", err)
		}
		return err
	}
	return nil
}

// Router returns the system's router (the same one CreateSystem returned).
func (bs *BatchSystem[N, M, C, CM]) Router() *router.Router[N, M, C, CM] { return bs.router }
