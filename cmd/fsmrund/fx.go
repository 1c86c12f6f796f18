package fsmrund

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/fx"

	"github.com/webitel/fsmrun/internal/adminhttp"
	"github.com/webitel/fsmrun/internal/batchsystem"
	"github.com/webitel/fsmrun/internal/config"
	"github.com/webitel/fsmrun/internal/demo"
	"github.com/webitel/fsmrun/internal/egress"
	"github.com/webitel/fsmrun/internal/logging"
	"github.com/webitel/fsmrun/internal/naming"
	"github.com/webitel/fsmrun/internal/telemetry"
	"github.com/webitel/fsmrun/internal/wsgateway"
)

const serviceName = "fsmrund"

type demoSystem = batchsystem.BatchSystem[demo.CounterFsm, demo.Message, demo.CounterFsm, demo.Message]

func provideLogger(cfg *config.Config) *slog.Logger {
	base := logging.New(cfg.Logging, serviceName)
	return logging.WithOtelBridge(base, serviceName)
}

func provideBatchConfig(cfg *config.Config) batchsystem.Config {
	return batchsystem.Config{
		MaxBatchSize:        cfg.Batch.MaxBatchSize,
		PoolSize:            cfg.Batch.PoolSize,
		RescheduleDuration:  cfg.Batch.RescheduleDuration,
		LowPriorityPoolSize: cfg.Batch.LowPriorityPoolSize,
	}
}

func provideDemoSystem(batchCfg batchsystem.Config, logger *slog.Logger, telem *telemetry.Provider) (*demoSystem, *demo.HandlerBuilder) {
	var stateCnt atomic.Int64
	controlSender, controlFsm := demo.NewCounterFsm(64)

	_, bs := batchsystem.CreateSystem[demo.CounterFsm, demo.Message, demo.CounterFsm, demo.Message](batchCfg, controlSender, controlFsm, &stateCnt)
	bs.WithTelemetry(telem)

	builder := demo.NewHandlerBuilder()
	bs.Spawn("demo", builder, batchsystem.WorkerProps{Tag: "demo"}, logger)
	return bs, builder
}

// demoAddrLabels is the naming.Resolver backing provideAdminHTTP's labeler.
// It names address 1, the address the demo and dashboard commands register
// their counter FSM under; the server command's own demo system registers
// no FSM there.
func demoAddrLabels(addr uint64) (string, bool) {
	if addr == 1 {
		return "demo-counter", true
	}
	return "", false
}

func provideAdminHTTP(bs *demoSystem, builder *demo.HandlerBuilder) *adminhttp.Server {
	labeler := naming.New(demoAddrLabels, 0)
	return adminhttp.New(bs.Router(), func() map[string]any {
		m := builder.Metrics()
		return map[string]any{
			"begin":   m.Begin,
			"control": m.Control,
			"normal":  m.Normal,
			"demo":    labeler.Label(1),
		}
	})
}

func provideDispatcher(ps *gochannel.GoChannel) egress.Dispatcher {
	return egress.NewDispatcher(ps)
}

// NewApp wires config -> logger -> telemetry -> router/batch-system -> demo
// transports (adminhttp, wsgateway, egress), grounded on the teacher's
// cmd/fx.go NewApp shape.
func NewApp(loader *config.Loader) *fx.App {
	return fx.New(
		fx.Provide(
			loader.Load,
			provideLogger,
			provideBatchConfig,
			func() (*telemetry.Provider, error) { return telemetry.New() },
			provideDemoSystem,
			provideAdminHTTP,
			egress.NewInProcessPubSub,
			provideDispatcher,
		),
		wsgateway.Module,
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *slog.Logger,
	bs *demoSystem,
	admin *adminhttp.Server,
	hub wsgateway.Hubber,
	telem *telemetry.Provider,
	loader *config.Loader,
	dispatcher egress.Dispatcher,
) {
	httpSrv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: admin}
	stopHeartbeat := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			loader.Watch(bs.SetRescheduleDuration)
			go func() {
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("admin http server error", "error", err)
				}
			}()
			go publishTraceHeartbeat(bs, dispatcher, logger, stopHeartbeat)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stopHeartbeat)
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
			if err := hub.Shutdown(); err != nil {
				logger.Error("wsgateway shutdown error", "error", err)
			}
			if err := bs.Shutdown(); err != nil {
				logger.Error("demo batch system shutdown error", "error", err)
			}
			return telem.Shutdown(ctx)
		},
	})
}

// publishTraceHeartbeat republishes the demo router's liveness trace onto
// egress's in-process topic every 5s, giving egress.Dispatcher an actual
// producer rather than leaving it wired but unused.
func publishTraceHeartbeat(bs *demoSystem, dispatcher egress.Dispatcher, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			trace := bs.Router().Trace()
			out := egress.Outcome{Addr: uint64(trace.Alive), Kind: "trace.alive"}
			if err := dispatcher.Publish(context.Background(), out); err != nil {
				logger.Warn("egress: publish heartbeat failed", "error", err)
			}
		case <-stop:
			return
		}
	}
}
