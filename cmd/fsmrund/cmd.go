package fsmrund

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/webitel/fsmrun/internal/batchsystem"
	"github.com/webitel/fsmrun/internal/config"
	"github.com/webitel/fsmrun/internal/dashboard"
	"github.com/webitel/fsmrun/internal/demo"
	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mailbox"
)

const (
	ServiceName      = "fsmrund"
	ServiceNamespace = "webitel"
)

var (
	version    = "0.0.0"
	commit     = "hash"
	commitDate = time.Now().String()
)

// Run builds the fsmrund CLI: a server command running the full
// batch-system/wsgateway/adminhttp stack, plus demo/dashboard commands
// exercising the toy counter FSM standalone, grounded on the teacher's
// cmd/cmd.go shape.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Batch-scheduled finite-state-machine runtime",
		Commands: []*cli.Command{
			serverCmd(),
			demoCmd(),
			dashboardCmd(),
		},
	}

	return app.Run(os.Args)
}

func configFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "config_file",
		Usage: "Path to the configuration file",
	}
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the batch-system runtime with wsgateway and adminhttp",
		Flags:   []cli.Flag{configFileFlag()},
		Action: func(c *cli.Context) error {
			loader, err := config.NewLoader(c.String("config_file"), nil)
			if err != nil {
				return err
			}
			app := NewApp(loader)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("fsmrund: shutting down")
			return app.Stop(context.Background())
		},
	}
}

func demoCmd() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Run the standalone counter FSM demo and print its metrics",
		Action: func(c *cli.Context) error {
			bs, builder := newStandaloneDemo()
			defer bs.Shutdown()

			register(bs, 1)
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			n := 0
			for {
				select {
				case <-ticker.C:
					n++
					if err := bs.Router().Send(1, demo.LoopMessage(n*1000)); err != nil {
						slog.Warn("demo: send failed", "error", err)
						continue
					}
					m := builder.Metrics()
					fmt.Printf("round=%d begin=%d control=%d normal=%d\n", n, m.Begin, m.Control, m.Normal)
				case <-stop:
					return nil
				}
			}
		},
	}
}

func dashboardCmd() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Run a terminal dashboard over the standalone demo's router trace",
		Action: func(c *cli.Context) error {
			bs, _ := newStandaloneDemo()
			defer bs.Shutdown()
			register(bs, 1)

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d := dashboard.New(bs.Router(), func() map[string]int {
				return map[string]int{"addr-1": int(bs.Router().Trace().Alive)}
			}, 500*time.Millisecond)
			return d.Run(ctx)
		},
	}
}

func register(bs *batchsystem.BatchSystem[demo.CounterFsm, demo.Message, demo.CounterFsm, demo.Message], addr uint64) *demo.CounterFsm {
	var cnt atomic.Int64
	sender, runner := demo.NewCounterFsm(16)
	state := fsm.NewFsmState(runner, &cnt)
	mb := mailbox.New[demo.CounterFsm, demo.Message](sender, state)
	bs.Router().Register(addr, mb)
	return runner
}

func newStandaloneDemo() (*batchsystem.BatchSystem[demo.CounterFsm, demo.Message, demo.CounterFsm, demo.Message], *demo.HandlerBuilder) {
	var stateCnt atomic.Int64
	controlSender, controlFsm := demo.NewCounterFsm(64)
	cfg := batchsystem.DefaultConfig()

	_, bs := batchsystem.CreateSystem[demo.CounterFsm, demo.Message, demo.CounterFsm, demo.Message](cfg, controlSender, controlFsm, &stateCnt)
	builder := demo.NewHandlerBuilder()
	bs.Spawn("demo", builder, batchsystem.WorkerProps{Tag: "demo"}, nil)
	return bs, builder
}
