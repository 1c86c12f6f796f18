package batchsystem_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/batchsystem"
	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mailbox"
	"github.com/webitel/fsmrun/internal/mpsc"
	"github.com/webitel/fsmrun/internal/telemetry"
)

// demoFsm is a minimal normal FSM: it owns the receiving half of its own
// mailbox channel and counts how many messages it has drained, mirroring
// how a real actor in this runtime holds its inbox directly rather than
// through the router.
type demoFsm struct {
	fsm.SelfMailbox
	recv      *mpsc.Receiver[string]
	processed atomic.Int64
	stopped   atomic.Bool
}

func (d *demoFsm) IsStopped() bool          { return d.stopped.Load() }
func (d *demoFsm) GetPriority() fsm.Priority { return fsm.PriorityNormal }

type demoControl struct {
	fsm.SelfMailbox
	recv *mpsc.Receiver[string]
	seen atomic.Int64
}

func (c *demoControl) IsStopped() bool          { return false }
func (c *demoControl) GetPriority() fsm.Priority { return fsm.PriorityNormal }

type echoHandler struct{ batchsystem.BasePollHandler }

func (echoHandler) Begin(int) {}

func (echoHandler) HandleControl(c *demoControl) (int, bool) {
	for {
		if _, err := c.recv.TryRecv(); err != nil {
			break
		}
		c.seen.Add(1)
	}
	return c.recv.Len(), true
}

func (echoHandler) HandleNormal(n *demoFsm) (int, bool) {
	for {
		if _, err := n.recv.TryRecv(); err != nil {
			break
		}
		n.processed.Add(1)
	}
	return n.recv.Len(), true
}

func (echoHandler) End([]*demoFsm) {}

type echoBuilder struct{}

func (echoBuilder) Build(fsm.Priority) batchsystem.PollHandler[demoFsm, demoControl] {
	return echoHandler{}
}

func newSystem(t *testing.T, cfg batchsystem.Config) (*batchsystem.BatchSystem[demoFsm, string, demoControl, string], *atomic.Int64, *demoControl) {
	t.Helper()
	var stateCnt atomic.Int64

	controlSender, controlRecv := mpsc.LooseBounded[string](16)
	control := &demoControl{recv: controlRecv}

	_, bs := batchsystem.CreateSystem[demoFsm, string, demoControl, string](cfg, controlSender, control, &stateCnt)
	bs.Spawn("demo", echoBuilder{}, batchsystem.WorkerProps{Tag: "test"}, nil)
	return bs, &stateCnt, control
}

func registerDemo(t *testing.T, bs *batchsystem.BatchSystem[demoFsm, string, demoControl, string], stateCnt *atomic.Int64, addr uint64) *demoFsm {
	t.Helper()
	sender, recv := mpsc.LooseBounded[string](16)
	n := &demoFsm{recv: recv}
	state := fsm.NewFsmState(n, stateCnt)
	mb := mailbox.New[demoFsm, string](sender, state)
	bs.Router().Register(addr, mb)
	return n
}

// TestEndToEndDeliverProcessReleaseShutdown exercises spec.md §8's
// end-to-end scenarios: register a normal FSM, deliver a message, observe
// the handler drain it, mark the FSM stopped and watch it get dropped out
// of rotation, then shut the whole system down cleanly.
func TestEndToEndDeliverProcessReleaseShutdown(t *testing.T) {
	cfg := batchsystem.DefaultConfig()
	cfg.PoolSize = 1
	cfg.LowPriorityPoolSize = 0

	bs, stateCnt, _ := newSystem(t, cfg)
	n := registerDemo(t, bs, stateCnt, 1)

	require.NoError(t, bs.Router().Send(1, "hello"))
	require.Eventually(t, func() bool { return n.processed.Load() == 1 }, time.Second, 5*time.Millisecond)

	n.stopped.Store(true)
	require.NoError(t, bs.Router().Send(1, "bye"))
	require.Eventually(t, func() bool { return n.processed.Load() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bs.Shutdown())
	require.True(t, bs.Router().IsShutdown())
	require.EqualValues(t, 0, bs.Router().Trace().Alive)
}

// TestMissingMailboxIsDisconnected pins spec.md §8 scenario 1: sending to an
// address nobody registered reports Disconnected rather than blocking or
// panicking.
func TestMissingMailboxIsDisconnected(t *testing.T) {
	cfg := batchsystem.DefaultConfig()
	cfg.PoolSize = 1
	cfg.LowPriorityPoolSize = 0
	bs, _, _ := newSystem(t, cfg)

	err := bs.Router().Send(99, "nobody-home")
	require.ErrorIs(t, err, mpsc.ErrDisconnected)

	require.NoError(t, bs.Shutdown())
}

// TestControlMessageIsHandled confirms the control FSM is driven by the
// same worker pool as normal FSMs and sees messages sent via SendControl.
func TestControlMessageIsHandled(t *testing.T) {
	cfg := batchsystem.DefaultConfig()
	cfg.PoolSize = 1
	cfg.LowPriorityPoolSize = 0
	bs, _, control := newSystem(t, cfg)

	require.NoError(t, bs.Router().SendControl("register-me"))
	require.Eventually(t, func() bool { return control.seen.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bs.Shutdown())
}

// TestShutdownDrainsMultipleFsmsAndJoinsWorkers exercises a pool of more
// than one worker plus several registered FSMs, confirming Shutdown joins
// every poller without error and the router reports no FSMs left alive.
func TestShutdownDrainsMultipleFsmsAndJoinsWorkers(t *testing.T) {
	cfg := batchsystem.DefaultConfig()
	cfg.PoolSize = 2
	cfg.LowPriorityPoolSize = 1

	bs, stateCnt, _ := newSystem(t, cfg)
	fsms := make([]*demoFsm, 0, 5)
	for addr := uint64(1); addr <= 5; addr++ {
		fsms = append(fsms, registerDemo(t, bs, stateCnt, addr))
		require.NoError(t, bs.Router().Send(addr, "ping"))
	}

	for _, n := range fsms {
		n := n
		require.Eventually(t, func() bool { return n.processed.Load() == 1 }, time.Second, 5*time.Millisecond)
	}

	require.NoError(t, bs.Shutdown())
	require.EqualValues(t, 0, bs.Router().Trace().Alive)
}

// TestWithTelemetryWrapsPollRoundsWithoutPanicking confirms a Poller pool
// spawned after WithTelemetry drives messages through exactly as without
// one — the telemetry span/metric calls are pure observation.
func TestWithTelemetryWrapsPollRoundsWithoutPanicking(t *testing.T) {
	provider, err := telemetry.New()
	require.NoError(t, err)

	var stateCnt atomic.Int64
	controlSender, controlRecv := mpsc.LooseBounded[string](16)
	control := &demoControl{recv: controlRecv}

	cfg := batchsystem.DefaultConfig()
	cfg.PoolSize = 1
	cfg.LowPriorityPoolSize = 0

	_, bs := batchsystem.CreateSystem[demoFsm, string, demoControl, string](cfg, controlSender, control, &stateCnt)
	bs.WithTelemetry(provider)
	bs.Spawn("demo", echoBuilder{}, batchsystem.WorkerProps{Tag: "test"}, nil)

	n := registerDemo(t, bs, &stateCnt, 1)
	require.NoError(t, bs.Router().Send(1, "hello"))
	require.Eventually(t, func() bool { return n.processed.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bs.Shutdown())
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestMaxBatchSizeOrDefault(t *testing.T) {
	cfg := batchsystem.Config{}
	require.Equal(t, 256, cfg.MaxBatchSizeOrDefault())

	cfg.MaxBatchSize = 10
	require.Equal(t, 10, cfg.MaxBatchSizeOrDefault())
}

func TestDefaultConfig(t *testing.T) {
	cfg := batchsystem.DefaultConfig()
	require.Equal(t, 2, cfg.PoolSize)
	require.Equal(t, 1, cfg.LowPriorityPoolSize)
	require.Equal(t, 5*time.Second, cfg.RescheduleDuration)
}
