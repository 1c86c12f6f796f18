// Package egress republishes batch-system poll outcomes onto an in-process
// watermill topic, so anything downstream (the dashboard, a future audit
// log) can subscribe without being wired directly into the Poller's hot
// path. It never talks to a durable broker — see DESIGN.md on why
// watermill-amqp was dropped in favor of the in-process gochannel
// implementation.
package egress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// OutcomeTopic is the single topic every Dispatcher publishes Outcome
// records onto.
const OutcomeTopic = "batchsystem.outcomes"

// Outcome is one record published on OutcomeTopic. Poller.pollRound does
// not publish any; the producer in this module is cmd/fsmrund's trace
// heartbeat, which sets Kind to "trace.alive" and Addr to the router's
// alive count.
type Outcome struct {
	Addr uint64 `json:"addr"`
	Kind string `json:"kind"`
}

// Dispatcher defines the high-level contract for outgoing outcomes, keeping
// callers agnostic of the underlying watermill publisher.
type Dispatcher interface {
	Publish(ctx context.Context, out Outcome) error
	Publisher() message.Publisher
}

type dispatcher struct {
	publisher message.Publisher
}

// NewDispatcher wraps an already-constructed watermill publisher (typically
// the write side of NewInProcessPubSub).
func NewDispatcher(pub message.Publisher) Dispatcher {
	return &dispatcher{publisher: pub}
}

func (d *dispatcher) Publish(ctx context.Context, out Outcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("egress: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(OutcomeTopic, msg); err != nil {
		return fmt.Errorf("egress: failed to publish to topic %s: %w", OutcomeTopic, err)
	}
	return nil
}

func (d *dispatcher) Publisher() message.Publisher { return d.publisher }
