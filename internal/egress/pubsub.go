package egress

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewInProcessPubSub builds the in-process publisher/subscriber pair every
// Dispatcher and consumer in this process shares, matching the teacher's
// watermill.NewSlogLogger pairing but backed by gochannel instead of AMQP —
// the runtime this FSM scheduler drives never leaves one process.
func NewInProcessPubSub(logger *slog.Logger) *gochannel.GoChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
}
