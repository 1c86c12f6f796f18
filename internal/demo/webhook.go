package demo

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// WebhookSink forwards demo events to an external HTTP endpoint behind a
// circuit breaker, demonstrating a PollHandler-reachable sink that must
// never let a stuck external call stall the worker thread driving it.
type WebhookSink struct {
	breaker *gobreaker.CircuitBreaker
	client  *http.Client
	url     string
}

// NewWebhookSink builds a sink posting to url. client defaults to
// http.DefaultClient when nil. The breaker trips after 3 consecutive
// failures and probes again after Timeout.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	st := gobreaker.Settings{
		Name:    "demo-webhook",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &WebhookSink{
		breaker: gobreaker.NewCircuitBreaker(st),
		client:  client,
		url:     url,
	}
}

// Notify posts payload through the breaker, synchronously. Callers that
// cannot afford to block their Poller should route this through
// WebhookCallback instead of calling Notify from HandleNormal/HandleControl
// directly.
func (w *WebhookSink) Notify(ctx context.Context, payload []byte) error {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("demo: webhook returned %s", resp.Status)
		}
		return nil, nil
	})
	return err
}

// WebhookCallback builds a CallbackMessage that fires Notify in its own
// goroutine, so a slow or tripped breaker never stalls the Poller driving
// this FSM — the whole point of wrapping Notify behind a Callback rather
// than calling it inline from a handler.
func WebhookCallback(sink *WebhookSink, payload []byte) Message {
	return CallbackMessage(func(_ *Handler, _ *CounterFsm) {
		go func() {
			_ = sink.Notify(context.Background(), payload)
		}()
	})
}
