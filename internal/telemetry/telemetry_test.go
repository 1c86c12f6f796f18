package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/telemetry"
)

func TestNewProviderStartsSpanAndRecordsBatch(t *testing.T) {
	p, err := telemetry.New()
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, span := p.StartPollSpan(context.Background(), "normal-0", "normal")
	require.NotNil(t, span)
	p.RecordBatch(ctx, 12, "released")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdownCanBeCalledOnAFreshProvider(t *testing.T) {
	p, err := telemetry.New()
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
}
