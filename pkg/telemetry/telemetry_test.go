package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/vnykmshr/cardflow/pkg/logging"
)

func TestSetupDisabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(Config{}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetupExportsSpans(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	var buf bytes.Buffer
	shutdown, err := Setup(Config{Enabled: true, ServiceName: "cardflow-test", Writer: &buf}, logging.Discard())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "transport.send")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "transport.send")
	assert.Contains(t, buf.String(), "cardflow-test")
}
