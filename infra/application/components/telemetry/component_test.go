package telemetry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestFactory_Validation(t *testing.T) {
	_, err := NewFactory().Create(&Config{Enabled: true})
	require.Error(t, err, "service name required")

	_, err = NewFactory().Create(&Config{Enabled: true, ServiceName: "bifang", Exporter: ExporterOTLP})
	require.Error(t, err, "otlp endpoint required")
}

func TestStdoutExporter_StartStop(t *testing.T) {
	cfg := &Config{Enabled: true, ServiceName: "bifang-test", StdoutFile: filepath.Join(t.TempDir(), "otel.out")}
	comp, err := NewFactory().Create(cfg)
	require.NoError(t, err)
	tc := comp.(*TelemetryComponent)
	ctx := context.Background()
	require.NoError(t, tc.Start(ctx))
	require.NoError(t, tc.HealthCheck())

	_, span := otel.Tracer("test").Start(ctx, "unit")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tc.Stop(ctx))
}
