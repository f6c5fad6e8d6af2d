package infrastructure

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"tschart/internal/config"
)

func restoreGlobalProviders(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	})
}

func TestInitializeOTel_Disabled(t *testing.T) {
	restoreGlobalProviders(t)

	providers, err := InitializeOTel(config.DefaultConfig().Telemetry, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.Registry)
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTel_ExportsSpansAndMetricsFile(t *testing.T) {
	restoreGlobalProviders(t)
	metricsFile := filepath.Join(t.TempDir(), "tschart.prom")

	var spans bytes.Buffer
	providers, err := InitializeOTel(config.TelemetryConfig{
		ServiceName:    "tschart-test",
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		MetricsFile:    metricsFile,
		SampleRatio:    1,
	}, &spans, nil)
	require.NoError(t, err)
	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.MeterProvider)

	ctx := context.Background()
	metrics, err := CreatePipelineMetrics(providers.MeterProvider.Meter(MeterName))
	require.NoError(t, err)
	metrics.RunsTotal.Add(ctx, 1)
	metrics.ChartsWritten.Add(ctx, 2)

	spanCtx, span := otel.Tracer("test").Start(ctx, "pipeline.test")
	AddSpanEvent(spanCtx, "checkpoint", map[string]interface{}{"rows": 3, "ok": true, "other": []int{1}})
	span.End()

	require.NoError(t, providers.Shutdown(ctx))

	assert.Contains(t, spans.String(), "pipeline.test")
	assert.Contains(t, spans.String(), "checkpoint")

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pipeline_runs_total")
	assert.Contains(t, string(data), "pipeline_charts_written_total")
}

func TestInitializeOTel_UnknownExporter(t *testing.T) {
	restoreGlobalProviders(t)

	_, err := InitializeOTel(config.TelemetryConfig{ServiceName: "x", TraceExporter: "zipkin"}, nil, nil)
	assert.Error(t, err)
	_, err = InitializeOTel(config.TelemetryConfig{ServiceName: "x", MetricExporter: "statsd"}, nil, nil)
	assert.Error(t, err)
}
