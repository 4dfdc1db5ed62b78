package writer

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kiroku/internal/telemetry"
)

// registerMetrics registers observable gauges for writer health.
// Called from Start() after the global meter provider is initialized.
func (w *Writer) registerMetrics() {
	meter := telemetry.Meter("kiroku/writer")

	_, _ = meter.Int64ObservableGauge("kiroku.writer.queue_depth",
		metric.WithDescription("Current number of records across all buffered queues"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(w.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("kiroku.writer.dropped_total",
		metric.WithDescription("Total records dropped after requeue overflow"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(w.Dropped())
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("kiroku.writer.flushed_total",
		metric.WithDescription("Total records durably written to the record log"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(w.Flushed())
			return nil
		}),
	)
}
