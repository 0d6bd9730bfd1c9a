package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "formlink"

// Metrics holds the generation run instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	RunsStarted  metric.Int64Counter
	RunsFinished metric.Int64Counter
	TasksDone    metric.Int64Counter
	RepairCalls  metric.Int64Counter
	RunDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("formlink.runs.started",
		metric.WithDescription("Number of generation runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsFinished, err = meter.Int64Counter("formlink.runs.finished",
		metric.WithDescription("Number of generation runs finished, by status"))
	if err != nil {
		return nil, err
	}

	m.TasksDone, err = meter.Int64Counter("formlink.tasks.finished",
		metric.WithDescription("Number of question tasks finished, by status"))
	if err != nil {
		return nil, err
	}

	m.RepairCalls, err = meter.Int64Counter("formlink.finalize.repair_calls",
		metric.WithDescription("Number of AI repair calls made at finalization"))
	if err != nil {
		return nil, err
	}

	m.RunDuration, err = meter.Float64Histogram("formlink.run.duration_seconds",
		metric.WithDescription("Generation run duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RunStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsStarted.Add(ctx, 1)
}

func (m *Metrics) RunFinished(ctx context.Context, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.RunsFinished.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) TaskFinished(ctx context.Context, status, questionType string) {
	if m == nil {
		return
	}
	m.TasksDone.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("question.type", questionType),
	))
}

func (m *Metrics) RepairCalled(ctx context.Context) {
	if m == nil {
		return
	}
	m.RepairCalls.Add(ctx, 1)
}
