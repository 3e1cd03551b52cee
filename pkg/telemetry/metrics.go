package telemetry

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const maxInputSample = 256

var (
	attrOperation  = attribute.Key("sync.operation")
	attrSessionID  = attribute.Key("sync.session_id")
	attrInput      = attribute.Key("sync.input")
	attrOperateErr = attribute.Key("sync.error")
)

type metrics struct {
	operations metric.Int64Counter
	latency    metric.Float64Histogram
	failures   metric.Int64Counter
}

// OperationData captures the metadata recorded for each coordinator entry
// point (send, reconcile, select, delete).
type OperationData struct {
	Name      string
	SessionID string
	Input     string
	Duration  time.Duration
	Error     error
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		return &metrics{}, nil
	}
	operations, err := meter.Int64Counter("chat.sync.operations.total",
		metric.WithDescription("Total number of sync coordinator operations."))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("chat.sync.latency.ms",
		metric.WithDescription("Coordinator operation latency in milliseconds."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("chat.sync.failures.total",
		metric.WithDescription("Coordinator operations that ended in an error."))
	if err != nil {
		return nil, err
	}
	return &metrics{
		operations: operations,
		latency:    latency,
		failures:   failures,
	}, nil
}

func (m *metrics) RecordOperation(ctx context.Context, data OperationData) {
	if m == nil || m.operations == nil {
		return
	}
	attrs := []attribute.KeyValue{attrOperation.String(data.Name)}
	if data.SessionID != "" {
		attrs = append(attrs, attrSessionID.String(data.SessionID))
	}
	if sample := sampleInput(data.Input); sample != "" {
		attrs = append(attrs, attrInput.String(sample))
	}
	set := metric.WithAttributeSet(attribute.NewSet(attrs...))
	m.operations.Add(ctx, 1, set)
	m.latency.Record(ctx, float64(data.Duration)/float64(time.Millisecond), set)
	if data.Error != nil {
		failAttrs := append(attrs, attrOperateErr.String(data.Error.Error()))
		m.failures.Add(ctx, 1, metric.WithAttributeSet(attribute.NewSet(failAttrs...)))
	}
}

// sampleInput keeps attribute cardinality and payload size in check while
// preserving valid UTF-8.
func sampleInput(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= maxInputSample {
		return trimmed
	}
	cut := trimmed[:maxInputSample]
	for !utf8.ValidString(cut) && len(cut) > 0 {
		cut = cut[:len(cut)-1]
	}
	return cut
}
