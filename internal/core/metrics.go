package core

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments records call counts and durations of store operations.
type Instruments struct {
	calls     metric.Int64Counter
	durations metric.Float64Histogram
	stages    metric.Float64Histogram
}

// NewInstruments creates the instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	calls, err := meter.Int64Counter("perfstore.calls")
	if err != nil {
		return nil, ewrap.Wrap(err, "create counter")
	}

	durations, err := meter.Float64Histogram("perfstore.duration.ms")
	if err != nil {
		return nil, ewrap.Wrap(err, "create histogram")
	}

	stages, err := meter.Float64Histogram("perfstore.upload.stage.ms")
	if err != nil {
		return nil, ewrap.Wrap(err, "create stage histogram")
	}

	return &Instruments{calls: calls, durations: durations, stages: stages}, nil
}

// NopInstruments records nothing.
func NopInstruments() *Instruments {
	ins, _ := NewInstruments(noop.NewMeterProvider().Meter("perfstore"))

	return ins
}

// rec records one call of method.
func (i *Instruments) rec(ctx context.Context, method string, start time.Time, err error, attrs ...attribute.KeyValue) {
	base := []attribute.KeyValue{attribute.String("method", method), attribute.Bool("error", err != nil)}
	if len(attrs) > 0 {
		base = append(base, attrs...)
	}

	i.calls.Add(ctx, 1, metric.WithAttributes(base...))
	i.durations.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(base...))
}

// UploadTiming breaks the ingestion of one output log into stages.
// Zero means the stage did not run.
type UploadTiming struct {
	Decode  time.Duration
	Hash    time.Duration
	Storage time.Duration
	// Anchor covers the wait for the Merkle batch and the ledger write.
	Anchor time.Duration
	DB     time.Duration
	Total  time.Duration
}

func (i *Instruments) recordUpload(ctx context.Context, t UploadTiming) {
	stages := []struct {
		name string
		d    time.Duration
	}{
		{"decode", t.Decode},
		{"hash", t.Hash},
		{"storage", t.Storage},
		{"anchor", t.Anchor},
		{"db", t.DB},
		{"total", t.Total},
	}

	for _, s := range stages {
		if s.d == 0 {
			continue
		}

		i.stages.Record(ctx, float64(s.d.Microseconds())/1000, metric.WithAttributes(attribute.String("stage", s.name)))
	}
}
