package adapter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

const instrumentation = "github.com/srediag/plugin-ebr"

// OTelObserver reports collector events through OpenTelemetry. Each Collect
// becomes an "ebr.Collect" span starting at the time the call began.
type OTelObserver struct {
	gauges

	tracer      trace.Tracer
	attrs       attribute.Set
	collections metric.Int64Counter
	ran         metric.Int64Counter
	duration    metric.Float64Histogram
}

var (
	_ ebr.Observer = (*OTelObserver)(nil)
	_ ebr.Binder   = (*OTelObserver)(nil)
)

// NewOTelObserver creates the instruments for the named collector. A nil
// meter or tracer falls back to the no-op implementation.
func NewOTelObserver(collector string, meter metric.Meter, tracer trace.Tracer) (*OTelObserver, error) {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentation)
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentation)
	}
	o := &OTelObserver{
		tracer: tracer,
		attrs:  attribute.NewSet(attribute.String("collector", collector)),
	}

	var err error
	if o.collections, err = meter.Int64Counter("ebr.collections",
		metric.WithDescription("Collection attempts."),
	); err != nil {
		return nil, err
	}
	if o.ran, err = meter.Int64Counter("ebr.tasks.run",
		metric.WithDescription("Deferred tasks executed by collections."),
	); err != nil {
		return nil, err
	}
	if o.duration, err = meter.Float64Histogram("ebr.collect.duration",
		metric.WithDescription("Wall time of one Collect call."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if _, err = meter.Int64ObservableGauge("ebr.participants",
		metric.WithDescription("Registered participants."),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(o.participantsNow(), metric.WithAttributeSet(o.attrs))
			return nil
		}),
	); err != nil {
		return nil, err
	}
	if _, err = meter.Int64ObservableGauge("ebr.pending",
		metric.WithDescription("Deferred tasks waiting for their grace period."),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(o.pendingNow(), metric.WithAttributeSet(o.attrs))
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OTelObserver) ParticipantsChanged(live int) {
	o.participants.Store(int64(live))
}

func (o *OTelObserver) TaskDeferred(_ ebr.Epoch, pending int) {
	o.pending.Store(int64(pending))
}

func (o *OTelObserver) CollectDone(start time.Time, res ebr.Collection, err error) {
	ctx := context.Background()
	o.pending.Store(int64(res.Pending))
	o.generation.Store(res.Generation)

	_, span := o.tracer.Start(ctx, "ebr.Collect",
		trace.WithTimestamp(start),
		trace.WithAttributes(o.attrs.ToSlice()...),
		trace.WithAttributes(
			attribute.Bool("ebr.advanced", res.Advanced),
			attribute.Int("ebr.epoch", int(res.Epoch)),
			attribute.Int64("ebr.generation", int64(res.Generation)),
			attribute.Int("ebr.ran", res.Ran),
			attribute.Int("ebr.lagging", res.Lagging),
		),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	withResult := metric.WithAttributes(append(o.attrs.ToSlice(), attribute.String("result", result(res)))...)
	o.collections.Add(ctx, 1, withResult)
	o.ran.Add(ctx, int64(res.Ran), metric.WithAttributeSet(o.attrs))
	o.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributeSet(o.attrs))
}
