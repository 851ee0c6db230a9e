package adapter

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelAdapter emits one span per node execution, the same pattern the
// asynq worker uses for job handlers.
type OTelAdapter struct {
	tracer trace.Tracer
	spans  map[string]trace.Span
}

func NewOTelAdapter() *OTelAdapter {
	return &OTelAdapter{tracer: otel.Tracer("flowerpower.dag"), spans: map[string]trace.Span{}}
}

func (o *OTelAdapter) PreNodeExecute(ctx context.Context, node string, _ map[string]any) {
	_, span := o.tracer.Start(ctx, "dag.node."+node)
	o.spans[node] = span
}

func (o *OTelAdapter) PostNodeExecute(_ context.Context, node string, _ any, err error) {
	span, ok := o.spans[node]
	if !ok {
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
	delete(o.spans, node)
}

func (o *OTelAdapter) PostGraphExecute(ctx context.Context, results map[string]any, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("dag.result_count", len(results)))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
}
