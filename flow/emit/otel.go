package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into an OpenTelemetry span. Transitions are
// points in time, so spans are started and ended immediately; the batch span
// processor on the tracer provider handles efficient export.
//
// Usage:
//
//	tracer := otel.Tracer("dagrun")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter wraps an OpenTelemetry tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as an immediately-ended span. A span whose event
// carries an "error" meta entry is marked with error status.
func (o *OTelEmitter) Emit(event Event) {
	name := event.Msg
	if name == "" {
		name = "status transition"
	}

	_, span := o.tracer.Start(context.Background(), name,
		trace.WithTimestamp(event.Timestamp))
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("run_id", event.RunID),
		attribute.String("to", event.To),
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("node_id", event.NodeID))
	}
	if event.From != "" {
		attrs = append(attrs, attribute.String("from", event.From))
	}
	for k, v := range event.Meta {
		attrs = append(attrs, attribute.String("meta."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}
