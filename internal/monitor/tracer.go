package monitor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "code-judge"

// Tracer starts one span per judging stage. Exporting is left to whatever
// TracerProvider the embedding program installs globally.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer on the global provider, or one that hands out
// non-recording spans when disabled so callers never branch on it.
func NewTracer(enabled bool) *Tracer {
	if !enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(tracerName)}
	}
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// StartSpan starts the span "judge.<stage>".
func (t *Tracer) StartSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "judge."+stage, trace.WithAttributes(attrs...))
}

// Finish ends span, marking it failed when err is non-nil. Submission
// faults such as wrong answers are not errors here; only the judge's own
// failures are.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

var (
	AttrExecID     = attribute.Key("judge.execution.id")
	AttrLanguage   = attribute.Key("judge.language")
	AttrCodeHash   = attribute.Key("judge.code_hash")
	AttrCases      = attribute.Key("judge.test_cases")
	AttrVerdict    = attribute.Key("judge.verdict")
	AttrExitCode   = attribute.Key("judge.exit_code")
	AttrDurationMS = attribute.Key("judge.duration_ms")
	AttrBackend    = attribute.Key("judge.backend")
)
