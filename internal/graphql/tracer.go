package graphql

import (
	"context"
	"log/slog"
	"time"

	gqlerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/graph-gophers/graphql-go/introspection"
	"github.com/graph-gophers/graphql-go/trace/tracer"

	"github.com/hitoshi/todogql/internal/middleware"
)

// RequestRecorder はGraphQLリクエストの処理時間と成否を記録する。
type RequestRecorder interface {
	RecordGraphQLRequest(duration time.Duration, failed bool)
}

// Tracer はクエリ実行のライフサイクルをslogに記録する。
// クエリ開始、非自明なフィールドの解決時間、検証エラー、クエリエラーの要約を出力する。
type Tracer struct {
	logger   *slog.Logger
	recorder RequestRecorder
}

// NewTracer はTracerを生成する。recorderはnilでもよい。
func NewTracer(logger *slog.Logger, recorder RequestRecorder) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{logger: logger, recorder: recorder}
}

// TraceQuery はクエリ1件の開始と終了を記録する。
func (t *Tracer) TraceQuery(ctx context.Context, queryString string, operationName string, variables map[string]interface{}, varTypes map[string]*introspection.Type) (context.Context, tracer.QueryFinishFunc) {
	start := time.Now()
	requestID := middleware.RequestIDFromContext(ctx)

	t.logger.InfoContext(ctx, "graphql query started",
		slog.String("operation", operationName),
		slog.String("request_id", requestID),
	)

	return ctx, func(errs []*gqlerrors.QueryError) {
		duration := time.Since(start)
		if len(errs) > 0 {
			t.logger.WarnContext(ctx, "graphql query finished with errors",
				slog.String("operation", operationName),
				slog.String("request_id", requestID),
				slog.Int("error_count", len(errs)),
				slog.Any("errors", errorMessages(errs)),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)
		} else {
			t.logger.DebugContext(ctx, "graphql query finished",
				slog.String("operation", operationName),
				slog.String("request_id", requestID),
				slog.Int64("duration_ms", duration.Milliseconds()),
			)
		}
		if t.recorder != nil {
			t.recorder.RecordGraphQLRequest(duration, len(errs) > 0)
		}
	}
}

// TraceField は非自明なフィールドの解決時間をナノ秒で記録する。
func (t *Tracer) TraceField(ctx context.Context, label, typeName, fieldName string, trivial bool, args map[string]interface{}) (context.Context, tracer.FieldFinishFunc) {
	if trivial {
		return ctx, func(*gqlerrors.QueryError) {}
	}
	start := time.Now()

	return ctx, func(err *gqlerrors.QueryError) {
		attrs := []any{
			slog.String("field", typeName+"."+fieldName),
			slog.Int64("duration_ns", time.Since(start).Nanoseconds()),
			slog.Bool("failed", err != nil),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Message))
		}
		t.logger.DebugContext(ctx, "graphql field resolved", attrs...)
	}
}

// TraceValidation は検証エラーを記録する。
func (t *Tracer) TraceValidation(ctx context.Context) tracer.ValidationFinishFunc {
	return func(errs []*gqlerrors.QueryError) {
		if len(errs) == 0 {
			return
		}
		t.logger.WarnContext(ctx, "graphql validation failed",
			slog.String("request_id", middleware.RequestIDFromContext(ctx)),
			slog.Any("errors", errorMessages(errs)),
		)
	}
}

func errorMessages(errs []*gqlerrors.QueryError) []string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Message
	}
	return msgs
}

var (
	_ tracer.Tracer           = (*Tracer)(nil)
	_ tracer.ValidationTracer = (*Tracer)(nil)
)
