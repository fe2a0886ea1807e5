// Package telemetry reports errors and traces to Sentry. Every helper degrades to a no-op when
// Sentry was never initialised.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

const (
	serviceName  = "kbd"
	flushTimeout = 5 * time.Second
)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
	Logger           *zap.Logger
}

// Init initializes Sentry with tracing enabled and returns a function that flushes pending
// events. An empty DSN yields a no-op.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		BeforeSend:       dropExpected,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
	})
	if err != nil {
		logger.Warn("sentry: failed to initialize, continuing without tracing", zap.Error(err))
		return func() {}, nil
	}

	logger.Info("sentry: tracing initialized",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", cfg.TracesSampleRate))
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler never samples health checks and lets child spans follow their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span == nil {
			return rate
		}
		if ctx.Span.Name == "GET /health" || ctx.Span.Op == "http.server GET /health" {
			return 0
		}
		var emptySpanID sentry.SpanID
		if ctx.Span.ParentSpanID != emptySpanID {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// dropExpected discards events raised for caller mistakes.
func dropExpected(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint != nil && hint.OriginalException != nil && !Reportable(hint.OriginalException) {
		return nil
	}
	return event
}

// Reportable reports whether err is worth an error event. Validation and not-found errors are
// answered to the caller and never reported.
func Reportable(err error) bool {
	if err == nil {
		return false
	}
	switch domain.ErrorCode(err) {
	case domain.ErrCodeValidation, domain.ErrCodeNotFound:
		return false
	}
	return true
}

func spanStatus(err error) sentry.SpanStatus {
	switch domain.ErrorCode(err) {
	case domain.ErrCodeValidation, domain.ErrCodeChunking:
		return sentry.SpanStatusInvalidArgument
	case domain.ErrCodeExtraction:
		return sentry.SpanStatusFailedPrecondition
	case domain.ErrCodeNotFound:
		return sentry.SpanStatusNotFound
	case domain.ErrCodeEmbedding:
		return sentry.SpanStatusUnavailable
	default:
		return sentry.SpanStatusInternalError
	}
}

// SpanAttributes are tagged on a span when set.
type SpanAttributes struct {
	DocumentID string
	FileName   string
	Source     string
	Operation  string
	TopK       int
}

// Span wraps sentry.Span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetData attaches a value to the span, e.g. a chunk or match count.
func (s *Span) SetData(key string, value any) {
	if s.inner != nil {
		s.inner.SetData(key, value)
	}
}

// SetError sets the span status from the error code and captures reportable errors.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = spanStatus(err)
	if code := domain.ErrorCode(err); code != "" {
		s.inner.SetTag("error_code", code)
	}
	if Reportable(err) {
		CaptureError(s.inner.Context(), err)
	}
}

func setAttributes(span *sentry.Span, attrs SpanAttributes) {
	if attrs.DocumentID != "" {
		span.SetTag("document_id", attrs.DocumentID)
	}
	if attrs.FileName != "" {
		span.SetTag("file_name", attrs.FileName)
	}
	if attrs.Source != "" {
		span.SetTag("match_source", attrs.Source)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}
	if attrs.TopK > 0 {
		span.SetData("top_k", attrs.TopK)
	}
}

// StartSpan opens a child of the span in ctx, or a new transaction when there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	setAttributes(span, attrs)
	return span.Context(), &Span{inner: span}
}

func hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureError reports err tagged with its domain error code.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := hubFor(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		if code := domain.ErrorCode(err); code != "" {
			scope.SetTag("error_code", code)
		}
		hub.CaptureException(err)
	})
}

// AddBreadcrumb records a step so a later error event shows what led to it.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hubFor(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
