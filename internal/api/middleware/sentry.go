package middleware

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

// SentryMiddleware opens one transaction per request on an isolated hub. The transaction starts
// under the raw path and is renamed to the chi route pattern once routing has matched, so
// /documents/{id} groups every document instead of one transaction per id.
// Panics are recorded and re-raised.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		opts := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
		}
		if trace := r.Header.Get(sentry.SentryTraceHeader); trace != "" {
			opts = append(opts, sentry.ContinueFromHeaders(trace, r.Header.Get(sentry.SentryBaggageHeader)))
		}

		tx := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, opts...)
		defer tx.Finish()

		hub.Scope().SetRequest(r)
		if id := GetRequestID(r.Context()); id != "" {
			hub.Scope().SetTag("request_id", id)
			tx.SetTag("request_id", id)
		}
		r = r.WithContext(sentry.SetHubOnContext(tx.Context(), hub))

		defer func() {
			if p := recover(); p != nil {
				tx.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), p)
				panic(p)
			}
		}()

		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				tx.Name = r.Method + " " + pattern
				tx.Source = sentry.SourceRoute
			}
		}

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		tx.Status = httpStatusToSpanStatus(status)
		tx.SetData("http.response.status_code", status)
	})
}

// Domain errors behind 5xx answers are captured by the service spans, not here.
func httpStatusToSpanStatus(status int) sentry.SpanStatus {
	switch status {
	case http.StatusBadRequest:
		return sentry.SpanStatusInvalidArgument
	case http.StatusNotFound:
		return sentry.SpanStatusNotFound
	case http.StatusConflict:
		return sentry.SpanStatusFailedPrecondition
	case http.StatusRequestEntityTooLarge:
		return sentry.SpanStatusOutOfRange
	case http.StatusUnprocessableEntity:
		return sentry.SpanStatusFailedPrecondition
	case http.StatusTooManyRequests:
		return sentry.SpanStatusResourceExhausted
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return sentry.SpanStatusUnavailable
	case http.StatusGatewayTimeout:
		return sentry.SpanStatusDeadlineExceeded
	}
	switch {
	case status < 400:
		return sentry.SpanStatusOK
	case status < 500:
		return sentry.SpanStatusInvalidArgument
	default:
		return sentry.SpanStatusInternalError
	}
}
