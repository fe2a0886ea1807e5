package middleware

import (
	"net/http"

	"github.com/cloo-solutions/crmkb/internal/api"
)

// MaxBodyBytes caps request bodies at limit bytes. A declared Content-Length over the cap is
// refused up front; bodies of unknown length fail on the read that crosses it.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				api.ErrorWithCode(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the upload limit")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
