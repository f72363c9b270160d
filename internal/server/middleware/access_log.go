// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tallsorts/tallsorts/internal/log"
)

// AccessLog logs one line per request and stores a request-scoped logger in
// the request context for handlers.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := log.WithComponentFromContext(r.Context(), "http")
		r = r.WithContext(logger.WithContext(r.Context()))

		sw := newStatusWriter(w)
		next.ServeHTTP(sw, r)

		level := zerolog.InfoLevel
		switch {
		case sw.statusCode >= 500:
			level = zerolog.ErrorLevel
		case sw.statusCode >= 400:
			level = zerolog.WarnLevel
		}
		logger.WithLevel(level).
			Str(log.FieldEvent, "http.request").
			Str("method", r.Method).
			Str("route", routePattern(r)).
			Int("status", sw.statusCode).
			Int("bytes", sw.bytesWritten).
			Dur("took", time.Since(start)).
			Msg("request handled")
	})
}
