// Package requestlogger logs one line per request served by the emulator.
package requestlogger

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
)

// Middleware logs method, path, status, sizes and latency of every request,
// except those whose path matches one of pathFilters. Request bodies are never
// logged since imports can be large.
func Middleware(logger zerolog.Logger, pathFilters ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			for _, filter := range pathFilters {
				if filter == r.URL.Path {
					next.ServeHTTP(w, r)
					return
				}
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				bytesIn, err := strconv.Atoi(r.Header.Get("Content-Length"))
				if err != nil {
					bytesIn = 0
				}

				user, _, _ := r.BasicAuth()

				logger.Info().Timestamp().Fields(map[string]interface{}{
					"request_id":   middleware.GetReqID(r.Context()),
					"request":      fmt.Sprintf("%s %s (response_code: %d)", r.Method, r.URL.Path, ww.Status()),
					"query":        r.URL.RawQuery,
					"user":         user,
					"content_type": r.Header.Get("Content-Type"),
					"latency_ms":   float64(time.Since(start).Nanoseconds()) / 1000000.0,
					"bytes_in":     bytesIn,
					"bytes_out":    ww.BytesWritten(),
				}).Msg("mindar_request")
			}()

			next.ServeHTTP(ww, r)
		}

		return http.HandlerFunc(fn)
	}
}
