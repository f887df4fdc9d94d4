package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/logger"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tsingest_http_request_duration_seconds",
		Help:    "Duration of status server requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsingest_http_requests_total",
		Help: "Total number of status server requests",
	}, []string{"method", "route", "status"})
)

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and durations labelled by the
// route template, so path variables don't explode cardinality.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		status := strconv.Itoa(rec.status)
		duration := time.Since(start)

		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(duration.Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()

		logger.FromContext(r.Context()).WithFields(map[string]interface{}{
			"status":      rec.status,
			"duration_ms": duration.Milliseconds(),
		}).Debug("Request completed")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithFields(map[string]interface{}{
					"panic":      rec,
					"request_id": r.Header.Get("X-Request-ID"),
					"path":       r.URL.Path,
				}).Error("Panic recovered")
				s.errorHandler.HandleError(w, r, errors.New(errors.ErrorTypeInternal, "An unexpected error occurred"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
