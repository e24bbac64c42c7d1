package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/Harshitk-cp/symstate/internal/metrics"
)

// MetricsCollector counts requests and errors for /stats and exports them
// per route to Prometheus.
type MetricsCollector struct {
	requests atomic.Int64
	errors   atomic.Int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

func (mc *MetricsCollector) Requests() int64 { return mc.requests.Load() }

func (mc *MetricsCollector) Errors() int64 { return mc.errors.Load() }

func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requests.Add(1)
		rw := newStatusRecorder(w)
		next.ServeHTTP(rw, r)

		if rw.status >= 400 {
			mc.errors.Add(1)
		}
		metrics.HTTPRequests.WithLabelValues(routePattern(r), statusClass(rw.status)).Inc()
	})
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
