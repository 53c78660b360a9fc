package prometheus

import (
	"strconv"
	"time"
)

// HTTPMetrics holds the request metrics of the HTTP API.
type HTTPMetrics struct {
	RequestsTotal   CounterVec
	RequestDuration HistogramVec
	ResponseSize    HistogramVec
}

var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120}
	DefaultSizeBuckets         = []float64{100, 1000, 10000, 100000, 1e6, 1e7}
)

func NewHTTPMetrics(collector MetricsCollector) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal:   collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code"),
		RequestDuration: collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path"),
		ResponseSize:    collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", DefaultSizeBuckets, "method", "path"),
	}
}

// RecordHTTPRequest records one completed request.  path is the route
// template, not the raw URL, to keep label cardinality bounded.
func (m *HTTPMetrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, respSize int) {
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if respSize > 0 {
		m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
	}
}
