package prometheus

import (
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)
	m := NewHTTPMetrics(c)
	m.RecordHTTPRequest("POST", "/api/v1/models", 201, 120*time.Millisecond, 512)
	m.RecordHTTPRequest("GET", "/api/v1/models/:id", 404, time.Millisecond, 0)

	expected := `
# HELP test_unit_http_requests_total Total HTTP requests
# TYPE test_unit_http_requests_total counter
test_unit_http_requests_total{method="GET",path="/api/v1/models/:id",status_code="404"} 1
test_unit_http_requests_total{method="POST",path="/api/v1/models",status_code="201"} 1
`
	assert.NoError(t, promtestutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected), "test_unit_http_requests_total"))

	n, err := promtestutil.GatherAndCount(c.Gatherer(), "test_unit_http_response_size_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "empty responses are not observed")
}
