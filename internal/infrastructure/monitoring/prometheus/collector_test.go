package prometheus

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molbayes/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", Subsystem: "unit"}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func TestNewMetricsCollector_EmptyNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{Subsystem: "unit"}, nil)
	assert.Error(t, err)
}

func TestNewMetricsCollector_WithGoMetrics(t *testing.T) {
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "test", EnableGoMetrics: true}, nil)
	require.NoError(t, err)
	n, err := promtestutil.GatherAndCount(c.Gatherer(), "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegisterCounter_WithLabels(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("requests_total", "Requests", "kind").WithLabelValues("ECFP6").Add(5)

	expected := `
# HELP test_unit_requests_total Requests
# TYPE test_unit_requests_total counter
test_unit_requests_total{kind="ECFP6"} 5
`
	assert.NoError(t, promtestutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected), "test_unit_requests_total"))
}

func TestRegisterCounter_DuplicateSharesVector(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("dup_total", "help").WithLabelValues().Inc()
	c.RegisterCounter("dup_total", "help").WithLabelValues().Inc()

	expected := `
# HELP test_unit_dup_total help
# TYPE test_unit_dup_total counter
test_unit_dup_total 2
`
	assert.NoError(t, promtestutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected), "test_unit_dup_total"))
}

func TestRegisterGauge(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterGauge("auc", "AUC").WithLabelValues().Set(0.75)

	expected := `
# HELP test_unit_auc AUC
# TYPE test_unit_auc gauge
test_unit_auc 0.75
`
	assert.NoError(t, promtestutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected), "test_unit_auc"))
}

func TestRegisterHistogram_DefaultBuckets(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterHistogram("latency_seconds", "Latency", nil).WithLabelValues().Observe(0.1)

	n, err := promtestutil.GatherAndCount(c.Gatherer(), "test_unit_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTypeConflictFallsBackToNoop(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("conflict", "help").WithLabelValues().Inc()

	gauge := c.RegisterGauge("conflict", "help")
	assert.IsType(t, noopGaugeVec{}, gauge)
	gauge.WithLabelValues().Set(10)

	expected := `
# HELP test_unit_conflict help
# TYPE test_unit_conflict counter
test_unit_conflict 1
`
	assert.NoError(t, promtestutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected), "test_unit_conflict"))
}

func TestConcurrentRegistration(t *testing.T) {
	c := newTestCollector(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RegisterCounter("concurrent_total", "help", "id").WithLabelValues("1").Inc()
		}()
	}
	wg.Wait()

	expected := `
# HELP test_unit_concurrent_total help
# TYPE test_unit_concurrent_total counter
test_unit_concurrent_total{id="1"} 50
`
	assert.NoError(t, promtestutil.GatherAndCompare(c.Gatherer(), strings.NewReader(expected), "test_unit_concurrent_total"))
}

func TestWriteToTextfile(t *testing.T) {
	c := newTestCollector(t)
	c.RegisterCounter("written_total", "help").WithLabelValues().Inc()

	path := filepath.Join(t.TempDir(), "molbayes.prom")
	require.NoError(t, c.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_unit_written_total 1")

	assert.Error(t, c.WriteToTextfile(""))
}

func TestTimer_ObserveDuration(t *testing.T) {
	c := newTestCollector(t)
	hist := c.RegisterHistogram("timer_seconds", "Timer", nil)
	timer := NewTimer(hist.WithLabelValues())
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.ObserveDuration(), 5*time.Millisecond)

	n, err := promtestutil.GatherAndCount(c.Gatherer(), "test_unit_timer_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NotPanics(t, func() { NewTimer(nil).ObserveDuration() })
}
