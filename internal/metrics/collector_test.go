package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), nil)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.leafAttemptsTotal)
	assert.NotNil(t, collector.escalationsTotal)
	assert.NotNil(t, collector.analysisDuration)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/v1/analyze", 200, 100*time.Millisecond)
	collector.RecordHTTPRequest("POST", "/v1/analyze", 201, 50*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/v1/reports/{id}", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/analyze", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/v1/reports/{id}", "4xx")))
}

func TestCollector_LeafAttempts(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveAttempt("1_0", 0, "transient", 4)
	collector.ObserveAttempt("1_0", 1, "success", 6)
	collector.ObserveAttempt("1_1", 0, "success", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.leafAttemptsTotal.WithLabelValues("success")))
	assert.Equal(t, 6.0, testutil.ToFloat64(collector.leafTokens.WithLabelValues("success")))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.leafTokens.WithLabelValues("transient")))
}

func TestCollector_NodesAndEscalations(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordNode(1, "healthy", 10*time.Millisecond)
	collector.RecordNode(1, "error", 10*time.Millisecond)
	collector.RecordNode(2, "degraded", 20*time.Millisecond)
	collector.RecordTokens(1, 15)
	collector.RecordTokens(2, 0)
	collector.ObserveEscalation(2, "low_confidence", "decided", 3*time.Millisecond)
	collector.ObserveEscalation(2, "low_confidence", "timeout", 5*time.Second)

	assert.Equal(t, 3, testutil.CollectAndCount(collector.nodeExecutionsTotal))
	assert.Equal(t, 15.0, testutil.ToFloat64(collector.nodeTokens.WithLabelValues("1")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.nodeTokens), "zero own tokens are not recorded")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.escalationsTotal.WithLabelValues("2", "low_confidence", "timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.escalationDuration))
}

func TestCollector_BudgetAndAnalysis(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordQualityDirective("reduced")
	collector.RecordQualityDirective("reduced")
	collector.RecordBudgetAlert("throttle")
	collector.RecordAnalysis("healthy", time.Second)
	collector.RecordStoreOp("redis", "save", nil, time.Millisecond)
	collector.RecordStoreOp("redis", "get", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.qualityDirectives.WithLabelValues("reduced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.budgetAlerts.WithLabelValues("throttle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.analysesTotal.WithLabelValues("healthy")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.storeOpDuration))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
			collector.ObserveAttempt(fmt.Sprintf("1_%d", id), 0, "success", 1)
			collector.RecordNode(1, "healthy", time.Millisecond)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.leafAttemptsTotal.WithLabelValues("success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.nodeExecutionsTotal.WithLabelValues("1", "healthy")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	// promauto 已注册到默认 registry，自定义 registry 仍可再次注册
	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.httpRequestDuration)

	collector.RecordHTTPRequest("GET", "/metrics", 200, time.Millisecond)

	count, err := testutil.GatherAndCount(registry)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(0))
}
